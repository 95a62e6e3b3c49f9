package edge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	corev1 "k8s.io/api/core/v1"
)

func envNames(env []corev1.EnvVar) []string {
	names := make([]string, 0, len(env))
	for _, e := range env {
		names = append(names, e.Name)
	}
	return names
}

func envValue(t *testing.T, env []corev1.EnvVar, name string) string {
	t.Helper()
	for _, e := range env {
		if e.Name == name {
			return e.Value
		}
	}
	t.Fatalf("env var %q not found", name)
	return ""
}

func TestAssembleEnv_Order(t *testing.T) {
	m := Module{
		Type: ModuleTypeDocker,
		Env:  map[string]EnvValue{"SEMANTIC": {Value: "1"}},
		CreateOptions: CreateOptions{
			Env: []string{"FROM_CREATE=2"},
		},
	}
	id := ModuleIdentity{
		IoTHubHostname: "hub1",
		DeviceID:       "dev1",
		ModuleID:       "m1",
		Credentials:    IdentityCredentials{GenerationID: "gen1"},
	}

	env := AssembleEnv(m, id, EnvSettings{RuntimeLogLevel: "info"})

	names := envNames(env)
	assert.Equal(t, "SEMANTIC", names[0])
	assert.Equal(t, "FROM_CREATE", names[1])
	assert.Contains(t, names, "IOTEDGE_IOTHUBHOSTNAME")
	assert.Contains(t, names, "IOTEDGE_APIVERSION")

	assert.Equal(t, "hub1", envValue(t, env, "IOTEDGE_IOTHUBHOSTNAME"))
	assert.Equal(t, "sasToken", envValue(t, env, "IOTEDGE_AUTHSCHEME"))
	assert.Equal(t, "info", envValue(t, env, "RuntimeLogLevel"))
	assert.Equal(t, "edgehub", envValue(t, env, "IOTEDGE_GATEWAYHOSTNAME"))
	assert.Equal(t, "gen1", envValue(t, env, "IOTEDGE_MODULEGENERATIONID"))
	assert.Equal(t, "dev1", envValue(t, env, "IOTEDGE_DEVICEID"))
	assert.Equal(t, "m1", envValue(t, env, "IOTEDGE_MODULEID"))
}

func TestAssembleEnv_SplitsOnFirstEquals(t *testing.T) {
	m := Module{
		CreateOptions: CreateOptions{
			Env: []string{"CONN=HostName=h;Key=v", "BROKEN", "=nameless"},
		},
	}

	env := AssembleEnv(m, ModuleIdentity{ModuleID: "m1"}, EnvSettings{})
	assert.Equal(t, "HostName=h;Key=v", envValue(t, env, "CONN"))
	assert.NotContains(t, envNames(env), "BROKEN")
}

func TestAssembleEnv_AgentExtras(t *testing.T) {
	id := ModuleIdentity{ModuleID: "edgeAgent"}
	env := AssembleEnv(Module{}, id, EnvSettings{EdgeDeviceHostname: "edge-device"})

	assert.Equal(t, "kubernetes", envValue(t, env, "Mode"))
	assert.Equal(t, ManagementURI, envValue(t, env, "IOTEDGE_MANAGEMENTURI"))
	assert.Equal(t, "azure-iot-edge", envValue(t, env, "NetworkId"))
	assert.Equal(t, "edge-device", envValue(t, env, "EdgeDeviceHostName"))
}

func TestAssembleEnv_HubGetsDeviceHostnameOnly(t *testing.T) {
	id := ModuleIdentity{ModuleID: "$edgeHub"}
	env := AssembleEnv(Module{}, id, EnvSettings{EdgeDeviceHostname: "edge-device"})

	names := envNames(env)
	assert.Contains(t, names, "EdgeDeviceHostName")
	assert.NotContains(t, names, "Mode")
	assert.NotContains(t, names, "IOTEDGE_MANAGEMENTURI")
}

func TestAssembleEnv_PlainModuleGetsNoExtras(t *testing.T) {
	env := AssembleEnv(Module{}, ModuleIdentity{ModuleID: "m1"}, EnvSettings{})
	names := envNames(env)
	assert.NotContains(t, names, "EdgeDeviceHostName")
	assert.NotContains(t, names, "Mode")
}
