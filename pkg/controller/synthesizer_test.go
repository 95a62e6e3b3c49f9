package controller

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"

	"github.com/iotedge/kube-agent/pkg/edge"
)

var testSettings = Settings{
	ProxyImage:         edge.ProxyImage,
	RuntimeLogLevel:    "info",
	EdgeDeviceHostname: "edge-device",
}

func moduleEntry(name, image string) edge.ModuleEntry {
	return edge.ModuleEntry{
		Module: edge.Module{
			Type:  edge.ModuleTypeDocker,
			Name:  name,
			Image: image,
		},
		Identity: edge.ModuleIdentity{
			IoTHubHostname: "hub1",
			DeviceID:       "dev1",
			ModuleID:       name,
			Credentials:    edge.IdentityCredentials{AuthScheme: "sasToken", GenerationID: "g1"},
		},
	}
}

func TestSynthesize_IdentityLabelsEverywhere(t *testing.T) {
	entry := moduleEntry("m1", "img:1")
	entry.Module.CreateOptions.ExposedPorts = map[string]struct{}{"80/tcp": {}}

	desired, err := Synthesize([]edge.ModuleEntry{entry}, testSettings)
	require.NoError(t, err)

	want := map[string]string{"module": "m1", "device": "dev1", "hub": "hub1"}
	for _, dep := range desired.Deployments {
		assert.Equal(t, want, dep.Labels)
	}
	for _, svc := range desired.Services {
		assert.Equal(t, want, svc.Labels)
	}
}

func TestSynthesize_ServiceOnlyWithPorts(t *testing.T) {
	withPorts := moduleEntry("m1", "img:1")
	withPorts.Module.CreateOptions.ExposedPorts = map[string]struct{}{"80/tcp": {}}
	without := moduleEntry("m2", "img:1")

	desired, err := Synthesize([]edge.ModuleEntry{withPorts, without}, testSettings)
	require.NoError(t, err)

	assert.Len(t, desired.Deployments, 2)
	assert.Len(t, desired.Services, 1)
	assert.Contains(t, desired.Services, "m1")
}

func TestSynthesize_SkipsNonDockerModules(t *testing.T) {
	entry := moduleEntry("m1", "img:1")
	entry.Module.Type = "wasm"

	desired, err := Synthesize([]edge.ModuleEntry{entry}, testSettings)
	require.NoError(t, err)
	assert.Empty(t, desired.Deployments)
	assert.Empty(t, desired.Services)
}

func TestSynthesize_DeploymentShape(t *testing.T) {
	entry := moduleEntry("m1", "img:1")
	entry.Module.CreateOptions.ExposedPorts = map[string]struct{}{"80/tcp": {}}
	entry.Module.CreateOptions.Labels = map[string]string{"custom": "v", "module": "overridden"}
	entry.Module.CreateOptions.HostConfig = &edge.HostConfig{Privileged: true}

	desired, err := Synthesize([]edge.ModuleEntry{entry}, testSettings)
	require.NoError(t, err)

	dep, ok := desired.Deployments["hub1-dev1-m1-deployment"]
	require.True(t, ok, "deployment named after hub, device and module")

	assert.Equal(t, "apps/v1", dep.APIVersion)
	assert.Equal(t, "Deployment", dep.Kind)
	assert.Equal(t, int32(1), *dep.Spec.Replicas)
	assert.Equal(t, edge.WorkloadNamespace, dep.Namespace)

	// Create-options labels win on the Pod; identity labels stay on the
	// Deployment and the selector.
	assert.Equal(t, "overridden", dep.Spec.Template.Labels["module"])
	assert.Equal(t, "v", dep.Spec.Template.Labels["custom"])
	assert.Equal(t, "m1", dep.Spec.Selector.MatchLabels["module"])

	containers := dep.Spec.Template.Spec.Containers
	require.Len(t, containers, 2)
	assert.Equal(t, "m1", containers[0].Name)
	assert.Equal(t, "img:1", containers[0].Image)
	require.NotNil(t, containers[0].SecurityContext)
	assert.True(t, *containers[0].SecurityContext.Privileged)

	assert.Equal(t, edge.ProxyContainerName, containers[1].Name)
	assert.Equal(t, edge.ProxyImage, containers[1].Image)
	assert.Nil(t, containers[1].SecurityContext)

	// Both containers share the workload socket volume; only the proxy
	// mounts its config.
	assert.Len(t, containers[0].VolumeMounts, 1)
	assert.Len(t, containers[1].VolumeMounts, 2)
}

func TestSynthesize_ImagePullSecretRef(t *testing.T) {
	entry := moduleEntry("m1", "registry.example.com/m1:1")
	auth := &edge.RegistryAuth{ServerAddress: "registry.example.com", Username: "u", Password: "p"}
	entry.Module.Auth = auth

	desired, err := Synthesize([]edge.ModuleEntry{entry}, testSettings)
	require.NoError(t, err)

	dep := desired.Deployments["hub1-dev1-m1-deployment"]
	require.Len(t, dep.Spec.Template.Spec.ImagePullSecrets, 1)
	assert.Equal(t, SecretName(*auth), dep.Spec.Template.Spec.ImagePullSecrets[0].Name)
	assert.Contains(t, desired.Secrets, SecretName(*auth))
}

func TestSynthesize_CreationStringRoundTrips(t *testing.T) {
	entry := moduleEntry("m1", "img:1")
	entry.Module.CreateOptions.ExposedPorts = map[string]struct{}{"80/tcp": {}}

	desired, err := Synthesize([]edge.ModuleEntry{entry}, testSettings)
	require.NoError(t, err)

	dep := desired.Deployments["hub1-dev1-m1-deployment"]
	raw, ok := dep.Annotations[edge.CreationString]
	require.True(t, ok)

	var decoded appsv1.Deployment
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	assert.Equal(t, dep.Name, decoded.Name)
	assert.Equal(t, dep.Labels, decoded.Labels)
	// The annotation holds the object as serialized before stamping, so
	// it carries no annotation itself.
	assert.NotContains(t, decoded.Annotations, edge.CreationString)

	svc := desired.Services["m1"]
	var decodedSvc corev1.Service
	require.NoError(t, json.Unmarshal([]byte(svc.Annotations[edge.CreationString]), &decodedSvc))
	assert.Equal(t, svc.Spec.Type, decodedSvc.Spec.Type)
}

func TestSynthesize_Deterministic(t *testing.T) {
	entry := moduleEntry("m1", "img:1")
	entry.Module.CreateOptions.ExposedPorts = map[string]struct{}{"80/tcp": {}, "443/tcp": {}}
	entry.Module.Env = map[string]edge.EnvValue{"B": {Value: "2"}, "A": {Value: "1"}}

	first, err := Synthesize([]edge.ModuleEntry{entry}, testSettings)
	require.NoError(t, err)
	for range 5 {
		again, err := Synthesize([]edge.ModuleEntry{entry}, testSettings)
		require.NoError(t, err)
		assert.Equal(t,
			first.Deployments["hub1-dev1-m1-deployment"].Annotations[edge.CreationString],
			again.Deployments["hub1-dev1-m1-deployment"].Annotations[edge.CreationString])
	}
}
