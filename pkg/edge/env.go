package edge

import (
	"log/slog"
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"
)

// EnvSettings carries the runtime-level values injected into every module
// environment.
type EnvSettings struct {
	RuntimeLogLevel    string
	EdgeDeviceHostname string
}

// AssembleEnv builds the final environment for a module container: the
// semantic env map first, then key=value pairs from create options, then
// the injected identity variables. The agent and hub get their additional
// well-known bindings last.
func AssembleEnv(m Module, id ModuleIdentity, settings EnvSettings) []corev1.EnvVar {
	var env []corev1.EnvVar

	keys := make([]string, 0, len(m.Env))
	for k := range m.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, corev1.EnvVar{Name: k, Value: m.Env[k].Value})
	}

	for _, entry := range m.CreateOptions.Env {
		name, value, found := strings.Cut(entry, "=")
		if !found || name == "" {
			slog.Warn("dropping malformed env entry", slog.String("entry", entry))
			continue
		}
		env = append(env, corev1.EnvVar{Name: name, Value: value})
	}

	env = append(env,
		corev1.EnvVar{Name: "IOTEDGE_IOTHUBHOSTNAME", Value: id.IoTHubHostname},
		corev1.EnvVar{Name: "IOTEDGE_AUTHSCHEME", Value: AuthScheme},
		corev1.EnvVar{Name: "RuntimeLogLevel", Value: settings.RuntimeLogLevel},
		corev1.EnvVar{Name: "IOTEDGE_WORKLOADURI", Value: WorkloadURI},
		corev1.EnvVar{Name: "IOTEDGE_GATEWAYHOSTNAME", Value: InjectedGatewayHostname},
		corev1.EnvVar{Name: "IOTEDGE_MODULEGENERATIONID", Value: id.Credentials.GenerationID},
		corev1.EnvVar{Name: "IOTEDGE_DEVICEID", Value: id.DeviceID},
		corev1.EnvVar{Name: "IOTEDGE_MODULEID", Value: id.ModuleID},
		corev1.EnvVar{Name: "IOTEDGE_APIVERSION", Value: WorkloadAPIVersion},
	)

	if IsEdgeAgent(id.ModuleID) {
		env = append(env,
			corev1.EnvVar{Name: "Mode", Value: ModeKubernetes},
			corev1.EnvVar{Name: "IOTEDGE_MANAGEMENTURI", Value: ManagementURI},
			corev1.EnvVar{Name: "NetworkId", Value: NetworkID},
		)
	}
	if IsEdgeAgent(id.ModuleID) || IsEdgeHub(id.ModuleID) {
		env = append(env, corev1.EnvVar{Name: "EdgeDeviceHostName", Value: settings.EdgeDeviceHostname})
	}

	return env
}
