package edge

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/labels"
)

// CanonicalName derives the Kubernetes-safe name for a module id. The two
// well-known modules map to their reserved names; everything else is
// lowercased as-is. A leading "$" on a well-known id is accepted as an
// alias of the plain id.
func CanonicalName(moduleID string) string {
	id := strings.TrimPrefix(moduleID, "$")
	switch {
	case strings.EqualFold(id, EdgeAgentModuleID):
		return EdgeAgentModule
	case strings.EqualFold(id, EdgeHubModuleID):
		return EdgeHubModule
	default:
		return strings.ToLower(moduleID)
	}
}

// IsEdgeAgent reports whether the module id names the edge agent.
func IsEdgeAgent(moduleID string) bool {
	return CanonicalName(moduleID) == EdgeAgentModule
}

// IsEdgeHub reports whether the module id names the edge hub.
func IsEdgeHub(moduleID string) bool {
	return CanonicalName(moduleID) == EdgeHubModule
}

// IdentityLabels returns the label set stamped on every object owned by
// the controller for this module.
func IdentityLabels(id ModuleIdentity) map[string]string {
	return map[string]string{
		LabelModule: CanonicalName(id.ModuleID),
		LabelDevice: id.DeviceID,
		LabelHub:    id.IoTHubHostname,
	}
}

// DeploymentName returns the cluster-unique Deployment name for a module.
func DeploymentName(id ModuleIdentity) string {
	name := fmt.Sprintf("%s-%s-%s-deployment", id.IoTHubHostname, id.DeviceID, CanonicalName(id.ModuleID))
	return strings.ToLower(name)
}

// ServiceName returns the Service name for a module, which doubles as its
// in-cluster DNS name.
func ServiceName(id ModuleIdentity) string {
	return CanonicalName(id.ModuleID)
}

// ResourceName returns the custom-resource name this controller serves for
// the given device.
func ResourceName(hubHostname, deviceID string) string {
	return strings.ToLower(hubHostname + "-" + deviceID)
}

// DeviceSelector returns the label selector matching every object owned by
// the controller for the given device.
func DeviceSelector(hubHostname, deviceID string) string {
	return labels.Set{
		LabelDevice: deviceID,
		LabelHub:    hubHostname,
	}.String()
}
