package edge

import (
	"encoding/json"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// EdgeDeployment is the watched custom resource. Its metadata name encodes
// the device it targets as <hubHostname>-<deviceId>; resources named for a
// different device are ignored by the controller.
type EdgeDeployment struct {
	metav1.TypeMeta `json:",inline"`
	Metadata        metav1.ObjectMeta `json:"metadata"`
	Spec            []ModuleEntry     `json:"spec"`
}

// ModuleEntry pairs a module spec with the identity it runs as.
type ModuleEntry struct {
	Module   Module         `json:"module"`
	Identity ModuleIdentity `json:"moduleIdentity"`
}

// ModuleIdentity is the immutable identity a module is deployed under.
type ModuleIdentity struct {
	IoTHubHostname  string              `json:"iotHubHostname"`
	GatewayHostname string              `json:"gatewayHostname,omitempty"`
	DeviceID        string              `json:"deviceId"`
	ModuleID        string              `json:"moduleId"`
	Credentials     IdentityCredentials `json:"credentials"`
}

// IdentityCredentials carries the auth scheme and generation id issued for
// a module identity.
type IdentityCredentials struct {
	AuthScheme   string `json:"authScheme"`
	GenerationID string `json:"generationId"`
}

// Module is the declarative spec of a single container workload.
type Module struct {
	Type          string              `json:"type"`
	Name          string              `json:"name"`
	Version       string              `json:"version,omitempty"`
	Image         string              `json:"image"`
	CreateOptions CreateOptions       `json:"createOptions,omitempty"`
	Env           map[string]EnvValue `json:"env,omitempty"`
	Auth          *RegistryAuth       `json:"auth,omitempty"`
	DesiredStatus string              `json:"desiredStatus,omitempty"`
	RestartPolicy string              `json:"restartPolicy,omitempty"`
}

// EnvValue is the semantic env map entry shape used by the device twin.
type EnvValue struct {
	Value string `json:"value"`
}

// RegistryAuth holds registry credentials in the docker auth config shape.
type RegistryAuth struct {
	ServerAddress string `json:"serveraddress,omitempty"`
	Username      string `json:"username,omitempty"`
	Password      string `json:"password,omitempty"`
}

// CreateOptions mirrors the docker container-create body subset honored by
// the controller.
type CreateOptions struct {
	ExposedPorts map[string]struct{} `json:"exposedPorts,omitempty"`
	Labels       map[string]string   `json:"labels,omitempty"`
	Env          []string            `json:"env,omitempty"`
	HostConfig   *HostConfig         `json:"hostConfig,omitempty"`
}

// HostConfig is the host-level subset of create options.
type HostConfig struct {
	Binds        []string                 `json:"binds,omitempty"`
	PortBindings map[string][]PortBinding `json:"portBindings,omitempty"`
	Mounts       []Mount                  `json:"mounts,omitempty"`
	Privileged   bool                     `json:"privileged,omitempty"`
}

// PortBinding maps a container port to a host port.
type PortBinding struct {
	HostIP   string `json:"hostIp,omitempty"`
	HostPort string `json:"hostPort"`
}

// Mount is a structured mount entry; only type "bind" is honored.
type Mount struct {
	Type     string `json:"type"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	ReadOnly bool   `json:"readOnly,omitempty"`
}

// FromUnstructured decodes a watched custom object into an EdgeDeployment.
func FromUnstructured(obj *unstructured.Unstructured) (*EdgeDeployment, error) {
	raw, err := json.Marshal(obj.Object)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode custom object: %w", err)
	}

	var dep EdgeDeployment
	if err := json.Unmarshal(raw, &dep); err != nil {
		return nil, fmt.Errorf("failed to decode EdgeDeployment: %w", err)
	}
	return &dep, nil
}
