package edge

// Custom resource coordinates for the watched deployment object.
const (
	CRDGroup    = "microsoft.azure.devices.edge"
	CRDVersion  = "v1beta1"
	CRDPlural   = "edgedeployments"
	CRDKind     = "EdgeDeployment"
	CRDAPIGroup = CRDGroup + "/" + CRDVersion
)

// Namespaces owned objects live in. Secrets intentionally go to "default"
// rather than the workload namespace; the asymmetry is inherited from the
// device runtime and kept as-is.
const (
	WorkloadNamespace = "microsoft-azure-devices-edge"
	SecretNamespace   = "default"
)

// Identity label keys attached to every owned object.
const (
	LabelModule = "module"
	LabelDevice = "device"
	LabelHub    = "hub"
)

// CreationString is the annotation key holding the JSON serialization of
// an owned object as it was last written by this controller.
const CreationString = "creation-string"

// Module types. Anything other than docker is skipped.
const ModuleTypeDocker = "docker"

// Well-known module ids and their reserved canonical names.
const (
	EdgeAgentModuleID = "edgeAgent"
	EdgeHubModuleID   = "edgeHub"
	EdgeAgentModule   = "edgeagent"
	EdgeHubModule     = "edgehub"
)

// Proxy sidecar and local socket plumbing.
const (
	ProxyContainerName = "proxy"
	ProxyImage         = "envoyproxy/envoy:latest"
	ProxyConfigDir     = "/etc/envoy"
	SocketDir          = "/var/run/iotedge"
	WorkloadURI        = "unix:///var/run/iotedge/workload.sock"
	ManagementURI      = "unix:///var/run/iotedge/mgmt.sock"

	WorkloadVolumeName = "workload"
	ConfigVolumeName   = "config-volume"

	AgentProxyConfigMapName  = "agent-proxy-config"
	ModuleProxyConfigMapName = "module-proxy-config"
)

// Values injected into module environments.
const (
	AuthScheme              = "sasToken"
	InjectedGatewayHostname = "edgehub"
	WorkloadAPIVersion      = "2019-01-30"
	ModeKubernetes          = "kubernetes"
	NetworkID               = "azure-iot-edge"
)
