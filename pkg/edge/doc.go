// Package edge defines the EdgeDeployment custom resource model and the
// pure translation helpers that map a device-level module spec onto
// Kubernetes primitives: naming and labels, port and protocol parsing,
// volume and mount mapping, and environment assembly.
package edge
