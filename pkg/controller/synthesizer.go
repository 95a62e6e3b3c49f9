package controller

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/distribution/reference"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	"github.com/iotedge/kube-agent/pkg/edge"
)

// Settings carries the runtime-level values the synthesizer injects into
// every module workload.
type Settings struct {
	ProxyImage         string
	RuntimeLogLevel    string
	EdgeDeviceHostname string
}

// DesiredObjects is the full object set computed for one reconciliation.
type DesiredObjects struct {
	Deployments map[string]*appsv1.Deployment
	Services    map[string]*corev1.Service
	Secrets     map[string]*corev1.Secret
}

// Synthesize builds the desired Deployments, Services and Secrets for the
// given module entries. Modules of any type other than docker are skipped
// with a warning. Synthesis is deterministic: the same input yields
// byte-equal serialized objects, which the diff engine relies on.
func Synthesize(entries []edge.ModuleEntry, settings Settings) (*DesiredObjects, error) {
	docker := make([]edge.ModuleEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Module.Type != edge.ModuleTypeDocker {
			slog.Warn("skipping module with unsupported type",
				slog.String("module", entry.Module.Name),
				slog.String("type", entry.Module.Type))
			continue
		}
		docker = append(docker, entry)
	}

	secrets, err := DesiredSecrets(docker)
	if err != nil {
		return nil, err
	}

	desired := &DesiredObjects{
		Deployments: make(map[string]*appsv1.Deployment),
		Services:    make(map[string]*corev1.Service),
		Secrets:     secrets,
	}

	for _, entry := range docker {
		if svc := synthesizeService(entry); svc != nil {
			if err := stampCreationString(&svc.ObjectMeta, svc); err != nil {
				return nil, err
			}
			desired.Services[svc.Name] = svc
		}

		dep := synthesizeDeployment(entry, settings)
		if err := stampCreationString(&dep.ObjectMeta, dep); err != nil {
			return nil, err
		}
		desired.Deployments[dep.Name] = dep
	}
	return desired, nil
}

// stampCreationString serializes the object as synthesized and stores the
// JSON on the object itself. The serialization happens before the
// annotation is attached, so the stored string is exactly what a later
// pass re-synthesizes and compares against.
func stampCreationString(meta *metav1.ObjectMeta, obj any) error {
	raw, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", meta.Name, err)
	}
	if meta.Annotations == nil {
		meta.Annotations = map[string]string{}
	}
	meta.Annotations[edge.CreationString] = string(raw)
	return nil
}

func synthesizeService(entry edge.ModuleEntry) *corev1.Service {
	ports, serviceType := edge.ServicePorts(entry.Module.CreateOptions)
	if len(ports) == 0 {
		return nil
	}

	lbls := edge.IdentityLabels(entry.Identity)
	return &corev1.Service{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      edge.ServiceName(entry.Identity),
			Namespace: edge.WorkloadNamespace,
			Labels:    lbls,
		},
		Spec: corev1.ServiceSpec{
			Type:     serviceType,
			Selector: lbls,
			Ports:    ports,
		},
	}
}

func synthesizeDeployment(entry edge.ModuleEntry, settings Settings) *appsv1.Deployment {
	m := entry.Module
	id := entry.Identity
	identityLabels := edge.IdentityLabels(id)

	image := m.Image
	if _, err := reference.ParseNormalizedNamed(image); err != nil {
		slog.Warn("module image is not a normalizable reference",
			slog.String("module", m.Name),
			slog.String("image", image),
			slog.String("error", err.Error()))
	}

	volumes, moduleMounts, proxyMounts := edge.SystemVolumes(edge.IsEdgeAgent(id.ModuleID))
	if hc := m.CreateOptions.HostConfig; hc != nil {
		bindVolumes, bindMounts := edge.BindVolumes(hc.Binds)
		volumes = append(volumes, bindVolumes...)
		moduleMounts = append(moduleMounts, bindMounts...)

		mountVolumes, mountMounts := edge.MountVolumes(hc.Mounts)
		volumes = append(volumes, mountVolumes...)
		moduleMounts = append(moduleMounts, mountMounts...)
	}

	env := edge.AssembleEnv(m, id, edge.EnvSettings{
		RuntimeLogLevel:    settings.RuntimeLogLevel,
		EdgeDeviceHostname: settings.EdgeDeviceHostname,
	})

	moduleContainer := corev1.Container{
		Name:         edge.CanonicalName(id.ModuleID),
		Image:        image,
		Env:          env,
		Ports:        edge.ContainerPorts(m.CreateOptions),
		VolumeMounts: moduleMounts,
	}
	if hc := m.CreateOptions.HostConfig; hc != nil && hc.Privileged {
		moduleContainer.SecurityContext = &corev1.SecurityContext{
			Privileged: ptr.To(true),
		}
	}

	proxyContainer := corev1.Container{
		Name:         edge.ProxyContainerName,
		Image:        settings.ProxyImage,
		Env:          env,
		VolumeMounts: proxyMounts,
	}

	// Create-options labels win over identity labels on the Pod.
	podLabels := make(map[string]string, len(identityLabels)+len(m.CreateOptions.Labels))
	for k, v := range identityLabels {
		podLabels[k] = v
	}
	for k, v := range m.CreateOptions.Labels {
		podLabels[k] = v
	}

	var pullSecrets []corev1.LocalObjectReference
	if m.Auth != nil {
		pullSecrets = append(pullSecrets, corev1.LocalObjectReference{Name: SecretName(*m.Auth)})
	}

	name := edge.DeploymentName(id)
	return &appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: edge.WorkloadNamespace,
			Labels:    identityLabels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To(int32(1)),
			Selector: &metav1.LabelSelector{MatchLabels: identityLabels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Name:   name,
					Labels: podLabels,
				},
				Spec: corev1.PodSpec{
					Containers:       []corev1.Container{moduleContainer, proxyContainer},
					Volumes:          volumes,
					ImagePullSecrets: pullSecrets,
				},
			},
		},
	}
}
