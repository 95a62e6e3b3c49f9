package edge

import (
	"log/slog"
	"strings"

	corev1 "k8s.io/api/core/v1"
)

// SystemVolumes returns the volumes every module Pod carries, plus the
// mounts for the module container and the proxy sidecar. The workload
// socket directory is shared by both containers; the proxy config is
// mounted only into the proxy and comes from a ConfigMap that differs for
// the agent module.
func SystemVolumes(isAgent bool) ([]corev1.Volume, []corev1.VolumeMount, []corev1.VolumeMount) {
	configMapName := ModuleProxyConfigMapName
	if isAgent {
		configMapName = AgentProxyConfigMapName
	}

	volumes := []corev1.Volume{
		{
			Name: WorkloadVolumeName,
			VolumeSource: corev1.VolumeSource{
				EmptyDir: &corev1.EmptyDirVolumeSource{},
			},
		},
		{
			Name: ConfigVolumeName,
			VolumeSource: corev1.VolumeSource{
				ConfigMap: &corev1.ConfigMapVolumeSource{
					LocalObjectReference: corev1.LocalObjectReference{Name: configMapName},
				},
			},
		},
	}

	moduleMounts := []corev1.VolumeMount{
		{Name: WorkloadVolumeName, MountPath: SocketDir},
	}
	proxyMounts := []corev1.VolumeMount{
		{Name: WorkloadVolumeName, MountPath: SocketDir},
		{Name: ConfigVolumeName, MountPath: ProxyConfigDir},
	}
	return volumes, moduleMounts, proxyMounts
}

// BindVolumes translates docker bind strings ("src:dst[:ro]") into
// hostPath volumes and matching mounts. Malformed binds are dropped and
// logged. Volume names are taken verbatim from the source path; avoiding
// duplicates is the caller's responsibility.
func BindVolumes(binds []string) ([]corev1.Volume, []corev1.VolumeMount) {
	hostPathType := corev1.HostPathDirectoryOrCreate

	var volumes []corev1.Volume
	var mounts []corev1.VolumeMount
	for _, bind := range binds {
		parts := strings.Split(bind, ":")
		if len(parts) < 2 {
			slog.Warn("dropping invalid bind", slog.String("bind", bind))
			continue
		}

		readOnly := len(parts) > 2 && strings.Contains(parts[2], "ro")

		volumes = append(volumes, corev1.Volume{
			Name: parts[0],
			VolumeSource: corev1.VolumeSource{
				HostPath: &corev1.HostPathVolumeSource{
					Path: parts[0],
					Type: &hostPathType,
				},
			},
		})
		mounts = append(mounts, corev1.VolumeMount{
			Name:      parts[0],
			MountPath: parts[1],
			ReadOnly:  readOnly,
		})
	}
	return volumes, mounts
}

// MountVolumes translates structured mount entries. Only bind mounts are
// honored; other mount types are ignored.
func MountVolumes(mountSpecs []Mount) ([]corev1.Volume, []corev1.VolumeMount) {
	hostPathType := corev1.HostPathDirectoryOrCreate

	var volumes []corev1.Volume
	var mounts []corev1.VolumeMount
	for _, m := range mountSpecs {
		if !strings.EqualFold(m.Type, "bind") {
			slog.Debug("ignoring non-bind mount", slog.String("type", m.Type), slog.String("target", m.Target))
			continue
		}

		volumes = append(volumes, corev1.Volume{
			Name: m.Source,
			VolumeSource: corev1.VolumeSource{
				HostPath: &corev1.HostPathVolumeSource{
					Path: m.Source,
					Type: &hostPathType,
				},
			},
		})
		mounts = append(mounts, corev1.VolumeMount{
			Name:      m.Source,
			MountPath: m.Target,
			ReadOnly:  m.ReadOnly,
		})
	}
	return volumes, mounts
}
