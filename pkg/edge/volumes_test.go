package edge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSystemVolumes_Module(t *testing.T) {
	volumes, moduleMounts, proxyMounts := SystemVolumes(false)

	if assert.Len(t, volumes, 2) {
		assert.Equal(t, WorkloadVolumeName, volumes[0].Name)
		assert.NotNil(t, volumes[0].EmptyDir)
		assert.Equal(t, ConfigVolumeName, volumes[1].Name)
		if assert.NotNil(t, volumes[1].ConfigMap) {
			assert.Equal(t, ModuleProxyConfigMapName, volumes[1].ConfigMap.Name)
		}
	}

	if assert.Len(t, moduleMounts, 1) {
		assert.Equal(t, SocketDir, moduleMounts[0].MountPath)
	}
	if assert.Len(t, proxyMounts, 2) {
		assert.Equal(t, SocketDir, proxyMounts[0].MountPath)
		assert.Equal(t, ProxyConfigDir, proxyMounts[1].MountPath)
	}
}

func TestSystemVolumes_Agent(t *testing.T) {
	volumes, _, _ := SystemVolumes(true)
	if assert.NotNil(t, volumes[1].ConfigMap) {
		assert.Equal(t, AgentProxyConfigMapName, volumes[1].ConfigMap.Name)
	}
}

func TestBindVolumes(t *testing.T) {
	volumes, mounts := BindVolumes([]string{
		"/var/data:/data",
		"/etc/certs:/certs:ro",
		"no-destination",
	})

	if assert.Len(t, volumes, 2) {
		assert.Equal(t, "/var/data", volumes[0].Name)
		if assert.NotNil(t, volumes[0].HostPath) {
			assert.Equal(t, "/var/data", volumes[0].HostPath.Path)
		}
	}
	if assert.Len(t, mounts, 2) {
		assert.Equal(t, "/data", mounts[0].MountPath)
		assert.False(t, mounts[0].ReadOnly)
		assert.Equal(t, "/certs", mounts[1].MountPath)
		assert.True(t, mounts[1].ReadOnly)
	}
}

func TestMountVolumes(t *testing.T) {
	volumes, mounts := MountVolumes([]Mount{
		{Type: "bind", Source: "/src", Target: "/dst", ReadOnly: true},
		{Type: "Bind", Source: "/src2", Target: "/dst2"},
		{Type: "volume", Source: "named", Target: "/ignored"},
	})

	assert.Len(t, volumes, 2)
	if assert.Len(t, mounts, 2) {
		assert.Equal(t, "/dst", mounts[0].MountPath)
		assert.True(t, mounts[0].ReadOnly)
		assert.Equal(t, "/dst2", mounts[1].MountPath)
		assert.False(t, mounts[1].ReadOnly)
	}
}
