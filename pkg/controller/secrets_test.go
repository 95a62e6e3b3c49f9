package controller

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/iotedge/kube-agent/pkg/edge"
)

func authedModule(name string, auth *edge.RegistryAuth) edge.ModuleEntry {
	return edge.ModuleEntry{
		Module: edge.Module{
			Type:  edge.ModuleTypeDocker,
			Name:  name,
			Image: "registry.example.com/" + name + ":1",
			Auth:  auth,
		},
		Identity: edge.ModuleIdentity{
			IoTHubHostname: "hub1",
			DeviceID:       "dev1",
			ModuleID:       name,
		},
	}
}

func TestSecretName_Stable(t *testing.T) {
	auth := edge.RegistryAuth{ServerAddress: "registry.example.com", Username: "u", Password: "p"}
	assert.Equal(t, SecretName(auth), SecretName(auth))

	other := auth
	other.Password = "different"
	assert.NotEqual(t, SecretName(auth), SecretName(other))
}

func TestDesiredSecrets_Dedup(t *testing.T) {
	shared := &edge.RegistryAuth{ServerAddress: "registry.example.com", Username: "u", Password: "p"}
	distinct := &edge.RegistryAuth{ServerAddress: "other.example.com", Username: "u", Password: "p"}

	secrets, err := DesiredSecrets([]edge.ModuleEntry{
		authedModule("m1", shared),
		authedModule("m2", shared),
		authedModule("m3", distinct),
		authedModule("m4", nil),
	})
	assert.NoError(t, err)
	// Two distinct credentials across four modules means two secrets.
	assert.Len(t, secrets, 2)

	for _, secret := range secrets {
		assert.Equal(t, corev1.SecretTypeDockerConfigJson, secret.Type)
		assert.Contains(t, secret.Data, corev1.DockerConfigJsonKey)
		assert.Equal(t, edge.SecretNamespace, secret.Namespace)
	}
}

func TestReconcileSecrets(t *testing.T) {
	ctx := context.Background()
	auth := &edge.RegistryAuth{ServerAddress: "registry.example.com", Username: "u", Password: "p"}

	desired, err := DesiredSecrets([]edge.ModuleEntry{authedModule("m1", auth)})
	assert.NoError(t, err)

	clientset := fake.NewClientset()

	t.Run("creates missing secret", func(t *testing.T) {
		reconcileSecrets(ctx, clientset, desired)

		list, err := clientset.CoreV1().Secrets(edge.SecretNamespace).List(ctx, metav1.ListOptions{})
		assert.NoError(t, err)
		assert.Len(t, list.Items, 1)
	})

	t.Run("leaves matching secret alone", func(t *testing.T) {
		before, _ := clientset.CoreV1().Secrets(edge.SecretNamespace).List(ctx, metav1.ListOptions{})

		reconcileSecrets(ctx, clientset, desired)

		after, _ := clientset.CoreV1().Secrets(edge.SecretNamespace).List(ctx, metav1.ListOptions{})
		assert.Equal(t, before.Items, after.Items)
	})

	t.Run("replaces changed payload", func(t *testing.T) {
		name := SecretName(*auth)
		stale := desired[name].DeepCopy()
		stale.Data[corev1.DockerConfigJsonKey] = []byte("stale")
		_, err := clientset.CoreV1().Secrets(edge.SecretNamespace).Update(ctx, stale, metav1.UpdateOptions{})
		assert.NoError(t, err)

		reconcileSecrets(ctx, clientset, desired)

		current, err := clientset.CoreV1().Secrets(edge.SecretNamespace).Get(ctx, name, metav1.GetOptions{})
		assert.NoError(t, err)
		assert.Equal(t, desired[name].Data[corev1.DockerConfigJsonKey], current.Data[corev1.DockerConfigJsonKey])
	})
}
