package controller

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/iotedge/kube-agent/pkg/edge"
)

// SecretName derives the stable Secret name for a registry credential.
// The same credential always yields the same name, which is what collapses
// duplicate credentials across modules into one Secret.
func SecretName(auth edge.RegistryAuth) string {
	sum := sha256.Sum256([]byte(auth.ServerAddress + "\x00" + auth.Username + "\x00" + auth.Password))
	return "regauth-" + hex.EncodeToString(sum[:])[:32]
}

// dockerConfigJSON serializes a credential into the dockerconfigjson
// payload consumed by the kubelet.
func dockerConfigJSON(auth edge.RegistryAuth) ([]byte, error) {
	type entry struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Auth     string `json:"auth"`
	}
	payload := struct {
		Auths map[string]entry `json:"auths"`
	}{
		Auths: map[string]entry{
			auth.ServerAddress: {
				Username: auth.Username,
				Password: auth.Password,
				Auth:     base64.StdEncoding.EncodeToString([]byte(auth.Username + ":" + auth.Password)),
			},
		},
	}
	return json.Marshal(payload)
}

// DesiredSecrets projects the modules' registry credentials into
// image-pull Secrets, keyed by secret name so duplicates collapse.
func DesiredSecrets(entries []edge.ModuleEntry) (map[string]*corev1.Secret, error) {
	secrets := make(map[string]*corev1.Secret)
	for _, entry := range entries {
		auth := entry.Module.Auth
		if auth == nil {
			continue
		}

		name := SecretName(*auth)
		if _, ok := secrets[name]; ok {
			continue
		}

		data, err := dockerConfigJSON(*auth)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize credential for module %s: %w", entry.Module.Name, err)
		}
		secrets[name] = &corev1.Secret{
			TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Secret"},
			ObjectMeta: metav1.ObjectMeta{
				Name:      name,
				Namespace: edge.SecretNamespace,
				Labels:    edge.IdentityLabels(entry.Identity),
			},
			Type: corev1.SecretTypeDockerConfigJson,
			Data: map[string][]byte{
				corev1.DockerConfigJsonKey: data,
			},
		}
	}
	return secrets, nil
}

// reconcileSecrets brings the cluster's image-pull Secrets in line with
// the desired set: create missing ones, replace ones whose payload
// changed, leave matching ones alone.
func reconcileSecrets(ctx context.Context, client kubernetes.Interface, desired map[string]*corev1.Secret) {
	api := client.CoreV1().Secrets(edge.SecretNamespace)

	for name, secret := range desired {
		existing, err := api.Get(ctx, name, metav1.GetOptions{})
		switch {
		case errors.IsNotFound(err):
			_, err = api.Create(ctx, secret, metav1.CreateOptions{})
			observeAPIOperation("create", "Secret", err)
			if err != nil {
				slog.Error("failed to create image-pull secret", slog.String("name", name), slog.String("error", err.Error()))
			}
		case err != nil:
			slog.Error("failed to read image-pull secret", slog.String("name", name), slog.String("error", err.Error()))
		case !bytes.Equal(existing.Data[corev1.DockerConfigJsonKey], secret.Data[corev1.DockerConfigJsonKey]):
			secret.ResourceVersion = existing.ResourceVersion
			_, err = api.Update(ctx, secret, metav1.UpdateOptions{})
			observeAPIOperation("update", "Secret", err)
			if err != nil {
				slog.Error("failed to update image-pull secret", slog.String("name", name), slog.String("error", err.Error()))
			}
		}
	}
}
