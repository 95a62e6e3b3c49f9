package client

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
)

var (
	clientOnce   sync.Once
	cachedClient *kubernetes.Clientset
	cachedDyn    *dynamic.DynamicClient
	cachedConfig *rest.Config
	clientErr    error
)

// GetKubeClients returns singleton Kubernetes clients, creating them on
// first call. The controller needs both a typed clientset (Deployments,
// Services, Secrets, Pods, Nodes) and a dynamic client for the
// EdgeDeployment custom resource; both share one rest.Config so they hit
// the API server over the same connection pool.
func GetKubeClients() (*kubernetes.Clientset, *dynamic.DynamicClient, *rest.Config, error) {
	clientOnce.Do(func() {
		cachedClient, cachedDyn, cachedConfig, clientErr = BuildKubeClients("")
	})
	return cachedClient, cachedDyn, cachedConfig, clientErr
}

// BuildKubeClients creates Kubernetes clients from the given kubeconfig
// file, bypassing the singleton cache.
//
// If kubeconfig is empty, configuration is discovered automatically:
//  1. KUBECONFIG environment variable
//  2. ~/.kube/config (if it exists)
//  3. In-cluster configuration (service account)
func BuildKubeClients(kubeconfig string) (*kubernetes.Clientset, *dynamic.DynamicClient, *rest.Config, error) {
	if kubeconfig == "" {
		kubeconfig = os.Getenv("KUBECONFIG")

		if kubeconfig == "" {
			kubeconfig = filepath.Join(homedir.HomeDir(), ".kube", "config")
			if _, err := os.Stat(kubeconfig); os.IsNotExist(err) {
				kubeconfig = ""
			}
		}
	}

	config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to build kube config: %w", err)
	}

	client, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	dyn, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}

	return client, dyn, config, nil
}
