package ingest

import (
	"fmt"

	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"

	"github.com/educates/lookup-service/internal/errdefs"
)

// ExtractContext reduces a kubeconfig to the single named context and the
// cluster and user it refers to. An empty context selects the current one.
func ExtractContext(kubeconfig []byte, contextName string) ([]byte, error) {
	config, err := clientcmd.Load(kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse kubeconfig: %v", errdefs.ErrValidation, err)
	}

	if contextName == "" {
		contextName = config.CurrentContext
	}
	if contextName == "" {
		return nil, fmt.Errorf("%w: kubeconfig has no current context", errdefs.ErrValidation)
	}

	kubeContext, ok := config.Contexts[contextName]
	if !ok {
		return nil, fmt.Errorf("%w: context %q not found in kubeconfig", errdefs.ErrValidation, contextName)
	}
	cluster, ok := config.Clusters[kubeContext.Cluster]
	if !ok {
		return nil, fmt.Errorf("%w: cluster %q of context %q not found in kubeconfig",
			errdefs.ErrValidation, kubeContext.Cluster, contextName)
	}
	authInfo, ok := config.AuthInfos[kubeContext.AuthInfo]
	if !ok {
		return nil, fmt.Errorf("%w: user %q of context %q not found in kubeconfig",
			errdefs.ErrValidation, kubeContext.AuthInfo, contextName)
	}

	extracted := clientcmdapi.NewConfig()
	extracted.Clusters[kubeContext.Cluster] = cluster
	extracted.AuthInfos[kubeContext.AuthInfo] = authInfo
	extracted.Contexts[contextName] = kubeContext
	extracted.CurrentContext = contextName

	data, err := clientcmd.Write(*extracted)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize kubeconfig: %w", err)
	}
	return data, nil
}

// RESTConfig builds a client configuration for a registered cluster. A
// cluster registered without a kubeconfig is the cluster the service runs in.
func RESTConfig(kubeconfig []byte) (*rest.Config, error) {
	if len(kubeconfig) == 0 {
		config, err := rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load in-cluster config: %w", err)
		}
		return config, nil
	}

	config, err := clientcmd.RESTConfigFromKubeConfig(kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build rest config: %v", errdefs.ErrValidation, err)
	}
	return config, nil
}
