package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// SecretKeyReference names a key within a secret in the same namespace.
type SecretKeyReference struct {
	Name string `json:"name"`

	// Key defaults to "config".
	// +optional
	Key string `json:"key,omitempty"`
}

// KubeconfigSource says where to find the kubeconfig for a cluster.
type KubeconfigSource struct {
	SecretRef SecretKeyReference `json:"secretRef"`

	// Context selects the kubeconfig context to use. The current context is
	// used when empty.
	// +optional
	Context string `json:"context,omitempty"`
}

// ClusterCredentials holds the credentials for accessing a cluster.
type ClusterCredentials struct {
	// Kubeconfig is omitted for the cluster the lookup service runs in.
	// +optional
	Kubeconfig *KubeconfigSource `json:"kubeconfig,omitempty"`
}

// ClusterConfigSpec defines the desired state of ClusterConfig.
type ClusterConfigSpec struct {
	// Labels are matched by tenant cluster selectors.
	// +optional
	Labels map[string]string `json:"labels,omitempty"`

	// +optional
	Credentials ClusterCredentials `json:"credentials,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:resource:scope=Namespaced
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// ClusterConfig registers a cluster whose training portals are made
// available through the lookup service.
type ClusterConfig struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec ClusterConfigSpec `json:"spec,omitempty"`
}

// +kubebuilder:object:root=true

// ClusterConfigList contains a list of ClusterConfig.
type ClusterConfigList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []ClusterConfig `json:"items"`
}

func init() {
	SchemeBuilder.Register(&ClusterConfig{}, &ClusterConfigList{})
}
