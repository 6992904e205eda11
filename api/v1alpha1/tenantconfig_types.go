package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// NameSelector matches resources by name.
type NameSelector struct {
	// MatchNames holds shell style patterns.
	// +optional
	MatchNames []string `json:"matchNames,omitempty"`
}

// ResourceSelector matches resources by name and labels. An empty selector
// matches everything.
type ResourceSelector struct {
	// +optional
	NameSelector NameSelector `json:"nameSelector,omitempty"`

	// +optional
	LabelSelector *metav1.LabelSelector `json:"labelSelector,omitempty"`
}

// TenantConfigSpec defines the desired state of TenantConfig.
type TenantConfigSpec struct {
	// Clusters whose portals the tenant may use.
	// +optional
	Clusters ResourceSelector `json:"clusters,omitempty"`

	// Portals the tenant may use within the selected clusters.
	// +optional
	Portals ResourceSelector `json:"portals,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:resource:scope=Namespaced
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// TenantConfig defines a tenant and the training portals it may use.
type TenantConfig struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec TenantConfigSpec `json:"spec,omitempty"`
}

// +kubebuilder:object:root=true

// TenantConfigList contains a list of TenantConfig.
type TenantConfigList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []TenantConfig `json:"items"`
}

func init() {
	SchemeBuilder.Register(&TenantConfig{}, &TenantConfigList{})
}
