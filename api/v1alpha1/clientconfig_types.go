package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ClientCredentials holds the secret a client logs in with.
type ClientCredentials struct {
	// Password is a bcrypt hash, or a plain text password which is hashed
	// when the client is registered.
	Password string `json:"password"`
}

// ClientUser describes what a client may do.
type ClientUser struct {
	// Roles granted to the client: admin, workshop-reader, workshop-requestor.
	// +optional
	Roles []string `json:"roles,omitempty"`
}

// ClientConfigSpec defines the desired state of ClientConfig.
type ClientConfigSpec struct {
	Client ClientCredentials `json:"client"`

	// +optional
	User ClientUser `json:"user,omitempty"`

	// Tenants the client may act on behalf of.
	// +optional
	Tenants []string `json:"tenants,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:resource:scope=Namespaced
// +kubebuilder:printcolumn:name="Roles",type=string,JSONPath=`.spec.user.roles`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// ClientConfig registers an application allowed to call the lookup service API.
// The resource name is the client username.
type ClientConfig struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec ClientConfigSpec `json:"spec,omitempty"`
}

// +kubebuilder:object:root=true

// ClientConfigList contains a list of ClientConfig.
type ClientConfigList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []ClientConfig `json:"items"`
}

func init() {
	SchemeBuilder.Register(&ClientConfig{}, &ClientConfigList{})
}
