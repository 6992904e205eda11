package dto

// Parameter is a name/value pair passed to the workshop session on creation.
type Parameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SessionRequestDTO asks a training portal for a new workshop session in
// one of its environments.
type SessionRequestDTO struct {
	Environment  string      `json:"-"`
	User         string      `json:"-"`
	Email        string      `json:"-"`
	FirstName    string      `json:"-"`
	LastName     string      `json:"-"`
	IndexURL     string      `json:"-"`
	AnalyticsURL string      `json:"-"`
	Parameters   []Parameter `json:"parameters"`
}

// ReacquireRequestDTO asks a training portal to re-issue the connection
// details of a session it already allocated.
type ReacquireRequestDTO struct {
	Session  string
	IndexURL string
}

// SessionDTO is the session description returned by a training portal.
type SessionDTO struct {
	Name        string `json:"name"`
	User        string `json:"user"`
	URL         string `json:"url"`
	Workshop    string `json:"workshop"`
	Environment string `json:"environment"`
	Namespace   string `json:"namespace"`
}

// SessionDescriptor is returned to API clients once a session was created or
// reacquired.
type SessionDescriptor struct {
	Name         string `json:"sessionName"`
	ClientUserID string `json:"clientUserId"`
	URL          string `json:"sessionActivationUrl"`
	Workshop     string `json:"workshopName"`
	Environment  string `json:"environmentName"`
	Namespace    string `json:"sessionNamespace"`
	Portal       string `json:"trainingPortal"`
	Cluster      string `json:"clusterName"`
	TenantName   string `json:"tenantName"`
}

// WorkshopRequestDTO is the body of a workshop session request.
type WorkshopRequestDTO struct {
	TenantName     string      `json:"tenantName"`
	WorkshopName   string      `json:"workshopName"`
	ClientUserID   string      `json:"clientUserId,omitempty"`
	ClientIndexURL string      `json:"clientIndexUrl,omitempty"`
	WorkshopParams []Parameter `json:"workshopParams,omitempty"`
}
