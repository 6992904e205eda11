package cache

// SessionPhase is the lifecycle state of a workshop session.
type SessionPhase string

const (
	// SessionPhaseAllocated marks a session in active use by a user.
	SessionPhaseAllocated SessionPhase = "Allocated"
	// SessionPhaseAvailable marks a pre-provisioned session waiting to be allocated.
	SessionPhaseAvailable SessionPhase = "Available"
	SessionPhaseStopping  SessionPhase = "Stopping"
	SessionPhaseStopped   SessionPhase = "Stopped"
)

// EnvironmentPhase is the lifecycle state of a workshop environment.
type EnvironmentPhase string

const (
	EnvironmentPhasePending  EnvironmentPhase = "Pending"
	EnvironmentPhaseRunning  EnvironmentPhase = "Running"
	EnvironmentPhaseStopping EnvironmentPhase = "Stopping"
	EnvironmentPhaseStopped  EnvironmentPhase = "Stopped"
)

// ClusterConfiguration is the registered identity of a cluster. It is
// replaced wholesale on every update.
type ClusterConfiguration struct {
	Name   string
	Labels map[string]string
	// Kubeconfig holds the credentials used to watch the cluster. It is
	// opaque to the cache.
	Kubeconfig []byte
}

// PortalCredentials are the robot account credentials used to call a
// training portal on behalf of clients.
type PortalCredentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

// PortalEndpoint says how to reach a training portal.
type PortalEndpoint struct {
	Cluster     string
	Portal      string
	URL         string
	Credentials PortalCredentials
}

// PortalState is the observed state of a training portal as reported by
// ingestion.
type PortalState struct {
	Cluster     string
	Name        string
	UID         string
	Generation  int64
	Labels      map[string]string
	Capacity    int
	Reserved    int
	Phase       string
	URL         string
	Credentials PortalCredentials
}

// EnvironmentState is the observed state of a workshop environment as
// reported by ingestion. Allocated and available counts are not part of it,
// they are always derived from the session set.
type EnvironmentState struct {
	Cluster     string
	Portal      string
	Name        string
	UID         string
	Generation  int64
	Workshop    string
	Title       string
	Description string
	Labels      map[string]string
	Capacity    int
	Reserved    int
	Phase       EnvironmentPhase
}

// SessionState is the observed state of a workshop session as reported by
// ingestion. Portal and Environment may be left empty, in which case the
// session is located by name within the cluster.
type SessionState struct {
	Cluster     string
	Portal      string
	Environment string
	Name        string
	User        string
	Phase       SessionPhase
}

// Session is a copy of a cached workshop session.
type Session struct {
	Name        string
	Environment string
	User        string
	Phase       SessionPhase
}

// PortalCounters is a consistent read of a portal's capacity counters.
type PortalCounters struct {
	Capacity  int
	Reserved  int
	Allocated int
	Available int
}

// EnvironmentCounters is a consistent read of an environment's capacity counters.
type EnvironmentCounters struct {
	Capacity  int
	Reserved  int
	Allocated int
	Available int
}

// EnvironmentSnapshot is an immutable view of an environment used for
// placement. Counters of the environment are read as one pair, as are those
// of its portal.
type EnvironmentSnapshot struct {
	Cluster     string
	Portal      string
	Name        string
	Workshop    string
	Title       string
	Description string
	Labels      map[string]string

	Capacity  int
	Reserved  int
	Allocated int
	Available int

	PortalCapacity  int
	PortalAllocated int

	Endpoint PortalEndpoint
}

// Key identifies the environment across the whole cache.
func (s EnvironmentSnapshot) Key() string {
	return s.Cluster + "/" + s.Portal + "/" + s.Name
}
