package ingest

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/educates/lookup-service/internal/cache"
)

// Training platform resources, all cluster scoped.
var (
	TrainingPortalGVK = schema.GroupVersionKind{
		Group: "training.educates.dev", Version: "v1beta1", Kind: "TrainingPortal",
	}
	WorkshopEnvironmentGVK = schema.GroupVersionKind{
		Group: "training.educates.dev", Version: "v1beta1", Kind: "WorkshopEnvironment",
	}
	WorkshopSessionGVK = schema.GroupVersionKind{
		Group: "training.educates.dev", Version: "v1beta1", Kind: "WorkshopSession",
	}
)

const (
	PortalNameLabel      = "training.educates.dev/portal.name"
	EnvironmentNameLabel = "training.educates.dev/environment.name"
)

// statusKey is the operator owned section of a training resource status.
const statusKey = "educates"

// PortalState converts a TrainingPortal observed in a cluster.
func PortalState(cluster string, obj *unstructured.Unstructured) cache.PortalState {
	capacity, _, _ := unstructured.NestedInt64(obj.Object, "spec", "portal", "sessions", "maximum")
	reserved, _, _ := unstructured.NestedInt64(obj.Object, "spec", "portal", "sessions", "reserved")
	phase, _, _ := unstructured.NestedString(obj.Object, "status", statusKey, "phase")
	url, _, _ := unstructured.NestedString(obj.Object, "status", statusKey, "url")

	var credentials cache.PortalCredentials
	credentials.Username, _, _ = unstructured.NestedString(obj.Object, "status", statusKey, "credentials", "robot", "username")
	credentials.Password, _, _ = unstructured.NestedString(obj.Object, "status", statusKey, "credentials", "robot", "password")
	credentials.ClientID, _, _ = unstructured.NestedString(obj.Object, "status", statusKey, "clients", "robot", "id")
	credentials.ClientSecret, _, _ = unstructured.NestedString(obj.Object, "status", statusKey, "clients", "robot", "secret")

	labels := mergeLabels(obj.GetLabels(), nestedLabels(obj, "spec", "portal", "labels"))

	return cache.PortalState{
		Cluster:     cluster,
		Name:        obj.GetName(),
		UID:         string(obj.GetUID()),
		Generation:  obj.GetGeneration(),
		Labels:      labels,
		Capacity:    int(capacity),
		Reserved:    int(reserved),
		Phase:       phase,
		URL:         url,
		Credentials: credentials,
	}
}

// EnvironmentState converts a WorkshopEnvironment observed in a cluster.
// The owning portal is taken from the portal name label.
func EnvironmentState(cluster string, obj *unstructured.Unstructured) cache.EnvironmentState {
	workshop, _, _ := unstructured.NestedString(obj.Object, "spec", "workshop", "name")
	capacity, _, _ := unstructured.NestedInt64(obj.Object, "spec", "capacity")
	reserved, _, _ := unstructured.NestedInt64(obj.Object, "spec", "reserved")
	phase, _, _ := unstructured.NestedString(obj.Object, "status", statusKey, "phase")
	title, _, _ := unstructured.NestedString(obj.Object, "status", statusKey, "workshop", "spec", "title")
	description, _, _ := unstructured.NestedString(obj.Object, "status", statusKey, "workshop", "spec", "description")

	if phase == "" {
		phase = string(cache.EnvironmentPhasePending)
	}

	return cache.EnvironmentState{
		Cluster:     cluster,
		Portal:      obj.GetLabels()[PortalNameLabel],
		Name:        obj.GetName(),
		UID:         string(obj.GetUID()),
		Generation:  obj.GetGeneration(),
		Workshop:    workshop,
		Title:       title,
		Description: description,
		Labels:      nestedLabels(obj, "status", statusKey, "workshop", "spec", "labels"),
		Capacity:    int(capacity),
		Reserved:    int(reserved),
		Phase:       cache.EnvironmentPhase(phase),
	}
}

// SessionState converts a WorkshopSession observed in a cluster.
func SessionState(cluster string, obj *unstructured.Unstructured) cache.SessionState {
	environment := obj.GetLabels()[EnvironmentNameLabel]
	if environment == "" {
		environment, _, _ = unstructured.NestedString(obj.Object, "spec", "environment", "name")
	}
	user, _, _ := unstructured.NestedString(obj.Object, "status", statusKey, "user")
	phase, _, _ := unstructured.NestedString(obj.Object, "status", statusKey, "phase")

	return cache.SessionState{
		Cluster:     cluster,
		Portal:      obj.GetLabels()[PortalNameLabel],
		Environment: environment,
		Name:        obj.GetName(),
		User:        user,
		Phase:       cache.SessionPhase(phase),
	}
}

// nestedLabels reads labels given either as a map or as a list of
// name/value pairs.
func nestedLabels(obj *unstructured.Unstructured, fields ...string) map[string]string {
	value, found, err := unstructured.NestedFieldNoCopy(obj.Object, fields...)
	if !found || err != nil {
		return map[string]string{}
	}

	result := map[string]string{}
	switch typed := value.(type) {
	case map[string]interface{}:
		for k, v := range typed {
			if s, ok := v.(string); ok {
				result[k] = s
			}
		}
	case []interface{}:
		for _, item := range typed {
			entry, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			name, _ := entry["name"].(string)
			if name == "" {
				continue
			}
			value, _ := entry["value"].(string)
			result[name] = value
		}
	}
	return result
}

func mergeLabels(base, overrides map[string]string) map[string]string {
	result := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range overrides {
		result[k] = v
	}
	return result
}
