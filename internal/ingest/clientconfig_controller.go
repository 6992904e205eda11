package ingest

import (
	"context"

	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	lookupv1alpha1 "github.com/educates/lookup-service/api/v1alpha1"
	"github.com/educates/lookup-service/internal/identity"
)

// ClientConfigReconciler keeps the client database in step with the
// ClientConfig resources.
type ClientConfigReconciler struct {
	client.Client
	Scheme  *runtime.Scheme
	Clients *identity.ClientDatabase
}

// +kubebuilder:rbac:groups=lookup.educates.dev,resources=clientconfigs,verbs=get;list;watch

func (r *ClientConfigReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx).WithName("clientconfig")

	clientConfig := &lookupv1alpha1.ClientConfig{}
	if err := r.Get(ctx, req.NamespacedName, clientConfig); err != nil {
		if client.IgnoreNotFound(err) != nil {
			logger.Error(err, "failed to get client configuration", "client", req.Name)
			return ctrl.Result{}, err
		}
		logger.Info("client configuration deleted", "client", req.Name)
		r.Clients.RemoveClient(req.Name)
		return ctrl.Result{}, nil
	}

	if !clientConfig.DeletionTimestamp.IsZero() {
		r.Clients.RemoveClient(clientConfig.Name)
		return ctrl.Result{}, nil
	}

	_, err := r.Clients.UpdateClient(identity.ClientConfig{
		Name:     clientConfig.Name,
		Password: clientConfig.Spec.Client.Password,
		Roles:    clientConfig.Spec.User.Roles,
		Tenants:  clientConfig.Spec.Tenants,
	})
	if err != nil {
		// Nothing changes until the resource is edited.
		logger.Error(err, "rejected client configuration", "client", clientConfig.Name)
		return ctrl.Result{}, nil
	}

	logger.Info("client configuration registered",
		"client", clientConfig.Name,
		"generation", clientConfig.Generation)
	return ctrl.Result{}, nil
}

// SetupWithManager sets up the controller with the Manager.
func (r *ClientConfigReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&lookupv1alpha1.ClientConfig{}).
		Named("clientconfig").
		Complete(r)
}
