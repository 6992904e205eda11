package ingest

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	lookupv1alpha1 "github.com/educates/lookup-service/api/v1alpha1"
	"github.com/educates/lookup-service/internal/errdefs"
	"github.com/educates/lookup-service/internal/identity"
)

// TenantConfigReconciler keeps the tenant database in step with the
// TenantConfig resources.
type TenantConfigReconciler struct {
	client.Client
	Scheme  *runtime.Scheme
	Tenants *identity.TenantDatabase
}

// +kubebuilder:rbac:groups=lookup.educates.dev,resources=tenantconfigs,verbs=get;list;watch

func (r *TenantConfigReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx).WithName("tenantconfig")

	tenantConfig := &lookupv1alpha1.TenantConfig{}
	if err := r.Get(ctx, req.NamespacedName, tenantConfig); err != nil {
		if client.IgnoreNotFound(err) != nil {
			logger.Error(err, "failed to get tenant configuration", "tenant", req.Name)
			return ctrl.Result{}, err
		}
		logger.Info("tenant configuration deleted", "tenant", req.Name)
		r.Tenants.RemoveTenant(req.Name)
		return ctrl.Result{}, nil
	}

	if !tenantConfig.DeletionTimestamp.IsZero() {
		r.Tenants.RemoveTenant(tenantConfig.Name)
		return ctrl.Result{}, nil
	}

	tenant, err := TenantFromConfig(tenantConfig)
	if err == nil {
		err = r.Tenants.UpdateTenant(tenant)
	}
	if err != nil {
		// A previous definition is withdrawn rather than left granting access.
		r.Tenants.RemoveTenant(tenantConfig.Name)
		logger.Error(err, "rejected tenant configuration, tenant disabled", "tenant", tenantConfig.Name)
		return ctrl.Result{}, nil
	}

	logger.Info("tenant configuration registered",
		"tenant", tenantConfig.Name,
		"generation", tenantConfig.Generation)
	return ctrl.Result{}, nil
}

// TenantFromConfig converts a TenantConfig resource to a tenant.
func TenantFromConfig(tenantConfig *lookupv1alpha1.TenantConfig) (*identity.Tenant, error) {
	clusters, err := selectorFromResource(tenantConfig.Spec.Clusters)
	if err != nil {
		return nil, fmt.Errorf("clusters: %w", err)
	}
	portals, err := selectorFromResource(tenantConfig.Spec.Portals)
	if err != nil {
		return nil, fmt.Errorf("portals: %w", err)
	}
	return &identity.Tenant{
		Name:     tenantConfig.Name,
		Clusters: clusters,
		Portals:  portals,
	}, nil
}

func selectorFromResource(resource lookupv1alpha1.ResourceSelector) (identity.Selector, error) {
	selector := identity.Selector{MatchNames: resource.NameSelector.MatchNames}
	if resource.LabelSelector != nil {
		labelSelector, err := metav1.LabelSelectorAsSelector(resource.LabelSelector)
		if err != nil {
			return identity.Selector{}, fmt.Errorf("%w: %v", errdefs.ErrValidation, err)
		}
		selector.Labels = labelSelector
	}
	return selector, nil
}

// SetupWithManager sets up the controller with the Manager.
func (r *TenantConfigReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&lookupv1alpha1.TenantConfig{}).
		Named("tenantconfig").
		Complete(r)
}
