package ingest

import (
	"context"
	"errors"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	lookupv1alpha1 "github.com/educates/lookup-service/api/v1alpha1"
	"github.com/educates/lookup-service/internal/cache"
)

const (
	// DefaultKubeconfigKey is the secret key read when a ClusterConfig does
	// not name one.
	DefaultKubeconfigKey = "config"

	secretRequeueDelay  = 5 * time.Second
	invalidRequeueDelay = 15 * time.Second
)

// ClusterWatchers starts and stops the watches on registered clusters.
type ClusterWatchers interface {
	Ensure(cluster string, kubeconfig []byte) error
	Stop(cluster string)
}

// ClusterConfigReconciler registers clusters in the capacity cache and
// starts watching their training portals.
type ClusterConfigReconciler struct {
	client.Client
	Scheme   *runtime.Scheme
	Sink     Sink
	Watchers ClusterWatchers
}

// +kubebuilder:rbac:groups=lookup.educates.dev,resources=clusterconfigs,verbs=get;list;watch
// +kubebuilder:rbac:groups="",resources=secrets,verbs=get;list;watch

func (r *ClusterConfigReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx).WithName("clusterconfig")

	clusterConfig := &lookupv1alpha1.ClusterConfig{}
	if err := r.Get(ctx, req.NamespacedName, clusterConfig); err != nil {
		if client.IgnoreNotFound(err) != nil {
			logger.Error(err, "failed to get cluster configuration", "cluster", req.Name)
			return ctrl.Result{}, err
		}

		logger.Info("cluster configuration deleted", "cluster", req.Name)
		if r.Watchers != nil {
			r.Watchers.Stop(req.Name)
		}
		return ctrl.Result{}, r.Sink.Submit(ctx, ClusterRemoved{Name: req.Name})
	}

	if !clusterConfig.DeletionTimestamp.IsZero() {
		return ctrl.Result{}, nil
	}

	var kubeconfig []byte
	if source := clusterConfig.Spec.Credentials.Kubeconfig; source != nil {
		key := source.SecretRef.Key
		if key == "" {
			key = DefaultKubeconfigKey
		}

		secret := &corev1.Secret{}
		err := r.Get(ctx, types.NamespacedName{Namespace: clusterConfig.Namespace, Name: source.SecretRef.Name}, secret)
		if err != nil {
			if client.IgnoreNotFound(err) != nil {
				return ctrl.Result{}, err
			}
			logger.Info("kubeconfig secret for cluster not found, will retry",
				"cluster", clusterConfig.Name,
				"secret", source.SecretRef.Name)
			return ctrl.Result{RequeueAfter: secretRequeueDelay}, nil
		}

		data, ok := secret.Data[key]
		if !ok {
			logger.Info("kubeconfig key not found in secret, will retry",
				"cluster", clusterConfig.Name,
				"secret", source.SecretRef.Name,
				"key", key)
			return ctrl.Result{RequeueAfter: secretRequeueDelay}, nil
		}

		kubeconfig, err = ExtractContext(data, source.Context)
		if err != nil {
			logger.Error(err, "invalid kubeconfig for cluster, will retry",
				"cluster", clusterConfig.Name,
				"secret", source.SecretRef.Name)
			return ctrl.Result{RequeueAfter: invalidRequeueDelay}, nil
		}
	}

	err := r.Sink.Submit(ctx, ClusterUpserted{Config: cache.ClusterConfiguration{
		Name:       clusterConfig.Name,
		Labels:     clusterConfig.Spec.Labels,
		Kubeconfig: kubeconfig,
	}})
	if err != nil {
		return ctrl.Result{}, err
	}

	logger.Info("cluster configuration registered",
		"cluster", clusterConfig.Name,
		"generation", clusterConfig.Generation)

	if r.Watchers != nil {
		if err := r.Watchers.Ensure(clusterConfig.Name, kubeconfig); err != nil {
			if errors.Is(err, context.Canceled) {
				return ctrl.Result{}, nil
			}
			logger.Error(err, "failed to watch cluster", "cluster", clusterConfig.Name)
			return ctrl.Result{RequeueAfter: invalidRequeueDelay}, nil
		}
	}

	return ctrl.Result{}, nil
}

// clusterConfigsForSecret maps a secret to the cluster configurations
// reading their kubeconfig from it.
func (r *ClusterConfigReconciler) clusterConfigsForSecret(ctx context.Context, obj client.Object) []reconcile.Request {
	clusterConfigs := &lookupv1alpha1.ClusterConfigList{}
	if err := r.List(ctx, clusterConfigs, client.InNamespace(obj.GetNamespace())); err != nil {
		log.FromContext(ctx).Error(err, "failed to list cluster configurations")
		return nil
	}

	var requests []reconcile.Request
	for _, item := range clusterConfigs.Items {
		source := item.Spec.Credentials.Kubeconfig
		if source == nil || source.SecretRef.Name != obj.GetName() {
			continue
		}
		requests = append(requests, reconcile.Request{
			NamespacedName: types.NamespacedName{Namespace: item.Namespace, Name: item.Name},
		})
	}
	return requests
}

// SetupWithManager sets up the controller with the Manager.
func (r *ClusterConfigReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&lookupv1alpha1.ClusterConfig{}).
		Watches(&corev1.Secret{}, handler.EnqueueRequestsFromMapFunc(r.clusterConfigsForSecret)).
		Named("clusterconfig").
		Complete(r)
}
