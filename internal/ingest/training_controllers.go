package ingest

import (
	"context"
	"errors"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/educates/lookup-service/internal/errdefs"
)

// +kubebuilder:rbac:groups=training.educates.dev,resources=trainingportals;workshopenvironments;workshopsessions,verbs=get;list;watch

// TrainingPortalReconciler reports the training portals of one cluster.
type TrainingPortalReconciler struct {
	Reader  client.Reader
	Cluster string
	Sink    Sink
}

func (r *TrainingPortalReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx).WithName("trainingportal").WithValues("cluster", r.Cluster)

	obj, err := getTrainingResource(ctx, r.Reader, TrainingPortalGVK, req)
	if err != nil {
		logger.Error(err, "failed to get training portal", "portal", req.Name)
		return ctrl.Result{}, err
	}
	if obj == nil {
		logger.V(1).Info("training portal deleted", "portal", req.Name)
		return ctrl.Result{}, r.Sink.Submit(ctx, PortalRemoved{Cluster: r.Cluster, Name: req.Name})
	}

	return ctrl.Result{}, r.Sink.Submit(ctx, PortalUpserted{State: PortalState(r.Cluster, obj)})
}

func (r *TrainingPortalReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(newTrainingResource(TrainingPortalGVK)).
		Named("trainingportal").
		Complete(r)
}

// WorkshopEnvironmentReconciler reports the workshop environments of one cluster.
type WorkshopEnvironmentReconciler struct {
	Reader  client.Reader
	Cluster string
	Sink    Sink
}

func (r *WorkshopEnvironmentReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx).WithName("workshopenvironment").WithValues("cluster", r.Cluster)

	obj, err := getTrainingResource(ctx, r.Reader, WorkshopEnvironmentGVK, req)
	if err != nil {
		logger.Error(err, "failed to get workshop environment", "environment", req.Name)
		return ctrl.Result{}, err
	}
	if obj == nil {
		logger.V(1).Info("workshop environment deleted", "environment", req.Name)
		return ctrl.Result{}, r.Sink.Submit(ctx, EnvironmentRemoved{Cluster: r.Cluster, Name: req.Name})
	}

	state := EnvironmentState(r.Cluster, obj)
	err = r.Sink.Submit(ctx, EnvironmentUpserted{State: state})
	if errors.Is(err, errdefs.ErrPortalNotFound) {
		// Picked up again once the portal label is set.
		logger.Info("workshop environment has no training portal", "environment", req.Name)
		return ctrl.Result{}, nil
	}
	return ctrl.Result{}, err
}

func (r *WorkshopEnvironmentReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(newTrainingResource(WorkshopEnvironmentGVK)).
		Named("workshopenvironment").
		Complete(r)
}

// WorkshopSessionReconciler reports the workshop sessions of one cluster. A
// session seen before its environment fails to apply and is retried.
type WorkshopSessionReconciler struct {
	Reader  client.Reader
	Cluster string
	Sink    Sink
}

func (r *WorkshopSessionReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx).WithName("workshopsession").WithValues("cluster", r.Cluster)

	obj, err := getTrainingResource(ctx, r.Reader, WorkshopSessionGVK, req)
	if err != nil {
		logger.Error(err, "failed to get workshop session", "session", req.Name)
		return ctrl.Result{}, err
	}
	if obj == nil {
		logger.V(1).Info("workshop session deleted", "session", req.Name)
		return ctrl.Result{}, r.Sink.Submit(ctx, SessionRemoved{Cluster: r.Cluster, Name: req.Name})
	}

	return ctrl.Result{}, r.Sink.Submit(ctx, SessionUpserted{State: SessionState(r.Cluster, obj)})
}

func (r *WorkshopSessionReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(newTrainingResource(WorkshopSessionGVK)).
		Named("workshopsession").
		Complete(r)
}

func newTrainingResource(gvk schema.GroupVersionKind) *unstructured.Unstructured {
	obj := &unstructured.Unstructured{}
	obj.SetGroupVersionKind(gvk)
	return obj
}

// getTrainingResource returns nil without error when the resource is gone
// or being deleted.
func getTrainingResource(ctx context.Context, reader client.Reader, gvk schema.GroupVersionKind, req ctrl.Request) (*unstructured.Unstructured, error) {
	obj := newTrainingResource(gvk)
	if err := reader.Get(ctx, req.NamespacedName, obj); err != nil {
		return nil, client.IgnoreNotFound(err)
	}
	if obj.GetDeletionTimestamp() != nil {
		return nil, nil
	}
	return obj, nil
}
