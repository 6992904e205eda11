package ingest

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/rest"
	"k8s.io/utils/ptr"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/config"
	"sigs.k8s.io/controller-runtime/pkg/manager"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"
)

// WatcherStarter runs the watches of one cluster until ctx is done.
type WatcherStarter func(ctx context.Context, cluster string, restConfig *rest.Config, sink Sink) error

type clusterWatcher struct {
	kubeconfig []byte
	cancel     context.CancelFunc
	done       chan struct{}
}

// WatcherRegistry keeps one watcher running per registered cluster.
type WatcherRegistry struct {
	ctx    context.Context
	sink   Sink
	logger logr.Logger
	start  WatcherStarter

	mu       sync.Mutex
	watchers map[string]*clusterWatcher
}

// NewWatcherRegistry creates a registry whose watchers live at most as long
// as ctx. A nil start runs a controller-runtime manager per cluster.
func NewWatcherRegistry(ctx context.Context, sink Sink, logger logr.Logger, start WatcherStarter) *WatcherRegistry {
	if start == nil {
		start = RunClusterManager
	}
	return &WatcherRegistry{
		ctx:      ctx,
		sink:     sink,
		logger:   logger.WithName("cluster-watchers"),
		start:    start,
		watchers: make(map[string]*clusterWatcher),
	}
}

// Ensure starts watching the cluster, restarting the watcher when the
// credentials changed.
func (w *WatcherRegistry) Ensure(cluster string, kubeconfig []byte) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if existing, ok := w.watchers[cluster]; ok {
		select {
		case <-existing.done:
		default:
			if bytes.Equal(existing.kubeconfig, kubeconfig) {
				return nil
			}
		}
		w.stopLocked(cluster)
	}

	restConfig, err := RESTConfig(kubeconfig)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(w.ctx)
	watcher := &clusterWatcher{
		kubeconfig: kubeconfig,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	w.watchers[cluster] = watcher

	go func() {
		defer close(watcher.done)
		w.logger.Info("Starting watches on cluster", "cluster", cluster)
		if err := w.start(ctx, cluster, restConfig, w.sink); err != nil {
			w.logger.Error(err, "Watches on cluster failed", "cluster", cluster)
			return
		}
		w.logger.Info("Stopped watches on cluster", "cluster", cluster)
	}()

	return nil
}

// Stop stops watching the cluster and waits for the watcher to exit.
func (w *WatcherRegistry) Stop(cluster string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked(cluster)
}

// StopAll stops every watcher.
func (w *WatcherRegistry) StopAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for cluster := range w.watchers {
		w.stopLocked(cluster)
	}
}

// Watching reports whether a watcher is running for the cluster.
func (w *WatcherRegistry) Watching(cluster string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	watcher, ok := w.watchers[cluster]
	if !ok {
		return false
	}
	select {
	case <-watcher.done:
		return false
	default:
		return true
	}
}

func (w *WatcherRegistry) stopLocked(cluster string) {
	watcher, ok := w.watchers[cluster]
	if !ok {
		return
	}
	delete(w.watchers, cluster)
	watcher.cancel()
	<-watcher.done
}

// RunClusterManager watches the training resources of a cluster with a
// dedicated manager. It blocks until ctx is done.
func RunClusterManager(ctx context.Context, cluster string, restConfig *rest.Config, sink Sink) error {
	mgr, err := ctrl.NewManager(restConfig, manager.Options{
		Scheme: runtime.NewScheme(),
		Metrics: metricsserver.Options{
			BindAddress: "0",
		},
		HealthProbeBindAddress: "0",
		Controller: config.Controller{
			// Every cluster registers controllers under the same names.
			SkipNameValidation: ptr.To(true),
		},
		Logger: ctrl.Log.WithName("cluster").WithValues("cluster", cluster),
	})
	if err != nil {
		return fmt.Errorf("unable to create manager for cluster %s: %w", cluster, err)
	}

	if err := (&TrainingPortalReconciler{
		Reader: mgr.GetClient(), Cluster: cluster, Sink: sink,
	}).SetupWithManager(mgr); err != nil {
		return fmt.Errorf("unable to create training portal controller: %w", err)
	}
	if err := (&WorkshopEnvironmentReconciler{
		Reader: mgr.GetClient(), Cluster: cluster, Sink: sink,
	}).SetupWithManager(mgr); err != nil {
		return fmt.Errorf("unable to create workshop environment controller: %w", err)
	}
	if err := (&WorkshopSessionReconciler{
		Reader: mgr.GetClient(), Cluster: cluster, Sink: sink,
	}).SetupWithManager(mgr); err != nil {
		return fmt.Errorf("unable to create workshop session controller: %w", err)
	}

	return mgr.Start(ctx)
}
