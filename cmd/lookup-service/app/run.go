package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	ctrlcache "sigs.k8s.io/controller-runtime/pkg/cache"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	lookupv1alpha1 "github.com/educates/lookup-service/api/v1alpha1"
	"github.com/educates/lookup-service/internal/api"
	"github.com/educates/lookup-service/internal/api/handlers"
	"github.com/educates/lookup-service/internal/api/middleware"
	"github.com/educates/lookup-service/internal/broker"
	"github.com/educates/lookup-service/internal/cache"
	"github.com/educates/lookup-service/internal/config"
	"github.com/educates/lookup-service/internal/identity"
	"github.com/educates/lookup-service/internal/ingest"
	"github.com/educates/lookup-service/internal/metrics"
	transporthttp "github.com/educates/lookup-service/internal/transport/http"
)

const (
	pumpBuffer      = 256
	shutdownTimeout = 10 * time.Second
)

type runOptions struct {
	Config *config.Config
}

func (o *runOptions) run(ctx context.Context) error {
	logger := ctrl.Log.WithName("setup")
	cfg := o.Config

	metrics.Register()

	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(lookupv1alpha1.AddToScheme(scheme))

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme:                 scheme,
		Metrics:                metricsserver.Options{BindAddress: cfg.MetricsAddress},
		HealthProbeBindAddress: cfg.HealthProbeAddress,
		LeaderElection:         false,
		Cache: ctrlcache.Options{
			DefaultNamespaces: map[string]ctrlcache.Config{cfg.Namespace: {}},
		},
	})
	if err != nil {
		return fmt.Errorf("unable to setup manager: %w", err)
	}

	store := cache.NewStore(ctrl.Log)
	clients := identity.NewClientDatabase(ctrl.Log)
	tenants := identity.NewTenantDatabase(ctrl.Log)

	tokens, err := identity.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.TokenExpiration)
	if err != nil {
		return err
	}

	portals := transporthttp.NewHTTPCommunicator()
	defer portals.Close()

	b := broker.NewBroker(store, tenants, portals)
	b.Timeout = cfg.PortalTimeout
	b.Ledger = broker.NewAllocationLedger(cfg.TentativeAllocationTTL)

	group, ctx := errgroup.WithContext(ctx)

	pump := ingest.NewPump(store, ctrl.Log, pumpBuffer)
	watchers := ingest.NewWatcherRegistry(ctx, pump, ctrl.Log, nil)
	defer watchers.StopAll()

	if err := (&ingest.ClusterConfigReconciler{
		Client:   mgr.GetClient(),
		Scheme:   mgr.GetScheme(),
		Sink:     pump,
		Watchers: watchers,
	}).SetupWithManager(mgr); err != nil {
		return fmt.Errorf("unable to create cluster config controller: %w", err)
	}
	if err := (&ingest.ClientConfigReconciler{
		Client:  mgr.GetClient(),
		Scheme:  mgr.GetScheme(),
		Clients: clients,
	}).SetupWithManager(mgr); err != nil {
		return fmt.Errorf("unable to create client config controller: %w", err)
	}
	if err := (&ingest.TenantConfigReconciler{
		Client:  mgr.GetClient(),
		Scheme:  mgr.GetScheme(),
		Tenants: tenants,
	}).SetupWithManager(mgr); err != nil {
		return fmt.Errorf("unable to create tenant config controller: %w", err)
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		return fmt.Errorf("unable to set up health check: %w", err)
	}
	if err := mgr.AddReadyzCheck("readyz", func(_ *http.Request) error {
		if !store.Ready() {
			return errors.New("capacity cache not synced")
		}
		return nil
	}); err != nil {
		return fmt.Errorf("unable to set up ready check: %w", err)
	}

	server := api.NewServer(
		cfg.ListenAddress,
		handlers.NewHandler(b, clients, tokens, store),
		&middleware.Authenticator{Tokens: tokens, Clients: clients},
	)

	group.Go(func() error {
		return pump.Run(ctx)
	})

	group.Go(func() error {
		logger.Info("starting manager", "namespace", cfg.Namespace)
		return mgr.Start(ctx)
	})

	group.Go(func() error {
		logger.Info("starting HTTP API server", "address", cfg.ListenAddress)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP API server failed: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error(err, "lookup service stopped with error")
		return err
	}
	return nil
}
