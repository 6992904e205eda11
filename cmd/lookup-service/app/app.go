package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/educates/lookup-service/internal/config"
)

// NewLookupServiceCommand returns the root command, which runs the service.
func NewLookupServiceCommand() (*cobra.Command, error) {
	vp := viper.New()

	cmd := &cobra.Command{
		Use:          "lookup-service",
		Short:        "Place workshop session requests across training portals",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(vp)
			if err != nil {
				return err
			}

			ctrl.SetLogger(zap.New(
				zap.UseDevMode(cfg.Development),
				zap.Level(cfg.LogLevel),
			))

			return (&runOptions{Config: cfg}).run(ctrl.SetupSignalHandler())
		},
	}

	if err := config.BindFlags(vp, cmd.Flags()); err != nil {
		return nil, fmt.Errorf("failed to setup lookup-service command: %w", err)
	}

	return cmd, nil
}
