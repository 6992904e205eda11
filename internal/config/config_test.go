package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/educates/lookup-service/internal/config"
	"github.com/educates/lookup-service/internal/errdefs"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LOOKUP_JWT_SECRET", "top-secret")

	cfg, err := config.Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddress)
	assert.Equal(t, ":8081", cfg.MetricsAddress)
	assert.Equal(t, ":8082", cfg.HealthProbeAddress)
	assert.Equal(t, "educates-config", cfg.Namespace)
	assert.Equal(t, "top-secret", cfg.JWTSecret)
	assert.Equal(t, 72*time.Hour, cfg.TokenExpiration)
	assert.Equal(t, 5*time.Second, cfg.PortalTimeout)
	assert.Zero(t, cfg.TentativeAllocationTTL)
	assert.Equal(t, zapcore.InfoLevel, cfg.LogLevel)
	assert.False(t, cfg.Development)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("LOOKUP_JWT_SECRET", "")

	_, err := config.Load(viper.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrConfig))
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("LOOKUP_JWT_SECRET", "top-secret")
	t.Setenv("LOOKUP_PORTAL_TIMEOUT", "10s")

	vp := viper.New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, config.BindFlags(vp, fs))
	require.NoError(t, fs.Parse([]string{"--portal-timeout=2s", "--log-level=debug"}))

	cfg, err := config.Load(vp)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.PortalTimeout)
	assert.Equal(t, zapcore.DebugLevel, cfg.LogLevel)
}

func TestLoadConfigFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	content := "lookup/jwtSecret: from-file\nlookup/tentativeAllocationTTL: 30s\n"
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))
	t.Setenv("LOOKUP_CONFIG_FILE", file)

	cfg, err := config.Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, 30*time.Second, cfg.TentativeAllocationTTL)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "bad log level", env: map[string]string{"LOOKUP_LOG_LEVEL": "chatty"}},
		{name: "zero token expiration", env: map[string]string{"LOOKUP_TOKEN_EXPIRATION": "0s"}},
		{name: "negative ttl", env: map[string]string{"LOOKUP_TENTATIVE_ALLOCATION_TTL": "-1s"}},
		{name: "zero portal timeout", env: map[string]string{"LOOKUP_PORTAL_TIMEOUT": "0s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LOOKUP_JWT_SECRET", "top-secret")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load(viper.New())
			assert.True(t, errors.Is(err, errdefs.ErrConfig), "unexpected error: %v", err)
		})
	}
}
