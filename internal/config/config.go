package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/educates/lookup-service/internal/errdefs"
)

// Var ties an environment variable to a viper key and a command line flag.
type Var struct {
	Key        string // e.g. "LOOKUP_LISTEN_ADDRESS"
	ViperKey   string // e.g. "lookup/listenAddress"
	Flag       string // optional, e.g. "listen-address"
	Usage      string
	Default    string
	HasDefault bool
}

func DefineKV(envName, viperKey, flag, usage string, defaultVal ...string) Var {
	v := Var{Key: envName, ViperKey: viperKey, Flag: flag, Usage: usage}
	if len(defaultVal) > 0 {
		v.Default = defaultVal[0]
		v.HasDefault = true
	}
	return v
}

// BindEnv makes the environment variable visible under the viper key.
func (v *Var) BindEnv(vp *viper.Viper) error {
	return vp.BindEnv(v.ViperKey, v.Key)
}

// BindFlag registers the command line flag and binds it to the viper key.
// Vars without a flag are left alone.
func (v *Var) BindFlag(vp *viper.Viper, fs *pflag.FlagSet) error {
	if v.Flag == "" {
		return nil
	}
	fs.String(v.Flag, v.Default, v.Usage)
	return vp.BindPFlag(v.ViperKey, fs.Lookup(v.Flag))
}

func (v *Var) setDefault(vp *viper.Viper) {
	if v.HasDefault {
		vp.SetDefault(v.ViperKey, v.Default)
	}
}

//nolint:revive,gochecknoglobals,staticcheck // environment style names
var (
	LOOKUP_LISTEN_ADDRESS = DefineKV("LOOKUP_LISTEN_ADDRESS", "lookup/listenAddress",
		"listen-address", "address the REST API listens on", ":8080")
	LOOKUP_METRICS_ADDRESS = DefineKV("LOOKUP_METRICS_ADDRESS", "lookup/metricsAddress",
		"metrics-address", "address the metrics endpoint binds to, 0 disables it", ":8081")
	LOOKUP_HEALTH_PROBE_ADDRESS = DefineKV("LOOKUP_HEALTH_PROBE_ADDRESS", "lookup/healthProbeAddress",
		"health-probe-address", "address the manager health probes bind to", ":8082")
	LOOKUP_NAMESPACE = DefineKV("LOOKUP_NAMESPACE", "lookup/namespace",
		"namespace", "namespace holding cluster, client and tenant configurations", "educates-config")
	LOOKUP_JWT_SECRET = DefineKV("LOOKUP_JWT_SECRET", "lookup/jwtSecret",
		"", "secret used to sign access tokens")
	LOOKUP_TOKEN_EXPIRATION = DefineKV("LOOKUP_TOKEN_EXPIRATION", "lookup/tokenExpiration",
		"token-expiration", "lifetime of issued access tokens", "72h")
	LOOKUP_PORTAL_TIMEOUT = DefineKV("LOOKUP_PORTAL_TIMEOUT", "lookup/portalTimeout",
		"portal-timeout", "deadline for each call to a training portal", "5s")
	LOOKUP_TENTATIVE_ALLOCATION_TTL = DefineKV("LOOKUP_TENTATIVE_ALLOCATION_TTL", "lookup/tentativeAllocationTTL",
		"tentative-allocation-ttl", "how long a delegated session counts against capacity before ingestion confirms it, 0 disables it", "0s")
	LOOKUP_LOG_LEVEL = DefineKV("LOOKUP_LOG_LEVEL", "lookup/logLevel",
		"log-level", "log level (debug, info, warn, error)", "info")
	LOOKUP_DEVELOPMENT = DefineKV("LOOKUP_DEVELOPMENT", "lookup/development",
		"development", "use development logging", "false")
	LOOKUP_CONFIG_FILE = DefineKV("LOOKUP_CONFIG_FILE", "lookup/configFile",
		"config", "optional configuration file (yaml)")
)

// Vars lists every configuration variable.
func Vars() []*Var {
	return []*Var{
		&LOOKUP_LISTEN_ADDRESS,
		&LOOKUP_METRICS_ADDRESS,
		&LOOKUP_HEALTH_PROBE_ADDRESS,
		&LOOKUP_NAMESPACE,
		&LOOKUP_JWT_SECRET,
		&LOOKUP_TOKEN_EXPIRATION,
		&LOOKUP_PORTAL_TIMEOUT,
		&LOOKUP_TENTATIVE_ALLOCATION_TTL,
		&LOOKUP_LOG_LEVEL,
		&LOOKUP_DEVELOPMENT,
		&LOOKUP_CONFIG_FILE,
	}
}

// Config is the validated service configuration.
type Config struct {
	ListenAddress          string
	MetricsAddress         string
	HealthProbeAddress     string
	Namespace              string
	JWTSecret              string
	TokenExpiration        time.Duration
	PortalTimeout          time.Duration
	TentativeAllocationTTL time.Duration
	LogLevel               zapcore.Level
	Development            bool
}

// BindFlags registers the flags of every variable that has one.
func BindFlags(vp *viper.Viper, fs *pflag.FlagSet) error {
	for _, v := range Vars() {
		if err := v.BindFlag(vp, fs); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", v.Flag, err)
		}
	}
	return nil
}

// Load resolves the configuration from flags, environment, configuration
// file and defaults, in that order of precedence.
func Load(vp *viper.Viper) (*Config, error) {
	for _, v := range Vars() {
		if err := v.BindEnv(vp); err != nil {
			return nil, fmt.Errorf("%w: %w", errdefs.ErrConfig, err)
		}
		v.setDefault(vp)
	}

	if file := vp.GetString(LOOKUP_CONFIG_FILE.ViperKey); file != "" {
		vp.SetConfigFile(file)
		vp.SetConfigType("yaml")
		if err := vp.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("%w: %w", errdefs.ErrConfig, err)
			}
		}
	}

	cfg := &Config{
		ListenAddress:          vp.GetString(LOOKUP_LISTEN_ADDRESS.ViperKey),
		MetricsAddress:         vp.GetString(LOOKUP_METRICS_ADDRESS.ViperKey),
		HealthProbeAddress:     vp.GetString(LOOKUP_HEALTH_PROBE_ADDRESS.ViperKey),
		Namespace:              vp.GetString(LOOKUP_NAMESPACE.ViperKey),
		JWTSecret:              vp.GetString(LOOKUP_JWT_SECRET.ViperKey),
		TokenExpiration:        vp.GetDuration(LOOKUP_TOKEN_EXPIRATION.ViperKey),
		PortalTimeout:          vp.GetDuration(LOOKUP_PORTAL_TIMEOUT.ViperKey),
		TentativeAllocationTTL: vp.GetDuration(LOOKUP_TENTATIVE_ALLOCATION_TTL.ViperKey),
		Development:            vp.GetBool(LOOKUP_DEVELOPMENT.ViperKey),
	}

	level, err := zapcore.ParseLevel(vp.GetString(LOOKUP_LOG_LEVEL.ViperKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errdefs.ErrConfig, err)
	}
	cfg.LogLevel = level

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.JWTSecret == "":
		return fmt.Errorf("%w: %s must be set", errdefs.ErrConfig, LOOKUP_JWT_SECRET.Key)
	case c.ListenAddress == "":
		return fmt.Errorf("%w: listen address must be set", errdefs.ErrConfig)
	case c.Namespace == "":
		return fmt.Errorf("%w: namespace must be set", errdefs.ErrConfig)
	case c.TokenExpiration <= 0:
		return fmt.Errorf("%w: token expiration must be positive", errdefs.ErrConfig)
	case c.PortalTimeout <= 0:
		return fmt.Errorf("%w: portal timeout must be positive", errdefs.ErrConfig)
	case c.TentativeAllocationTTL < 0:
		return fmt.Errorf("%w: tentative allocation ttl must not be negative", errdefs.ErrConfig)
	}
	return nil
}
