package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "RANGEDRILL"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultDriver       = DriverSQLite
	defaultDatabasePath = "rangedrill.db"
	defaultLogLevel     = "info"
	defaultLogFormat    = "json"
	defaultCookieName   = "app_session"
	defaultIssuer       = "rangedrill"
	defaultExporter     = ExporterNone
	defaultServiceName  = "rangedrill-api"
	defaultMaxRetries   = 5
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Trace exporters.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress       string
	AllowedOrigins    []string
	DatabaseDriver    string
	DatabasePath      string
	DatabaseDSN       string
	LogLevel          string
	LogFormat         string
	AuthSigningSecret string
	AuthCookieName    string
	AuthIssuer        string
	TracingExporter   string
	TracingEndpoint   string
	ServiceName       string
	DrillMaxRetries   int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("database.driver", defaultDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.dsn", "")
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("auth.issuer", defaultIssuer)
	configViper.SetDefault("tracing.exporter", defaultExporter)
	configViper.SetDefault("tracing.endpoint", "")
	configViper.SetDefault("tracing.service_name", defaultServiceName)
	configViper.SetDefault("drill.max_retries", defaultMaxRetries)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		AllowedOrigins:    configViper.GetStringSlice("http.allowed_origins"),
		DatabaseDriver:    strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:      configViper.GetString("database.path"),
		DatabaseDSN:       configViper.GetString("database.dsn"),
		LogLevel:          configViper.GetString("log.level"),
		LogFormat:         configViper.GetString("log.format"),
		AuthSigningSecret: configViper.GetString("auth.signing_secret"),
		AuthCookieName:    configViper.GetString("auth.cookie_name"),
		AuthIssuer:        configViper.GetString("auth.issuer"),
		TracingExporter:   strings.ToLower(strings.TrimSpace(configViper.GetString("tracing.exporter"))),
		TracingEndpoint:   configViper.GetString("tracing.endpoint"),
		ServiceName:       configViper.GetString("tracing.service_name"),
		DrillMaxRetries:   configViper.GetInt("drill.max_retries"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	var problems []error
	if strings.TrimSpace(c.AuthSigningSecret) == "" {
		problems = append(problems, errors.New("auth.signing_secret is required"))
	}
	if strings.TrimSpace(c.AuthCookieName) == "" {
		problems = append(problems, errors.New("auth.cookie_name is required"))
	}
	switch c.DatabaseDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			problems = append(problems, errors.New("database.path is required for sqlite"))
		}
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			problems = append(problems, errors.New("database.dsn is required for postgres"))
		}
	default:
		problems = append(problems, fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver))
	}
	switch c.TracingExporter {
	case ExporterNone, ExporterStdout:
	case ExporterOTLP:
		if strings.TrimSpace(c.TracingEndpoint) == "" {
			problems = append(problems, errors.New("tracing.endpoint is required for otlp"))
		}
	default:
		problems = append(problems, fmt.Errorf("tracing.exporter %q is not supported", c.TracingExporter))
	}
	if c.DrillMaxRetries < 1 {
		problems = append(problems, fmt.Errorf("drill.max_retries must be at least 1, got %d", c.DrillMaxRetries))
	}
	return errors.Join(problems...)
}
