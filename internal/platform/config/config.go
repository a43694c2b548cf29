package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds configuration for all Autobus services. Values come from
// config.yaml (if present) overridden by AUTOBUS_-prefixed environment
// variables, e.g. AUTOBUS_POSTGRES_DSN.
type Config struct {
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	PostgresDSN string `mapstructure:"POSTGRES_DSN"`
	NATSUrl     string `mapstructure:"NATS_URL"`

	// Payment API service
	PaymentAPIPort        int    `mapstructure:"PAYMENT_API_PORT"`
	PaymentAPIMetricsPort int    `mapstructure:"PAYMENT_API_METRICS_PORT"`
	JWTAccessSecret       string `mapstructure:"JWT_ACCESS_SECRET"`

	// Orchestrator worker
	OrchestratorMetricsPort int           `mapstructure:"ORCHESTRATOR_METRICS_PORT"`
	PollingInterval         time.Duration `mapstructure:"ORCHESTRATOR_POLLING_INTERVAL"`
	PollBatchSize           int           `mapstructure:"ORCHESTRATOR_POLL_BATCH_SIZE"`
	PhaseMaxRetries         int           `mapstructure:"PHASE_MAX_RETRIES"`
	ReversalMaxRetries      int           `mapstructure:"REVERSAL_MAX_RETRIES"`
	RetryBackoffBase        time.Duration `mapstructure:"RETRY_BACKOFF_BASE"`
	PhaseAttemptTimeout     time.Duration `mapstructure:"PHASE_ATTEMPT_TIMEOUT"`

	// Notification consumer
	NotificationMetricsPort int `mapstructure:"NOTIFICATION_METRICS_PORT"`

	// Payment gateway (Orchard-style)
	GatewayBaseURL     string `mapstructure:"GATEWAY_BASE_URL"`
	GatewayClientID    string `mapstructure:"GATEWAY_CLIENT_ID"`
	GatewayClientSecret string `mapstructure:"GATEWAY_CLIENT_SECRET"`
	GatewayServiceID   string `mapstructure:"GATEWAY_SERVICE_ID"`
	GatewayCallbackURL string `mapstructure:"GATEWAY_CALLBACK_URL"`
}

// Load reads configuration for the named service. serviceName is used for the
// NATS connection name and log context only; all services share one schema.
func Load(serviceName string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	v.SetEnvPrefix("AUTOBUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env vars and defaults carry it.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config for %s: %w", serviceName, err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")
	// Every key gets a default, even an empty one: AutomaticEnv only surfaces
	// env values for keys viper already knows about.
	v.SetDefault("POSTGRES_DSN", "")
	v.SetDefault("NATS_URL", "nats://localhost:4222")

	v.SetDefault("PAYMENT_API_PORT", 8080)
	v.SetDefault("PAYMENT_API_METRICS_PORT", 9091)
	v.SetDefault("JWT_ACCESS_SECRET", "")

	v.SetDefault("ORCHESTRATOR_METRICS_PORT", 9092)
	v.SetDefault("ORCHESTRATOR_POLLING_INTERVAL", 5*time.Second)
	v.SetDefault("ORCHESTRATOR_POLL_BATCH_SIZE", 20)
	v.SetDefault("PHASE_MAX_RETRIES", 3)
	v.SetDefault("REVERSAL_MAX_RETRIES", 5)
	v.SetDefault("RETRY_BACKOFF_BASE", 2*time.Second)
	v.SetDefault("PHASE_ATTEMPT_TIMEOUT", 30*time.Second)

	v.SetDefault("NOTIFICATION_METRICS_PORT", 9093)

	v.SetDefault("GATEWAY_BASE_URL", "https://orchard-api.anmgw.com")
	v.SetDefault("GATEWAY_CLIENT_ID", "")
	v.SetDefault("GATEWAY_CLIENT_SECRET", "")
	v.SetDefault("GATEWAY_SERVICE_ID", "")
	v.SetDefault("GATEWAY_CALLBACK_URL", "")
}
