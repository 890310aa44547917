package config

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type WebhookConfig struct {
	DBDSN       string `envconfig:"DB_DSN" required:"true"`
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	DBPoolMaxConns          int32  `envconfig:"DB_POOL_MAX_CONNS" default:"10"`
	DBPoolMinConns          int32  `envconfig:"DB_POOL_MIN_CONNS" default:"0"`
	DBPoolMaxConnLifetime   string `envconfig:"DB_POOL_MAX_CONN_LIFETIME"`
	DBPoolMaxConnIdleTime   string `envconfig:"DB_POOL_MAX_CONN_IDLE_TIME"`
	DBPoolHealthCheckPeriod string `envconfig:"DB_POOL_HEALTH_CHECK_PERIOD"`

	AITimeoutSeconds int `envconfig:"AI_TIMEOUT_SECONDS" default:"30"`
	HistoryLimit     int `envconfig:"HISTORY_LIMIT" default:"20"`
	KnowledgeCap     int `envconfig:"KNOWLEDGE_CAP_CHARS" default:"8000"`

	GatewayTimeoutSeconds int `envconfig:"GATEWAY_TIMEOUT_SECONDS" default:"15"`

	// Fire-and-forget owner alerts for unanswered messages
	OwnerAlertsEnabled bool `envconfig:"OWNER_ALERTS_ENABLED" default:"false"`
}

type WorkerConfig struct {
	DBDSN       string `envconfig:"DB_DSN" required:"true"`
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	PollInterval string `envconfig:"WORKER_POLL_INTERVAL" default:"30s"`
	BatchSize    int    `envconfig:"WORKER_BATCH_SIZE" default:"100"`
	MaxRetries   int    `envconfig:"WORKER_MAX_RETRIES" default:"3"`
	RetryDelay   string `envconfig:"WORKER_RETRY_DELAY" default:"5m"`

	// Anti-spam throttle between queue items, on top of the gateway rate limiter.
	ItemDelayMinMs int `envconfig:"WORKER_ITEM_DELAY_MS_MIN" default:"1000"`
	ItemDelayMaxMs int `envconfig:"WORKER_ITEM_DELAY_MS_MAX" default:"3000"`

	GatewayTimeoutSeconds int     `envconfig:"GATEWAY_TIMEOUT_SECONDS" default:"15"`
	GatewayRPS            float64 `envconfig:"GATEWAY_RPS" default:"5"`
	GatewayBurst          int     `envconfig:"GATEWAY_BURST" default:"10"`
}

type MockGatewayConfig struct {
	Port        string  `envconfig:"PORT" default:"8081"`
	LogFormat   string  `envconfig:"LOG_FORMAT" default:"json"`
	SuccessRate float64 `envconfig:"MOCK_SUCCESS_RATE" default:"0.95"`
	DelayMs     int     `envconfig:"MOCK_DELAY_MS" default:"0"`
}

func LoadWebhook() WebhookConfig {
	_ = godotenv.Load()
	var cfg WebhookConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadWorker() WorkerConfig {
	_ = godotenv.Load()
	var cfg WorkerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadMockGateway() MockGatewayConfig {
	_ = godotenv.Load()
	var cfg MockGatewayConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}
