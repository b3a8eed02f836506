package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisAddr   string `env:"REDIS_ADDR" envDefault:""`
	JWTSecret   string `env:"JWT_SECRET,required"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	// ProtocolPrefix scopes protocol numbers to the federation, e.g. "FPJ".
	ProtocolPrefix string `env:"PROTOCOL_PREFIX" envDefault:"FED"`

	MercadoPagoAccessToken   string `env:"MERCADOPAGO_ACCESS_TOKEN"`
	MercadoPagoWebhookSecret string `env:"MERCADOPAGO_WEBHOOK_SECRET"`
	MercadoPagoBaseURL       string `env:"MERCADOPAGO_BASE_URL" envDefault:""`

	PagSeguroToken           string `env:"PAGSEGURO_TOKEN"`
	PagSeguroAuthenticityKey string `env:"PAGSEGURO_AUTHENTICITY_KEY"`
	PagSeguroBaseURL         string `env:"PAGSEGURO_BASE_URL" envDefault:""`

	WebhookBaseURL  string `env:"WEBHOOK_BASE_URL" envDefault:"http://app:8080/api/v1/webhooks"`
	EntityAPIURL    string `env:"ENTITY_API_URL" envDefault:"http://portal:3000"`
	NotificationURL string `env:"NOTIFICATION_URL" envDefault:""`

	PaymentExpiry       time.Duration `env:"PAYMENT_EXPIRY" envDefault:"24h"`
	ExpirySweepInterval time.Duration `env:"EXPIRY_SWEEP_INTERVAL" envDefault:"1m"`
	GatewayTimeout      time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`

	// SimulateApproval is a sandbox convenience: issued PIX payments are
	// auto-approved after SimulateApprovalDelay through the regular
	// transition path. Never enabled in production.
	SimulateApproval      bool          `env:"SIMULATE_APPROVAL" envDefault:"false"`
	SimulateApprovalDelay time.Duration `env:"SIMULATE_APPROVAL_DELAY" envDefault:"5s"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}
