package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	FrontendURL string

	LogLevel string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string

	SeedDemoWorkspace bool

	LLM  LLMConfig
	RAG  RAGConfig
	Mail MailConfig

	Stripe StripeConfig
	PayPal PayPalConfig

	Notify NotifyConfig
}

type LLMConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	TimeoutSeconds int
}

type RAGConfig struct {
	Enabled        bool
	BaseURL        string
	QueryPath      string
	HealthPath     string
	TopK           int
	TimeoutSeconds int
}

type MailConfig struct {
	Enabled  bool
	SMTPHost string
	SMTPPort int
	Username string
	Password string
	From     string
	FromName string
}

type StripeConfig struct {
	Enabled       bool
	APIKey        string
	WebhookSecret string
	BaseURL       string
}

type PayPalConfig struct {
	Enabled      bool
	ClientID     string
	ClientSecret string
	BaseURL      string
	Mode         string
}

type NotifyConfig struct {
	Enabled        bool
	WebhookURL     string
	TimeoutSeconds int
	Retries        int
}

// Load loads configuration from environment variables and an optional .env file.
func Load() Config {
	_ = godotenv.Load()

	paypalMode := strings.ToLower(getenv("PAYPAL_MODE", "sandbox"))
	paypalBase := "https://api-m.sandbox.paypal.com"
	if paypalMode == "live" {
		paypalBase = "https://api-m.paypal.com"
	}

	return Config{
		AppName:     getenv("APP_SERVICE", "digiforge"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		FrontendURL: strings.TrimRight(getenv("FRONTEND_URL", "http://localhost:3000"), "/"),

		LogLevel: getenv("LOG_LEVEL", "info"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "digiforge"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		SeedDemoWorkspace: getenvBool("SEED_DEMO_WORKSPACE", false),

		LLM: LLMConfig{
			BaseURL:        strings.TrimRight(getenv("LLM_BASE_URL", "http://localhost:8700"), "/"),
			APIKey:         strings.TrimSpace(getenv("LLM_API_KEY", "")),
			Model:          getenv("LLM_MODEL", "default"),
			TimeoutSeconds: getenvInt("LLM_TIMEOUT", 120),
		},
		RAG: RAGConfig{
			Enabled:        getenvBool("RAG_ENABLED", false),
			BaseURL:        strings.TrimRight(getenv("RAG_BASE_URL", "http://localhost:8811"), "/"),
			QueryPath:      getenv("RAG_QUERY_ENDPOINT", "/query"),
			HealthPath:     getenv("RAG_HEALTH_ENDPOINT", "/health"),
			TopK:           getenvInt("RAG_TOP_K", 5),
			TimeoutSeconds: getenvInt("RAG_TIMEOUT", 10),
		},
		Mail: MailConfig{
			Enabled:  getenvBool("EMAIL_ENABLED", false),
			SMTPHost: getenv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort: getenvInt("SMTP_PORT", 587),
			Username: getenv("SMTP_USER", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("SMTP_FROM_EMAIL", getenv("SMTP_USER", "")),
			FromName: getenv("SMTP_FROM_NAME", "DigiForge"),
		},

		Stripe: StripeConfig{
			Enabled:       getenvBool("STRIPE_ENABLED", false),
			APIKey:        strings.TrimSpace(getenv("STRIPE_API_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			BaseURL:       strings.TrimRight(getenv("STRIPE_BASE_URL", "https://api.stripe.com"), "/"),
		},
		PayPal: PayPalConfig{
			Enabled:      getenvBool("PAYPAL_ENABLED", false),
			ClientID:     strings.TrimSpace(getenv("PAYPAL_CLIENT_ID", "")),
			ClientSecret: strings.TrimSpace(getenv("PAYPAL_CLIENT_SECRET", "")),
			BaseURL:      strings.TrimRight(getenv("PAYPAL_BASE_URL", paypalBase), "/"),
			Mode:         paypalMode,
		},

		Notify: NotifyConfig{
			Enabled:        getenvBool("EVENT_WEBHOOK_ENABLED", false),
			WebhookURL:     strings.TrimSpace(getenv("EVENT_WEBHOOK_URL", "")),
			TimeoutSeconds: getenvInt("EVENT_WEBHOOK_TIMEOUT", 10),
			Retries:        getenvInt("EVENT_WEBHOOK_RETRIES", 2),
		},
	}
}

// Module wires application configuration.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewGuardConfigHolder),
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
