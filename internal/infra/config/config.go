package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers accepted by metering.store.
const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"
)

// LLM providers accepted by llm.provider.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Mongo      MongoConfig      `mapstructure:"mongo"`
	Redis      RedisConfig      `mapstructure:"redis"`
	HTTPClient HTTPClientConfig `mapstructure:"http_client"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Log        LogConfig        `mapstructure:"log"`
	Metering   MeteringConfig   `mapstructure:"metering"`
	LLM        LLMConfig        `mapstructure:"llm"`
	PayPal     PayPalConfig     `mapstructure:"paypal"`
	Stripe     StripeConfig     `mapstructure:"stripe"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Database, c.SSLMode,
	)
	if c.Password != "" {
		dsn += fmt.Sprintf(" password=%s", c.Password)
	}
	return dsn
}

// MongoConfig holds MongoDB configuration. The deployment must be a replica
// set because grants and settlements use multi-document transactions.
type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// HTTPClientConfig holds HTTP client configuration for connection pooling.
type HTTPClientConfig struct {
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `mapstructure:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`

	DialTimeout         time.Duration `mapstructure:"dial_timeout"`
	TLSHandshakeTimeout time.Duration `mapstructure:"tls_handshake_timeout"`
	ResponseTimeout     time.Duration `mapstructure:"response_timeout"`

	KeepAlive time.Duration `mapstructure:"keep_alive"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// GlobalLimit is the per-IP limit applied to every route.
	GlobalLimit  int           `mapstructure:"global_limit"`
	GlobalWindow time.Duration `mapstructure:"global_window"`
	// QuizLimit is the per-account limit on quiz generation.
	QuizLimit      int           `mapstructure:"quiz_limit"`
	QuizWindow     time.Duration `mapstructure:"quiz_window"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MeteringConfig holds ledger and reservation settings.
type MeteringConfig struct {
	Store          string        `mapstructure:"store"`
	ReservationTTL time.Duration `mapstructure:"reservation_ttl"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	SettleTimeout  time.Duration `mapstructure:"settle_timeout"`
	// MaxEstimate caps the pre-authorization estimate. Zero disables the cap.
	// It must stay at or below the smallest credit tier or that tier can
	// never buy a quiz.
	MaxEstimate int64 `mapstructure:"max_estimate"`
}

// LLMConfig holds completion provider settings.
type LLMConfig struct {
	Provider       string        `mapstructure:"provider"`
	Model          string        `mapstructure:"model"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	Timeout        time.Duration `mapstructure:"timeout"`
	PromptTemplate string        `mapstructure:"prompt_template"`

	OpenAIAPIKey  string `mapstructure:"openai_api_key"`
	OpenAIBaseURL string `mapstructure:"openai_base_url"`
	GeminiAPIKey  string `mapstructure:"gemini_api_key"`

	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	CircuitTimeout   time.Duration `mapstructure:"circuit_timeout"`
}

// PayPalConfig holds PayPal IPN settings.
type PayPalConfig struct {
	// VerifyURL is the IPN postback endpoint. Empty disables postback verification.
	VerifyURL string `mapstructure:"verify_url"`
	// ReceiverEmail, when set, must match the IPN receiver_email field.
	ReceiverEmail string `mapstructure:"receiver_email"`
}

// StripeConfig holds Stripe webhook settings.
type StripeConfig struct {
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// WebhookConfig holds settings for the normalized credit event endpoint.
type WebhookConfig struct {
	Secret string `mapstructure:"secret"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// AdminConfig holds the operator token used by admin routes.
type AdminConfig struct {
	// TokenHash is a bcrypt hash of the admin bearer token.
	TokenHash string `mapstructure:"token_hash"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	Endpoint      string  `mapstructure:"endpoint"`
	ServiceName   string  `mapstructure:"service_name"`
	SamplingRatio float64 `mapstructure:"sampling_ratio"`
	Insecure      bool    `mapstructure:"insecure"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom loads configuration from an explicit file path. An empty path
// searches the default locations.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/quizforge")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults and env
	}

	v.SetEnvPrefix("QUIZFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applySecretOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applySecretOverrides reads sensitive values from short env names.
func applySecretOverrides(cfg *Config) {
	if secret := os.Getenv("QUIZFORGE_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if password := os.Getenv("QUIZFORGE_DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if password := os.Getenv("QUIZFORGE_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if uri := os.Getenv("QUIZFORGE_MONGO_URI"); uri != "" {
		cfg.Mongo.URI = uri
	}
	if key := os.Getenv("QUIZFORGE_OPENAI_API_KEY"); key != "" {
		cfg.LLM.OpenAIAPIKey = key
	}
	if key := os.Getenv("QUIZFORGE_GEMINI_API_KEY"); key != "" {
		cfg.LLM.GeminiAPIKey = key
	}
	if secret := os.Getenv("QUIZFORGE_STRIPE_WEBHOOK_SECRET"); secret != "" {
		cfg.Stripe.WebhookSecret = secret
	}
	if secret := os.Getenv("QUIZFORGE_WEBHOOK_SECRET"); secret != "" {
		cfg.Webhook.Secret = secret
	}
	if hash := os.Getenv("QUIZFORGE_ADMIN_TOKEN_HASH"); hash != "" {
		cfg.Admin.TokenHash = hash
	}
}

// Validate checks values that have no safe fallback.
func (c *Config) Validate() error {
	switch c.Metering.Store {
	case StorePostgres, StoreMongo, StoreMemory:
	default:
		return fmt.Errorf("invalid metering.store %q", c.Metering.Store)
	}
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("invalid llm.provider %q", c.LLM.Provider)
	}
	if c.Metering.ReservationTTL <= 0 {
		return fmt.Errorf("metering.reservation_ttl must be positive")
	}
	if c.Metering.SettleTimeout <= 0 {
		return fmt.Errorf("metering.settle_timeout must be positive")
	}
	if c.Metering.MaxEstimate < 0 {
		return fmt.Errorf("metering.max_estimate must not be negative")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be positive")
	}
	if !strings.Contains(c.LLM.PromptTemplate, "{{.Text}}") {
		return fmt.Errorf("llm.prompt_template must reference {{.Text}}")
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 90*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "quizforge")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	// Mongo defaults
	v.SetDefault("mongo.uri", "mongodb://localhost:27017/?replicaSet=rs0")
	v.SetDefault("mongo.database", "quizforge")
	v.SetDefault("mongo.connect_timeout", 10*time.Second)

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// HTTP client defaults
	v.SetDefault("http_client.max_idle_conns", 100)
	v.SetDefault("http_client.max_idle_conns_per_host", 20)
	v.SetDefault("http_client.max_conns_per_host", 50)
	v.SetDefault("http_client.idle_conn_timeout", 90*time.Second)
	v.SetDefault("http_client.dial_timeout", 30*time.Second)
	v.SetDefault("http_client.tls_handshake_timeout", 10*time.Second)
	v.SetDefault("http_client.response_timeout", 120*time.Second)
	v.SetDefault("http_client.keep_alive", 30*time.Second)

	// Rate limit defaults
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.global_limit", 100)
	v.SetDefault("rate_limit.global_window", time.Minute)
	v.SetDefault("rate_limit.quiz_limit", 10)
	v.SetDefault("rate_limit.quiz_window", time.Minute)
	v.SetDefault("rate_limit.idempotency_ttl", 24*time.Hour)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Metering defaults
	v.SetDefault("metering.store", StorePostgres)
	v.SetDefault("metering.reservation_ttl", 5*time.Minute)
	v.SetDefault("metering.sweep_interval", time.Minute)
	v.SetDefault("metering.settle_timeout", 10*time.Second)
	v.SetDefault("metering.max_estimate", DefaultMaxEstimate)

	// LLM defaults
	v.SetDefault("llm.provider", ProviderOpenAI)
	v.SetDefault("llm.model", "gpt-3.5-turbo")
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.prompt_template", DefaultPromptTemplate)
	v.SetDefault("llm.failure_threshold", 5)
	v.SetDefault("llm.circuit_timeout", 60*time.Second)

	// Auth defaults
	v.SetDefault("auth.issuer", "quizforge")

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.service_name", "quizforge-server")
	v.SetDefault("tracing.sampling_ratio", 1.0)
	v.SetDefault("tracing.insecure", true)
}

// DefaultMaxEstimate is half the smallest credit tier, about one typical quiz.
const DefaultMaxEstimate = 500

// DefaultPromptTemplate is the stock quiz prompt. Deployments override it
// through llm.prompt_template.
const DefaultPromptTemplate = `You are a precise, objective multiple-choice question generator. Follow these rules strictly when writing questions about the text below:

1. If a term is open to several interpretations and the text does not define it, do not ask about it.
2. If the text lacks concrete details or is unclear, do not generate questions.
3. Only ask about context-dependent wording when the context is explicit.
4. Skip abstract or theoretical concepts that have no practical grounding in the text.
5. Questions must be objective and based only on facts stated in the text.

Text to analyze:
{{.Text}}
`
