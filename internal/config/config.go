package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName     string `envconfig:"DB_NAME" default:"spiritualconnect"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	DBMaxOpenConns int `envconfig:"DB_MAX_OPEN_CONNS" default:"20"`

	// StoreDriver selects the message and user store: postgres or memory.
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`

	ServerPort string `envconfig:"SERVER_PORT" default:"3001"`
	ServerHost string `envconfig:"SERVER_HOST" default:"localhost"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Authentication
	JWTSecret   string `envconfig:"JWT_SECRET"`
	JWTIssuer   string `envconfig:"JWT_ISSUER" default:"spiritualconnect"`
	RequireAuth bool   `envconfig:"CHAT_REQUIRE_AUTH" default:"true"`

	// Realtime channel
	SendTimeout     time.Duration `envconfig:"CHAT_SEND_TIMEOUT" default:"5s"`
	SendBuffer      int           `envconfig:"CHAT_SEND_BUFFER" default:"256"`
	MaxMessageBytes int64         `envconfig:"CHAT_MAX_MESSAGE_BYTES" default:"65536"`

	// Per-room write serialization
	SequencerShards int `envconfig:"CHAT_SEQUENCER_SHARDS" default:"8"`
	SequencerQueue  int `envconfig:"CHAT_SEQUENCER_QUEUE" default:"128"`

	AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,http://127.0.0.1:3000,https://spiritualconnect-frontend.onrender.com"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel   string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`

	// Observability
	JaegerEndpoint   string  `envconfig:"JAEGER_ENDPOINT" default:"http://localhost:14268/api/traces"`
	TraceSampleRatio float64 `envconfig:"TRACE_SAMPLE_RATIO" default:"1"`
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	if c.RequireAuth && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when CHAT_REQUIRE_AUTH is enabled")
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("CHAT_SEND_BUFFER must be positive, got %d", c.SendBuffer)
	}
	if c.SequencerShards <= 0 {
		return fmt.Errorf("CHAT_SEQUENCER_SHARDS must be positive, got %d", c.SequencerShards)
	}
	if c.StoreDriver != "postgres" && c.StoreDriver != "memory" {
		return fmt.Errorf("STORE_DRIVER must be postgres or memory, got %q", c.StoreDriver)
	}
	if c.SendTimeout <= 0 {
		return fmt.Errorf("CHAT_SEND_TIMEOUT must be positive, got %s", c.SendTimeout)
	}
	return nil
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.ServerHost, c.ServerPort)
}
