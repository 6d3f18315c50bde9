package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the quiz solver
type Config struct {
	// Server configuration
	HTTPPort int    `env:"PORT" envDefault:"8000"`
	GRPCPort int    `env:"GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Credentials expected from quiz requests
	SecretKey string `env:"SECRET_KEY"`
	Email     string `env:"EMAIL"`

	// Storage backend for jobs and events: redis or memory
	StorageBackend string        `env:"STORAGE_BACKEND" envDefault:"redis"`
	JobTTL         time.Duration `env:"JOB_TTL" envDefault:"24h"`

	Redis   RedisConfig
	LLM     LLMConfig
	Browser BrowserConfig
	Solver  SolverConfig
	Workers WorkerConfig

	// Timeouts
	Timeouts TimeoutConfig
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// LLMConfig holds LLM provider configuration
type LLMConfig struct {
	Provider string `env:"LLM_PROVIDER" envDefault:"openai"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-5-nano"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`

	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	AnthropicModel  string `env:"ANTHROPIC_MODEL" envDefault:"claude-3-5-haiku-latest"`

	OllamaURL   string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaModel string `env:"OLLAMA_MODEL" envDefault:"llama3.1"`

	Temperature    float64       `env:"LLM_TEMPERATURE" envDefault:"0.1"`
	MaxTokens      int           `env:"LLM_MAX_TOKENS" envDefault:"500"`
	RequestTimeout time.Duration `env:"LLM_REQUEST_TIMEOUT" envDefault:"30s"`
}

// BrowserConfig holds page rendering configuration
type BrowserConfig struct {
	Mode          string        `env:"BROWSER_MODE" envDefault:"chrome"`
	ChromePath    string        `env:"CHROME_PATH"`
	RenderWait    time.Duration `env:"RENDER_WAIT" envDefault:"2s"`
	RenderTimeout time.Duration `env:"RENDER_TIMEOUT" envDefault:"30s"`
}

// SolverConfig holds quiz chain solving limits
type SolverConfig struct {
	TimeBudget         time.Duration `env:"QUIZ_TIME_BUDGET" envDefault:"180s"`
	MaxAnswerTries     int           `env:"MAX_ANSWER_TRIES" envDefault:"2"`
	MaxAttachments     int           `env:"MAX_ATTACHMENTS" envDefault:"3"`
	MaxAttachmentBytes int64         `env:"MAX_ATTACHMENT_BYTES" envDefault:"10485760"`
	PromptContextChars int           `env:"PROMPT_CONTEXT_CHARS" envDefault:"8000"`
	HTTPMaxRetries     int           `env:"HTTP_MAX_RETRIES" envDefault:"3"`
	SubmitMaxRetries   int           `env:"SUBMIT_MAX_RETRIES" envDefault:"3"`
}

// WorkerConfig holds worker pool configuration
type WorkerConfig struct {
	PoolSize            int           `env:"WORKER_POOL_SIZE" envDefault:"4"`
	QueueSize           int           `env:"WORKER_QUEUE_SIZE" envDefault:"64"`
	HealthCheckInterval time.Duration `env:"WORKER_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
}

// TimeoutConfig holds various timeout configurations
type TimeoutConfig struct {
	ShutdownTimeout time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from a .env file (if present) and environment variables
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// Existing environment variables win over the file.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	if c.SecretKey == "" {
		return fmt.Errorf("SECRET_KEY is required")
	}

	switch c.StorageBackend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address is required")
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s (must be redis or memory)", c.StorageBackend)
	}

	// Validate LLM config
	switch c.LLM.Provider {
	case "openai":
		if c.LLM.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for provider openai")
		}
	case "anthropic":
		if c.LLM.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for provider anthropic")
		}
	case "ollama":
		if c.LLM.OllamaURL == "" {
			return fmt.Errorf("OLLAMA_URL is required for provider ollama")
		}
	default:
		return fmt.Errorf("unsupported LLM provider: %s", c.LLM.Provider)
	}
	if c.LLM.MaxTokens < 1 {
		return fmt.Errorf("LLM max tokens must be at least 1")
	}

	if c.Browser.Mode != "chrome" && c.Browser.Mode != "http" {
		return fmt.Errorf("invalid browser mode: %s (must be chrome or http)", c.Browser.Mode)
	}

	if c.Solver.TimeBudget <= 0 {
		return fmt.Errorf("quiz time budget must be positive")
	}
	if c.Solver.MaxAnswerTries < 1 {
		return fmt.Errorf("max answer tries must be at least 1")
	}

	// Validate worker config
	if c.Workers.PoolSize < 1 {
		return fmt.Errorf("worker pool size must be at least 1")
	}
	if c.Workers.QueueSize < 1 {
		return fmt.Errorf("worker queue size must be at least 1")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
