package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Completion backends selectable with llm.provider
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config represents the complete application configuration
type Config struct {
	App      AppConfig      `yaml:"app"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Logging  LoggingConfig  `yaml:"logging"`
	Worker   WorkerConfig   `yaml:"worker"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	LLM      LLMConfig      `yaml:"llm"`
	TTS      TTSConfig      `yaml:"tts"`
	Storage  StorageConfig  `yaml:"storage"`
	CRM      CRMConfig      `yaml:"crm"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ApplySchema     bool          `yaml:"apply_schema"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	ID              string        `yaml:"id"`
	Concurrency     int           `yaml:"concurrency"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// PipelineConfig holds the tunables of a pipeline run
type PipelineConfig struct {
	MinScriptChars int           `yaml:"min_script_chars"`
	MaxScriptChars int           `yaml:"max_script_chars"`
	CharsPerSecond float64       `yaml:"chars_per_second"`
	JobTimeout     time.Duration `yaml:"job_timeout"`
	StaleAfter     time.Duration `yaml:"stale_after"`
}

// LLMConfig selects and configures the completion backend
type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	RetryCount  int           `yaml:"retry_count"`
	RetryWait   time.Duration `yaml:"retry_wait"`
}

// TTSConfig configures the speech synthesizer
type TTSConfig struct {
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	VoiceID         string        `yaml:"voice_id"`
	ModelID         string        `yaml:"model_id"`
	OutputFormat    string        `yaml:"output_format"`
	Stability       float64       `yaml:"stability"`
	SimilarityBoost float64       `yaml:"similarity_boost"`
	Style           float64       `yaml:"style"`
	SpeakerBoost    bool          `yaml:"speaker_boost"`
	Timeout         time.Duration `yaml:"timeout"`
	RetryCount      int           `yaml:"retry_count"`
	RetryWait       time.Duration `yaml:"retry_wait"`
}

// StorageConfig configures the S3 compatible artifact store
type StorageConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	Bucket        string        `yaml:"bucket"`
	Region        string        `yaml:"region"`
	AccessKey     string        `yaml:"access_key"`
	SecretKey     string        `yaml:"secret_key"`
	UseSSL        bool          `yaml:"use_ssl"`
	PublicBaseURL string        `yaml:"public_base_url"`
	Timeout       time.Duration `yaml:"timeout"`
}

// CRMConfig configures the CRM client and the fields the pipeline writes
type CRMConfig struct {
	Enabled        bool          `yaml:"enabled"`
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	LocationID     string        `yaml:"location_id"`
	APIVersion     string        `yaml:"api_version"`
	Timeout        time.Duration `yaml:"timeout"`
	RetryCount     int           `yaml:"retry_count"`
	RetryWait      time.Duration `yaml:"retry_wait"`
	MessageChannel string        `yaml:"message_channel"`
	Fields         CRMFields     `yaml:"fields"`
}

// CRMFields names the two custom fields on the contact
type CRMFields struct {
	AudioURL CRMField `yaml:"audio_url"`
	Script   CRMField `yaml:"script"`
}

// CRMField is a custom field display name and key
type CRMField struct {
	Name string `yaml:"name"`
	Key  string `yaml:"key"`
}

// NotifyConfig configures job lifecycle events
type NotifyConfig struct {
	Enabled          bool          `yaml:"enabled"`
	RoutingKeyPrefix string        `yaml:"routing_key_prefix"`
	BufferSize       int           `yaml:"buffer_size"`
	PublishTimeout   time.Duration `yaml:"publish_timeout"`
}

// Secrets are read from the environment and override the file values when set
type Secrets struct {
	DatabasePassword string `envconfig:"DB_PASSWORD"`
	RabbitMQPassword string `envconfig:"RABBITMQ_PASSWORD"`
	LLMAPIKey        string `envconfig:"LLM_API_KEY"`
	TTSAPIKey        string `envconfig:"TTS_API_KEY"`
	StorageAccessKey string `envconfig:"STORAGE_ACCESS_KEY"`
	StorageSecretKey string `envconfig:"STORAGE_SECRET_KEY"`
	CRMAPIKey        string `envconfig:"CRM_API_KEY"`
	CRMLocationID    string `envconfig:"CRM_LOCATION_ID"`
}

// Load reads and parses the configuration file, then overlays secrets from
// the environment.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	var secrets Secrets
	if err := envconfig.Process("", &secrets); err != nil {
		return nil, fmt.Errorf("failed to read secrets from environment: %w", err)
	}
	config.applySecrets(secrets)

	return &config, nil
}

func (c *Config) applySecrets(s Secrets) {
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&c.Database.Password, s.DatabasePassword)
	override(&c.RabbitMQ.Password, s.RabbitMQPassword)
	override(&c.LLM.APIKey, s.LLMAPIKey)
	override(&c.TTS.APIKey, s.TTSAPIKey)
	override(&c.Storage.AccessKey, s.StorageAccessKey)
	override(&c.Storage.SecretKey, s.StorageSecretKey)
	override(&c.CRM.APIKey, s.CRMAPIKey)
	override(&c.CRM.LocationID, s.CRMLocationID)
}

// ValidateAPIConfig checks the settings the API service needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if c.RabbitMQ.Enabled {
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
	}

	return c.ValidatePipelineConfig()
}

// ValidateWorkerConfig checks the settings the worker service needs
func (c *Config) ValidateWorkerConfig() error {
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	return c.ValidatePipelineConfig()
}

// ValidatePipelineConfig checks the provider, storage and CRM settings
func (c *Config) ValidatePipelineConfig() error {
	p := c.Pipeline
	if p.MinScriptChars < 0 || p.MaxScriptChars < 0 {
		return fmt.Errorf("pipeline script length bounds must not be negative")
	}
	if p.MaxScriptChars > 0 && p.MinScriptChars > p.MaxScriptChars {
		return fmt.Errorf("pipeline min_script_chars (%d) is greater than max_script_chars (%d)", p.MinScriptChars, p.MaxScriptChars)
	}
	if p.CharsPerSecond < 0 {
		return fmt.Errorf("pipeline chars_per_second must not be negative")
	}
	if p.JobTimeout <= 0 {
		return fmt.Errorf("pipeline job_timeout must be greater than 0")
	}
	if p.StaleAfter <= p.JobTimeout {
		return fmt.Errorf("pipeline stale_after (%s) must be greater than job_timeout (%s)", p.StaleAfter, p.JobTimeout)
	}

	switch c.LLM.Provider {
	case ProviderOpenAI:
		if c.LLM.BaseURL == "" {
			return fmt.Errorf("llm base_url is required for provider %s", ProviderOpenAI)
		}
	case ProviderGemini:
	default:
		return fmt.Errorf("unsupported llm provider: %q", c.LLM.Provider)
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm api_key is required")
	}

	if c.TTS.BaseURL == "" {
		return fmt.Errorf("tts base_url is required")
	}
	if c.TTS.APIKey == "" {
		return fmt.Errorf("tts api_key is required")
	}
	if c.TTS.VoiceID == "" {
		return fmt.Errorf("tts voice_id is required")
	}

	if c.Storage.Endpoint == "" {
		return fmt.Errorf("storage endpoint is required")
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage bucket is required")
	}

	if c.CRM.Enabled {
		if c.CRM.BaseURL == "" {
			return fmt.Errorf("crm base_url is required")
		}
		if c.CRM.APIKey == "" {
			return fmt.Errorf("crm api_key is required")
		}
		if c.CRM.LocationID == "" {
			return fmt.Errorf("crm location_id is required")
		}
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}
