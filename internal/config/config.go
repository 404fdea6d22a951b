package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Environment variables that override secrets from the YAML file
const (
	EnvUsername         = "POSTER_USERNAME"
	EnvPassword         = "POSTER_PASSWORD"
	EnvDatabasePassword = "POSTER_DATABASE_PASSWORD"
	EnvRabbitMQPassword = "POSTER_RABBITMQ_PASSWORD"
)

// Config represents the complete application configuration
type Config struct {
	App         AppConfig         `yaml:"app"`
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	RabbitMQ    RabbitMQConfig    `yaml:"rabbitmq"`
	Logging     LoggingConfig     `yaml:"logging"`
	Poster      PosterConfig      `yaml:"poster"`
	Browser     BrowserConfig     `yaml:"browser"`
	Platform    PlatformConfig    `yaml:"platform"`
	Session     SessionConfig     `yaml:"session"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled"`
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
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
}

// RabbitMQConfig holds the broker connection, the ingest queue and the
// routing key used for outbound status events
type RabbitMQConfig struct {
	Enabled          bool             `yaml:"enabled"`
	Host             string           `yaml:"host"`
	Port             int              `yaml:"port"`
	User             string           `yaml:"user"`
	Password         string           `yaml:"password"`
	VHost            string           `yaml:"vhost"`
	Exchange         ExchangeConfig   `yaml:"exchange"`
	Queue            QueueConfig      `yaml:"queue"`
	RoutingKey       string           `yaml:"routing_key"`
	StatusRoutingKey string           `yaml:"status_routing_key"`
	Connection       ConnectionConfig `yaml:"connection"`
	Publish          PublishConfig    `yaml:"publish"`
	Consumer         ConsumerConfig   `yaml:"consumer"`
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
	Tag           string `yaml:"tag"`
	PrefetchCount int    `yaml:"prefetch_count"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
	NoColor      bool   `yaml:"no_color"`
}

// PosterConfig holds the queue and governor knobs
type PosterConfig struct {
	MaxImagesPerPost  int           `yaml:"max_images_per_post"`
	PostDelay         time.Duration `yaml:"post_delay"`
	QueueMaxRetries   int           `yaml:"queue_max_retries"`
	QueueRetryDelay   time.Duration `yaml:"queue_retry_delay"`
	MaxAttempts       int           `yaml:"max_attempts"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	OverallTimeout    time.Duration `yaml:"overall_timeout"`
	TeardownTimeout   time.Duration `yaml:"teardown_timeout"`
	ScreenshotTimeout time.Duration `yaml:"screenshot_timeout"`
	StrictMedia       bool          `yaml:"strict_media"`
	StrictCaption     bool          `yaml:"strict_caption"`
}

// BrowserConfig holds headless browser settings
type BrowserConfig struct {
	ExecPath      string        `yaml:"exec_path"`
	Headless      bool          `yaml:"headless"`
	UserAgent     string        `yaml:"user_agent"`
	UserDataDir   string        `yaml:"user_data_dir"`
	WindowWidth   int           `yaml:"window_width"`
	WindowHeight  int           `yaml:"window_height"`
	ActionTimeout time.Duration `yaml:"action_timeout"`
	CloseTimeout  time.Duration `yaml:"close_timeout"`
}

// PlatformConfig holds the target platform account and UI timings
type PlatformConfig struct {
	BaseURL           string        `yaml:"base_url"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	LoginTimeout      time.Duration `yaml:"login_timeout"`
	ElementTimeout    time.Duration `yaml:"element_timeout"`
	VerifyTimeout     time.Duration `yaml:"verify_timeout"`
	VerifyInterval    time.Duration `yaml:"verify_interval"`
	MediaPollAttempts int           `yaml:"media_poll_attempts"`
	MediaPollInterval time.Duration `yaml:"media_poll_interval"`
	SubmitRounds      int           `yaml:"submit_rounds"`
	TypingChunk       int           `yaml:"typing_chunk"`
	TypingDelay       time.Duration `yaml:"typing_delay"`
}

// SessionConfig holds where the session document lives
type SessionConfig struct {
	Path string `yaml:"path"`
}

// DiagnosticsConfig holds the event dispatcher settings
type DiagnosticsConfig struct {
	BufferSize    int           `yaml:"buffer_size"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	EmitTimeout   time.Duration `yaml:"emit_timeout"`
	ScreenshotDir string        `yaml:"screenshot_dir"`
}

// Default returns a configuration with every documented default set.
// Storage and broker are disabled so the poster can run on its own.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:        "relay-poster",
			Environment: "development",
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Port:            5432,
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnectTimeout:  5 * time.Second,
		},
		RabbitMQ: RabbitMQConfig{
			Port:             5672,
			VHost:            "/",
			Exchange:         ExchangeConfig{Name: "relay_poster", Type: "direct", Durable: true},
			Queue:            QueueConfig{Name: "relay_poster.ingest", Durable: true},
			RoutingKey:       "post.ingest",
			StatusRoutingKey: "post.status",
			Connection: ConnectionConfig{
				RetryAttempts:     5,
				RetryInterval:     2 * time.Second,
				Heartbeat:         10 * time.Second,
				ConnectionTimeout: 10 * time.Second,
			},
			Publish: PublishConfig{
				RetryAttempts:     3,
				RetryInterval:     100 * time.Millisecond,
				BackoffMultiplier: 2,
			},
			Consumer: ConsumerConfig{Tag: "relay-poster", PrefetchCount: 1},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
		Poster: PosterConfig{
			MaxImagesPerPost:  4,
			PostDelay:         30 * time.Second,
			QueueMaxRetries:   2,
			QueueRetryDelay:   60 * time.Second,
			MaxAttempts:       3,
			RetryDelay:        5 * time.Second,
			OverallTimeout:    120 * time.Second,
			TeardownTimeout:   10 * time.Second,
			ScreenshotTimeout: 5 * time.Second,
		},
		Browser: BrowserConfig{
			Headless:      true,
			WindowWidth:   1280,
			WindowHeight:  900,
			ActionTimeout: 15 * time.Second,
			CloseTimeout:  5 * time.Second,
		},
		Platform: PlatformConfig{
			BaseURL:           "https://x.com",
			LoginTimeout:      30 * time.Second,
			ElementTimeout:    10 * time.Second,
			VerifyTimeout:     20 * time.Second,
			VerifyInterval:    time.Second,
			MediaPollAttempts: 10,
			MediaPollInterval: time.Second,
			SubmitRounds:      3,
			TypingChunk:       4,
			TypingDelay:       40 * time.Millisecond,
		},
		Session: SessionConfig{
			Path: "data/session.json",
		},
		Diagnostics: DiagnosticsConfig{
			BufferSize:    256,
			RatePerSecond: 1,
			EmitTimeout:   5 * time.Second,
			ScreenshotDir: "data/diagnostics",
		},
	}
}

// Load reads the YAML file on top of Default, so omitted keys keep their
// documented values
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	return config, nil
}

// ApplyDefaults replaces values that can never be valid with their defaults.
// Zero is kept wherever it is meaningful (post_delay, queue_max_retries).
func (c *Config) ApplyDefaults() {
	d := Default()

	if c.Poster.MaxImagesPerPost <= 0 {
		c.Poster.MaxImagesPerPost = d.Poster.MaxImagesPerPost
	}
	if c.Poster.MaxAttempts <= 0 {
		c.Poster.MaxAttempts = d.Poster.MaxAttempts
	}
	if c.Poster.OverallTimeout <= 0 {
		c.Poster.OverallTimeout = d.Poster.OverallTimeout
	}
	if c.Poster.TeardownTimeout <= 0 {
		c.Poster.TeardownTimeout = d.Poster.TeardownTimeout
	}
	if c.Poster.ScreenshotTimeout <= 0 {
		c.Poster.ScreenshotTimeout = d.Poster.ScreenshotTimeout
	}
	if c.Platform.BaseURL == "" {
		c.Platform.BaseURL = d.Platform.BaseURL
	}
	if c.Session.Path == "" {
		c.Session.Path = d.Session.Path
	}
	if c.Diagnostics.BufferSize <= 0 {
		c.Diagnostics.BufferSize = d.Diagnostics.BufferSize
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
}

// ApplyEnv overrides secrets from the environment when set
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvUsername); v != "" {
		c.Platform.Username = v
	}
	if v := os.Getenv(EnvPassword); v != "" {
		c.Platform.Password = v
	}
	if v := os.Getenv(EnvDatabasePassword); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv(EnvRabbitMQPassword); v != "" {
		c.RabbitMQ.Password = v
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Enabled && (c.Server.Port < MinPort || c.Server.Port > MaxPort) {
		errs = append(errs, fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort))
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			errs = append(errs, errors.New("database host is required"))
		}
		if c.Database.Port < MinPort || c.Database.Port > MaxPort {
			errs = append(errs, fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort))
		}
		if c.Database.Database == "" {
			errs = append(errs, errors.New("database name is required"))
		}
	}

	if c.RabbitMQ.Enabled {
		if c.RabbitMQ.Host == "" {
			errs = append(errs, errors.New("rabbitmq host is required"))
		}
		if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
			errs = append(errs, fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort))
		}
		if c.RabbitMQ.Exchange.Name == "" {
			errs = append(errs, errors.New("rabbitmq exchange name is required"))
		}
		if c.RabbitMQ.Queue.Name == "" {
			errs = append(errs, errors.New("rabbitmq queue name is required"))
		}
		if c.RabbitMQ.StatusRoutingKey != "" && c.RabbitMQ.StatusRoutingKey == c.RabbitMQ.RoutingKey {
			errs = append(errs, errors.New("rabbitmq status_routing_key must differ from routing_key"))
		}
	}

	if c.Poster.PostDelay < 0 {
		errs = append(errs, errors.New("poster post_delay must not be negative"))
	}
	if c.Poster.QueueMaxRetries < 0 {
		errs = append(errs, errors.New("poster queue_max_retries must not be negative"))
	}
	if c.Poster.QueueRetryDelay < 0 || c.Poster.RetryDelay < 0 {
		errs = append(errs, errors.New("poster retry delays must not be negative"))
	}

	if u, err := url.Parse(c.Platform.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("invalid platform base_url: %q", c.Platform.BaseURL))
	}

	if c.Diagnostics.RatePerSecond < 0 {
		errs = append(errs, errors.New("diagnostics rate_per_second must not be negative"))
	}

	return errors.Join(errs...)
}
