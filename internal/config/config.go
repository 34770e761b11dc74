package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application. It is constructed
// once at startup and passed explicitly to every component.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Mailbox  MailboxConfig  `mapstructure:"mailbox"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	OCR      OCRConfig      `mapstructure:"ocr"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// MailboxConfig holds the credentials for the single mailbox identity
// the pipeline reads from. Exactly one of the Gmail API or IMAP paths
// is used, selected by UseIMAP.
type MailboxConfig struct {
	ClientID        string `mapstructure:"client_id"`
	ClientSecret    string `mapstructure:"client_secret"`
	RefreshToken    string `mapstructure:"refresh_token"`
	UserEmail       string `mapstructure:"user_email"`
	UseIMAP         bool   `mapstructure:"use_imap"`
	IMAPHost        string `mapstructure:"imap_host"`
	IMAPPort        int    `mapstructure:"imap_port"`
	IMAPUser        string `mapstructure:"imap_user"`
	IMAPPassword    string `mapstructure:"imap_password"`
	Folder          string `mapstructure:"folder"`
	ProcessedLabel  string `mapstructure:"processed_label"`
	QuarantineLabel string `mapstructure:"quarantine_label"`
}

// PipelineConfig holds the processing pipeline configuration
type PipelineConfig struct {
	BatchSize             int      `mapstructure:"batch_size"`
	MaxResultsPerPoll     int      `mapstructure:"max_results_per_poll"`
	PollIntervalSeconds   int      `mapstructure:"poll_interval_seconds"`
	MaxRetries            int      `mapstructure:"max_retries"`
	RetryDelaySeconds     int      `mapstructure:"retry_delay_seconds"`
	PerMessageTimeoutSecs int      `mapstructure:"per_message_timeout_seconds"`
	ConcurrentWorkers     int      `mapstructure:"concurrent_workers"`
	MaxAttachmentBytes    int64    `mapstructure:"max_attachment_bytes"`
	AllowedSenderDomains  []string `mapstructure:"allowed_sender_domains"`
}

// OCRConfig holds optical character recognition configuration
type OCRConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Language string `mapstructure:"language"`
	DPI      int    `mapstructure:"dpi"`
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables override config file
	viper.AutomaticEnv()
	bindEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)
	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("mailbox.use_imap", false)
	viper.SetDefault("mailbox.imap_host", "imap.gmail.com")
	viper.SetDefault("mailbox.imap_port", 993)
	viper.SetDefault("mailbox.folder", "INBOX")
	viper.SetDefault("mailbox.processed_label", "procesado")
	viper.SetDefault("mailbox.quarantine_label", "cuarentena")

	viper.SetDefault("pipeline.batch_size", 20)
	viper.SetDefault("pipeline.max_results_per_poll", 50)
	viper.SetDefault("pipeline.poll_interval_seconds", 300)
	viper.SetDefault("pipeline.max_retries", 3)
	viper.SetDefault("pipeline.retry_delay_seconds", 60)
	viper.SetDefault("pipeline.per_message_timeout_seconds", 300)
	viper.SetDefault("pipeline.concurrent_workers", 4)
	viper.SetDefault("pipeline.max_attachment_bytes", 50*1024*1024)

	viper.SetDefault("ocr.enabled", true)
	viper.SetDefault("ocr.language", "spa+eng")
	viper.SetDefault("ocr.dpi", 300)
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Database
	viper.BindEnv("database.host", "DB_HOST")
	viper.BindEnv("database.port", "DB_PORT")
	viper.BindEnv("database.user", "DB_USER")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("database.dbname", "DB_NAME")
	viper.BindEnv("database.sslmode", "DB_SSLMODE")

	// Mailbox
	viper.BindEnv("mailbox.client_id", "MAILBOX_CLIENT_ID")
	viper.BindEnv("mailbox.client_secret", "MAILBOX_CLIENT_SECRET")
	viper.BindEnv("mailbox.refresh_token", "MAILBOX_REFRESH_TOKEN")
	viper.BindEnv("mailbox.user_email", "MAILBOX_USER_EMAIL")
	viper.BindEnv("mailbox.use_imap", "MAILBOX_USE_IMAP")
	viper.BindEnv("mailbox.imap_host", "MAILBOX_IMAP_HOST")
	viper.BindEnv("mailbox.imap_port", "MAILBOX_IMAP_PORT")
	viper.BindEnv("mailbox.imap_user", "MAILBOX_IMAP_USER")
	viper.BindEnv("mailbox.imap_password", "MAILBOX_IMAP_PASSWORD")
	viper.BindEnv("mailbox.folder", "MAILBOX_FOLDER")
	viper.BindEnv("mailbox.processed_label", "MAILBOX_PROCESSED_LABEL")
	viper.BindEnv("mailbox.quarantine_label", "MAILBOX_QUARANTINE_LABEL")

	// Pipeline
	viper.BindEnv("pipeline.batch_size", "PIPELINE_BATCH_SIZE")
	viper.BindEnv("pipeline.max_results_per_poll", "PIPELINE_MAX_RESULTS_PER_POLL")
	viper.BindEnv("pipeline.poll_interval_seconds", "PIPELINE_POLL_INTERVAL_SECONDS")
	viper.BindEnv("pipeline.max_retries", "PIPELINE_MAX_RETRIES")
	viper.BindEnv("pipeline.retry_delay_seconds", "PIPELINE_RETRY_DELAY_SECONDS")
	viper.BindEnv("pipeline.per_message_timeout_seconds", "PIPELINE_PER_MESSAGE_TIMEOUT_SECONDS")
	viper.BindEnv("pipeline.concurrent_workers", "PIPELINE_CONCURRENT_WORKERS")
	viper.BindEnv("pipeline.max_attachment_bytes", "PIPELINE_MAX_ATTACHMENT_BYTES")
	viper.BindEnv("pipeline.allowed_sender_domains", "PIPELINE_ALLOWED_SENDER_DOMAINS")

	// OCR
	viper.BindEnv("ocr.enabled", "OCR_ENABLED")
	viper.BindEnv("ocr.language", "OCR_LANGUAGE")
	viper.BindEnv("ocr.dpi", "OCR_DPI")
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// RetryDelay returns the inter-attempt delay as a duration.
func (c *PipelineConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// PerMessageTimeout returns the per-message wall-clock ceiling as a duration.
func (c *PipelineConfig) PerMessageTimeout() time.Duration {
	return time.Duration(c.PerMessageTimeoutSecs) * time.Second
}

// PollInterval returns the mailbox poll interval as a duration.
func (c *PipelineConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// SenderAllowed reports whether the given sender address passes the
// allowed-domain filter. An empty filter allows every sender.
func (c *PipelineConfig) SenderAllowed(sender string) bool {
	if len(c.AllowedSenderDomains) == 0 {
		return true
	}
	at := strings.LastIndex(sender, "@")
	if at < 0 {
		return false
	}
	domain := strings.ToLower(strings.TrimRight(sender[at+1:], ">"))
	for _, allowed := range c.AllowedSenderDomains {
		if domain == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return fmt.Errorf("database host, user, and dbname are required")
	}

	if !c.Mailbox.UseIMAP {
		if c.Mailbox.ClientID == "" || c.Mailbox.ClientSecret == "" || c.Mailbox.RefreshToken == "" {
			return fmt.Errorf("mailbox OAuth2 credentials are required when not using IMAP")
		}
	} else {
		if c.Mailbox.IMAPUser == "" || c.Mailbox.IMAPPassword == "" {
			return fmt.Errorf("IMAP credentials are required when using IMAP")
		}
	}

	if c.Pipeline.PollIntervalSeconds <= 0 {
		return fmt.Errorf("poll interval must be greater than 0")
	}
	if c.Pipeline.MaxRetries <= 0 {
		return fmt.Errorf("max retries must be greater than 0")
	}
	if c.Pipeline.ConcurrentWorkers <= 0 {
		return fmt.Errorf("concurrent workers must be greater than 0")
	}
	if c.Pipeline.MaxAttachmentBytes <= 0 {
		return fmt.Errorf("max attachment bytes must be greater than 0")
	}
	if c.OCR.Enabled && c.OCR.Language == "" {
		return fmt.Errorf("OCR language is required when OCR is enabled")
	}

	return nil
}
