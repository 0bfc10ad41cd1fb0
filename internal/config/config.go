package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Mail        MailConfig        `mapstructure:"mail"`
	Attachments AttachmentsConfig `mapstructure:"attachments"`
	Backup      BackupConfig      `mapstructure:"backup"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// MailConfig holds the notification delivery configuration.
type MailConfig struct {
	// Provider selects the ESP: "sendgrid", "mailgun", "stdout".
	Provider string `mapstructure:"provider"`
	// APIKey is the ESP credential. Required except for stdout.
	APIKey string `mapstructure:"api_key"`
	// Endpoint overrides the ESP API base URL (testing).
	Endpoint string `mapstructure:"endpoint"`
	// Domain is the Mailgun sending domain.
	Domain string `mapstructure:"domain"`
	// Sender is the From address on outgoing notifications.
	Sender string `mapstructure:"sender"`
	// Recipients is a comma-separated list of notification addresses.
	Recipients string `mapstructure:"recipients"`
	// Timeout bounds each ESP API call.
	Timeout time.Duration `mapstructure:"timeout"`
}

// RecipientList splits the comma-separated recipients, trimming
// whitespace and dropping empty entries.
func (m MailConfig) RecipientList() []string {
	var out []string
	for _, r := range strings.Split(m.Recipients, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// AttachmentsConfig holds attachment fetch budgets.
type AttachmentsConfig struct {
	MaxCount      int           `mapstructure:"max_count"`
	MaxFileBytes  int64         `mapstructure:"max_file_bytes"`
	MaxTotalBytes int64         `mapstructure:"max_total_bytes"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
}

// BackupConfig holds the optional backup mirror endpoint.
type BackupConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Secret   string        `mapstructure:"secret"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Output    string `mapstructure:"output"`
	FilePath  string `mapstructure:"file_path"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
	MaxFiles  int    `mapstructure:"max_files"`
}

// Load reads configuration from an optional config.yaml in the given
// directory. Environment variables with prefix LEAD_RELAY_ override file
// values; for example, LEAD_RELAY_MAIL_API_KEY overrides mail.api_key.
// A missing config file is fine - the service can run on env vars alone.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("LEAD_RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("mail.provider", "sendgrid")
	v.SetDefault("mail.timeout", 30*time.Second)

	v.SetDefault("attachments.max_count", 10)
	v.SetDefault("attachments.max_file_bytes", 7<<20)
	v.SetDefault("attachments.max_total_bytes", 20<<20)
	v.SetDefault("attachments.fetch_timeout", 15*time.Second)

	v.SetDefault("backup.timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file_path", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_files", 5)

	// Viper only reads env vars for keys it knows about, so keys without
	// file or default values are bound explicitly.
	for _, key := range []string{
		"mail.api_key", "mail.endpoint", "mail.domain",
		"mail.sender", "mail.recipients",
		"backup.endpoint", "backup.secret",
	} {
		v.SetDefault(key, "")
	}
}

// Validate checks the settings the notification path cannot run without:
// the provider credential, a sender address, and at least one recipient.
// The handler re-checks this per request so a misconfigured deploy fails
// fast with a config error before any payload work.
func (c *Config) Validate() error {
	m := c.Mail
	if m.Provider == "" {
		return errors.New("mail: provider is required")
	}
	if m.Provider != "stdout" && m.APIKey == "" {
		return errors.New("mail: api_key is required")
	}
	if m.Provider == "mailgun" && m.Domain == "" {
		return errors.New("mail: domain is required for mailgun")
	}
	if m.Sender == "" {
		return errors.New("mail: sender is required")
	}
	if len(m.RecipientList()) == 0 {
		return errors.New("mail: at least one recipient is required")
	}
	return nil
}
