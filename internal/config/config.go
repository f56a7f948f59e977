package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ServerConfig defines the HTTP server configuration
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// LLMConfig selects the model provider used by every agent
type LLMConfig struct {
	Provider  string        `mapstructure:"provider"`
	Model     string        `mapstructure:"model"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxTokens int           `mapstructure:"max_tokens"`
	AWSRegion string        `mapstructure:"aws_region"`
}

// DatabaseConfig points at the transaction events store
type DatabaseConfig struct {
	URL          string        `mapstructure:"url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRows      int           `mapstructure:"max_rows"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
}

// ChatsConfig defines where conversation turns and alerts are persisted
type ChatsConfig struct {
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
	Table  string `mapstructure:"table"`
}

// MemoryConfig defines the conversation cache backend
type MemoryConfig struct {
	Driver        string        `mapstructure:"driver"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// EmailConfig holds SMTP delivery settings for alert notifications
type EmailConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// NotifyConfig defines alert notification channels
type NotifyConfig struct {
	SlackWebhookURL string      `mapstructure:"slack_webhook_url"`
	Email           EmailConfig `mapstructure:"email"`
}

// SchemaConfig allows overriding the embedded column schema
type SchemaConfig struct {
	File string `mapstructure:"file"`
}

// LogConfig defines logger settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig selects the metrics exporter
type MetricsConfig struct {
	Exporter string        `mapstructure:"exporter"`
	Interval time.Duration `mapstructure:"interval"`
}

// Config is the main configuration structure for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Database DatabaseConfig `mapstructure:"database"`
	Chats    ChatsConfig    `mapstructure:"chats"`
	Memory   MemoryConfig   `mapstructure:"memory"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Schema   SchemaConfig   `mapstructure:"schema"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Debug    bool           `mapstructure:"debug"`
}

// Application constants
const (
	appName           = "paycopilot"
	defaultLogLevel   = "info"
	defaultChatDBName = "ivy"

	DefaultPort           = 8001
	DefaultRequestTimeout = 120 * time.Second
	DefaultLLMTimeout     = 60 * time.Second
	DefaultDBTimeout      = 30 * time.Second
	DefaultMaxRows        = 1000
)

var defaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:3001",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:3001",
	"http://localhost:5173",
	"http://127.0.0.1:5173",
	"http://localhost:8080",
	"http://127.0.0.1:8080",
}

// providerKeyEnv maps each provider to the environment variable carrying its key
var providerKeyEnv = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"gemini":     "GEMINI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
}

var (
	cfg *Config
	mu  sync.RWMutex
)

// Load initializes the configuration from environment variables and an optional config file
func Load(configFile string, debug bool) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	if cfg != nil {
		return cfg, nil
	}

	configureViper(configFile)
	setDefaults(debug)

	loaded, err := readConfig(viper.ReadInConfig())
	if err != nil {
		return nil, err
	}

	resolveDerived(loaded)
	cfg = loaded
	return cfg, nil
}

// configureViper sets up viper's configuration paths and environment variables
func configureViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName(appName)
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath(fmt.Sprintf("$HOME/.config/%s", appName))
		viper.AddConfigPath(fmt.Sprintf("/etc/%s", appName))
	}
	viper.SetEnvPrefix(strings.ToUpper(appName))
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Unprefixed variables used by existing deployments
	_ = viper.BindEnv("database.url", "PAYCOPILOT_DATABASE_URL", "DATABASE_URL")
	_ = viper.BindEnv("chats.url", "PAYCOPILOT_CHATS_URL", "CHAT_DATABASE_URL")
	_ = viper.BindEnv("notify.slack_webhook_url", "PAYCOPILOT_NOTIFY_SLACK_WEBHOOK_URL", "SLACK_WEBHOOK_URL")
	_ = viper.BindEnv("memory.redis_addr", "PAYCOPILOT_MEMORY_REDIS_ADDR", "REDIS_ADDR")
}

// setDefaults configures default values for configuration options
func setDefaults(debug bool) {
	viper.SetDefault("server.port", DefaultPort)
	viper.SetDefault("server.cors_origins", defaultCORSOrigins)
	viper.SetDefault("server.request_timeout", DefaultRequestTimeout)

	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.model", "gpt-4o")
	viper.SetDefault("llm.timeout", DefaultLLMTimeout)
	viper.SetDefault("llm.max_tokens", 4096)
	viper.SetDefault("llm.aws_region", "us-east-1")

	viper.SetDefault("database.timeout", DefaultDBTimeout)
	viper.SetDefault("database.max_rows", DefaultMaxRows)
	viper.SetDefault("database.max_open_conns", 10)

	viper.SetDefault("chats.driver", "postgres")
	viper.SetDefault("chats.table", "chats")

	viper.SetDefault("memory.driver", "memory")
	viper.SetDefault("memory.ttl", 24*time.Hour)

	viper.SetDefault("notify.email.port", 587)

	viper.SetDefault("metrics.exporter", "none")
	viper.SetDefault("metrics.interval", time.Minute)

	viper.SetDefault("log.format", "text")
	if debug {
		viper.SetDefault("debug", true)
		viper.Set("log.level", "debug")
	} else {
		viper.SetDefault("debug", false)
		viper.SetDefault("log.level", defaultLogLevel)
	}
}

// readConfig reads configuration from file and environment
func readConfig(err error) (*Config, error) {
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	loaded := &Config{}
	if err := viper.Unmarshal(loaded); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return loaded, nil
}

// resolveDerived fills values that depend on other settings
func resolveDerived(c *Config) {
	c.LLM.Provider = strings.ToLower(c.LLM.Provider)
	if c.LLM.APIKey == "" {
		if envVar, ok := providerKeyEnv[c.LLM.Provider]; ok {
			c.LLM.APIKey = os.Getenv(envVar)
		}
	}

	if c.Chats.URL == "" && c.Chats.Driver == "postgres" {
		c.Chats.URL = ChatDatabaseURL(c.Database.URL)
	}
}

// ChatDatabaseURL derives the chat database URL from the transactions database URL
func ChatDatabaseURL(databaseURL string) string {
	if databaseURL == "" {
		return ""
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return ""
	}
	u.Path = "/" + defaultChatDBName
	return u.String()
}

// Validate checks that the settings required to serve requests are present
func (c *Config) Validate() error {
	if c.LLM.Provider != "bedrock" && c.LLM.APIKey == "" {
		if envVar, ok := providerKeyEnv[c.LLM.Provider]; ok {
			return fmt.Errorf("%s environment variable not set", envVar)
		}
		return fmt.Errorf("llm.api_key not set for provider %q", c.LLM.Provider)
	}
	if c.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable not set")
	}
	if c.Database.MaxRows <= 0 {
		return fmt.Errorf("database.max_rows must be positive, got %d", c.Database.MaxRows)
	}
	switch c.Chats.Driver {
	case "postgres", "libsql":
	default:
		return fmt.Errorf("unsupported chats.driver %q", c.Chats.Driver)
	}
	switch c.Memory.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported memory.driver %q", c.Memory.Driver)
	}
	switch c.Metrics.Exporter {
	case "", "none", "stdout", "prometheus":
	default:
		return fmt.Errorf("unsupported metrics.exporter %q", c.Metrics.Exporter)
	}
	return nil
}

// Watch re-reads the config file on change and hands the new configuration to onChange
func Watch(onChange func(*Config)) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		reloaded := &Config{}
		if err := viper.Unmarshal(reloaded); err != nil {
			return
		}
		resolveDerived(reloaded)

		mu.Lock()
		cfg = reloaded
		mu.Unlock()

		if onChange != nil {
			onChange(reloaded)
		}
	})
	viper.WatchConfig()
}

// Get returns the global configuration instance
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Reset clears the loaded configuration so the next Load starts fresh
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	cfg = nil
	viper.Reset()
}
