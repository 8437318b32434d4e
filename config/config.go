package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the blog service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Search    SearchConfig    `mapstructure:"search"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
	BodyLimit    string        `mapstructure:"body_limit"`
	SecureCookie bool          `mapstructure:"secure_cookie"`
	MigrationDir string        `mapstructure:"migration_dir"`
}

// Normalize fills unset server values.
func (s ServerConfig) Normalize() ServerConfig {
	s.Address = strings.TrimSpace(s.Address)
	if s.Address == "" {
		s.Address = ":10001"
	}
	if s.Address[0] != ':' && !strings.Contains(s.Address, ":") {
		s.Address = ":" + s.Address
	}
	if s.TokenTTL <= 0 {
		s.TokenTTL = 7 * 24 * time.Hour
	}
	if len(s.CORSOrigins) == 0 {
		s.CORSOrigins = []string{"*"}
	}
	if strings.TrimSpace(s.BodyLimit) == "" {
		s.BodyLimit = "25M"
	}
	if strings.TrimSpace(s.MigrationDir) == "" {
		s.MigrationDir = "file://migrations"
	}
	return s
}

func (s ServerConfig) Validate() error {
	if strings.TrimSpace(s.JWTSecret) == "" {
		return fmt.Errorf("server.jwt_secret required")
	}
	return nil
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type        string        `mapstructure:"type"` // gemini, openai, anthropic
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	ImageModel  string        `mapstructure:"image_model"`
	SpeechModel string        `mapstructure:"speech_model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// LLMRoutingConfig names the provider used for each family of calls
type LLMRoutingConfig struct {
	Drafting string `mapstructure:"drafting"` // draft pipeline stages
	Editing  string `mapstructure:"editing"`  // improve, title, metadata, chat
	Media    string `mapstructure:"media"`    // image, audio, speech
}

var envKeys = map[string]string{
	"gemini":    "GEMINI_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

// Normalize resolves provider keys from the conventional environment variables and
// points unset routes at the first configured provider.
func (c LLMConfig) Normalize() LLMConfig {
	if len(c.Providers) == 0 {
		c.Providers = map[string]LLMProvider{"gemini": {Type: "gemini"}}
	}
	out := make(map[string]LLMProvider, len(c.Providers))
	for name, p := range c.Providers {
		if p.Type == "" {
			p.Type = name
		}
		p.Type = strings.ToLower(strings.TrimSpace(p.Type))
		if p.APIKey == "" {
			if env, ok := envKeys[p.Type]; ok {
				p.APIKey = os.Getenv(env)
			}
		}
		if p.Timeout <= 0 {
			p.Timeout = 60 * time.Second
		}
		out[name] = p
	}
	c.Providers = out

	fallback := c.firstProvider()
	if c.Routing.Drafting == "" {
		c.Routing.Drafting = fallback
	}
	if c.Routing.Editing == "" {
		c.Routing.Editing = c.Routing.Drafting
	}
	if c.Routing.Media == "" {
		c.Routing.Media = fallback
		for name, p := range c.Providers {
			if p.Type == "gemini" {
				c.Routing.Media = name
				break
			}
		}
	}
	return c
}

func (c LLMConfig) firstProvider() string {
	for _, preferred := range []string{"gemini", "openai", "anthropic"} {
		if _, ok := c.Providers[preferred]; ok {
			return preferred
		}
	}
	first := ""
	for name := range c.Providers {
		if first == "" || name < first {
			first = name
		}
	}
	return first
}

func (c LLMConfig) Validate() error {
	for _, route := range []struct{ key, name string }{
		{"llm.routing.drafting", c.Routing.Drafting},
		{"llm.routing.editing", c.Routing.Editing},
		{"llm.routing.media", c.Routing.Media},
	} {
		if _, ok := c.Providers[route.name]; !ok {
			return fmt.Errorf("%s references unknown provider %q", route.key, route.name)
		}
	}
	for name, p := range c.Providers {
		switch p.Type {
		case "gemini", "openai", "anthropic":
		default:
			return fmt.Errorf("llm.providers.%s.type %q is not supported", name, p.Type)
		}
	}
	return nil
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	MetricsPort  int    `mapstructure:"metrics_port"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.MetricsPort <= 0 {
		return fmt.Errorf("telemetry.metrics_port must be > 0 when telemetry is enabled")
	}
	return nil
}

// SourcesConfig contains research source configurations
type SourcesConfig struct {
	WebSearch WebSearchConfig `mapstructure:"web_search"`
}

// WebSearchConfig contains web search settings
type WebSearchConfig struct {
	Provider     string        `mapstructure:"provider"` // tavily, brave, serper
	TavilyAPIKey string        `mapstructure:"tavily_api_key"`
	BraveAPIKey  string        `mapstructure:"brave_api_key"`
	SerperAPIKey string        `mapstructure:"serper_api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

// Normalize fills the provider name and resolves TAVILY_API_KEY.
func (w WebSearchConfig) Normalize() WebSearchConfig {
	w.Provider = strings.ToLower(strings.TrimSpace(w.Provider))
	if w.Provider == "" {
		w.Provider = "tavily"
	}
	if w.TavilyAPIKey == "" {
		w.TavilyAPIKey = os.Getenv("TAVILY_API_KEY")
	}
	if w.Timeout <= 0 {
		w.Timeout = 30 * time.Second
	}
	return w
}

// APIKey returns the key for the selected provider.
func (w WebSearchConfig) APIKey() string {
	switch w.Provider {
	case "brave":
		return w.BraveAPIKey
	case "serper":
		return w.SerperAPIKey
	default:
		return w.TavilyAPIKey
	}
}

func (w WebSearchConfig) Validate() error {
	switch w.Provider {
	case "tavily", "brave", "serper":
		return nil
	default:
		return fmt.Errorf("sources.web_search.provider %q is not supported", w.Provider)
	}
}

// PipelineConfig bounds draft generation requests.
type PipelineConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	ResearchHits int           `mapstructure:"research_hits"`
}

func (p PipelineConfig) Normalize() PipelineConfig {
	if p.Timeout <= 0 {
		p.Timeout = 5 * time.Minute
	}
	if p.ResearchHits <= 0 {
		p.ResearchHits = 3
	}
	return p
}

// SchedulerConfig controls publication of scheduled posts.
type SchedulerConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Cron    string        `mapstructure:"cron"`
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

func (s SchedulerConfig) Normalize() SchedulerConfig {
	if strings.TrimSpace(s.Cron) == "" {
		s.Cron = "* * * * *"
	}
	if s.LockTTL <= 0 {
		s.LockTTL = 30 * time.Second
	}
	return s
}

// SearchConfig toggles the in-process full-text index over posts.
type SearchConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	IndexPath string `mapstructure:"index_path"` // empty keeps the index in memory
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	S3       S3Config       `mapstructure:"s3"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Configured reports whether a Redis endpoint was provided.
func (r RedisConfig) Configured() bool {
	return strings.TrimSpace(r.Host) != ""
}

func (r RedisConfig) Validate() error {
	if !r.Configured() {
		return nil
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required when host is set")
	}
	return nil
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds a libpq connection URL.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres configuration incomplete: host/dbname required")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// S3Config contains object storage configuration for uploaded images.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	PublicBaseURL   string `mapstructure:"public_base_url"`
}

// Configured reports whether uploads can be stored.
func (s S3Config) Configured() bool {
	return strings.TrimSpace(s.Bucket) != ""
}

func (s S3Config) Validate() error {
	if strings.TrimSpace(s.Endpoint) == "" && strings.TrimSpace(s.Bucket) == "" {
		return nil
	}
	if strings.TrimSpace(s.Bucket) == "" {
		return fmt.Errorf("storage.s3.bucket required when endpoint is provided")
	}
	return nil
}

// Load reads the config file at path (or searches the default locations when
// path is empty), overlays LUMINA_* environment variables and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("json")   // REQUIRED if the config file does not have the extension in the name
	v.SetDefault("server.address", ":10001")
	v.SetDefault("server.token_ttl", "168h")
	v.SetDefault("sources.web_search.provider", "tavily")
	v.SetDefault("sources.web_search.cache_ttl", "1h")
	v.SetDefault("pipeline.timeout", "5m")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.cron", "* * * * *")
	v.SetDefault("search.enabled", true)

	if path == "" {
		v.AddConfigPath("./config") // path to look for the config file in
		v.AddConfigPath(".")        // optionally look for config in the working directory
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		v.AddConfigPath(exeDir)                                // bin/
		v.AddConfigPath(filepath.Join(exeDir, ".."))           // repo root
		v.AddConfigPath(filepath.Join(exeDir, "..", "config")) // repo root/config
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("LUMINA")
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)

	v.AutomaticEnv() // read in environment variables that match (LUMINA_*)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	config.normalize()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) normalize() {
	c.Server = c.Server.Normalize()
	c.LLM = c.LLM.Normalize()
	c.Sources.WebSearch = c.Sources.WebSearch.Normalize()
	c.Pipeline = c.Pipeline.Normalize()
	c.Scheduler = c.Scheduler.Normalize()
}

// Validate checks every section.
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		c.Server,
		c.LLM,
		c.Telemetry,
		c.Sources.WebSearch,
		c.Storage.Redis,
		c.Storage.Postgres,
		c.Storage.S3,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}
