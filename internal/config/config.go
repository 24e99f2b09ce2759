// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Browser     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	Target      TargetConfig      `mapstructure:"target" yaml:"target"`
	Navigation  NavigationConfig  `mapstructure:"navigation" yaml:"navigation"`
	Interaction InteractionConfig `mapstructure:"interaction" yaml:"interaction"`
	Capture     CaptureConfig     `mapstructure:"capture" yaml:"capture"`
	Preflight   PreflightConfig   `mapstructure:"preflight" yaml:"preflight"`
	Tokens      TokensConfig      `mapstructure:"tokens" yaml:"tokens"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser launched per run.
type BrowserConfig struct {
	Headless      bool           `mapstructure:"headless" yaml:"headless"`
	ExecPath      string         `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent     string         `mapstructure:"user_agent" yaml:"user_agent"`
	Args          []string       `mapstructure:"args" yaml:"args"`
	Viewport      map[string]int `mapstructure:"viewport" yaml:"viewport"`
	LaunchTimeout time.Duration  `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	ActionTimeout time.Duration  `mapstructure:"action_timeout" yaml:"action_timeout"`
	Locale        string         `mapstructure:"locale" yaml:"locale"`
	Timezone      string         `mapstructure:"timezone" yaml:"timezone"`
	Stealth       bool           `mapstructure:"stealth" yaml:"stealth"`
	Debug         bool           `mapstructure:"debug" yaml:"debug"`
}

// TargetConfig describes the web application being driven. The selectors and
// the trigger substring track the site's current markup and traffic.
type TargetConfig struct {
	URL                 string   `mapstructure:"url" yaml:"url"`
	SanityURL           string   `mapstructure:"sanity_url" yaml:"sanity_url"`
	Prompts             []string `mapstructure:"prompts" yaml:"prompts"`
	ModelOptionText     string   `mapstructure:"model_option_text" yaml:"model_option_text"`
	InputSelector       string   `mapstructure:"input_selector" yaml:"input_selector"`
	SubmitSelector      string   `mapstructure:"submit_selector" yaml:"submit_selector"`
	TriggerURLSubstring string   `mapstructure:"trigger_url_substring" yaml:"trigger_url_substring"`
	TriggerMethod       string   `mapstructure:"trigger_method" yaml:"trigger_method"`
}

// NavigationConfig tunes the retrying page load.
type NavigationConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseTimeout   time.Duration `mapstructure:"base_timeout" yaml:"base_timeout"`
	BackoffStep   time.Duration `mapstructure:"backoff_step" yaml:"backoff_step"`
	SettleWait    time.Duration `mapstructure:"settle_wait" yaml:"settle_wait"`
	SanityTimeout time.Duration `mapstructure:"sanity_timeout" yaml:"sanity_timeout"`
	ArtifactDir   string        `mapstructure:"artifact_dir" yaml:"artifact_dir"`
	ContentLimit  int           `mapstructure:"content_limit" yaml:"content_limit"`
}

// InteractionConfig tunes the UI interaction sequence.
type InteractionConfig struct {
	ModelClickTimeout time.Duration `mapstructure:"model_click_timeout" yaml:"model_click_timeout"`
	ModelSettle       time.Duration `mapstructure:"model_settle" yaml:"model_settle"`
	FillSettle        time.Duration `mapstructure:"fill_settle" yaml:"fill_settle"`
	SubmitTimeout     time.Duration `mapstructure:"submit_timeout" yaml:"submit_timeout"`
}

// CaptureConfig tunes the request interceptor.
type CaptureConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// PreflightConfig controls the plain HTTP reachability probe.
type PreflightConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// TokensConfig tunes the token extraction heuristics.
type TokensConfig struct {
	// FieldLengthThreshold flags JSON string fields strictly longer than this.
	FieldLengthThreshold int `mapstructure:"field_length_threshold" yaml:"field_length_threshold"`
	// MinOpaqueLength is the minimum length of a raw-text opaque token.
	MinOpaqueLength int `mapstructure:"min_opaque_length" yaml:"min_opaque_length"`
	// DecodeJWT enables the unverified decode of JWT-shaped tokens.
	DecodeJWT bool `mapstructure:"decode_jwt" yaml:"decode_jwt"`
}

// ServerConfig configures the HTTP front door.
type ServerConfig struct {
	ListenAddr        string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	MaxConcurrentRuns int           `mapstructure:"max_concurrent_runs" yaml:"max_concurrent_runs"`
	RunTimeout        time.Duration `mapstructure:"run_timeout" yaml:"run_timeout"`
	RateLimit         float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst         int           `mapstructure:"rate_burst" yaml:"rate_burst"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// DefaultPrompts are the messages a run picks from when none is given.
var DefaultPrompts = []string{
	"Make a simple calculator in Python",
	"Generate a todo list app in React",
	"Write HTML for a login form",
	"Give me CSS for a navbar",
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "promptprobe")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118 Safari/537.36")
	v.SetDefault("browser.viewport", map[string]int{"width": 1280, "height": 800})
	v.SetDefault("browser.launch_timeout", "60s")
	v.SetDefault("browser.action_timeout", "30s")
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.timezone", "")
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.debug", false)

	// -- Target --
	v.SetDefault("target.url", "https://workik.com/ai-code-generator")
	v.SetDefault("target.sanity_url", "https://example.com")
	v.SetDefault("target.prompts", DefaultPrompts)
	v.SetDefault("target.model_option_text", "GPT 4.1 Mini")
	v.SetDefault("target.input_selector", "div[contenteditable='true']")
	v.SetDefault("target.submit_selector", "button.MuiButtonBase-root.css-11uhnn1")
	v.SetDefault("target.trigger_url_substring", "trigger?")
	v.SetDefault("target.trigger_method", "POST")

	// -- Navigation --
	v.SetDefault("navigation.max_attempts", 3)
	v.SetDefault("navigation.base_timeout", "30s")
	v.SetDefault("navigation.backoff_step", "1s")
	v.SetDefault("navigation.settle_wait", "1500ms")
	v.SetDefault("navigation.sanity_timeout", "10s")
	v.SetDefault("navigation.artifact_dir", "/tmp")
	v.SetDefault("navigation.content_limit", 8000)

	// -- Interaction --
	v.SetDefault("interaction.model_click_timeout", "3s")
	v.SetDefault("interaction.model_settle", "500ms")
	v.SetDefault("interaction.fill_settle", "300ms")
	v.SetDefault("interaction.submit_timeout", "5s")

	// -- Capture --
	v.SetDefault("capture.timeout", "15s")

	// -- Preflight --
	v.SetDefault("preflight.enabled", true)
	v.SetDefault("preflight.timeout", "8s")

	// -- Tokens --
	v.SetDefault("tokens.field_length_threshold", 39)
	v.SetDefault("tokens.min_opaque_length", 30)
	v.SetDefault("tokens.decode_jwt", true)

	// -- Server --
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.max_concurrent_runs", 1)
	v.SetDefault("server.run_timeout", "5m")
	v.SetDefault("server.rate_limit", 0.5)
	v.SetDefault("server.rate_burst", 2)
	v.SetDefault("server.shutdown_timeout", "30s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Short aliases for the values most often set per deployment.
	v.BindEnv("server.listen_addr", "PROMPTPROBE_LISTEN_ADDR")
	v.BindEnv("target.url", "PROMPTPROBE_TARGET_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	dir, err := homedir.Expand(cfg.Navigation.ArtifactDir)
	if err != nil {
		return nil, fmt.Errorf("invalid navigation.artifact_dir: %w", err)
	}
	cfg.Navigation.ArtifactDir = dir

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Target.URL == "" {
		return fmt.Errorf("target.url is a required configuration field")
	}
	if strings.TrimSpace(c.Target.InputSelector) == "" {
		return fmt.Errorf("target.input_selector is a required configuration field")
	}
	if c.Target.TriggerURLSubstring == "" {
		return fmt.Errorf("target.trigger_url_substring is a required configuration field")
	}
	if c.Navigation.MaxAttempts <= 0 {
		return fmt.Errorf("navigation.max_attempts must be a positive integer")
	}
	if c.Navigation.BaseTimeout <= 0 {
		return fmt.Errorf("navigation.base_timeout must be a positive duration")
	}
	if c.Capture.Timeout <= 0 {
		return fmt.Errorf("capture.timeout must be a positive duration")
	}
	if c.Tokens.MinOpaqueLength <= 0 || c.Tokens.FieldLengthThreshold < 0 {
		return fmt.Errorf("tokens thresholds must be positive")
	}
	if c.Server.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("server.max_concurrent_runs must be a positive integer")
	}
	return nil
}

// PromptPool returns the configured prompt pool, falling back to DefaultPrompts.
func (t TargetConfig) PromptPool() []string {
	if len(t.Prompts) == 0 {
		return DefaultPrompts
	}
	return t.Prompts
}
