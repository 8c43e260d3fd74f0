// Package config holds all socialNERD configuration.
// Everything brittle lives here: platform selectors, quota limits, typing
// cadence. Components consume these structs and never hard-code platform
// layout, so DOM drift is a config change rather than a code change.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration object.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Platform   PlatformConfig   `yaml:"platform"`
	Generation GenerationConfig `yaml:"generation"`
	Governor   GovernorConfig   `yaml:"governor"`
	Typing     TypingConfig     `yaml:"typing"`
	Browser    BrowserConfig    `yaml:"browser"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// PlatformConfig describes the target platform surface.
type PlatformConfig struct {
	BaseURL      string `yaml:"base_url"`
	LoginPath    string `yaml:"login_path"`
	HomePath     string `yaml:"home_path"`
	TrendingPath string `yaml:"trending_path"`

	// StepTimeoutMs bounds every element-ready wait during login,
	// discovery and posting.
	StepTimeoutMs int `yaml:"step_timeout_ms"`
	// LoginTimeoutMs bounds the post-login landing indicator poll.
	LoginTimeoutMs int `yaml:"login_timeout_ms"`
	// ChallengeProbeMs bounds the "did a secondary verification prompt
	// appear" check. Short on purpose: most logins have no challenge.
	ChallengeProbeMs int `yaml:"challenge_probe_ms"`
	// ScrollPasses is how many scroll-to-bottom passes discovery performs
	// before extracting the feed.
	ScrollPasses int `yaml:"scroll_passes"`

	Selectors SelectorConfig `yaml:"selectors"`
}

// SelectorConfig maps logical platform hooks to concrete DOM selectors.
// This is the only place platform layout is encoded.
type SelectorConfig struct {
	UsernameInput    string `yaml:"username_input"`
	ChallengeInput   string `yaml:"challenge_input"`
	PasswordInput    string `yaml:"password_input"`
	LandingIndicator string `yaml:"landing_indicator"`

	PostItem   string `yaml:"post_item"`
	PostText   string `yaml:"post_text"`
	LikeCount  string `yaml:"like_count"`
	ShareCount string `yaml:"share_count"`
	PostLink   string `yaml:"post_link"`
	AuthorName string `yaml:"author_name"`

	ReplyButton   string `yaml:"reply_button"`
	ReplyComposer string `yaml:"reply_composer"`
	SubmitButton  string `yaml:"submit_button"`
}

// GenerationConfig configures the text-generation backend.
type GenerationConfig struct {
	Provider  string `yaml:"provider"` // openai, gemini
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// GovernorConfig configures rate limiting, retry and cooldown behavior.
type GovernorConfig struct {
	WindowLimit   int `yaml:"window_limit"`   // requests per sliding window
	WindowMinutes int `yaml:"window_minutes"` // sliding window size
	MonthlyLimit  int `yaml:"monthly_limit"`  // requests per 30-day window

	MaxAttempts           int `yaml:"max_attempts"`
	BaseDelayMs           int `yaml:"base_delay_ms"`
	JitterMs              int `yaml:"jitter_ms"`
	CooldownOnRateLimitMs int `yaml:"cooldown_on_rate_limit_ms"`
}

// TypingConfig models human typing cadence for the posting sequencer.
// The per-character delay is drawn uniformly from [MinCharDelayMs,
// MaxCharDelayMs]; fixed-rate input is a primary bot-detection signal.
type TypingConfig struct {
	MinCharDelayMs int `yaml:"min_char_delay_ms"`
	MaxCharDelayMs int `yaml:"max_char_delay_ms"`
	SettleMs       int `yaml:"settle_ms"`
}

// BrowserConfig configures the rod transport.
type BrowserConfig struct {
	Bin                 string `yaml:"bin"`
	Headless            bool   `yaml:"headless"`
	UserAgent           string `yaml:"user_agent"`
	ViewportWidth       int    `yaml:"viewport_width"`
	ViewportHeight      int    `yaml:"viewport_height"`
	NavigationTimeoutMs int    `yaml:"navigation_timeout_ms"`
}

// LoggingConfig configures the categorized file logger.
type LoggingConfig struct {
	DebugMode bool   `yaml:"debug_mode"`
	Dir       string `yaml:"dir"`
}

// DefaultConfig returns sensible defaults targeting the default platform.
func DefaultConfig() Config {
	return Config{
		Name:    "socialnerd",
		Version: "0.3.0",
		Platform: PlatformConfig{
			BaseURL:          "https://twitter.com",
			LoginPath:        "/i/flow/login",
			HomePath:         "/home",
			TrendingPath:     "/explore/tabs/trending",
			StepTimeoutMs:    10000,
			LoginTimeoutMs:   10000,
			ChallengeProbeMs: 5000,
			ScrollPasses:     3,
			Selectors: SelectorConfig{
				UsernameInput:    `input[autocomplete="username"]`,
				ChallengeInput:   `input[name="text"]`,
				PasswordInput:    `input[name="password"]`,
				LandingIndicator: `[data-testid="SideNav_NewTweet_Button"]`,
				PostItem:         `[data-testid="tweet"]`,
				PostText:         `[data-testid="tweetText"]`,
				LikeCount:        `[data-testid="like"]`,
				ShareCount:       `[data-testid="retweet"]`,
				PostLink:         `a[href*="/status/"]`,
				AuthorName:       `[data-testid="User-Name"]`,
				ReplyButton:      `[data-testid="reply"]`,
				ReplyComposer:    `[data-testid="tweetTextarea_0"]`,
				SubmitButton:     `[data-testid="tweetButton"]`,
			},
		},
		Generation: GenerationConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			BaseURL:   "https://api.openai.com/v1",
			TimeoutMs: 60000,
		},
		Governor: GovernorConfig{
			WindowLimit:           50,
			WindowMinutes:         15,
			MonthlyLimit:          3000,
			MaxAttempts:           3,
			BaseDelayMs:           500,
			JitterMs:              250,
			CooldownOnRateLimitMs: 300000,
		},
		Typing: TypingConfig{
			MinCharDelayMs: 10,
			MaxCharDelayMs: 80,
			SettleMs:       2000,
		},
		Browser: BrowserConfig{
			Headless:            true,
			UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.224 Safari/537.36",
			ViewportWidth:       1920,
			ViewportHeight:      1080,
			NavigationTimeoutMs: 30000,
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Dir:       ".socialnerd",
		},
	}
}

// Load reads a YAML config file, falling back to defaults for anything the
// file does not set. A missing file is not an error: defaults plus env
// overrides apply.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the config as YAML, creating parent directories.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// applyEnvOverrides layers environment variables over file values.
// Precedence for generation keys: OPENAI_API_KEY > GEMINI_API_KEY.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Generation.APIKey = key
		c.Generation.Provider = "gemini"
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.Generation.APIKey = key
		c.Generation.Provider = "openai"
	}
	if dir := os.Getenv("SOCIALNERD_DIR"); dir != "" {
		c.Logging.Dir = dir
	}
	if os.Getenv("SOCIALNERD_DEBUG") == "1" {
		c.Logging.DebugMode = true
	}
}

// Credentials holds the platform identifier and secret. Supplied once at
// session start and never persisted.
type Credentials struct {
	Identifier string
	Secret     string
}

// CredentialsFromEnv reads platform credentials from the environment.
func CredentialsFromEnv() (Credentials, bool) {
	creds := Credentials{
		Identifier: os.Getenv("SOCIALNERD_USERNAME"),
		Secret:     os.Getenv("SOCIALNERD_PASSWORD"),
	}
	return creds, creds.Identifier != "" && creds.Secret != ""
}

// Duration accessors. Zero values fall back to defaults so a sparse YAML
// file stays usable.

func (p PlatformConfig) StepTimeout() time.Duration {
	if p.StepTimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(p.StepTimeoutMs) * time.Millisecond
}

func (p PlatformConfig) LoginTimeout() time.Duration {
	if p.LoginTimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(p.LoginTimeoutMs) * time.Millisecond
}

func (p PlatformConfig) ChallengeProbe() time.Duration {
	if p.ChallengeProbeMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(p.ChallengeProbeMs) * time.Millisecond
}

func (p PlatformConfig) LoginURL() string    { return p.BaseURL + p.LoginPath }
func (p PlatformConfig) HomeURL() string     { return p.BaseURL + p.HomePath }
func (p PlatformConfig) TrendingURL() string { return p.BaseURL + p.TrendingPath }

func (g GenerationConfig) Timeout() time.Duration {
	if g.TimeoutMs <= 0 {
		return 60 * time.Second
	}
	return time.Duration(g.TimeoutMs) * time.Millisecond
}

func (g GovernorConfig) WindowSize() time.Duration {
	if g.WindowMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(g.WindowMinutes) * time.Minute
}

func (g GovernorConfig) BaseDelay() time.Duration {
	if g.BaseDelayMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(g.BaseDelayMs) * time.Millisecond
}

func (g GovernorConfig) Jitter() time.Duration {
	return time.Duration(g.JitterMs) * time.Millisecond
}

func (g GovernorConfig) CooldownOnRateLimit() time.Duration {
	if g.CooldownOnRateLimitMs <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(g.CooldownOnRateLimitMs) * time.Millisecond
}

func (t TypingConfig) MinCharDelay() time.Duration {
	return time.Duration(t.MinCharDelayMs) * time.Millisecond
}

func (t TypingConfig) MaxCharDelay() time.Duration {
	if t.MaxCharDelayMs <= 0 {
		return 80 * time.Millisecond
	}
	return time.Duration(t.MaxCharDelayMs) * time.Millisecond
}

func (t TypingConfig) Settle() time.Duration {
	return time.Duration(t.SettleMs) * time.Millisecond
}

func (b BrowserConfig) NavigationTimeout() time.Duration {
	if b.NavigationTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(b.NavigationTimeoutMs) * time.Millisecond
}

func (b BrowserConfig) GetViewportWidth() int {
	if b.ViewportWidth == 0 {
		return 1920
	}
	return b.ViewportWidth
}

func (b BrowserConfig) GetViewportHeight() int {
	if b.ViewportHeight == 0 {
		return 1080
	}
	return b.ViewportHeight
}
