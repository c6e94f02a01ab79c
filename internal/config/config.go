// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingCredentials is returned when an identity slot lacks a username or password.
var ErrMissingCredentials = errors.New("missing credentials")

// ErrInvalidConfig marks every other configuration problem detected by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Supported browser drivers.
const (
	DriverPlaywright = "playwright"
	DriverChromedp   = "chromedp"
)

// Supported session store backends.
const (
	StoreBackendFile     = "file"
	StoreBackendPostgres = "postgres"
)

// Config holds the entire application configuration.
type Config struct {
	Logger       LoggerConfig       `mapstructure:"logger" yaml:"logger"`
	Browser      BrowserConfig      `mapstructure:"browser" yaml:"browser"`
	Site         SiteConfig         `mapstructure:"site" yaml:"site"`
	Identities   IdentitiesConfig   `mapstructure:"identities" yaml:"identities"`
	Words        WordsConfig        `mapstructure:"words" yaml:"words"`
	Pacing       PacingConfig       `mapstructure:"pacing" yaml:"pacing"`
	Desktop      StageConfig        `mapstructure:"desktop" yaml:"desktop"`
	Mobile       StageConfig        `mapstructure:"mobile" yaml:"mobile"`
	SessionStore SessionStoreConfig `mapstructure:"session_store" yaml:"session_store"`
	Metrics      MetricsConfig      `mapstructure:"metrics" yaml:"metrics"`
	Run          RunConfig          `mapstructure:"run" yaml:"run"`

	// Credentials are resolved per slot from USER<n>/PASS<n>, falling back to
	// credentials.user<n>.{username,password} in the config file.
	Credentials []Credential `mapstructure:"-" yaml:"-"`
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

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the browser instances and the device personas.
type BrowserConfig struct {
	Driver           string        `mapstructure:"driver" yaml:"driver"`
	Headless         bool          `mapstructure:"headless" yaml:"headless"`
	Args             []string      `mapstructure:"args" yaml:"args"`
	Locale           string        `mapstructure:"locale" yaml:"locale"`
	Timezone         string        `mapstructure:"timezone" yaml:"timezone"`
	Latitude         float64       `mapstructure:"latitude" yaml:"latitude"`
	Longitude        float64       `mapstructure:"longitude" yaml:"longitude"`
	DesktopUserAgent string        `mapstructure:"desktop_user_agent" yaml:"desktop_user_agent"`
	MobileUserAgent  string        `mapstructure:"mobile_user_agent" yaml:"mobile_user_agent"`
	MobileDevice     string        `mapstructure:"mobile_device" yaml:"mobile_device"`
	LaunchTimeout    time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	ActionTimeout    time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	// ProbeTimeout bounds best-effort visibility checks (cookie banner, mobile sign-in affordances).
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
	// PromptTimeout bounds the first post-login prompt probe.
	PromptTimeout time.Duration `mapstructure:"prompt_timeout" yaml:"prompt_timeout"`
	// SettledProbeTimeout is used for the remaining prompts once one probe has missed.
	SettledProbeTimeout time.Duration `mapstructure:"settled_probe_timeout" yaml:"settled_probe_timeout"`
}

// SiteConfig describes the target site and the selectors of its login/search flow.
type SiteConfig struct {
	URL       string          `mapstructure:"url" yaml:"url"`
	Selectors SelectorsConfig `mapstructure:"selectors" yaml:"selectors"`
	Prompts   []PromptConfig  `mapstructure:"prompts" yaml:"prompts"`
}

// SelectorsConfig uses Playwright-style selector strings; a "text=" prefix selects by visible text.
type SelectorsConfig struct {
	CookieAccept string `mapstructure:"cookie_accept" yaml:"cookie_accept"`
	SignIn       string `mapstructure:"sign_in" yaml:"sign_in"`
	Username     string `mapstructure:"username" yaml:"username"`
	Password     string `mapstructure:"password" yaml:"password"`
	Next         string `mapstructure:"next" yaml:"next"`
	SearchInput  string `mapstructure:"search_input" yaml:"search_input"`
	MobileMenu   string `mapstructure:"mobile_menu" yaml:"mobile_menu"`
	MobileSignIn string `mapstructure:"mobile_sign_in" yaml:"mobile_sign_in"`
}

// PromptConfig is one optional post-login interstitial and the control that dismisses it.
type PromptConfig struct {
	Name     string `mapstructure:"name" yaml:"name"`
	Selector string `mapstructure:"selector" yaml:"selector"`
}

// IdentitiesConfig controls how many USER<n>/PASS<n> slots are read.
type IdentitiesConfig struct {
	Count            int    `mapstructure:"count" yaml:"count"`
	StateFilePattern string `mapstructure:"state_file_pattern" yaml:"state_file_pattern"`
}

// Credential is one resolved identity slot.
type Credential struct {
	Slot      int
	Username  string
	Password  string
	StatePath string
}

// WordsConfig configures the word source.
type WordsConfig struct {
	Keyword  string        `mapstructure:"keyword" yaml:"keyword"`
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// File, when set, replaces the remote source with a newline-delimited word list.
	File  string `mapstructure:"file" yaml:"file"`
	Arity int    `mapstructure:"arity" yaml:"arity"`
}

// PacingConfig is shared by both stages.
type PacingConfig struct {
	WaitMs        int `mapstructure:"wait_ms" yaml:"wait_ms"`
	CooldownEvery int `mapstructure:"cooldown_every" yaml:"cooldown_every"`
	CooldownMs    int `mapstructure:"cooldown_ms" yaml:"cooldown_ms"`
	// MaxPerMinute adds a token bucket on top of the fixed delays. Zero disables it.
	MaxPerMinute float64 `mapstructure:"max_per_minute" yaml:"max_per_minute"`
}

// StageConfig holds the per-stage burst size.
type StageConfig struct {
	Searches int `mapstructure:"searches" yaml:"searches"`
}

// SessionStoreConfig selects where authenticated session state is persisted between stages.
type SessionStoreConfig struct {
	Backend     string `mapstructure:"backend" yaml:"backend"`
	Dir         string `mapstructure:"dir" yaml:"dir"`
	DatabaseURL string `mapstructure:"database_url" yaml:"database_url"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// RunConfig holds workflow-wide settings.
type RunConfig struct {
	// Timeout bounds the whole two-stage run. Zero means no limit.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// Seed fixes query sampling. Zero picks a time-based seed.
	Seed uint64 `mapstructure:"seed" yaml:"seed"`
}

// requiredKeys lists the settings that have no default and must come from the
// environment or a config file.
var requiredKeys = map[string]string{
	"desktop.searches":      "DESKTOP_SEARCHES",
	"mobile.searches":       "MOBILE_SEARCHES",
	"pacing.wait_ms":        "WAIT_MS",
	"pacing.cooldown_every": "COOLDOWN_EVERY",
	"pacing.cooldown_ms":    "COOLDOWN_MS",
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
	v.SetDefault("logger.service_name", "burstline")
	v.SetDefault("logger.log_file", "burstline.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.driver", DriverPlaywright)
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.args", []string{
		"--no-sandbox",
		"--disable-blink-features=AutomationControlled",
		"--disable-features=VizDisplayCompositor",
		"--disable-dev-shm-usage",
		"--disable-web-security",
		"--disable-features=IsolateOrigins,site-per-process",
		"--disable-site-isolation-trials",
		"--disable-ipc-flooding-protection",
	})
	v.SetDefault("browser.locale", "pt-BR")
	v.SetDefault("browser.timezone", "America/Sao_Paulo")
	v.SetDefault("browser.latitude", -23.5505)
	v.SetDefault("browser.longitude", -46.6333)
	v.SetDefault("browser.desktop_user_agent", "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:144.0) Gecko/20100101 Firefox/144.0")
	v.SetDefault("browser.mobile_user_agent", "Mozilla/5.0 (Android 14; Mobile; rv:144.0) Gecko/144.0 Firefox/144.0")
	v.SetDefault("browser.mobile_device", "iPhone 13")
	v.SetDefault("browser.launch_timeout", "60s")
	v.SetDefault("browser.action_timeout", "30s")
	v.SetDefault("browser.probe_timeout", "2s")
	v.SetDefault("browser.prompt_timeout", "10s")
	v.SetDefault("browser.settled_probe_timeout", "500ms")

	// -- Site --
	v.SetDefault("site.url", "https://bing.com/")
	v.SetDefault("site.selectors.cookie_accept", "#bnp_btn_accept")
	v.SetDefault("site.selectors.sign_in", "#id_s")
	v.SetDefault("site.selectors.username", "#usernameEntry")
	v.SetDefault("site.selectors.password", "#passwordEntry")
	v.SetDefault("site.selectors.next", "text=Avançar")
	v.SetDefault("site.selectors.search_input", "#sb_form_q")
	v.SetDefault("site.selectors.mobile_menu", "#mHamburger")
	v.SetDefault("site.selectors.mobile_sign_in", "#hb_s")
	v.SetDefault("site.prompts", []map[string]interface{}{
		{"name": "stay_signed_in", "selector": "text=Sim"},
		{"name": "skip_for_now", "selector": "text=Pular por enquanto"},
	})

	// -- Identities --
	v.SetDefault("identities.count", 2)
	v.SetDefault("identities.state_file_pattern", "storage-user%d.json")

	// -- Words --
	v.SetDefault("words.endpoint", "https://api.datamuse.com/")
	v.SetDefault("words.timeout", "10s")
	v.SetDefault("words.arity", 3)
	v.SetDefault("words.keyword", "")
	v.SetDefault("words.file", "")

	// -- Pacing --
	v.SetDefault("pacing.max_per_minute", 0)

	// -- Session Store --
	v.SetDefault("session_store.backend", StoreBackendFile)
	v.SetDefault("session_store.dir", ".")

	// -- Metrics --
	v.SetDefault("metrics.addr", "")

	// -- Run --
	v.SetDefault("run.timeout", "0s")
	v.SetDefault("run.seed", 0)
}

// BindEnv maps the flat environment keys of the workflow onto their viper keys.
// Credentials are bound per slot, USER1/PASS1 through USER<count>/PASS<count>.
func BindEnv(v *viper.Viper) {
	_ = v.BindEnv("words.keyword", "KEYWORD_SEARCH")
	for key, env := range requiredKeys {
		_ = v.BindEnv(key, env)
	}
	_ = v.BindEnv("session_store.database_url", "BURSTLINE_DATABASE_URL")

	count := v.GetInt("identities.count")
	for n := 1; n <= count; n++ {
		_ = v.BindEnv(credentialKey(n, "username"), fmt.Sprintf("USER%d", n))
		_ = v.BindEnv(credentialKey(n, "password"), fmt.Sprintf("PASS%d", n))
	}
}

func credentialKey(slot int, field string) string {
	return fmt.Sprintf("credentials.user%d.%s", slot, field)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	BindEnv(v)

	var missing []string
	for key, env := range requiredKeys {
		if !v.IsSet(key) {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, fmt.Errorf("%w: required settings not provided: %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Credentials = resolveCredentials(v, &cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func resolveCredentials(v *viper.Viper, cfg *Config) []Credential {
	creds := make([]Credential, 0, cfg.Identities.Count)
	for n := 1; n <= cfg.Identities.Count; n++ {
		creds = append(creds, Credential{
			Slot:      n,
			Username:  strings.TrimSpace(v.GetString(credentialKey(n, "username"))),
			Password:  v.GetString(credentialKey(n, "password")),
			StatePath: filepath.Join(cfg.SessionStore.Dir, fmt.Sprintf(cfg.Identities.StateFilePattern, n)),
		})
	}
	return creds
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Identities.Count <= 0 {
		return fmt.Errorf("%w: identities.count must be a positive integer", ErrInvalidConfig)
	}
	if err := c.validateCredentials(); err != nil {
		return err
	}
	if c.Words.Keyword == "" && c.Words.File == "" {
		return fmt.Errorf("%w: KEYWORD_SEARCH (words.keyword) or words.file is required", ErrInvalidConfig)
	}
	if c.Words.Arity <= 0 {
		return fmt.Errorf("%w: words.arity must be a positive integer", ErrInvalidConfig)
	}
	if err := c.Pacing.Validate(c.Desktop.Searches, c.Mobile.Searches); err != nil {
		return err
	}
	if err := c.Browser.validateProbeTimeouts(); err != nil {
		return err
	}
	switch c.Browser.Driver {
	case DriverPlaywright, DriverChromedp:
	default:
		return fmt.Errorf("%w: unsupported browser.driver %q", ErrInvalidConfig, c.Browser.Driver)
	}
	if c.Site.URL == "" {
		return fmt.Errorf("%w: site.url is required", ErrInvalidConfig)
	}
	switch c.SessionStore.Backend {
	case StoreBackendFile:
	case StoreBackendPostgres:
		if c.SessionStore.DatabaseURL == "" {
			return fmt.Errorf("%w: session_store.database_url is required for the postgres backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unsupported session_store.backend %q", ErrInvalidConfig, c.SessionStore.Backend)
	}
	if c.Run.Timeout < 0 {
		return fmt.Errorf("%w: run.timeout must not be negative", ErrInvalidConfig)
	}
	return nil
}

// validateProbeTimeouts rejects non-positive probe timeouts. Both drivers
// treat a zero timeout as no deadline at all.
func (b BrowserConfig) validateProbeTimeouts() error {
	for _, t := range []struct {
		key string
		d   time.Duration
	}{
		{"browser.probe_timeout", b.ProbeTimeout},
		{"browser.prompt_timeout", b.PromptTimeout},
		{"browser.settled_probe_timeout", b.SettledProbeTimeout},
	} {
		if t.d <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidConfig, t.key, t.d)
		}
	}
	return nil
}

func (c *Config) validateCredentials() error {
	if len(c.Credentials) != c.Identities.Count {
		return fmt.Errorf("%w: expected %d identities, resolved %d", ErrMissingCredentials, c.Identities.Count, len(c.Credentials))
	}
	seen := make(map[string]int, len(c.Credentials))
	for _, cred := range c.Credentials {
		if cred.Username == "" || cred.Password == "" {
			return fmt.Errorf("%w: USER%d/PASS%d must both be set", ErrMissingCredentials, cred.Slot, cred.Slot)
		}
		if prev, dup := seen[cred.StatePath]; dup {
			return fmt.Errorf("%w: identities %d and %d share session state path %q", ErrInvalidConfig, prev, cred.Slot, cred.StatePath)
		}
		seen[cred.StatePath] = cred.Slot
	}
	return nil
}

// Validate checks the throttle parameters against the burst sizes they will pace.
func (p PacingConfig) Validate(desktopSearches, mobileSearches int) error {
	if desktopSearches < 0 || mobileSearches < 0 {
		return fmt.Errorf("%w: DESKTOP_SEARCHES and MOBILE_SEARCHES must not be negative", ErrInvalidConfig)
	}
	if p.WaitMs < 0 || p.CooldownMs < 0 {
		return fmt.Errorf("%w: WAIT_MS and COOLDOWN_MS must not be negative", ErrInvalidConfig)
	}
	if (desktopSearches > 0 || mobileSearches > 0) && p.CooldownEvery <= 0 {
		return fmt.Errorf("%w: COOLDOWN_EVERY must be a positive integer", ErrInvalidConfig)
	}
	if p.MaxPerMinute < 0 {
		return fmt.Errorf("%w: pacing.max_per_minute must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Durations converts the millisecond settings into time.Durations.
func (p PacingConfig) Durations() (wait, cooldown time.Duration) {
	return time.Duration(p.WaitMs) * time.Millisecond, time.Duration(p.CooldownMs) * time.Millisecond
}

