// File: internal/config/config_test.go
package config

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Test Helpers --

// setWorkflowEnv sets the full set of flat environment keys for a two-identity run.
func setWorkflowEnv(t *testing.T) {
	t.Helper()
	t.Setenv("USER1", "alice@example.com")
	t.Setenv("PASS1", "alice-secret")
	t.Setenv("USER2", "bob@example.com")
	t.Setenv("PASS2", "bob-secret")
	t.Setenv("KEYWORD_SEARCH", "ocean")
	t.Setenv("DESKTOP_SEARCHES", "30")
	t.Setenv("MOBILE_SEARCHES", "20")
	t.Setenv("WAIT_MS", "1500")
	t.Setenv("COOLDOWN_EVERY", "5")
	t.Setenv("COOLDOWN_MS", "60000")
}

func newTestViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Words.Keyword = "ocean"
	cfg.Desktop.Searches = 10
	cfg.Mobile.Searches = 5
	cfg.Pacing = PacingConfig{WaitMs: 100, CooldownEvery: 5, CooldownMs: 1000}
	cfg.Credentials = []Credential{
		{Slot: 1, Username: "a", Password: "pa", StatePath: "storage-user1.json"},
		{Slot: 2, Username: "b", Password: "pb", StatePath: "storage-user2.json"},
	}
	return cfg
}

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "burstline", cfg.Logger.ServiceName)
	assert.Equal(t, DriverPlaywright, cfg.Browser.Driver)
	assert.Equal(t, "pt-BR", cfg.Browser.Locale)
	assert.Equal(t, 10*time.Second, cfg.Browser.PromptTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Browser.SettledProbeTimeout)
	assert.Equal(t, "#sb_form_q", cfg.Site.Selectors.SearchInput)
	assert.Equal(t, 2, cfg.Identities.Count)
	assert.Equal(t, 3, cfg.Words.Arity)
	assert.Equal(t, StoreBackendFile, cfg.SessionStore.Backend)

	require.Len(t, cfg.Site.Prompts, 2)
	assert.Equal(t, "text=Sim", cfg.Site.Prompts[0].Selector)
	assert.Equal(t, "text=Pular por enquanto", cfg.Site.Prompts[1].Selector)
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("loads the flat workflow environment", func(t *testing.T) {
		setWorkflowEnv(t)

		cfg, err := NewConfigFromViper(newTestViper())
		require.NoError(t, err)

		assert.Equal(t, "ocean", cfg.Words.Keyword)
		assert.Equal(t, 30, cfg.Desktop.Searches)
		assert.Equal(t, 20, cfg.Mobile.Searches)
		assert.Equal(t, 1500, cfg.Pacing.WaitMs)
		assert.Equal(t, 5, cfg.Pacing.CooldownEvery)
		assert.Equal(t, 60000, cfg.Pacing.CooldownMs)

		require.Len(t, cfg.Credentials, 2)
		assert.Equal(t, "alice@example.com", cfg.Credentials[0].Username)
		assert.Equal(t, "bob-secret", cfg.Credentials[1].Password)
		assert.Equal(t, filepath.Join(".", "storage-user1.json"), cfg.Credentials[0].StatePath)
		assert.Equal(t, filepath.Join(".", "storage-user2.json"), cfg.Credentials[1].StatePath)
	})

	t.Run("fails fast when a password is missing", func(t *testing.T) {
		setWorkflowEnv(t)
		t.Setenv("PASS2", "")

		_, err := NewConfigFromViper(newTestViper())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingCredentials)
		assert.Contains(t, err.Error(), "USER2/PASS2")
	})

	t.Run("reports every missing required setting", func(t *testing.T) {
		t.Setenv("USER1", "a")
		t.Setenv("PASS1", "b")
		t.Setenv("KEYWORD_SEARCH", "ocean")

		_, err := NewConfigFromViper(newTestViper())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.Contains(t, err.Error(), "COOLDOWN_EVERY, COOLDOWN_MS, DESKTOP_SEARCHES, MOBILE_SEARCHES, WAIT_MS")
	})

	t.Run("honours a YAML file for non-secret settings", func(t *testing.T) {
		setWorkflowEnv(t)
		v := newTestViper()
		v.SetConfigType("yaml")
		yaml := []byte(`
browser:
  driver: chromedp
  headless: true
session_store:
  dir: /var/lib/burstline
identities:
  count: 1
`)
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yaml)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, DriverChromedp, cfg.Browser.Driver)
		assert.True(t, cfg.Browser.Headless)
		require.Len(t, cfg.Credentials, 1)
		assert.Equal(t, filepath.Join("/var/lib/burstline", "storage-user1.json"), cfg.Credentials[0].StatePath)
	})

	t.Run("falls back to config file credentials when the environment has none", func(t *testing.T) {
		setWorkflowEnv(t)
		t.Setenv("USER2", "")
		t.Setenv("PASS2", "")
		v := newTestViper()
		v.SetConfigType("yaml")
		yaml := []byte(`
credentials:
  user2:
    username: carol@example.com
    password: carol-secret
`)
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yaml)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		require.Len(t, cfg.Credentials, 2)
		assert.Equal(t, "alice@example.com", cfg.Credentials[0].Username)
		assert.Equal(t, "carol@example.com", cfg.Credentials[1].Username)
		assert.Equal(t, "carol-secret", cfg.Credentials[1].Password)
	})
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("empty username", func(t *testing.T) {
		cfg := validConfig()
		cfg.Credentials[0].Username = ""
		err := cfg.Validate()
		assert.ErrorIs(t, err, ErrMissingCredentials)
	})

	t.Run("duplicate state path", func(t *testing.T) {
		cfg := validConfig()
		cfg.Credentials[1].StatePath = cfg.Credentials[0].StatePath
		err := cfg.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.Contains(t, err.Error(), "share session state path")
	})

	t.Run("zero cooldown cadence with searches configured", func(t *testing.T) {
		cfg := validConfig()
		cfg.Pacing.CooldownEvery = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "COOLDOWN_EVERY must be a positive integer")
	})

	t.Run("zero cooldown cadence is accepted when nothing is searched", func(t *testing.T) {
		cfg := validConfig()
		cfg.Pacing.CooldownEvery = 0
		cfg.Desktop.Searches = 0
		cfg.Mobile.Searches = 0
		assert.NoError(t, cfg.Validate())
	})

	t.Run("negative burst size", func(t *testing.T) {
		cfg := validConfig()
		cfg.Mobile.Searches = -1
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	})

	t.Run("unknown driver", func(t *testing.T) {
		cfg := validConfig()
		cfg.Browser.Driver = "selenium"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unsupported browser.driver "selenium"`)
	})

	t.Run("postgres backend needs a database url", func(t *testing.T) {
		cfg := validConfig()
		cfg.SessionStore.Backend = StoreBackendPostgres
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "session_store.database_url")

		cfg.SessionStore.DatabaseURL = "postgres://localhost/burstline"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("probe timeouts must be positive", func(t *testing.T) {
		tests := []struct {
			name string
			set  func(*BrowserConfig)
			key  string
		}{
			{"zero probe", func(b *BrowserConfig) { b.ProbeTimeout = 0 }, "browser.probe_timeout"},
			{"negative prompt", func(b *BrowserConfig) { b.PromptTimeout = -time.Second }, "browser.prompt_timeout"},
			{"zero settled", func(b *BrowserConfig) { b.SettledProbeTimeout = 0 }, "browser.settled_probe_timeout"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				cfg := validConfig()
				tt.set(&cfg.Browser)
				err := cfg.Validate()
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
				assert.Contains(t, err.Error(), tt.key)
			})
		}
	})

	t.Run("zero settled timeout is rejected on load", func(t *testing.T) {
		v := newTestViper()
		v.Set("browser.settled_probe_timeout", "0s")
		setWorkflowEnv(t)
		_, err := NewConfigFromViper(v)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("word file replaces keyword", func(t *testing.T) {
		cfg := validConfig()
		cfg.Words.Keyword = ""
		assert.Error(t, cfg.Validate())
		cfg.Words.File = "words.txt"
		assert.NoError(t, cfg.Validate())
	})
}

func TestPacingDurations(t *testing.T) {
	wait, cooldown := PacingConfig{WaitMs: 250, CooldownMs: 3000}.Durations()
	assert.Equal(t, 250*time.Millisecond, wait)
	assert.Equal(t, 3*time.Second, cooldown)
}
