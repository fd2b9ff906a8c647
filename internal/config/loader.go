package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	configDir  = ".config/notecards"
	configFile = "config.json"
)

// rawConfig is the JSON-unmarshaling intermediary.
type rawConfig struct {
	Vault   rawVaultConfig   `json:"vault"`
	Plugins rawPluginsConfig `json:"plugins"`
	UI      rawUIConfig      `json:"ui"`
	Keymap  KeymapConfig     `json:"keymap"`
}

type rawVaultConfig struct {
	Path   string   `json:"path"`
	Ignore []string `json:"ignore"`
}

type rawPluginsConfig struct {
	Cards    rawCardsConfig    `json:"cards"`
	Dataview rawDataviewConfig `json:"dataview"`
	FormBind rawFormBindConfig `json:"formbind"`
}

type rawCardsConfig struct {
	EnableDynamicUpdates *bool  `json:"enableDynamicUpdates"`
	RefreshDelay         string `json:"refreshDelay"`
	RefreshDelayMs       *int   `json:"refreshDelayMs"`
	DebugMode            *bool  `json:"debugMode"`
	DefaultColumns       *int   `json:"defaultColumns"`
	DefaultImageProperty string `json:"defaultImageProperty"`
	DefaultShowTags      *bool  `json:"defaultShowTags"`
	CardHeight           *int   `json:"cardHeight"`
}

type rawDataviewConfig struct {
	Enabled      *bool  `json:"enabled"`
	ReadyTimeout string `json:"readyTimeout"`
	CachePath    string `json:"cachePath"`
}

type rawFormBindConfig struct {
	Enabled  *bool  `json:"enabled"`
	APILevel string `json:"apiLevel"`
}

type rawUIConfig struct {
	ShowFooter    *bool  `json:"showFooter"`
	MarkdownTheme string `json:"markdownTheme"`
}

// Load loads configuration from the default location.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom loads configuration from a specific path.
// If path is empty, uses ~/.config/notecards/config.json
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = ConfigPath()
		if path == "" {
			return cfg, nil // Return defaults when home is unknown
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	mergeConfig(cfg, &raw)

	cfg.Vault.Path = ExpandPath(cfg.Vault.Path)
	cfg.Plugins.Dataview.CachePath = ExpandPath(cfg.Plugins.Dataview.CachePath)
	if _, err := os.Stat(cfg.Vault.Path); os.IsNotExist(err) {
		slog.Warn("vault path not found", "path", cfg.Vault.Path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// mergeConfig merges raw config values into the config.
func mergeConfig(cfg *Config, raw *rawConfig) {
	// Vault
	if raw.Vault.Path != "" {
		cfg.Vault.Path = raw.Vault.Path
	}
	if raw.Vault.Ignore != nil {
		cfg.Vault.Ignore = raw.Vault.Ignore
	}

	// Cards
	cards := &cfg.Plugins.Cards
	if raw.Plugins.Cards.EnableDynamicUpdates != nil {
		cards.EnableDynamicUpdates = *raw.Plugins.Cards.EnableDynamicUpdates
	}
	if raw.Plugins.Cards.RefreshDelay != "" {
		if d, err := time.ParseDuration(raw.Plugins.Cards.RefreshDelay); err == nil {
			cards.RefreshDelay = d
		}
	} else if raw.Plugins.Cards.RefreshDelayMs != nil {
		cards.RefreshDelay = time.Duration(*raw.Plugins.Cards.RefreshDelayMs) * time.Millisecond
	}
	if raw.Plugins.Cards.DebugMode != nil {
		cards.DebugMode = *raw.Plugins.Cards.DebugMode
	}
	if raw.Plugins.Cards.DefaultColumns != nil {
		cards.DefaultColumns = *raw.Plugins.Cards.DefaultColumns
	}
	if raw.Plugins.Cards.DefaultImageProperty != "" {
		cards.DefaultImageProperty = raw.Plugins.Cards.DefaultImageProperty
	}
	if raw.Plugins.Cards.DefaultShowTags != nil {
		cards.DefaultShowTags = *raw.Plugins.Cards.DefaultShowTags
	}
	if raw.Plugins.Cards.CardHeight != nil {
		cards.CardHeight = *raw.Plugins.Cards.CardHeight
	}

	// Dataview
	if raw.Plugins.Dataview.Enabled != nil {
		cfg.Plugins.Dataview.Enabled = *raw.Plugins.Dataview.Enabled
	}
	if raw.Plugins.Dataview.ReadyTimeout != "" {
		if d, err := time.ParseDuration(raw.Plugins.Dataview.ReadyTimeout); err == nil {
			cfg.Plugins.Dataview.ReadyTimeout = d
		}
	}
	if raw.Plugins.Dataview.CachePath != "" {
		cfg.Plugins.Dataview.CachePath = raw.Plugins.Dataview.CachePath
	}

	// Form binding
	if raw.Plugins.FormBind.Enabled != nil {
		cfg.Plugins.FormBind.Enabled = *raw.Plugins.FormBind.Enabled
	}
	if raw.Plugins.FormBind.APILevel != "" {
		cfg.Plugins.FormBind.APILevel = strings.ToLower(raw.Plugins.FormBind.APILevel)
	}

	// UI
	if raw.UI.ShowFooter != nil {
		cfg.UI.ShowFooter = *raw.UI.ShowFooter
	}
	if raw.UI.MarkdownTheme != "" {
		cfg.UI.MarkdownTheme = raw.UI.MarkdownTheme
	}

	// Keymap
	if len(raw.Keymap.Overrides) > 0 {
		cfg.Keymap.Overrides = raw.Keymap.Overrides
	}
}

// ExpandPath expands ~ to home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, configFile)
}

// ConfigDir returns the directory holding config, state and logs.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, configDir)
}
