package config

import (
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// saveConfig is the JSON-marshaling intermediary that uses string durations.
type saveConfig struct {
	Vault   VaultConfig       `json:"vault"`
	Plugins savePluginsConfig `json:"plugins"`
	UI      saveUIConfig      `json:"ui"`
	Keymap  KeymapConfig      `json:"keymap"`
}

type savePluginsConfig struct {
	Cards    saveCardsConfig    `json:"cards"`
	Dataview saveDataviewConfig `json:"dataview"`
	FormBind saveFormBindConfig `json:"formbind"`
}

type saveCardsConfig struct {
	EnableDynamicUpdates *bool  `json:"enableDynamicUpdates,omitempty"`
	RefreshDelay         string `json:"refreshDelay,omitempty"`
	DebugMode            *bool  `json:"debugMode,omitempty"`
	DefaultColumns       int    `json:"defaultColumns,omitempty"`
	DefaultImageProperty string `json:"defaultImageProperty,omitempty"`
	DefaultShowTags      *bool  `json:"defaultShowTags,omitempty"`
	CardHeight           int    `json:"cardHeight,omitempty"`
}

type saveDataviewConfig struct {
	Enabled      *bool  `json:"enabled,omitempty"`
	ReadyTimeout string `json:"readyTimeout,omitempty"`
	CachePath    string `json:"cachePath,omitempty"`
}

type saveFormBindConfig struct {
	Enabled  *bool  `json:"enabled,omitempty"`
	APILevel string `json:"apiLevel,omitempty"`
}

type saveUIConfig struct {
	ShowFooter    *bool  `json:"showFooter,omitempty"`
	MarkdownTheme string `json:"markdownTheme,omitempty"`
}

// toSaveConfig converts Config to the JSON-serializable format.
func toSaveConfig(cfg *Config) saveConfig {
	cards := cfg.Plugins.Cards
	return saveConfig{
		Vault: cfg.Vault,
		Plugins: savePluginsConfig{
			Cards: saveCardsConfig{
				EnableDynamicUpdates: &cards.EnableDynamicUpdates,
				RefreshDelay:         cards.RefreshDelay.String(),
				DebugMode:            &cards.DebugMode,
				DefaultColumns:       cards.DefaultColumns,
				DefaultImageProperty: cards.DefaultImageProperty,
				DefaultShowTags:      &cards.DefaultShowTags,
				CardHeight:           cards.CardHeight,
			},
			Dataview: saveDataviewConfig{
				Enabled:      &cfg.Plugins.Dataview.Enabled,
				ReadyTimeout: cfg.Plugins.Dataview.ReadyTimeout.String(),
				CachePath:    cfg.Plugins.Dataview.CachePath,
			},
			FormBind: saveFormBindConfig{
				Enabled:  &cfg.Plugins.FormBind.Enabled,
				APILevel: cfg.Plugins.FormBind.APILevel,
			},
		},
		UI: saveUIConfig{
			ShowFooter:    &cfg.UI.ShowFooter,
			MarkdownTheme: cfg.UI.MarkdownTheme,
		},
		Keymap: cfg.Keymap,
	}
}

// Save writes the config to ~/.config/notecards/config.json
func Save(cfg *Config) error {
	return SaveTo(cfg, ConfigPath())
}

// SaveTo writes the config to path, creating parent directories. Keys in an
// existing file that Config does not manage are preserved.
func SaveTo(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	merged := make(map[string]json.RawMessage)
	if existing, err := os.ReadFile(path); err == nil {
		// An unreadable file is overwritten rather than blocking the save.
		_ = json.Unmarshal(existing, &merged)
	}

	managed, err := json.Marshal(toSaveConfig(cfg))
	if err != nil {
		return err
	}
	var managedKeys map[string]json.RawMessage
	if err := json.Unmarshal(managed, &managedKeys); err != nil {
		return err
	}
	for k, v := range managedKeys {
		merged[k] = v
	}

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
