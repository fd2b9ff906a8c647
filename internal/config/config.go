package config

import "time"

// Config is the root configuration structure.
type Config struct {
	Vault   VaultConfig   `json:"vault"`
	Plugins PluginsConfig `json:"plugins"`
	UI      UIConfig      `json:"ui"`
	Keymap  KeymapConfig  `json:"keymap"`
}

// VaultConfig locates the notes folder.
type VaultConfig struct {
	Path   string   `json:"path"`   // "." default (supports ~ expansion)
	Ignore []string `json:"ignore"` // directory names skipped while indexing
}

// PluginsConfig holds per-plugin configuration.
type PluginsConfig struct {
	Cards    CardsPluginConfig    `json:"cards"`
	Dataview DataviewPluginConfig `json:"dataview"`
	FormBind FormBindPluginConfig `json:"formbind"`
}

// CardsPluginConfig configures the card view plugin.
type CardsPluginConfig struct {
	// EnableDynamicUpdates re-renders card blocks when note metadata changes.
	EnableDynamicUpdates bool `json:"enableDynamicUpdates"`
	// RefreshDelay is the quiet period after the last change before refreshing.
	RefreshDelay time.Duration `json:"refreshDelay"`
	// DebugMode enables debug logging and source display on block errors.
	DebugMode bool `json:"debugMode"`

	// Card defaults, overridable per block.
	DefaultColumns       int    `json:"defaultColumns"`
	DefaultImageProperty string `json:"defaultImageProperty,omitempty"`
	DefaultShowTags      bool   `json:"defaultShowTags"`
	CardHeight           int    `json:"cardHeight"`
}

// DataviewPluginConfig configures the query engine plugin.
type DataviewPluginConfig struct {
	Enabled      bool          `json:"enabled"`
	ReadyTimeout time.Duration `json:"readyTimeout"`
	CachePath    string        `json:"cachePath,omitempty"` // "" = in-memory cache
}

// FormBindPluginConfig configures the form-binding plugin.
type FormBindPluginConfig struct {
	Enabled bool `json:"enabled"`
	// APILevel selects which notification mechanisms the plugin exposes:
	// "legacy", "v1" or "v2".
	APILevel string `json:"apiLevel"`
}

// UIConfig configures UI appearance.
type UIConfig struct {
	ShowFooter    bool   `json:"showFooter"`
	MarkdownTheme string `json:"markdownTheme"`
}

// KeymapConfig holds user key overrides: context -> key -> command ID.
type KeymapConfig struct {
	Overrides map[string]map[string]string `json:"overrides,omitempty"`
}

// Form-binding API levels.
const (
	APILevelLegacy = "legacy"
	APILevelV1     = "v1"
	APILevelV2     = "v2"
)

const (
	defaultRefreshDelay = 300 * time.Millisecond
	defaultReadyTimeout = 5 * time.Second
	defaultColumns      = 3
	maxColumns          = 6
	defaultCardHeight   = 8
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Vault: VaultConfig{
			Path:   ".",
			Ignore: []string{".git", ".obsidian", ".trash", "node_modules"},
		},
		Plugins: PluginsConfig{
			Cards: CardsPluginConfig{
				EnableDynamicUpdates: true,
				RefreshDelay:         defaultRefreshDelay,
				DefaultColumns:       defaultColumns,
				DefaultShowTags:      true,
				CardHeight:           defaultCardHeight,
			},
			Dataview: DataviewPluginConfig{
				Enabled:      true,
				ReadyTimeout: defaultReadyTimeout,
			},
			FormBind: FormBindPluginConfig{
				Enabled:  true,
				APILevel: APILevelV2,
			},
		},
		UI: UIConfig{
			ShowFooter:    true,
			MarkdownTheme: "dark",
		},
	}
}

// Validate checks the configuration and clamps out-of-range values.
func (c *Config) Validate() error {
	if c.Plugins.Cards.RefreshDelay <= 0 {
		c.Plugins.Cards.RefreshDelay = defaultRefreshDelay
	}
	if c.Plugins.Cards.DefaultColumns <= 0 {
		c.Plugins.Cards.DefaultColumns = defaultColumns
	}
	if c.Plugins.Cards.DefaultColumns > maxColumns {
		c.Plugins.Cards.DefaultColumns = maxColumns
	}
	if c.Plugins.Cards.CardHeight <= 0 {
		c.Plugins.Cards.CardHeight = defaultCardHeight
	}
	if c.Plugins.Dataview.ReadyTimeout <= 0 {
		c.Plugins.Dataview.ReadyTimeout = defaultReadyTimeout
	}
	switch c.Plugins.FormBind.APILevel {
	case APILevelLegacy, APILevelV1, APILevelV2:
	default:
		c.Plugins.FormBind.APILevel = APILevelV2
	}
	if c.Vault.Path == "" {
		c.Vault.Path = "."
	}
	return nil
}
