package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/marcus/notecards/internal/config"
	"github.com/marcus/notecards/internal/event"
	"github.com/marcus/notecards/internal/plugin"
	"github.com/marcus/notecards/internal/styles"
)

const logFileName = "notecards.log"

// env is the wiring shared by the TUI and the headless commands.
type env struct {
	cfg      *config.Config
	logger   *slog.Logger
	level    *slog.LevelVar
	logFile  *os.File
	events   *event.Dispatcher
	ctx      *plugin.Context
	registry *plugin.Registry
}

// newEnv loads configuration and builds the plugin context. Headless
// commands log to stderr; the TUI logs to a file so the screen stays clean.
func newEnv(headless bool) (*env, error) {
	cfg, err := config.LoadFrom(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if vaultDir != "" {
		cfg.Vault.Path = vaultDir
	}
	root, err := filepath.Abs(config.ExpandPath(cfg.Vault.Path))
	if err != nil {
		return nil, fmt.Errorf("resolve vault: %w", err)
	}
	if fi, err := os.Stat(root); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("vault %s is not a directory", root)
	}

	e := &env{cfg: cfg, level: new(slog.LevelVar)}
	var out io.Writer = os.Stderr
	if !headless {
		out = io.Discard
		if f, err := openLogFile(); err == nil {
			e.logFile, out = f, f
		}
	}
	e.logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: e.level}))

	styles.ApplyTheme(cfg.UI.MarkdownTheme)

	cfgPath := cfgFile
	if cfgPath == "" {
		cfgPath = config.ConfigPath()
	}
	workDir, _ := os.Getwd()
	e.events = event.NewWithLogger(e.logger)
	e.ctx = &plugin.Context{
		WorkDir:    workDir,
		VaultDir:   root,
		ConfigDir:  config.ConfigDir(),
		ConfigFile: cfgPath,
		Config:     cfg,
		Logger:     e.logger,
		LogLevel:   e.level,
		Events:     e.events,
		Services:   plugin.NewServices(),
	}
	e.registry = plugin.NewRegistry(e.ctx)
	return e, nil
}

// register adds plugins in tab order, then applies --debug, which wins over
// the level plugins set from config during Init.
func (e *env) register(plugins ...plugin.Plugin) {
	for _, p := range plugins {
		_ = e.registry.Register(p)
	}
	if debugFlag {
		e.level.Set(slog.LevelDebug)
	}
	e.logger.Debug("plugins registered", "vault", e.ctx.VaultDir, "unavailable", len(e.registry.Unavailable()))
}

func (e *env) close() {
	e.registry.Stop()
	e.events.Close()
	if e.logFile != nil {
		_ = e.logFile.Close()
	}
}

func openLogFile() (*os.File, error) {
	dir := config.ConfigDir()
	if dir == "" {
		return nil, fmt.Errorf("no config directory")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}
