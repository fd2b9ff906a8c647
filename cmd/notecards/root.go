package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/marcus/notecards/internal/app"
	"github.com/marcus/notecards/internal/dataview"
	"github.com/marcus/notecards/internal/keymap"
	"github.com/marcus/notecards/internal/plugins/cards"
	"github.com/marcus/notecards/internal/plugins/formbind"
	"github.com/marcus/notecards/internal/plugins/preview"
	"github.com/marcus/notecards/internal/state"
	"github.com/marcus/notecards/internal/version"
)

// RootCmd configures the root command with all subcommands and flags.
func RootCmd() *cobra.Command {
	var openNote string

	rootCmd := &cobra.Command{
		Use:   "notecards",
		Short: "Browse a markdown vault with live card views",
		Long: `notecards previews the notes of a markdown vault in the terminal.

Fenced cards blocks are queries over the vault's metadata and render as a grid
of cards. They refresh when note properties change.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(openNote)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.config/notecards/config.json)")
	rootCmd.PersistentFlags().StringVar(&vaultDir, "vault", "", "vault directory (default from config, then .)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")

	// Root-only flags
	rootCmd.Flags().StringVar(&openNote, "open", "", "note to open first")

	rootCmd.AddCommand(RenderCmd())
	rootCmd.AddCommand(QueryCmd())
	rootCmd.AddCommand(VersionCmd())
	return rootCmd
}

func runTUI(openNote string) error {
	e, err := newEnv(false)
	if err != nil {
		return err
	}
	defer e.close()

	// Persistent state is optional
	if err := state.Init(); err != nil {
		e.logger.Warn("state unavailable", "err", err)
	}

	host := app.NewHost(e.logger)
	e.ctx.Workspace = host
	e.ctx.Send = host.Send

	pv := preview.New(openNote)
	e.register(pv, cards.New(), dataview.New(), formbind.New())
	host.SetMarkdownView(pv)

	model := app.New(e.registry, keymap.NewDefault(), e.cfg, version.Effective(Version), "")
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	host.SetSend(p.Send)

	_, err = p.Run()
	return err
}
