package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/marcus/notecards/internal/dataview"
	"github.com/marcus/notecards/internal/plugins/cards"
	"github.com/marcus/notecards/internal/plugins/preview"
)

// RenderCmd renders one note to stdout without starting the TUI.
func RenderCmd() *cobra.Command {
	var (
		width      int
		blocksOnly bool
		plain      bool
	)

	cmd := &cobra.Command{
		Use:   "render NOTE",
		Short: "Render a note, including its card blocks, to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(true)
			if err != nil {
				return err
			}
			defer e.close()

			dv := dataview.New()
			e.register(dv, cards.New())
			if ix := dv.Index(); ix != nil {
				if err := ix.Scan(cmd.Context()); err != nil {
					e.logger.Warn("index scan failed", "err", err)
				}
			}

			notes, err := preview.ListNotes(e.ctx.VaultDir, e.cfg.Vault.Ignore)
			if err != nil {
				return fmt.Errorf("list notes: %w", err)
			}
			note, ok := preview.ResolveNote(notes, args[0])
			if !ok {
				return fmt.Errorf("note not found: %s", args[0])
			}

			read := func(rel string) ([]byte, error) {
				return os.ReadFile(filepath.Join(e.ctx.VaultDir, filepath.FromSlash(rel)))
			}
			doc, err := preview.NewRenderer(e.ctx, e.cfg.UI.MarkdownTheme).RenderFile(cmd.Context(), note, read, width)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !blocksOnly {
				fmt.Fprintln(out, doc.Output)
				return nil
			}
			for _, b := range doc.Blocks {
				text := b.Element.Render()
				if plain {
					text = b.Element.PlainText()
				}
				fmt.Fprintf(out, "%s block %d (line %d)\n%s\n\n", b.Lang, b.Index, b.Line, text)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&width, "width", 100, "output width in columns")
	cmd.Flags().BoolVar(&blocksOnly, "blocks", false, "print only processed code blocks")
	cmd.Flags().BoolVar(&plain, "plain", false, "strip styling from --blocks output")
	return cmd
}
