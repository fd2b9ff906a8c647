package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/notecards/internal/dataview"
	"github.com/marcus/notecards/internal/styles"
)

// QueryCmd runs a metadata query against the vault and prints the result.
func QueryCmd() *cobra.Command {
	var (
		width  int
		origin string
	)

	cmd := &cobra.Command{
		Use:   `query "LIST FROM #tag"`,
		Short: "Run a metadata query against the vault",
		Example: `  notecards query 'LIST FROM #book'
  notecards query 'TABLE author, rating FROM "books" WHERE rating > 3 SORT rating DESC'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(true)
			if err != nil {
				return err
			}
			defer e.close()

			q, err := dataview.ParseQuery(args[0])
			if err != nil {
				return err
			}

			var opts []dataview.Option
			opts = append(opts, dataview.WithLogger(e.logger), dataview.WithIgnore(e.cfg.Vault.Ignore...))
			if path := e.cfg.Plugins.Dataview.CachePath; path != "" {
				store, err := dataview.OpenStore(path)
				if err != nil {
					e.logger.Warn("cache unavailable", "path", path, "err", err)
				} else {
					defer store.Close()
					opts = append(opts, dataview.WithStore(store))
				}
			}

			ix := dataview.NewIndex(e.ctx.VaultDir, opts...)
			if err := ix.Scan(cmd.Context()); err != nil {
				return fmt.Errorf("scan vault: %w", err)
			}
			value, warnings, err := ix.Run(cmd.Context(), q, origin)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, dataview.FormatResult(value, width))
			for _, w := range warnings {
				fmt.Fprintln(cmd.ErrOrStderr(), styles.StatusModified.Render("warning: "+w))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&width, "width", 0, "table width (0 = natural)")
	cmd.Flags().StringVar(&origin, "from-note", "", "note exposed to WHERE as this")
	return cmd
}
