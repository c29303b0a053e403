package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/catalog"
	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/phase"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage phase definitions and timeline templates",
	Long: `A catalog directory holds phases.toml (the phase definitions) and a
templates/ directory with one timeline template per .toml or .yaml file.
Import copies a catalog directory into the database; challenges only ever
read the imported copy.`,
}

var catalogImportCmd = &cobra.Command{
	Use:   "import [dir]",
	Short: "Import a catalog directory into the database",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			dir := a.cfg.CatalogDir
			if len(args) == 1 {
				dir = args[0]
			}
			defs, templates, err := a.store.ImportCatalog(ctx, catalog.FileSource{Dir: dir})
			if err != nil {
				return err
			}
			a.catalog.Invalidate()
			a.printer.Success(fmt.Sprintf("imported %d phase definitions and %d templates from %s", defs, templates, dir))
			return nil
		})
	},
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List imported phase definitions and timeline templates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			defs, err := a.store.ListDefinitions(ctx)
			if err != nil {
				return err
			}
			templates, err := a.store.Templates(ctx)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return printJSON(cmd, struct {
					Definitions []phase.Definition `json:"phases"`
					Templates   []phase.Template   `json:"timelineTemplates"`
				}{defs, templates})
			}
			a.printer.Definitions(defs)
			fmt.Fprintln(a.printer.Out)
			a.printer.Templates(templates)
			return nil
		})
	},
}

func init() {
	catalogCmd.AddCommand(catalogImportCmd)
	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogValidateCmd)
	catalogCmd.AddCommand(catalogWatchCmd)
	rootCmd.AddCommand(catalogCmd)
}
