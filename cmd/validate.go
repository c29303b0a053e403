package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/catalog"
	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/timeline"
)

var errInvalidCatalog = errors.New("catalog has invalid templates")

var catalogValidateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Check that every template in a catalog directory builds a timeline",
	Long: `Validate parses a catalog directory and builds a timeline from every
template, reporting unknown phases, dangling predecessors and cycles. It does
not touch the database.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		dir := cfg.CatalogDir
		if len(args) == 1 {
			dir = args[0]
		}

		src := catalog.FileSource{Dir: dir}
		templates, err := src.Templates(cmd.Context())
		if err != nil {
			return err
		}
		cache := catalog.New(src, src, catalog.WithLogger(logger))
		builder := timeline.NewBuilder(cache, timeline.WithLogger(logger))

		p := printerFor(cmd)
		ok := true
		start := time.Now().UTC()
		for _, t := range templates {
			list, err := builder.BuildForCreation(cmd.Context(), nil, start, t.ID)
			if err != nil {
				p.Error(fmt.Sprintf("%s: %v", t.ID, err))
				ok = false
				continue
			}
			p.Success(fmt.Sprintf("%s: %d phases", t.ID, len(list)))
		}
		if !ok {
			return errInvalidCatalog
		}
		return nil
	},
}
