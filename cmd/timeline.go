package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Inspect phase timelines",
}

var timelinePreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show the timeline a new challenge would get, without storing it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		templateID, _ := cmd.Flags().GetString("template")
		startFlag, _ := cmd.Flags().GetString("start")
		overridesFile, _ := cmd.Flags().GetString("overrides")

		start := time.Now().UTC()
		if startFlag != "" {
			t, err := parseTime(startFlag)
			if err != nil {
				return err
			}
			start = t
		}
		overrides, err := readOverrides(cmd, overridesFile)
		if err != nil {
			return err
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			phases, err := a.service.Preview(ctx, templateID, start, overrides)
			if err != nil {
				return fmt.Errorf("preview %s: %w", templateID, err)
			}
			if jsonOutput(cmd) {
				return printJSON(cmd, phases)
			}
			a.printer.Timeline(phases)
			return nil
		})
	},
}

func init() {
	timelinePreviewCmd.Flags().String("template", "", "timeline template id")
	timelinePreviewCmd.Flags().String("start", "", "challenge start date (default now)")
	timelinePreviewCmd.Flags().String("overrides", "", "JSON file of phase overrides (- for stdin)")
	_ = timelinePreviewCmd.MarkFlagRequired("template")

	timelineCmd.AddCommand(timelinePreviewCmd)
	rootCmd.AddCommand(timelineCmd)
}
