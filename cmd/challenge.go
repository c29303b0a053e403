package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/challenge"
	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/store"
)

var challengeCmd = &cobra.Command{
	Use:     "challenge",
	Aliases: []string{"ch"},
	Short:   "Create and maintain challenges and their phase timelines",
}

var challengeCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a challenge and build its timeline from a template",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		id, _ := flags.GetString("id")
		name, _ := flags.GetString("name")
		templateID, _ := flags.GetString("template")
		startFlag, _ := flags.GetString("start")
		overridesFile, _ := flags.GetString("overrides")
		activate, _ := flags.GetBool("activate")

		start, err := parseTime(startFlag)
		if err != nil {
			return err
		}
		overrides, err := readOverrides(cmd, overridesFile)
		if err != nil {
			return err
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			view, err := a.service.Create(ctx, challenge.CreateRequest{
				ID:                 id,
				Name:               name,
				TimelineTemplateID: templateID,
				StartDate:          start,
				Overrides:          overrides,
				Activate:           activate,
			})
			if err != nil {
				return err
			}
			return showView(cmd, a, view)
		})
	},
}

var challengeUpdateCmd = &cobra.Command{
	Use:   "update <challenge-id>",
	Short: "Update a challenge and reconcile its timeline",
	Long: `Update applies phase overrides, a new start date, name or status, and
recomputes the schedule of every phase that has not ended. Passing a different
--template discards the current phases and rebuilds from the start date.
Setting --status Active on a draft opens the phases whose start has passed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		req := challenge.UpdateRequest{ID: args[0]}

		if flags.Changed("name") {
			v, _ := flags.GetString("name")
			req.Name = &v
		}
		if flags.Changed("template") {
			v, _ := flags.GetString("template")
			req.TimelineTemplateID = &v
		}
		if flags.Changed("status") {
			v, _ := flags.GetString("status")
			if !validStatus(v) {
				return fmt.Errorf("invalid status %q", v)
			}
			req.Status = &v
		}
		if flags.Changed("start") {
			v, _ := flags.GetString("start")
			t, err := parseTime(v)
			if err != nil {
				return err
			}
			req.StartDate = &t
		}
		overridesFile, _ := flags.GetString("overrides")
		overrides, err := readOverrides(cmd, overridesFile)
		if err != nil {
			return err
		}
		req.Overrides = overrides

		return withApp(cmd, func(ctx context.Context, a *app) error {
			view, err := a.service.Update(ctx, req)
			if err != nil {
				return err
			}
			return showView(cmd, a, view)
		})
	},
}

var challengeCancelCmd = &cobra.Command{
	Use:   "cancel <challenge-id>",
	Short: "Cancel a challenge, closing its open registration and submission phases",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			view, err := a.service.Cancel(ctx, args[0])
			if err != nil {
				return err
			}
			return showView(cmd, a, view)
		})
	},
}

var challengeShowCmd = &cobra.Command{
	Use:   "show <challenge-id>",
	Short: "Show a challenge and its phase timeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			view, err := a.service.Get(ctx, args[0])
			if err != nil {
				return err
			}
			return showView(cmd, a, view)
		})
	},
}

func showView(cmd *cobra.Command, a *app, view challenge.View) error {
	if jsonOutput(cmd) {
		return printJSON(cmd, view)
	}
	a.printer.Challenge(view.Challenge, view.Phases)
	return nil
}

func validStatus(s string) bool {
	switch s {
	case store.StatusDraft, store.StatusActive, store.StatusCancelled, store.StatusCompleted:
		return true
	}
	return false
}

func init() {
	cf := challengeCreateCmd.Flags()
	cf.String("id", "", "challenge id (default a new UUID)")
	cf.String("name", "", "challenge name")
	cf.String("template", "", "timeline template id")
	cf.String("start", "", "challenge start date")
	cf.String("overrides", "", "JSON file of phase overrides (- for stdin)")
	cf.Bool("activate", false, "create the challenge Active instead of Draft")
	_ = challengeCreateCmd.MarkFlagRequired("template")
	_ = challengeCreateCmd.MarkFlagRequired("start")

	uf := challengeUpdateCmd.Flags()
	uf.String("name", "", "new challenge name")
	uf.String("template", "", "switch to another timeline template")
	uf.String("start", "", "new challenge start date")
	uf.String("status", "", "new status: Draft, Active, Cancelled, Completed")
	uf.String("overrides", "", "JSON file of phase overrides (- for stdin)")

	challengeCmd.AddCommand(challengeCreateCmd)
	challengeCmd.AddCommand(challengeUpdateCmd)
	challengeCmd.AddCommand(challengeCancelCmd)
	challengeCmd.AddCommand(challengeShowCmd)
	rootCmd.AddCommand(challengeCmd)
}
