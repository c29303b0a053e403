package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Record reviews against phases",
	Long: `Reviews block closing a phase while any of them is PENDING,
IN_PROGRESS, DRAFT or SUBMITTED, or has no status at all.`,
}

var reviewAddCmd = &cobra.Command{
	Use:   "add <phase-instance-id>",
	Short: "Record a review against a phase",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		if id == "" {
			id = uuid.NewString()
		}
		status := statusFlag(cmd)

		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.store.AddReview(ctx, id, args[0], status); err != nil {
				return err
			}
			a.printer.Success(fmt.Sprintf("review %s recorded", id))
			return nil
		})
	},
}

var reviewSetCmd = &cobra.Command{
	Use:   "set <review-id>",
	Short: "Change a review's status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status := statusFlag(cmd)
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.store.SetReviewStatus(ctx, args[0], status); err != nil {
				return err
			}
			a.printer.Success(fmt.Sprintf("review %s updated", args[0]))
			return nil
		})
	},
}

// statusFlag returns --status, or nil when it was not given.
func statusFlag(cmd *cobra.Command) *string {
	if !cmd.Flags().Changed("status") {
		return nil
	}
	v, _ := cmd.Flags().GetString("status")
	return &v
}

func init() {
	reviewAddCmd.Flags().String("id", "", "review id (default a new UUID)")
	reviewAddCmd.Flags().String("status", "", "review status, e.g. PENDING or COMPLETED (omit for none)")
	reviewSetCmd.Flags().String("status", "", "new review status (omit to clear)")

	reviewCmd.AddCommand(reviewAddCmd)
	reviewCmd.AddCommand(reviewSetCmd)
	rootCmd.AddCommand(reviewCmd)
}
