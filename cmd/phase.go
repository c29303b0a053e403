package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/phase"
)

var phaseCmd = &cobra.Command{
	Use:   "phase",
	Short: "Edit individual phases of a challenge",
}

var phasePatchCmd = &cobra.Command{
	Use:   "patch <challenge-id> <phase-instance-id>",
	Short: "Apply a JSON patch to one phase",
	Long: `Patch reads a JSON object from --file (or stdin) and applies it to one
phase instance. Recognized fields: phaseId, predecessor, isOpen, duration,
scheduledStartDate, scheduledEndDate, actualStartDate, actualEndDate and
constraints. Closing a phase is refused while it has pending reviews.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		in, err := openInput(cmd, file)
		if err != nil {
			return err
		}
		patch, err := phase.DecodePatch(in)
		in.Close()
		if err != nil {
			return err
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			out, err := a.service.PatchPhase(ctx, args[0], args[1], patch)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return printJSON(cmd, out)
			}
			a.printer.Timeline([]phase.Instance{out})
			return nil
		})
	},
}

var phaseDeleteCmd = &cobra.Command{
	Use:   "delete <challenge-id> <phase-instance-id>",
	Short: "Delete one phase, re-linking the phases that followed it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			del, err := a.service.DeletePhase(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return printJSON(cmd, del)
			}
			a.printer.Success(fmt.Sprintf("deleted %s, re-linked %d phases", del.DeletedID, len(del.UpdatedSiblings)))
			return nil
		})
	},
}

func init() {
	phasePatchCmd.Flags().StringP("file", "f", "-", "JSON patch file (- for stdin)")

	phaseCmd.AddCommand(phasePatchCmd)
	phaseCmd.AddCommand(phaseDeleteCmd)
	rootCmd.AddCommand(phaseCmd)
}
