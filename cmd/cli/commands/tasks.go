package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voreskerne/frivillig/pkg/core/services"
)

// CompleteTaskCmd creates the completeTask command
func CompleteTaskCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "completeTask <task_id>",
		Short: "Mark a task completed and credit its points to the signed-up volunteers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := services.MarkTaskCompleted(app.Ctx, app.Database, app.Logger, args[0],
				services.CompletionOptions{AwardPoints: app.Cfg.Points.AwardEnabled()})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if result.AlreadyCompleted {
				fmt.Fprintf(out, "Task %q was already completed - no points awarded.\n", result.Task.Title)
				return nil
			}

			fmt.Fprintf(out, "\n✓ Task %q completed\n\n", result.Task.Title)
			if len(result.AwardedUserIDs) == 0 {
				fmt.Fprintln(out, "No points awarded.")
				return nil
			}
			fmt.Fprintf(out, "%d points awarded to %d volunteers:\n", result.PointsAwarded, len(result.AwardedUserIDs))
			for _, id := range result.AwardedUserIDs {
				fmt.Fprintf(out, "  ✓ %s\n", id)
			}
			fmt.Fprintln(out)

			return nil
		},
	}
}
