package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/voreskerne/frivillig/internal/config"
	"github.com/voreskerne/frivillig/pkg/core/series"
	"github.com/voreskerne/frivillig/pkg/core/services"
)

// SeedShiftsCmd creates the seedShifts command
func SeedShiftsCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seedShifts",
		Short: "Create the recurring shifts from the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, _ := cmd.Flags().GetString("start")
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			if start == "" {
				start = time.Now().Format("2006-01-02")
			}

			out := cmd.OutOrStdout()
			if len(app.Cfg.RecurringShifts) == 0 {
				fmt.Fprintln(out, "No recurringShifts configured - nothing to seed.")
				return nil
			}

			for _, rs := range app.Cfg.RecurringShifts {
				spec := seriesFromConfig(rs, start)

				if dryRun {
					dates, err := series.Expand(spec.RRule, spec.Start, spec.Count)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "\n%s (%s) - %d shifts (DRY RUN)\n", rs.Title, rs.RRule, len(dates))
					for i, d := range dates {
						fmt.Fprintf(out, "  %2d. %s\n", i+1, d)
					}
					continue
				}

				created, err := services.CreateShiftSeries(app.Ctx, app.Database, app.Logger, spec)
				if err != nil {
					return fmt.Errorf("failed to seed %q: %w", rs.Title, err)
				}
				fmt.Fprintf(out, "\n✓ %s (%s) - %d shifts created\n", rs.Title, rs.RRule, len(created))
				for i, c := range created {
					fmt.Fprintf(out, "  %2d. %s  %d slots\n", i+1, c.Shift.Date, len(c.Slots))
				}
			}
			fmt.Fprintln(out)

			return nil
		},
	}

	cmd.Flags().String("start", "", "First date of the series, YYYY-MM-DD (default today)")
	cmd.Flags().Bool("dry-run", false, "Print the dates without creating shifts")

	return cmd
}

func seriesFromConfig(rs config.RecurringShift, start string) services.SeriesSpec {
	slots := make([]services.SlotSpec, 0, len(rs.Roles))
	for _, role := range rs.Roles {
		slots = append(slots, services.SlotSpec{RoleName: role})
	}
	return services.SeriesSpec{
		RRule: rs.RRule,
		Start: start,
		Count: rs.Count,
		Template: services.ShiftSpec{
			Title:     rs.Title,
			StartTime: rs.StartTime,
			EndTime:   rs.EndTime,
			Slots:     slots,
		},
	}
}

// ListShiftsCmd creates the listShifts command
func ListShiftsCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "listShifts [from] [to]",
		Short: "List shifts with their slots, holders and pending trades",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var from, to string
			if len(args) > 0 {
				from = args[0]
			}
			if len(args) > 1 {
				to = args[1]
			}

			board, err := services.ShiftBoard(app.Ctx, app.Database, app.Logger, from, to)
			if err != nil {
				return err
			}

			printBoard(cmd.OutOrStdout(), board)
			return nil
		},
	}
}

func printBoard(out io.Writer, board []services.BoardShift) {
	if len(board) == 0 {
		fmt.Fprintln(out, "No shifts found.")
		return
	}

	fmt.Fprintf(out, "\nFound %d shifts:\n", len(board))
	for _, shift := range board {
		fmt.Fprintf(out, "\n%s %s", shift.Date, shift.Title)
		if shift.StartTime != "" {
			fmt.Fprintf(out, " (%s-%s)", shift.StartTime, shift.EndTime)
		}
		fmt.Fprintf(out, " [%s]\n", shift.ID)

		for _, slot := range shift.Slots {
			holder := "vacant"
			if slot.UserID != nil {
				holder = *slot.UserID
			}
			line := fmt.Sprintf("  - %-20s %s", slot.RoleName, holder)
			if slot.PendingTradeID != "" {
				line += fmt.Sprintf("  (offered, trade %s)", slot.PendingTradeID)
			}
			fmt.Fprintln(out, line)
		}
	}
	fmt.Fprintln(out)
}
