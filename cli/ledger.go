package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cppla/hoppin/ledger"
	"github.com/cppla/hoppin/models"
)

// NewVisitCmd creates the visit command.
func NewVisitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "visit <user-id> <place-id> <category-id>",
		Short: "Record a visit and advance the daily streak",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			categoryID, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid category id %q", args[2])
			}

			s, err := openSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			out, err := s.ledger.RecordVisit(cmd.Context(), args[0], args[1], categoryID)
			if err != nil && !errors.Is(err, ledger.ErrStreakNotAdvanced) {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonMode(cmd) {
				if jerr := writeJSON(w, out); jerr != nil {
					return jerr
				}
				return err
			}

			switch out.Status {
			case ledger.VisitRecorded:
				fmt.Fprintf(w, "recorded visit on %s: category %d now at %d visits", out.Date, out.CategoryID, out.Visits)
				if out.TierUp {
					fmt.Fprintf(w, ", new badge %s", ledger.TierName(out.BadgeTier))
				}
				fmt.Fprintln(w)
				if out.CheckIn != nil {
					printStreak(cmd, *out.CheckIn)
				}
			case ledger.VisitDuplicate:
				fmt.Fprintf(w, "already visited %s on %s\n", args[1], out.Date)
			default:
				fmt.Fprintln(w, "visit ignored: user id, place id and a category between 1 and 8 are required")
			}
			return err
		},
	}
}

// NewCheckInCmd creates the checkin command.
func NewCheckInCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkin <user-id>",
		Short: "Run the daily check-in for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			ci, err := s.ledger.DailyCheckIn(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonMode(cmd) {
				return writeJSON(cmd.OutOrStdout(), ci)
			}
			printStreak(cmd, ci)
			return nil
		},
	}
}

// NewProgressCmd creates the progress command.
func NewProgressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress <user-id>",
		Short: "Show badge progress and streak for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			p, err := s.ledger.Progress(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			streak, err := s.ledger.Streak(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonMode(cmd) {
				return writeJSON(w, map[string]any{"progress": p, "streak": streak})
			}
			for c := models.MinCategory; c <= models.MaxCategory; c++ {
				line := fmt.Sprintf("category %d: %d visits", c, p.Visits[c])
				if name := ledger.TierName(p.BadgeTiers[c]); name != "" {
					line += ", " + name
				}
				if next, ok := ledger.NextThreshold(p.Visits[c]); ok {
					line += fmt.Sprintf(" (next badge at %d)", next)
				}
				fmt.Fprintln(w, line)
			}
			fmt.Fprintf(w, "streak: %d (best %d)\n", streak.CurrentStreak, streak.BestStreak)
			return nil
		},
	}
}

func printStreak(cmd *cobra.Command, ci ledger.CheckIn) {
	w := cmd.OutOrStdout()
	switch ci.Result {
	case ledger.CheckInSameDay:
		fmt.Fprintf(w, "already checked in today, streak %d\n", ci.After.CurrentStreak)
	case ledger.CheckInContinued:
		fmt.Fprintf(w, "streak continued: %d (best %d)\n", ci.After.CurrentStreak, ci.After.BestStreak)
	default:
		fmt.Fprintf(w, "streak started: %d (best %d)\n", ci.After.CurrentStreak, ci.After.BestStreak)
	}
}
