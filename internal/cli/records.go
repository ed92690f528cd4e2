package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/vetlab/internal/sqlite"
	"github.com/mesh-intelligence/vetlab/pkg/types"
)

func newNextNumberCmd(e *env) *cobra.Command {
	var reserve bool
	cmd := &cobra.Command{
		Use:   "next-number <L|Q>",
		Short: "Show (or reserve) the next procedure number of a domain",
		Long: `Next-number prints the number the next lab (L) or quarantine (Q) procedure
of the current year would receive. With --reserve the number is issued and
will not be handed out again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			suffix := strings.ToUpper(args[0])
			return e.withBackend(func(b *sqlite.Backend) error {
				var (
					number string
					err    error
				)
				if reserve {
					number, err = b.ReserveNumber(suffix)
				} else {
					number, err = b.PeekNextNumber(suffix)
				}
				if err != nil {
					return userError("%w", err)
				}
				if e.flags.jsonMode {
					return printJSON(cmd.OutOrStdout(), map[string]any{"number": number, "reserved": reserve})
				}
				fmt.Fprintln(cmd.OutOrStdout(), number)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&reserve, "reserve", false, "issue the number instead of previewing it")
	return cmd
}

func newCleanupCmd(e *env) *cobra.Command {
	var alerts bool
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove orphaned samples and test results",
		Long: `Cleanup removes samples whose lab procedure no longer exists and test results
whose sample no longer exists. With --alerts it also purges alerts for
procedure numbers that match no quarantine procedure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withBackend(func(b *sqlite.Backend) error {
				report, err := b.CleanupOrphans()
				if err != nil {
					return sysError("cleanup: %w", err)
				}
				purged := 0
				if alerts {
					if purged, err = b.PurgeOrphanAlerts(); err != nil {
						return sysError("purge alerts: %w", err)
					}
				}
				if e.flags.jsonMode {
					return printJSON(cmd.OutOrStdout(), map[string]any{
						"samples": report.Samples,
						"results": report.Results,
						"alerts":  purged,
					})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d orphaned samples, %d orphaned results", report.Samples, report.Results)
				if alerts {
					fmt.Fprintf(cmd.OutOrStdout(), ", %d orphaned alerts", purged)
				}
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&alerts, "alerts", false, "also purge alerts of unknown procedure numbers")
	return cmd
}

// previewer and deleter abstract the two procedure kinds for the delete
// commands.
type (
	previewer func(b *sqlite.Backend, id string) (*types.DeletionImpact, error)
	deleter   func(b *sqlite.Backend, id string, opts types.DeleteOptions) (*types.Result, error)
)

func newDeleteLabCmd(e *env) *cobra.Command {
	return newDeleteCmd(e, "delete-lab", "lab procedure",
		(*sqlite.Backend).PreviewLabProcedureDeletion,
		(*sqlite.Backend).DeleteLabProcedure)
}

func newDeleteQuarantineCmd(e *env) *cobra.Command {
	return newDeleteCmd(e, "delete-quarantine", "quarantine procedure",
		(*sqlite.Backend).PreviewQuarantineDeletion,
		(*sqlite.Backend).DeleteQuarantineProcedure)
}

// newDeleteCmd shows the deletion impact and deletes only with --yes. The
// confirmed impact is passed back so that a store changed in between is
// refused rather than deleted blindly.
func newDeleteCmd(e *env, use, noun string, preview previewer, del deleter) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: "Delete a " + noun + " and everything that depends on it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withBackend(func(b *sqlite.Backend) error {
				impact, err := preview(b, args[0])
				if err != nil {
					return userError("%w", err)
				}
				if !yes {
					if e.flags.jsonMode {
						if err := printJSON(cmd.OutOrStdout(), impact); err != nil {
							return err
						}
					} else {
						printImpact(cmd, noun, impact)
					}
					return userError("not deleted; rerun with --yes to confirm")
				}
				res, err := del(b, args[0], types.DeleteOptions{Expected: impact})
				if err != nil {
					return userError("%w", err)
				}
				return e.printResult(cmd, res)
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the deletion")
	return cmd
}

func printImpact(cmd *cobra.Command, noun string, impact *types.DeletionImpact) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "deleting %s %s", noun, impact.ID)
	if impact.ProcedureNumber != "" {
		fmt.Fprintf(w, " (%s)", impact.ProcedureNumber)
	}
	fmt.Fprintln(w, " would remove:")
	rows := []struct {
		label string
		n     int
	}{
		{"samples", impact.Samples},
		{"test results", impact.Results},
		{"shipments", impact.Shipments},
		{"tracking events", impact.TrackingEvents},
		{"ratings", impact.Ratings},
		{"traders", impact.Traders},
	}
	for _, r := range rows {
		if r.n > 0 {
			fmt.Fprintf(w, "  %-16s %d\n", r.label, r.n)
		}
	}
	if impact.LinkedLab {
		fmt.Fprintln(w, "  and the linked lab procedure will lose its quarantine link")
	}
	if impact.LinkedQuarantine {
		fmt.Fprintln(w, "  and the linked quarantine procedure will be notified")
	}
}

func newAlertsCmd(e *env) *cobra.Command {
	var dismiss string
	cmd := &cobra.Command{
		Use:   "alerts <procedure-number>",
		Short: "Show the active alert of a procedure number",
		Long: `Alerts prints the alert currently surfaced for a procedure number:
deleted before updated before new before results_completed, newest first.
With --dismiss the alerts of that action type ("all" for every type) are
dismissed first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			number := args[0]
			return e.withBackend(func(b *sqlite.Backend) error {
				w := cmd.OutOrStdout()
				if dismiss != "" {
					action := dismiss
					if action == "all" {
						action = ""
					}
					n, err := b.DismissAlerts(number, action)
					if err != nil {
						return userError("%w", err)
					}
					if !e.flags.jsonMode {
						fmt.Fprintf(w, "dismissed %d alerts\n", n)
					}
				}
				alert, err := b.ActiveAlertFor(number)
				if err != nil && !errors.Is(err, types.ErrNotFound) {
					return sysError("%w", err)
				}
				if err != nil {
					if e.flags.jsonMode {
						return printJSON(w, nil)
					}
					fmt.Fprintf(w, "no active alert for %s\n", number)
					return nil
				}
				if e.flags.jsonMode {
					return printJSON(w, alert)
				}
				fmt.Fprintf(w, "%s  %s  %s\n", alert.ProcedureNumber, alert.ActionType, alert.CreatedAt.Format("2006-01-02 15:04:05"))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dismiss, "dismiss", "", "dismiss alerts of this action type first (or \"all\")")
	return cmd
}
