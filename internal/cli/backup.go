package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/vetlab/internal/sqlite"
)

func newExportCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "export <dir>",
		Short: "Write every table to <dir> as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withBackend(func(b *sqlite.Backend) error {
				counts, err := b.Export(args[0])
				if err != nil {
					return sysError("export: %w", err)
				}
				return e.printCounts(cmd, "exported", counts)
			})
		},
	}
}

func newImportCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "import <dir>",
		Short: "Load an export into an empty store",
		Long: `Import reads the JSON lines files written by export. The store must hold no
records; malformed lines are skipped and logged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withBackend(func(b *sqlite.Backend) error {
				counts, err := b.Import(args[0])
				if err != nil {
					return userError("import: %w", err)
				}
				return e.printCounts(cmd, "imported", counts)
			})
		},
	}
}

func (e *env) printCounts(cmd *cobra.Command, verb string, counts map[string]int) error {
	if e.flags.jsonMode {
		return printJSON(cmd.OutOrStdout(), counts)
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %6d %s\n", verb, counts[name], name)
	}
	return nil
}
