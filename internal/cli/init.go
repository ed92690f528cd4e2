package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/vetlab/internal/paths"
)

func newInitCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration and the record store",
		Long: "Create the configuration and data directories, write a default config.yaml\n" +
			"if none exists, then open the store so that it is created, migrated and seeded.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runInit(cmd)
		},
	}
}

func (e *env) runInit(cmd *cobra.Command) error {
	if err := os.MkdirAll(e.configDir, 0o755); err != nil {
		return sysError("create config directory: %w", err)
	}
	dataDir, err := e.dataDir()
	if err != nil {
		return sysError("resolve data dir: %w", err)
	}
	pinned := ""
	if e.flags.dataDir != "" {
		pinned = dataDir
	}
	wrote, err := writeConfigIfMissing(paths.ConfigFile(e.configDir), pinned)
	if err != nil {
		return sysError("write config: %w", err)
	}

	b, err := e.attachBackend(nil)
	if err != nil {
		return err
	}
	defer b.Detach()
	report, err := b.MigrationReport()
	if err != nil {
		return sysError("%w", err)
	}

	w := cmd.OutOrStdout()
	if e.flags.jsonMode {
		return printJSON(w, map[string]any{
			"config_dir":     e.configDir,
			"data_dir":       dataDir,
			"store":          b.Path(),
			"config_written": wrote,
			"migration":      report,
		})
	}
	fmt.Fprintf(w, "config: %s\n", paths.ConfigFile(e.configDir))
	fmt.Fprintf(w, "store:  %s\n", b.Path())
	if report.Recreated {
		fmt.Fprintln(w, "the existing store failed its integrity probe and was recreated")
	}
	for _, step := range report.Steps {
		switch {
		case step.Error != "":
			fmt.Fprintf(w, "  failed  %s: %s\n", step.Name, step.Error)
		case step.Applied || step.Rows > 0:
			fmt.Fprintf(w, "  applied %s (%d rows)\n", step.Name, step.Rows)
		}
	}
	for _, table := range report.Seeded {
		fmt.Fprintf(w, "  seeded admin account in %s\n", table)
	}
	fmt.Fprintln(w, "vetlab initialized")
	return nil
}
