// Package cli implements the vetlab command-line interface.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/vetlab/internal/paths"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// exitError carries the process exit code for a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func userError(format string, args ...any) error {
	return &exitError{code: exitUserError, err: fmt.Errorf(format, args...)}
}

func sysError(format string, args ...any) error {
	return &exitError{code: exitSysError, err: fmt.Errorf(format, args...)}
}

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
}

// env is the state shared by the commands of one root command.
type env struct {
	flags     rootFlags
	configDir string
	cfg       *viper.Viper
	log       zerolog.Logger
}

// NewRootCmd creates the top-level "vetlab" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	e := &env{log: zerolog.Nop()}
	root := &cobra.Command{
		Use:   "vetlab",
		Short: "Laboratory and quarantine record store",
		Long: "vetlab manages lab procedures, samples, test results, quarantine procedures\n" +
			"and the alert ledger that links them, in a local embedded store.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&e.flags.configDir, "config-dir", "", "configuration directory (default: per-user config dir)")
	root.PersistentFlags().StringVar(&e.flags.dataDir, "data-dir", "", "data directory (default: per-user data dir)")
	root.PersistentFlags().BoolVar(&e.flags.jsonMode, "json", false, "output in JSON format")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(e),
		newCallCmd(e),
		newOpsCmd(e),
		newGetCmd(e),
		newListCmd(e),
		newNextNumberCmd(e),
		newCleanupCmd(e),
		newDeleteLabCmd(e),
		newDeleteQuarantineCmd(e),
		newAlertsCmd(e),
		newServeCmd(e),
		newExportCmd(e),
		newImportCmd(e),
	)
	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	err := root.Execute()
	if err == nil {
		os.Exit(exitSuccess)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitUserError
}

// load resolves the config directory, reads config.yaml and builds the
// logger. It runs before every subcommand.
func (e *env) load(cmd *cobra.Command) error {
	dir, err := paths.ResolveConfigDir(e.flags.configDir)
	if err != nil {
		return sysError("resolve config dir: %w", err)
	}
	cfg, err := loadConfig(dir)
	if err != nil {
		return sysError("%w", err)
	}
	log, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return userError("%w", err)
	}
	e.configDir = dir
	e.cfg = cfg
	e.log = log
	return nil
}

// dataDir returns the data directory following flag > env > config.yaml >
// platform default.
func (e *env) dataDir() (string, error) {
	return paths.ResolveDataDir(e.flags.dataDir, e.cfg.GetString(cfgKeyDataDir))
}
