package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/vetlab/internal/sqlite"
	"github.com/mesh-intelligence/vetlab/pkg/types"
)

// validTableNamesStr is a comma-separated list of valid table names for
// error output.
var validTableNamesStr = strings.Join(types.StandardTableNames, ", ")

func newGetCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "get <table> <id>",
		Short: "Get a record by ID",
		Long:  "Get retrieves a record from the named table by its ID.\n\nValid table names: " + validTableNamesStr,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withBackend(func(b *sqlite.Backend) error {
				resp, err := e.dispatch(b, "table.get", map[string]string{"table": args[0], "id": args[1]})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp.Data)
			})
		},
	}
}

func newListCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list <table> [column=value ...]",
		Short: "List records, newest first",
		Long: `List prints the records of a table, newest first, optionally narrowed by
column=value filters. The values true and false match boolean columns.

Valid table names: ` + validTableNamesStr + `

Example:
  vetlab list samples saved_sample_id=0192...
  vetlab list alerts procedure_number=0004-2025-Q is_dismissed=false`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseFilter(args[1:])
			if err != nil {
				return err
			}
			return e.withBackend(func(b *sqlite.Backend) error {
				resp, err := e.dispatch(b, "table.list", map[string]any{"table": args[0], "filter": filter})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp.Data)
			})
		},
	}
}

// parseFilter turns column=value arguments into a Filter.
func parseFilter(args []string) (types.Filter, error) {
	filter := types.Filter{}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, userError("filter %q: want column=value", arg)
		}
		switch value {
		case "true", "false":
			filter[key], _ = strconv.ParseBool(value)
		default:
			filter[key] = value
		}
	}
	return filter, nil
}
