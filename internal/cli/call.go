package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/vetlab/internal/rpc"
	"github.com/mesh-intelligence/vetlab/internal/sqlite"
)

func newCallCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "call <operation> [json|-]",
		Short: "Run one named operation and print its response envelope",
		Long: `Call runs a named operation against the store and prints the
{ok, data, error} envelope. Parameters are a JSON object given as the second
argument, or read from standard input when it is "-".

Example:
  vetlab call numbering.next '{"suffix":"L"}'
  vetlab call lab_procedure.create - < procedure.json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params json.RawMessage
			if len(args) == 2 {
				if args[1] == "-" {
					data, err := io.ReadAll(cmd.InOrStdin())
					if err != nil {
						return sysError("read stdin: %w", err)
					}
					params = data
				} else {
					params = json.RawMessage(args[1])
				}
			}
			return e.withBackend(func(b *sqlite.Backend) error {
				resp := rpc.NewDispatcher(b, e.log).Call(args[0], params)
				if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
					return err
				}
				if resp.Error != nil {
					return responseError(resp.Error)
				}
				return nil
			})
		},
	}
}

func newOpsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "ops",
		Short: "List the operations accepted by call and the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ops := rpc.NewDispatcher(nil, e.log).Operations()
			if e.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), ops)
			}
			for _, op := range ops {
				fmt.Fprintln(cmd.OutOrStdout(), op)
			}
			return nil
		},
	}
}
