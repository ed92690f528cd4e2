package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/vetlab/internal/rpc"
	"github.com/mesh-intelligence/vetlab/internal/sqlite"
	"github.com/mesh-intelligence/vetlab/pkg/types"
)

// attachBackend creates a SQLite backend wired to the CLI logger and
// attaches it. The caller must defer backend.Detach().
func (e *env) attachBackend(reg prometheus.Registerer) (*sqlite.Backend, error) {
	cfg, err := e.storeConfig()
	if err != nil {
		return nil, sysError("%w", err)
	}
	opts := []sqlite.Option{sqlite.WithLogger(e.log)}
	if reg != nil {
		opts = append(opts, sqlite.WithRegisterer(reg))
	}
	backend := sqlite.NewBackend(opts...)
	if err := backend.Attach(cfg); err != nil {
		return nil, sysError("attach store: %w", err)
	}
	return backend, nil
}

// withBackend attaches, runs fn and detaches.
func (e *env) withBackend(fn func(b *sqlite.Backend) error) error {
	b, err := e.attachBackend(nil)
	if err != nil {
		return err
	}
	defer b.Detach()
	return fn(b)
}

// dispatch runs one rpc operation and converts a failed envelope into an
// exit error.
func (e *env) dispatch(b *sqlite.Backend, op string, params any) (rpc.Response, error) {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return rpc.Response{}, sysError("encode params: %w", err)
		}
		raw = data
	}
	resp := rpc.NewDispatcher(b, e.log).Call(op, raw)
	if resp.Error != nil {
		return resp, responseError(resp.Error)
	}
	return resp, nil
}

func responseError(re *rpc.Error) error {
	code := exitUserError
	if re.Code == rpc.CodeInternal || re.Code == rpc.CodeNotInitialized {
		code = exitSysError
	}
	return &exitError{code: code, err: fmt.Errorf("%s: %s", re.Code, re.Message)}
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return sysError("encode output: %w", err)
	}
	fmt.Fprintln(w, string(out))
	return nil
}

// printResult writes a mutation result in the selected output mode.
func (e *env) printResult(cmd *cobra.Command, res *types.Result) error {
	w := cmd.OutOrStdout()
	if e.flags.jsonMode {
		return printJSON(w, res)
	}
	if res.ID != "" {
		fmt.Fprintf(w, "id:      %s\n", res.ID)
	}
	fmt.Fprintf(w, "status:  %s\n", res.Status)
	if len(res.Removed) > 0 {
		names := make([]string, 0, len(res.Removed))
		for name := range res.Removed {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, name := range names {
			parts[i] = fmt.Sprintf("%s=%d", name, res.Removed[name])
		}
		fmt.Fprintf(w, "removed: %s\n", strings.Join(parts, " "))
	}
	if res.Stages != nil {
		states := res.Stages.Ordered()
		parts := make([]string, len(states))
		for i, s := range states {
			parts[i] = string(s)
		}
		fmt.Fprintf(w, "stages:  %s\n", strings.Join(parts, " > "))
	}
	if len(res.Alerts) > 0 {
		fmt.Fprintf(w, "alerts:  %s\n", strings.Join(res.Alerts, ", "))
	}
	if res.Status == types.StatusRepairRequired {
		fmt.Fprintln(w, "orphaned rows remain; run 'vetlab cleanup'")
	}
	return nil
}
