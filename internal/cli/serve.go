package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/vetlab/internal/rpc"
	"github.com/mesh-intelligence/vetlab/internal/server"
)

func newServeCmd(e *env) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve operations over HTTP on a loopback address",
		Long: `Serve exposes every operation listed by 'vetlab ops' as POST /api/<operation>
on a loopback address, with GET /healthz and GET /metrics. It stops on
SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = e.cfg.GetString(cfgKeyServerAddr)
			}
			if err := server.CheckLoopback(addr); err != nil {
				return userError("%w", err)
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			b, err := e.attachBackend(reg)
			if err != nil {
				return err
			}
			defer b.Detach()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			srv := server.New(rpc.NewDispatcher(b, e.log), reg, e.log)
			if err := srv.Run(ctx, addr); err != nil {
				return sysError("serve: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.addr from config)")
	return cmd
}
