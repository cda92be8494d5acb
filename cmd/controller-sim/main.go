// Command controller-sim runs a local drone controller simulator for
// developing against the pilot without a drone.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-pilot/internal/log"
	"github.com/teslashibe/go-pilot/pkg/controller/controllertest"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		addr      string
		watchdog  time.Duration
		fps       int
		logLevel  string
		logFormat string
	)

	cmd := &cobra.Command{
		Use:          "controller-sim",
		Short:        "Simulate a drone controller",
		Long:         "Serve every controller endpoint, refuse flight commands until /connect, zero stale moves after the watchdog and answer video offers with a synthetic H.264 stream. GET /state shows what the drone would be doing.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log.Init(logLevel, logFormat)

			opts := []controllertest.Option{controllertest.WithWatchdog(watchdog)}
			if fps > 0 {
				opts = append(opts, controllertest.WithFrameInterval(time.Second/time.Duration(fps)))
			}
			sim := controllertest.New(opts...)

			errc := make(chan error, 1)
			go func() { errc <- sim.Listen(addr) }()

			select {
			case <-cmd.Context().Done():
				return sim.Shutdown()
			case err := <-errc:
				sim.Close()
				return err
			}
		},
	}

	f := cmd.Flags()
	f.StringVar(&addr, "addr", ":8080", "listen address")
	f.DurationVar(&watchdog, "watchdog", controllertest.DefaultWatchdog, "zero the vector after this long without a move, 0 disables it")
	f.IntVar(&fps, "fps", 30, "synthetic video frame rate")
	f.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	f.StringVar(&logFormat, "log-format", "text", "text or json")
	return cmd
}
