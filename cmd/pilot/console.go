package main

import (
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-pilot/internal/config"
	"github.com/teslashibe/go-pilot/pkg/web"
)

func newConsoleCmd(f *flags, cfg *config.Pilot) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Serve the web pilot console",
		Long:  "Serve a page with two on-screen joysticks and the connection buttons, with live status and video feeds.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := web.NewServer(*cfg)
			if err != nil {
				return err
			}
			return s.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&f.addr, "addr", "", "console listen address (PILOT_CONSOLE_ADDR)")
	cmd.Flags().DurationVar(&f.period, "period", 0, "command dispatch period (PILOT_DISPATCH_PERIOD)")
	cmd.Flags().Float64Var(&f.radius, "radius", 0, "joystick radius in pixels (PILOT_JOYSTICK_RADIUS)")
	cmd.Flags().StringVar(&f.record, "record", "", "directory for H.264 recordings (PILOT_RECORD_PATH)")
	return cmd
}
