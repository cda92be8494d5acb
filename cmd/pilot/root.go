package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-pilot/internal/config"
	"github.com/teslashibe/go-pilot/internal/log"
)

// flags override the PILOT_* environment when set.
type flags struct {
	controller string
	timeout    time.Duration
	period     time.Duration
	radius     float64
	addr       string
	record     string
	deadzone   float64
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	var (
		f   flags
		cfg config.Pilot
	)

	root := &cobra.Command{
		Use:          "pilot",
		Short:        "Drone pilot client",
		Long:         "Fly a drone through its controller process. Settings come from PILOT_* environment variables; flags override them.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := load(cmd, f)
			if err != nil {
				return err
			}
			cfg = loaded
			log.Init(cfg.LogLevel, cfg.LogFormat)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.controller, "controller", "", "controller base URL (PILOT_CONTROLLER_URL)")
	pf.DurationVar(&f.timeout, "timeout", 0, "per-call controller timeout, 0 disables it (PILOT_REQUEST_TIMEOUT)")
	pf.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error (PILOT_LOG_LEVEL)")
	pf.StringVar(&f.logFormat, "log-format", "", "text or json (PILOT_LOG_FORMAT)")

	root.AddCommand(newConsoleCmd(&f, &cfg))
	root.AddCommand(newGamepadCmd(&f, &cfg))
	root.AddCommand(newCallCmd(&cfg))
	root.AddCommand(&cobra.Command{
		Use:   "env",
		Short: "List the supported environment variables",
		// Skip loading so a broken environment can still be inspected.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(*cobra.Command, []string) error {
			return config.Usage()
		},
	})
	return root
}

// load reads the environment, applies any flags the user set and validates
// the result.
func load(cmd *cobra.Command, f flags) (config.Pilot, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Pilot{}, err
	}

	changed := cmd.Flags().Changed
	if changed("controller") {
		cfg.ControllerURL = f.controller
	}
	if changed("timeout") {
		cfg.RequestTimeout = f.timeout
	}
	if changed("period") {
		cfg.DispatchPeriod = f.period
	}
	if changed("radius") {
		cfg.JoystickRadius = f.radius
	}
	if changed("addr") {
		cfg.ConsoleAddr = f.addr
	}
	if changed("record") {
		cfg.RecordPath = f.record
	}
	if changed("deadzone") {
		cfg.GamepadDeadzone = f.deadzone
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("log-format") {
		cfg.LogFormat = f.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return config.Pilot{}, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}
