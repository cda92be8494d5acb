package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-pilot/internal/config"
	"github.com/teslashibe/go-pilot/internal/log"
	"github.com/teslashibe/go-pilot/pkg/app"
	"github.com/teslashibe/go-pilot/pkg/input/gamepad"
)

func newGamepadCmd(f *flags, cfg *config.Pilot) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gamepad",
		Short: "Fly with a game controller",
		Long: `Fly with an SDL3 game controller.

  left stick   forward/back and strafe (xy)
  right stick  climb/descend and yaw (zr)
  A            connect
  Y            takeoff
  X            land
  B            video on/off
  Back+Start   disconnect`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGamepad(cmd.Context(), *cfg)
		},
	}
	cmd.Flags().DurationVar(&f.period, "period", 0, "command dispatch period (PILOT_DISPATCH_PERIOD)")
	cmd.Flags().Float64Var(&f.deadzone, "deadzone", 0, "stick deadzone (PILOT_GAMEPAD_DEADZONE)")
	cmd.Flags().StringVar(&f.record, "record", "", "directory for H.264 recordings (PILOT_RECORD_PATH)")
	return cmd
}

func runGamepad(ctx context.Context, cfg config.Pilot) error {
	logger := log.Component("gamepad")

	p, err := app.New(cfg)
	if err != nil {
		return err
	}
	left, _ := p.Engine("xy")
	right, _ := p.Engine("zr")
	driver := gamepad.NewDriver(left, right, p.Machine)
	reader := gamepad.NewReader(cfg.GamepadDeadzone)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := p.Run(ctx); err != nil {
			logger.Error("pilot stopped", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		for s := range reader.States() {
			driver.Apply(s)
		}
		driver.Release()
	}()

	logger.Info("waiting for a game controller", "controller", p.Client.BaseURL())
	err = reader.Run(ctx)
	cancel()
	wg.Wait()
	if err != nil {
		return fmt.Errorf("gamepad: %w", err)
	}
	return nil
}
