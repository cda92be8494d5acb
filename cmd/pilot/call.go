package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-pilot/internal/config"
	"github.com/teslashibe/go-pilot/internal/httpc"
	"github.com/teslashibe/go-pilot/pkg/controller"
	"github.com/teslashibe/go-pilot/pkg/session"
)

// calls maps a command argument to its controller call.
var calls = map[string]func(*controller.Client, context.Context) error{
	"connect":    (*controller.Client).Connect,
	"takeoff":    (*controller.Client).Takeoff,
	"land":       (*controller.Client).Land,
	"video-off":  (*controller.Client).VideoOff,
	"disconnect": (*controller.Client).Disconnect,
}

func newCallCmd(cfg *config.Pilot) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:       "call <connect|takeoff|land|video-off|disconnect>",
		Short:     "Send one request to the controller",
		Long:      "Send one request to the controller and report the result, for diagnostics. The controller refuses commands until connect.",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"connect", "takeoff", "land", "video-off", "disconnect"},
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if name == "disconnect" && !yes && cfg.ConfirmDisconnect {
				if !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), session.DisconnectPrompt) {
					return fmt.Errorf("disconnect not confirmed")
				}
			}

			client, err := controller.New(cfg.ControllerURL, controller.WithHTTPClient(httpc.NewClient(cfg.RequestTimeout)))
			if err != nil {
				return err
			}
			if err := calls[name](client, cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", name)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the disconnect confirmation")
	return cmd
}

// confirm asks prompt on out and reads a yes/no answer from in.
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
