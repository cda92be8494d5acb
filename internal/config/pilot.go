// Package config loads go-pilot configuration from PILOT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix for every setting.
const Prefix = "pilot"

// Pilot holds the pilot client configuration.
type Pilot struct {
	ControllerURL  string        `envconfig:"CONTROLLER_URL" default:"http://localhost:8080" description:"Base URL of the controller process"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"0s" description:"Per-call timeout for controller requests, 0 disables it"`

	DispatchPeriod time.Duration `envconfig:"DISPATCH_PERIOD" default:"100ms" description:"Command dispatch cadence"`
	JoystickRadius float64       `envconfig:"JOYSTICK_RADIUS" default:"150" description:"Joystick area radius in pixels"`
	PointerRadius  float64       `envconfig:"POINTER_RADIUS" default:"0" description:"Pointer disc radius, 0 means 40% of the joystick radius"`

	ICEServers       []string      `envconfig:"ICE_SERVERS" description:"Comma separated STUN/TURN URLs"`
	KeyframeInterval time.Duration `envconfig:"KEYFRAME_INTERVAL" default:"10s" description:"Interval between keyframe requests, 0 disables them"`
	RecordPath       string        `envconfig:"RECORD_PATH" description:"Directory for per-session H.264 recordings, empty disables recording"`

	ConsoleAddr       string  `envconfig:"CONSOLE_ADDR" default:":8090" description:"Listen address of the pilot console"`
	GamepadDeadzone   float64 `envconfig:"GAMEPAD_DEADZONE" default:"0.05" description:"Stick deadzone for the gamepad source"`
	ConfirmDisconnect bool    `envconfig:"CONFIRM_DISCONNECT" default:"true" description:"Require operator confirmation before disconnecting"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
}

// Load reads the configuration from the environment and validates it.
func Load() (Pilot, error) {
	var cfg Pilot
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Pilot{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Pilot{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Pilot) Validate() error {
	var errs []error

	u, err := url.Parse(c.ControllerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("controller URL %q must be absolute", c.ControllerURL))
	}
	if c.DispatchPeriod <= 0 {
		errs = append(errs, fmt.Errorf("dispatch period must be positive, got %s", c.DispatchPeriod))
	}
	if c.JoystickRadius <= 0 {
		errs = append(errs, fmt.Errorf("joystick radius must be positive, got %v", c.JoystickRadius))
	}
	if c.PointerRadius < 0 || (c.PointerRadius > 0 && c.PointerRadius >= c.JoystickRadius) {
		errs = append(errs, fmt.Errorf("pointer radius must be in (0, %v), got %v", c.JoystickRadius, c.PointerRadius))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("request timeout must not be negative"))
	}
	if c.KeyframeInterval < 0 {
		errs = append(errs, fmt.Errorf("keyframe interval must not be negative"))
	}
	if c.GamepadDeadzone < 0 || c.GamepadDeadzone >= 1 {
		errs = append(errs, fmt.Errorf("gamepad deadzone must be in [0, 1), got %v", c.GamepadDeadzone))
	}
	for _, s := range c.ICEServers {
		if !strings.HasPrefix(s, "stun:") && !strings.HasPrefix(s, "turn:") && !strings.HasPrefix(s, "turns:") {
			errs = append(errs, fmt.Errorf("ICE server %q must start with stun:, turn: or turns:", s))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// EffectivePointerRadius returns the pointer disc radius, defaulting to 40% of the area.
func (c Pilot) EffectivePointerRadius() float64 {
	if c.PointerRadius > 0 {
		return c.PointerRadius
	}
	return c.JoystickRadius * 0.4
}

// Usage prints the supported environment variables.
func Usage() error {
	var cfg Pilot
	return envconfig.Usage(Prefix, &cfg)
}
