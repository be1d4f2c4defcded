// Package door wraps a single door servo with its logical open and close
// angles.
package door

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/Portunus/agent/internal/hardware"
	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/types"
)

var ErrReleased = errors.New("actuator released")

// Actuator is one door's motor.  It is safe for concurrent use, though the
// orchestrator never drives one actuator from two tasks at once.
type Actuator struct {
	cfg    types.DoorConfig
	logger zerolog.Logger

	mu       sync.Mutex
	servo    hardware.Servo
	released bool
}

// New claims the servo for cfg through factory.  The servo starts at the
// close angle; there is no implicit move to centre.
func New(factory hardware.ServoFactory, cfg types.DoorConfig, logger zerolog.Logger) (*Actuator, error) {
	logger = logger.With().Str("door", cfg.Name).Int("pin", cfg.Pin).Logger()
	warnIfOutOfRange(logger, "close", cfg.CloseAngle())
	warnIfOutOfRange(logger, "open", cfg.OpenAngle())

	s, err := factory.Open(hardware.ServoSpec{
		Pin:          cfg.Pin,
		MinPulse:     cfg.MinPulse,
		MaxPulse:     cfg.MaxPulse,
		InitialAngle: cfg.CloseAngle(),
	})
	if err != nil {
		return nil, fmt.Errorf("door %s: open servo on pin %d: %w", cfg.Name, cfg.Pin, err)
	}

	logger.Info().
		Float64("open_angle", cfg.OpenAngle()).
		Float64("close_angle", cfg.CloseAngle()).
		Msg("actuator initialised")

	return &Actuator{cfg: cfg, logger: logger, servo: s}, nil
}

func (a *Actuator) Config() types.DoorConfig { return a.cfg }

func (a *Actuator) MoveToOpen() error {
	return a.move(a.cfg.OpenAngle())
}

func (a *Actuator) MoveToClose() error {
	return a.move(a.cfg.CloseAngle())
}

// MoveTo drives to an arbitrary angle.  Angles outside the physical range
// are logged and left to the hardware to clamp.
func (a *Actuator) MoveTo(angle float64) error {
	warnIfOutOfRange(a.logger, "target", angle)
	return a.move(angle)
}

func (a *Actuator) move(angle float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return fmt.Errorf("door %s: %w", a.cfg.Name, ErrReleased)
	}
	a.logger.Debug().Float64("angle", angle).Msg("moving servo")
	if err := a.servo.SetAngle(angle); err != nil {
		return fmt.Errorf("door %s: move to %.1f°: %w", a.cfg.Name, angle, err)
	}
	return nil
}

// Release frees the servo.  It is idempotent; hardware faults are logged
// and go no further.
func (a *Actuator) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return
	}
	a.released = true
	if err := a.servo.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("error releasing servo")
		return
	}
	a.logger.Debug().Msg("servo released")
}

func (a *Actuator) Released() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.released
}

func warnIfOutOfRange(logger zerolog.Logger, what string, angle float64) {
	if hardware.InPhysicalRange(angle) {
		return
	}
	logger.Warn().
		Str("angle_kind", what).
		Float64("angle", angle).
		Float64("physical_min", hardware.PhysicalMinAngle).
		Float64("physical_max", hardware.PhysicalMaxAngle).
		Msg("angle outside physical range, hardware will clamp")
}
