// Package hardware defines the minimal capabilities the agent needs from
// the physical layer: a tag reader and a door servo.  Backends live in the
// periph and sim subpackages; tests use the fakes in hwtest.
package hardware

import (
	"errors"

	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/types"
)

// Physical servo travel.  Angles outside this interval are clamped by the
// backend.
const (
	PhysicalMinAngle = -90.0
	PhysicalMaxAngle = 90.0
)

var ErrUnknownBackend = errors.New("unknown hardware backend")

// TagReader is a proximity-tag reader.
//
// PollOnce makes a single non-blocking attempt.  ok is false with a nil
// error when no tag is present or the handshake / anti-collision exchange
// did not complete; those are normal outcomes.  A non-nil error is a real
// fault (bus error, device gone).
type TagReader interface {
	PollOnce() (id types.TagID, ok bool, err error)
}

// Servo drives one motor.  Close must be safe to call more than once.
type Servo interface {
	SetAngle(deg float64) error
	Close() error
}

// ServoSpec carries everything needed to claim a servo.  InitialAngle is
// always explicit so the horn never jumps to a default position at
// power-on.
type ServoSpec struct {
	Pin          int
	MinPulse     float64
	MaxPulse     float64
	InitialAngle float64
}

// ServoFactory is the explicit hardware-resource handle used to construct
// servos.
type ServoFactory interface {
	Open(spec ServoSpec) (Servo, error)
}

// ClampAngle limits deg to the physical range and reports whether it had
// to.
func ClampAngle(deg float64) (float64, bool) {
	switch {
	case deg < PhysicalMinAngle:
		return PhysicalMinAngle, true
	case deg > PhysicalMaxAngle:
		return PhysicalMaxAngle, true
	}
	return deg, false
}

// PulseForAngle maps deg linearly from the physical range onto
// [minPulse, maxPulse] seconds, clamping first.
func PulseForAngle(deg, minPulse, maxPulse float64) float64 {
	deg, _ = ClampAngle(deg)
	frac := (deg - PhysicalMinAngle) / (PhysicalMaxAngle - PhysicalMinAngle)
	return minPulse + frac*(maxPulse-minPulse)
}

// InPhysicalRange reports whether deg can be reached without clamping.
func InPhysicalRange(deg float64) bool {
	_, clamped := ClampAngle(deg)
	return !clamped
}
