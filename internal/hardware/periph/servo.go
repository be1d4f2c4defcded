package periph

import (
	"errors"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/BrandonDHaskell/Portunus/agent/internal/hardware"
)

// Hobby servos expect one pulse every 20ms.
const (
	servoFrequency = 50 * physic.Hertz
	servoPeriod    = 0.020
)

var errServoClosed = errors.New("servo closed")

type servo struct {
	pin  gpio.PinIO
	spec hardware.ServoSpec

	mu     sync.Mutex
	closed bool
}

func (s *servo) SetAngle(deg float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errServoClosed
	}
	return s.pin.PWM(dutyFor(deg, s.spec.MinPulse, s.spec.MaxPulse), servoFrequency)
}

func (s *servo) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.pin.Halt()
}

// dutyFor converts an angle to the PWM duty cycle for a 50Hz servo signal.
func dutyFor(deg, minPulse, maxPulse float64) gpio.Duty {
	pulse := hardware.PulseForAngle(deg, minPulse, maxPulse)
	return gpio.Duty(pulse / servoPeriod * float64(gpio.DutyMax))
}
