// Package periph drives real Raspberry Pi hardware through periph.io: PWM
// servos on GPIO pins and an MFRC522 tag reader on SPI.
package periph

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/BrandonDHaskell/Portunus/agent/internal/hardware"
)

// Host is the initialised periph.io host.  It is the explicit handle every
// servo and reader is constructed from; there is no package-level factory.
type Host struct {
	logger zerolog.Logger

	mu      sync.Mutex
	closers []func() error
}

// ReaderConfig selects the SPI port and optional reset line of the MFRC522.
type ReaderConfig struct {
	SPIPort  string // "" selects the first registered port
	SpeedHz  int64
	ResetPin string // "" if the reset line is hard-wired high
}

// NewHost initialises the periph.io drivers for this board.
func NewHost(logger zerolog.Logger) (*Host, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return &Host{logger: logger.With().Str("component", "periph").Logger()}, nil
}

// Open claims the GPIO pin in spec and drives it straight to
// spec.InitialAngle.  Implements hardware.ServoFactory.
func (h *Host) Open(spec hardware.ServoSpec) (hardware.Servo, error) {
	name := fmt.Sprintf("GPIO%d", spec.Pin)
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio %s not found", name)
	}
	if spec.MinPulse <= 0 || spec.MaxPulse <= spec.MinPulse || spec.MaxPulse >= servoPeriod {
		return nil, fmt.Errorf("gpio %s: invalid pulse bounds %.4fs..%.4fs", name, spec.MinPulse, spec.MaxPulse)
	}

	s := &servo{pin: p, spec: spec}
	if err := s.SetAngle(spec.InitialAngle); err != nil {
		_ = p.Halt()
		return nil, fmt.Errorf("gpio %s initial angle: %w", name, err)
	}
	h.logger.Debug().Int("pin", spec.Pin).Float64("initial_angle", spec.InitialAngle).Msg("servo claimed")
	return s, nil
}

// OpenReader opens the SPI port and initialises an MFRC522 on it.  The
// port is closed by Close.
func (h *Host) OpenReader(cfg ReaderConfig) (*MFRC522, error) {
	if cfg.SpeedHz <= 0 {
		cfg.SpeedHz = 50000
	}
	port, err := spireg.Open(cfg.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("open spi %q: %w", cfg.SPIPort, err)
	}
	c, err := port.Connect(physic.Frequency(cfg.SpeedHz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("connect spi %q: %w", cfg.SPIPort, err)
	}

	if cfg.ResetPin != "" {
		rst := gpioreg.ByName(cfg.ResetPin)
		if rst == nil {
			_ = port.Close()
			return nil, fmt.Errorf("reset pin %s not found", cfg.ResetPin)
		}
		if err := rst.Out(gpio.High); err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("reset pin %s: %w", cfg.ResetPin, err)
		}
	}

	r, err := NewMFRC522(c)
	if err != nil {
		_ = port.Close()
		return nil, err
	}

	h.mu.Lock()
	h.closers = append(h.closers, port.Close)
	h.mu.Unlock()

	h.logger.Info().Str("spi", cfg.SPIPort).Int64("speed_hz", cfg.SpeedHz).Msg("rfid reader initialised")
	return r, nil
}

// Close releases the SPI ports opened through this host.
func (h *Host) Close() error {
	h.mu.Lock()
	closers := h.closers
	h.closers = nil
	h.mu.Unlock()

	var first error
	for _, c := range closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
