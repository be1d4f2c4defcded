// Package sim is a hardware backend for running the agent without a Pi:
// servos only log their angle and tags are typed on a line-oriented input.
package sim

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/Portunus/agent/internal/hardware"
	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/types"
)

// ServoFactory builds logging servos.
type ServoFactory struct {
	logger zerolog.Logger
}

func NewServoFactory(logger zerolog.Logger) *ServoFactory {
	return &ServoFactory{logger: logger.With().Str("component", "sim_servo").Logger()}
}

func (f *ServoFactory) Open(spec hardware.ServoSpec) (hardware.Servo, error) {
	s := &servo{logger: f.logger.With().Int("pin", spec.Pin).Logger()}
	if err := s.SetAngle(spec.InitialAngle); err != nil {
		return nil, err
	}
	return s, nil
}

type servo struct {
	logger zerolog.Logger
	mu     sync.Mutex
	angle  float64
	closed bool
}

func (s *servo) SetAngle(deg float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	deg, _ = hardware.ClampAngle(deg)
	s.angle = deg
	s.logger.Info().Float64("angle", deg).Msg("servo moved")
	return nil
}

func (s *servo) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.logger.Info().Msg("servo released")
	}
	return nil
}

// LineReader turns decimal tag IDs read line by line from an input into
// tag scans.  Unparseable lines are logged and dropped.
type LineReader struct {
	tags chan types.TagID
}

// NewLineReader starts consuming in until EOF or ctx is done.
func NewLineReader(ctx context.Context, in io.Reader, logger zerolog.Logger) *LineReader {
	r := &LineReader{tags: make(chan types.TagID, 16)}
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			n, err := strconv.ParseUint(line, 10, 32)
			if err != nil {
				logger.Warn().Str("input", line).Msg("sim reader: not a tag id")
				continue
			}
			select {
			case r.tags <- types.TagID(n):
			case <-ctx.Done():
				return
			}
		}
	}()
	return r
}

// PollOnce never blocks.  Implements hardware.TagReader.
func (r *LineReader) PollOnce() (types.TagID, bool, error) {
	select {
	case id := <-r.tags:
		return id, true, nil
	default:
		return 0, false, nil
	}
}
