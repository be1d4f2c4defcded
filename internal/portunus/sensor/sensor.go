// Package sensor turns a hardware.TagReader into the agent's tag source.
// Read faults never escape it: they are logged and reported as "no tag".
package sensor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/Portunus/agent/internal/hardware"
	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/types"
)

type Sensor struct {
	reader hardware.TagReader
	logger zerolog.Logger
}

func New(reader hardware.TagReader, logger zerolog.Logger) *Sensor {
	return &Sensor{
		reader: reader,
		logger: logger.With().Str("component", "sensor").Logger(),
	}
}

// PollOnce makes a single read attempt.
func (s *Sensor) PollOnce() (types.TagID, bool) {
	id, ok, err := s.reader.PollOnce()
	if err != nil {
		s.logger.Error().Err(err).Msg("tag read failed")
		return 0, false
	}
	if !ok {
		return 0, false
	}
	s.logger.Info().Str("tag_id", id.String()).Msg("tag detected")
	return id, true
}

// Run polls every interval and calls fn for each tag read.  It returns
// when ctx is cancelled.
func (s *Sensor) Run(ctx context.Context, interval time.Duration, fn func(types.TagID)) {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	s.logger.Info().Dur("interval", interval).Msg("continuous read started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if id, ok := s.PollOnce(); ok {
			fn(id)
		}
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("continuous read stopped")
			return
		case <-ticker.C:
		}
	}
}

// Watcher runs Sensor.Run in the background.  It is safe to stop via its
// context or the Stop method.
type Watcher struct {
	sensor   *Sensor
	interval time.Duration
	fn       func(types.TagID)

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewWatcher creates a watcher but does not start it.
func NewWatcher(s *Sensor, interval time.Duration, fn func(types.TagID)) *Watcher {
	return &Watcher{
		sensor:   s,
		interval: interval,
		fn:       fn,
		done:     make(chan struct{}),
	}
}

// Start begins the background read loop.  Calling it again is a no-op.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		ctx, w.cancel = context.WithCancel(ctx)
		go func() {
			defer close(w.done)
			w.sensor.Run(ctx, w.interval, w.fn)
		}()
	})
}

// Stop signals the loop to exit and waits for it.  Stop on a watcher that
// was never started returns immediately.
func (w *Watcher) Stop() {
	w.startOnce.Do(func() { close(w.done) })
	if w.cancel != nil {
		w.cancel()
	}
	<-w.done
}
