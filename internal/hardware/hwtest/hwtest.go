// Package hwtest provides deterministic in-memory fakes of the hardware
// capabilities for tests.
package hwtest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/agent/internal/hardware"
	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/types"
)

var ErrInjected = errors.New("hwtest: injected fault")

// ── Reader ───────────────────────────────────────────────────────────────────

// PollResult is one scripted outcome of FakeReader.PollOnce.
type PollResult struct {
	ID  types.TagID
	OK  bool
	Err error
}

// Tag is shorthand for a successful read.
func Tag(id types.TagID) PollResult { return PollResult{ID: id, OK: true} }

// Fault is shorthand for a failed read.
func Fault() PollResult { return PollResult{Err: ErrInjected} }

// FakeReader replays scripted results and then reports "no tag" forever.
type FakeReader struct {
	mu      sync.Mutex
	results []PollResult
	polls   int
}

func NewFakeReader(results ...PollResult) *FakeReader {
	return &FakeReader{results: results}
}

func (r *FakeReader) PollOnce() (types.TagID, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls++
	if len(r.results) == 0 {
		return 0, false, nil
	}
	res := r.results[0]
	r.results = r.results[1:]
	return res.ID, res.OK, res.Err
}

// Push appends more scripted results.
func (r *FakeReader) Push(results ...PollResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, results...)
}

// Pending reports how many scripted results have not been consumed.
func (r *FakeReader) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

func (r *FakeReader) Polls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.polls
}

// ── Servo ────────────────────────────────────────────────────────────────────

// Move is one recorded SetAngle call.
type Move struct {
	Pin   int
	Angle float64
	At    time.Time
}

// FakeServo records every angle command.
type FakeServo struct {
	factory *FakeServoFactory
	spec    hardware.ServoSpec

	mu      sync.Mutex
	closed  bool
	closes  int
	failSet bool
}

func (s *FakeServo) Spec() hardware.ServoSpec { return s.spec }

func (s *FakeServo) SetAngle(deg float64) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("hwtest: servo on pin %d closed", s.spec.Pin)
	}
	fail := s.failSet
	s.mu.Unlock()
	if fail {
		return ErrInjected
	}
	s.factory.record(Move{Pin: s.spec.Pin, Angle: deg, At: time.Now()})
	return nil
}

func (s *FakeServo) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	if s.closed {
		return nil
	}
	s.closed = true
	s.factory.release(s.spec.Pin)
	return nil
}

func (s *FakeServo) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// CloseCalls counts Close invocations, including repeats.
func (s *FakeServo) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// FailMoves makes subsequent SetAngle calls return ErrInjected.
func (s *FakeServo) FailMoves() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSet = true
}

// ── Factory ──────────────────────────────────────────────────────────────────

// FakeServoFactory hands out FakeServos and enforces that no pin is held by
// two open servos at once.
type FakeServoFactory struct {
	mu       sync.Mutex
	failPins map[int]bool
	held     map[int]bool
	opened   []*FakeServo
	moves    []Move
	conflict bool
}

func NewFakeServoFactory() *FakeServoFactory {
	return &FakeServoFactory{
		failPins: make(map[int]bool),
		held:     make(map[int]bool),
	}
}

// FailPin makes Open fail for pin.
func (f *FakeServoFactory) FailPin(pin int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPins[pin] = true
}

func (f *FakeServoFactory) Open(spec hardware.ServoSpec) (hardware.Servo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPins[spec.Pin] {
		return nil, fmt.Errorf("open pin %d: %w", spec.Pin, ErrInjected)
	}
	if f.held[spec.Pin] {
		f.conflict = true
		return nil, fmt.Errorf("hwtest: pin %d already held", spec.Pin)
	}
	f.held[spec.Pin] = true
	s := &FakeServo{factory: f, spec: spec}
	f.opened = append(f.opened, s)
	return s, nil
}

func (f *FakeServoFactory) record(m Move) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves = append(f.moves, m)
}

func (f *FakeServoFactory) release(pin int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, pin)
}

// Opened returns every servo ever opened, in order.
func (f *FakeServoFactory) Opened() []*FakeServo {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*FakeServo, len(f.opened))
	copy(out, f.opened)
	return out
}

// Moves returns a copy of all recorded angle commands.
func (f *FakeServoFactory) Moves() []Move {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Move, len(f.moves))
	copy(out, f.moves)
	return out
}

// MovesFor returns the recorded commands for one pin.
func (f *FakeServoFactory) MovesFor(pin int) []Move {
	var out []Move
	for _, m := range f.Moves() {
		if m.Pin == pin {
			out = append(out, m)
		}
	}
	return out
}

// PinConflict reports whether Open was ever called for a held pin.
func (f *FakeServoFactory) PinConflict() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conflict
}
