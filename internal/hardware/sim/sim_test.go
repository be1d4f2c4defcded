package sim_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/Portunus/agent/internal/hardware"
	"github.com/BrandonDHaskell/Portunus/agent/internal/hardware/sim"
	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/types"
)

func TestLineReader_ParsesTags(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := sim.NewLineReader(ctx, strings.NewReader("123\nnot-a-tag\n\n999\n"), zerolog.Nop())

	var got []types.TagID
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < 2 && time.Now().Before(deadline) {
		id, ok, err := r.PollOnce()
		if err != nil {
			t.Fatalf("PollOnce: %v", err)
		}
		if ok {
			got = append(got, id)
			continue
		}
		time.Sleep(5 * time.Millisecond)
	}

	if len(got) != 2 || got[0] != 123 || got[1] != 999 {
		t.Fatalf("expected [123 999], got %v", got)
	}
	if _, ok, _ := r.PollOnce(); ok {
		t.Error("expected no further tags")
	}
}

func TestServoFactory_OpenAndClose(t *testing.T) {
	f := sim.NewServoFactory(zerolog.Nop())
	s, err := f.Open(hardware.ServoSpec{Pin: 17, MinPulse: 0.0005, MaxPulse: 0.0025, InitialAngle: 90})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.SetAngle(200); err != nil {
		t.Errorf("SetAngle out of range should clamp, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
