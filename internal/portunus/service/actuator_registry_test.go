package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/Portunus/agent/internal/hardware/hwtest"
	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/store/memory"
	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/types"
)

var (
	door1 = types.DoorConfig{Name: "door_1", Pin: 17, MinAngle: 0, MaxAngle: 90, MinPulse: 0.0005, MaxPulse: 0.0025}
	door2 = types.DoorConfig{Name: "door_2", Pin: 27, MinAngle: -45, MaxAngle: 45, MinPulse: 0.0005, MaxPulse: 0.0025}
)

func newRegistry(t *testing.T, settle time.Duration) (*service.ActuatorRegistry, *hwtest.FakeServoFactory, *memory.Directory) {
	t.Helper()
	f := hwtest.NewFakeServoFactory()
	dir := memory.NewDirectory()
	r := service.NewActuatorRegistry(f, dir, service.RegistryConfig{SettleDelay: settle}, zerolog.Nop())
	return r, f, dir
}

// ── Apply / Reload ───────────────────────────────────────────────────────────

func TestReload_InitialBringUpDrivesDoorsClosed(t *testing.T) {
	r, f, dir := newRegistry(t, 0)
	dir.SetDoors(door1, door2)

	if got := r.Reload(context.Background()); got != service.ReloadApplied {
		t.Fatalf("expected applied, got %s", got)
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 live actuators, got %d", r.Len())
	}
	if m := f.MovesFor(17); len(m) != 1 || m[0].Angle != 90 {
		t.Errorf("door_1: expected a single move to 90, got %+v", m)
	}
	if m := f.MovesFor(27); len(m) != 1 || m[0].Angle != 45 {
		t.Errorf("door_2: expected a single move to 45, got %+v", m)
	}
}

func TestReload_UnchangedIsNoop(t *testing.T) {
	r, f, dir := newRegistry(t, 0)
	dir.SetDoors(door1)
	r.Reload(context.Background())
	before, _ := r.Actuator("door_1")

	if got := r.Reload(context.Background()); got != service.ReloadUnchanged {
		t.Fatalf("expected unchanged, got %s", got)
	}
	after, _ := r.Actuator("door_1")
	if before != after {
		t.Error("expected the same actuator after an unchanged reload")
	}
	if len(f.Opened()) != 1 {
		t.Errorf("expected no new servo, got %d opened", len(f.Opened()))
	}
	if before.Released() {
		t.Error("actuator must stay live after an unchanged reload")
	}
}

func TestReload_ChangedReleasesBeforeRebuilding(t *testing.T) {
	r, f, dir := newRegistry(t, 20*time.Millisecond)
	dir.SetDoors(door1)
	r.Reload(context.Background())
	old, _ := r.Actuator("door_1")

	changed := door1
	changed.MinAngle = 10
	dir.SetDoors(changed)

	start := time.Now()
	if got := r.Reload(context.Background()); got != service.ReloadApplied {
		t.Fatalf("expected applied, got %s", got)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("expected the settle delay to be honoured, took %v", elapsed)
	}
	if !old.Released() {
		t.Error("old actuator should be released")
	}
	if f.PinConflict() {
		t.Error("new servo was opened while the old one still held the pin")
	}
	cur, ok := r.Actuator("door_1")
	if !ok || cur == old {
		t.Fatal("expected a fresh actuator for door_1")
	}
	if cur.Config().MinAngle != 10 {
		t.Errorf("expected new config, got %+v", cur.Config())
	}
}

func TestReload_FetchErrorKeepsCurrentState(t *testing.T) {
	r, _, dir := newRegistry(t, 0)
	dir.SetDoors(door1)
	r.Reload(context.Background())
	before, _ := r.Actuator("door_1")

	dir.SetUnavailable(true)
	if got := r.Reload(context.Background()); got != service.ReloadKept {
		t.Fatalf("expected kept, got %s", got)
	}
	after, ok := r.Actuator("door_1")
	if !ok || after != before || after.Released() {
		t.Error("expected the live actuator to survive a failed fetch")
	}
}

func TestReload_EmptySuccessReleasesAll(t *testing.T) {
	r, _, dir := newRegistry(t, 0)
	dir.SetDoors(door1, door2)
	r.Reload(context.Background())
	a1, _ := r.Actuator("door_1")

	dir.SetDoors()
	if got := r.Reload(context.Background()); got != service.ReloadApplied {
		t.Fatalf("expected applied, got %s", got)
	}
	if r.Len() != 0 {
		t.Errorf("expected no live actuators, got %d", r.Len())
	}
	if !a1.Released() {
		t.Error("expected door_1 to be released")
	}
}

func TestReload_ConstructionFailureOmitsDoor(t *testing.T) {
	r, f, dir := newRegistry(t, 0)
	f.FailPin(27)
	dir.SetDoors(door1, door2)

	r.Reload(context.Background())
	if _, ok := r.Actuator("door_2"); ok {
		t.Error("door_2 should be absent after a construction failure")
	}
	if _, ok := r.Actuator("door_1"); !ok {
		t.Error("door_1 should still be live")
	}
}

func TestReload_SwappedPinsNeverConflict(t *testing.T) {
	r, f, dir := newRegistry(t, 0)
	dir.SetDoors(door1, door2)
	r.Reload(context.Background())

	a, b := door1, door2
	a.Pin, b.Pin = door2.Pin, door1.Pin
	dir.SetDoors(a, b)
	r.Reload(context.Background())

	if f.PinConflict() {
		t.Error("pin conflict during swap")
	}
	if r.Len() != 2 {
		t.Errorf("expected both doors live, got %d", r.Len())
	}
}

func TestReload_OnePinChangeRebuildsEveryDoor(t *testing.T) {
	r, f, dir := newRegistry(t, 0)
	dir.SetDoors(door1, door2)
	r.Reload(context.Background())
	old1, _ := r.Actuator("door_1")
	old2, _ := r.Actuator("door_2")

	moved := door2
	moved.Pin = 22
	dir.SetDoors(door1, moved)
	if got := r.Reload(context.Background()); got != service.ReloadApplied {
		t.Fatalf("expected applied, got %s", got)
	}

	cur1, ok := r.Actuator("door_1")
	if !ok || cur1 == old1 {
		t.Error("door_1 should be rebuilt even though its config did not change")
	}
	if !old1.Released() {
		t.Error("door_1's old actuator should be released")
	}
	cur2, ok := r.Actuator("door_2")
	if !ok || cur2 == old2 || cur2.Config().Pin != 22 {
		t.Errorf("door_2 should be rebuilt on pin 22, got %+v", cur2)
	}
	if !old2.Released() {
		t.Error("door_2's old actuator should be released")
	}
	if f.PinConflict() {
		t.Error("unexpected pin conflict")
	}
}

func TestReload_CancelDuringSettleBringsNothingUp(t *testing.T) {
	r, f, dir := newRegistry(t, time.Second)
	dir.SetDoors(door1)
	r.Reload(context.Background())
	old, _ := r.Actuator("door_1")

	changed := door1
	changed.MinAngle = 10
	dir.SetDoors(changed)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	if got := r.Reload(ctx); got != service.ReloadAborted {
		t.Fatalf("expected aborted, got %s", got)
	}
	if elapsed := time.Since(start); elapsed >= time.Second {
		t.Errorf("reload did not stop at cancellation (%v)", elapsed)
	}
	if !old.Released() {
		t.Error("old actuator should be released")
	}
	if n := len(f.Opened()); n != 1 {
		t.Errorf("expected no servo claimed after cancellation, got %d opened", n)
	}
	if r.Len() != 0 {
		t.Errorf("expected no live doors, got %d", r.Len())
	}

	// The snapshot was cleared, so the next reload rebuilds.
	r2 := r.Reload(context.Background())
	if r2 != service.ReloadApplied || r.Len() != 1 {
		t.Errorf("expected a rebuild after an aborted reload, got %s with %d doors", r2, r.Len())
	}
}

func TestReload_UnchangedConfigDoesNotRetryFailedDoor(t *testing.T) {
	r, f, dir := newRegistry(t, 0)
	f.FailPin(27)
	dir.SetDoors(door1, door2)
	r.Reload(context.Background())
	opened := len(f.Opened())

	if got := r.Reload(context.Background()); got != service.ReloadUnchanged {
		t.Fatalf("expected unchanged, got %s", got)
	}
	if _, ok := r.Actuator("door_2"); ok {
		t.Error("door_2 should stay absent until its config changes")
	}
	if len(f.Opened()) != opened {
		t.Error("an unchanged reload must not claim any servo")
	}
}

// ── Views ────────────────────────────────────────────────────────────────────

func TestDoors_SortedStatus(t *testing.T) {
	r, _, dir := newRegistry(t, 0)
	dir.SetDoors(door2, door1)
	r.Reload(context.Background())

	got := r.Doors()
	if len(got) != 2 || got[0].Name != "door_1" || got[1].Name != "door_2" {
		t.Fatalf("unexpected doors %+v", got)
	}
	if got[1].OpenAngle != -45 || got[1].CloseAngle != 45 || got[1].Pin != 27 {
		t.Errorf("unexpected status %+v", got[1])
	}
}

func TestReleaseAll_ThenReapplySameConfig(t *testing.T) {
	r, f, dir := newRegistry(t, 0)
	dir.SetDoors(door1)
	r.Reload(context.Background())

	r.ReleaseAll()
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
	for _, s := range f.Opened() {
		if !s.Closed() {
			t.Error("expected every servo to be released")
		}
	}

	if got := r.Reload(context.Background()); got != service.ReloadApplied {
		t.Errorf("expected the same config to be rebuilt after ReleaseAll, got %s", got)
	}
}
