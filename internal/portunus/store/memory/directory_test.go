package memory_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/store/memory"
	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/types"
)

func TestDirectory_FetchReturnsCopies(t *testing.T) {
	d := memory.NewDirectory()
	d.PutEntity(types.EntityRecord{ID: 1, TagID: "123", DoorOpenSeconds: map[string]float64{"door_1": 2}})

	got, err := d.FetchEntities(context.Background())
	if err != nil {
		t.Fatalf("FetchEntities: %v", err)
	}
	got["123"].DoorOpenSeconds["door_1"] = 99

	again, _ := d.FetchEntities(context.Background())
	if again["123"].DoorOpenSeconds["door_1"] != 2 {
		t.Error("expected directory state to be isolated from callers")
	}
	if d.Fetches("entities") != 2 {
		t.Errorf("expected 2 entity fetches, got %d", d.Fetches("entities"))
	}
}

func TestDirectory_Unavailable(t *testing.T) {
	d := memory.NewDirectory()
	d.SetDoors(types.DoorConfig{Name: "door_1", Pin: 17})
	d.SetUnavailable(true)

	doors, err := d.FetchDoorConfigs(context.Background())
	if !errors.Is(err, store.ErrDirectoryUnavailable) {
		t.Fatalf("expected ErrDirectoryUnavailable, got %v", err)
	}
	if doors == nil || len(doors) != 0 {
		t.Errorf("expected empty non-nil map, got %v", doors)
	}
}

func TestDirectory_RecordsEvents(t *testing.T) {
	d := memory.NewDirectory()
	tag := types.TagID(999)
	d.PostAccessEvent(context.Background(), types.AccessEvent{Action: types.ActionUnknown, TagID: &tag})
	d.PostUnknownTag(context.Background(), tag)

	events := d.Events()
	if len(events) != 1 || events[0].Event.Action != types.ActionUnknown {
		t.Fatalf("unexpected events: %+v", events)
	}
	if events[0].ReceivedAt.IsZero() {
		t.Error("expected received_at to be set")
	}
	if u := d.UnknownTags(); len(u) != 1 || u[0] != 999 {
		t.Errorf("unexpected unknown tags: %v", u)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.toml")
	body := `
[defaults]
door_1 = 0.0

[[doors]]
name = "door_1"
pin = 17
min_angle = 0
max_angle = 90

[[entities]]
id = 1
tag_id = "123"
identifier = "Mia"
[entities.door_open_seconds]
door_1 = 2.0
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	d, err := memory.LoadFile(path, 0.0005, 0.0025)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	doors, _ := d.FetchDoorConfigs(context.Background())
	want := types.DoorConfig{Name: "door_1", Pin: 17, MinAngle: 0, MaxAngle: 90, MinPulse: 0.0005, MaxPulse: 0.0025}
	if doors["door_1"] != want {
		t.Errorf("unexpected door: %+v", doors["door_1"])
	}

	entities, _ := d.FetchEntities(context.Background())
	if e, ok := entities["123"]; !ok || e.Identifier != "Mia" || e.DoorOpenSeconds["door_1"] != 2.0 {
		t.Errorf("unexpected entity: %+v", entities["123"])
	}

	defaults, _ := d.FetchDefaultOpenDurations(context.Background())
	if v, ok := defaults["door_1"]; !ok || v != 0 {
		t.Errorf("unexpected defaults: %v", defaults)
	}
}

func TestLoadFile_Example(t *testing.T) {
	d, err := memory.LoadFile(filepath.Join("..", "..", "..", "..", "configs", "directory.example.toml"), 0.0005, 0.0025)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	doors, _ := d.FetchDoorConfigs(context.Background())
	if len(doors) != 2 || doors["door_1"].MinPulse != 0.0005 || doors["door_2"].MinPulse != 0.0006 {
		t.Errorf("unexpected doors %+v", doors)
	}
	entities, _ := d.FetchEntities(context.Background())
	if e, ok := entities["305419896"]; !ok || e.DoorOpenSeconds["door_1"] != 5 {
		t.Errorf("unexpected entities %+v", entities)
	}
}
