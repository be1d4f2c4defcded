package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/types"
)

// RecordedEvent is an access event as received by the directory.
type RecordedEvent struct {
	Event      types.AccessEvent
	ReceivedAt time.Time
}

// Directory is an in-process directory.  It is intended for use in tests
// and for the simulation backend.
type Directory struct {
	mu          sync.Mutex
	doors       map[string]types.DoorConfig
	entities    map[string]types.EntityRecord
	defaults    map[string]float64
	unavailable bool

	events  []RecordedEvent
	unknown []types.TagID
	fetches map[string]int
}

func NewDirectory() *Directory {
	return &Directory{
		doors:    make(map[string]types.DoorConfig),
		entities: make(map[string]types.EntityRecord),
		defaults: make(map[string]float64),
		fetches:  make(map[string]int),
	}
}

// ── Seeding ──────────────────────────────────────────────────────────────────

// SetDoors replaces the door configuration wholesale.
func (d *Directory) SetDoors(doors ...types.DoorConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.doors = make(map[string]types.DoorConfig, len(doors))
	for _, c := range doors {
		d.doors[c.Name] = c
	}
}

func (d *Directory) PutEntity(e types.EntityRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e.DoorOpenSeconds = maps.Clone(e.DoorOpenSeconds)
	d.entities[e.TagID] = e
}

func (d *Directory) SetDefaultOpenDurations(v map[string]float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.defaults = maps.Clone(v)
	if d.defaults == nil {
		d.defaults = make(map[string]float64)
	}
}

// SetUnavailable makes every fetch fail with store.ErrDirectoryUnavailable.
func (d *Directory) SetUnavailable(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unavailable = v
}

// ── store.Directory ──────────────────────────────────────────────────────────

func (d *Directory) FetchDoorConfigs(_ context.Context) (map[string]types.DoorConfig, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fetches["settings"]++
	if d.unavailable {
		return map[string]types.DoorConfig{}, fmt.Errorf("fetch door configs: %w", store.ErrDirectoryUnavailable)
	}
	return maps.Clone(d.doors), nil
}

func (d *Directory) FetchEntities(_ context.Context) (map[string]types.EntityRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fetches["entities"]++
	if d.unavailable {
		return map[string]types.EntityRecord{}, fmt.Errorf("fetch entities: %w", store.ErrDirectoryUnavailable)
	}
	out := make(map[string]types.EntityRecord, len(d.entities))
	for k, e := range d.entities {
		e.DoorOpenSeconds = maps.Clone(e.DoorOpenSeconds)
		out[k] = e
	}
	return out, nil
}

func (d *Directory) FetchDefaultOpenDurations(_ context.Context) (map[string]float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fetches["system-settings"]++
	if d.unavailable {
		return map[string]float64{}, fmt.Errorf("fetch default durations: %w", store.ErrDirectoryUnavailable)
	}
	return maps.Clone(d.defaults), nil
}

func (d *Directory) PostAccessEvent(_ context.Context, ev types.AccessEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, RecordedEvent{Event: ev, ReceivedAt: time.Now()})
}

func (d *Directory) PostUnknownTag(_ context.Context, tag types.TagID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unknown = append(d.unknown, tag)
}

// ── Inspection (test helpers) ────────────────────────────────────────────────

// Events returns a copy of all recorded events.
func (d *Directory) Events() []RecordedEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]RecordedEvent, len(d.events))
	copy(out, d.events)
	return out
}

// UnknownTags returns a copy of all registered unknown tags.
func (d *Directory) UnknownTags() []types.TagID {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]types.TagID, len(d.unknown))
	copy(out, d.unknown)
	return out
}

// Fetches reports how many times endpoint ("settings", "entities",
// "system-settings") was fetched.
func (d *Directory) Fetches(endpoint string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fetches[endpoint]
}

// ── File seed ────────────────────────────────────────────────────────────────

type seedFile struct {
	Defaults map[string]float64 `toml:"defaults"`
	Doors    []struct {
		Name     string  `toml:"name"`
		Pin      int     `toml:"pin"`
		MinAngle float64 `toml:"min_angle"`
		MaxAngle float64 `toml:"max_angle"`
		MinPulse float64 `toml:"min_pulse"`
		MaxPulse float64 `toml:"max_pulse"`
	} `toml:"doors"`
	Entities []struct {
		ID              int64              `toml:"id"`
		TagID           string             `toml:"tag_id"`
		Identifier      string             `toml:"identifier"`
		DoorOpenSeconds map[string]float64 `toml:"door_open_seconds"`
	} `toml:"entities"`
}

// LoadFile builds a Directory from a TOML seed file.  Missing pulse bounds
// take the given defaults.
func LoadFile(path string, defMinPulse, defMaxPulse float64) (*Directory, error) {
	var raw seedFile
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("load directory seed %s: %w", path, err)
	}

	d := NewDirectory()
	doors := make([]types.DoorConfig, 0, len(raw.Doors))
	for i, rd := range raw.Doors {
		if rd.Name == "" {
			return nil, fmt.Errorf("directory seed %s: door[%d] missing name", path, i)
		}
		c := types.DoorConfig{
			Name:     rd.Name,
			Pin:      rd.Pin,
			MinAngle: rd.MinAngle,
			MaxAngle: rd.MaxAngle,
			MinPulse: rd.MinPulse,
			MaxPulse: rd.MaxPulse,
		}
		if c.MinPulse == 0 {
			c.MinPulse = defMinPulse
		}
		if c.MaxPulse == 0 {
			c.MaxPulse = defMaxPulse
		}
		doors = append(doors, c)
	}
	d.SetDoors(doors...)

	for _, re := range raw.Entities {
		d.PutEntity(types.EntityRecord{
			ID:              re.ID,
			TagID:           re.TagID,
			Identifier:      re.Identifier,
			DoorOpenSeconds: re.DoorOpenSeconds,
		})
	}
	d.SetDefaultOpenDurations(raw.Defaults)
	return d, nil
}
