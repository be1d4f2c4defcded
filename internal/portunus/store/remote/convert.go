package remote

import (
	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/types"
)

// ── Door settings ────────────────────────────────────────────────────────────

type doorSettingJSON struct {
	DoorName string   `json:"door_name"`
	ServoPin int      `json:"servo_pin"`
	MinAngle float64  `json:"min_angle"`
	MaxAngle float64  `json:"max_angle"`
	MinPulse *float64 `json:"min_pulse,omitempty"`
	MaxPulse *float64 `json:"max_pulse,omitempty"`
}

func (d doorSettingJSON) toDoorConfig(defMin, defMax float64) types.DoorConfig {
	c := types.DoorConfig{
		Name:     d.DoorName,
		Pin:      d.ServoPin,
		MinAngle: d.MinAngle,
		MaxAngle: d.MaxAngle,
		MinPulse: defMin,
		MaxPulse: defMax,
	}
	if d.MinPulse != nil {
		c.MinPulse = *d.MinPulse
	}
	if d.MaxPulse != nil {
		c.MaxPulse = *d.MaxPulse
	}
	return c
}

// ── Entities ─────────────────────────────────────────────────────────────────

type entityJSON struct {
	ID         int64              `json:"id"`
	RFIDID     string             `json:"rfid_id"`
	Identifier string             `json:"identifier"`
	DoorValues map[string]float64 `json:"door_values"`
}

func (e entityJSON) toEntity() types.EntityRecord {
	dv := e.DoorValues
	if dv == nil {
		dv = map[string]float64{}
	}
	return types.EntityRecord{
		ID:              e.ID,
		TagID:           e.RFIDID,
		Identifier:      e.Identifier,
		DoorOpenSeconds: dv,
	}
}

// ── System settings ──────────────────────────────────────────────────────────

type systemSettingsJSON struct {
	PendingDoorValues map[string]float64 `json:"pending_door_values"`
}

// ── Logs ─────────────────────────────────────────────────────────────────────

type accessLogJSON struct {
	EntityID *int64 `json:"entity_id"`
	Action   string `json:"action"`
	RFIDID   string `json:"rfid_id,omitempty"`
}

func accessLogFromEvent(ev types.AccessEvent) accessLogJSON {
	out := accessLogJSON{
		EntityID: ev.EntityID,
		Action:   string(ev.Action),
	}
	if ev.TagID != nil {
		out.RFIDID = ev.TagID.String()
	}
	return out
}

type pendingRFIDJSON struct {
	RFIDID string `json:"rfid_id"`
}
