package types

// EntityRecord is a registered principal bound to one tag.  DoorOpenSeconds
// maps door name to how long that door stays open for this entity.
type EntityRecord struct {
	ID              int64
	TagID           string
	Identifier      string
	DoorOpenSeconds map[string]float64
}
