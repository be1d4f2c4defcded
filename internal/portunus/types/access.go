package types

import (
	"strconv"
	"time"
)

// Action is the kind of access event written to the directory's log.
type Action string

const (
	ActionGranted Action = "granted"
	ActionUnknown Action = "unknown"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
)

func (a Action) Valid() bool {
	switch a {
	case ActionGranted, ActionUnknown, ActionRead, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// TagID is the numeric identifier of a proximity tag, packed big-endian
// from the first four bytes of its UID.
type TagID uint32

// TagIDFromUID packs uid[0..3] as a big-endian unsigned integer.  It
// returns false if uid is shorter than four bytes.
func TagIDFromUID(uid []byte) (TagID, bool) {
	if len(uid) < 4 {
		return 0, false
	}
	var id uint32
	for i := 0; i < 4; i++ {
		id = id<<8 | uint32(uid[i])
	}
	return TagID(id), true
}

// String returns the decimal form used as the directory key (rfid_id).
func (t TagID) String() string {
	return strconv.FormatUint(uint64(t), 10)
}

// AccessEvent is a write-once record posted to the directory after a scan.
type AccessEvent struct {
	EntityID  *int64
	Action    Action
	TagID     *TagID
	Timestamp time.Time
}
