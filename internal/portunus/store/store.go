package store

import (
	"context"
	"errors"

	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/types"
)

// ErrDirectoryUnavailable wraps every transport, status or decode failure
// of a directory fetch.  Fetches that fail still return an empty, non-nil
// result so callers can fall through without nil checks.
var ErrDirectoryUnavailable = errors.New("directory unavailable")

// DoorConfigSource supplies the door hardware configuration keyed by door
// name.
type DoorConfigSource interface {
	FetchDoorConfigs(ctx context.Context) (map[string]types.DoorConfig, error)
}

// EntitySource resolves scanned tags.  Entities are keyed by the decimal
// tag ID string.
type EntitySource interface {
	FetchEntities(ctx context.Context) (map[string]types.EntityRecord, error)
	FetchDefaultOpenDurations(ctx context.Context) (map[string]float64, error)
}

// EventSink receives access events and unknown-tag registrations.  Both
// calls are fire-and-forget: failures are logged by the implementation and
// never reach the caller.
type EventSink interface {
	PostAccessEvent(ctx context.Context, ev types.AccessEvent)
	PostUnknownTag(ctx context.Context, tag types.TagID)
}

// Directory is everything the agent consumes from the remote directory.
type Directory interface {
	DoorConfigSource
	EntitySource
	EventSink
}
