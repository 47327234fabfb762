package broadcast

import (
	"encoding/json"
	"fmt"
)

// Snapshot is the full permission set of one role at one point in time.
type Snapshot struct {
	Permissions []string `json:"permissions"`
	UpdatedAt   int64    `json:"updatedAt"` // epoch millis
}

type EventStatus int

const (
	// EventSnapshot carries a decoded snapshot.
	EventSnapshot EventStatus = iota
	// EventNoData means nothing is stored at the path.
	EventNoData
	// EventMissingKey means a value exists but has no "permissions" key.
	EventMissingKey
	// EventError carries a read or decode failure.
	EventError
)

func (s EventStatus) String() string {
	switch s {
	case EventSnapshot:
		return "snapshot"
	case EventNoData:
		return "no_data"
	case EventMissingKey:
		return "missing_key"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("EventStatus(%d)", int(s))
	}
}

// Event is what a subscription delivers for every observed value of a path.
type Event struct {
	Path     string
	Status   EventStatus
	Snapshot Snapshot
	Err      error
}

func encodeSnapshot(snap Snapshot) ([]byte, error) {
	if snap.Permissions == nil {
		snap.Permissions = []string{}
	}
	return json.Marshal(snap)
}

func decodeSnapshot(path string, raw []byte) Event {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Event{Path: path, Status: EventError, Err: fmt.Errorf("broadcast: decode %s: %w", path, err)}
	}

	permsRaw, ok := doc["permissions"]
	if !ok {
		return Event{Path: path, Status: EventMissingKey}
	}

	var snap Snapshot
	if err := json.Unmarshal(permsRaw, &snap.Permissions); err != nil {
		return Event{Path: path, Status: EventError, Err: fmt.Errorf("broadcast: decode %s permissions: %w", path, err)}
	}
	if snap.Permissions == nil {
		snap.Permissions = []string{}
	}
	if ts, ok := doc["updatedAt"]; ok {
		if err := json.Unmarshal(ts, &snap.UpdatedAt); err != nil {
			return Event{Path: path, Status: EventError, Err: fmt.Errorf("broadcast: decode %s updatedAt: %w", path, err)}
		}
	}

	return Event{Path: path, Status: EventSnapshot, Snapshot: snap}
}
