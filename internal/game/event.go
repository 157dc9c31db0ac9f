package game

import (
	"time"

	"creature-tree/internal/game/proximity"
)

// EventType enum for event classification
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeKill
	EventTypeRespawn
	EventTypeDuplicate // creature offered to the index twice in one turn
	EventTypeStatsReload
)

// EventVersion is bumped when Event changes shape.
const EventVersion uint8 = 1

// Event is one line of the event log.
type Event struct {
	Version   uint8     `json:"version"`
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"` // Unix nano
	Sequence  uint64    `json:"sequence"`  // assigned by the log
	Tick      uint64    `json:"tick"`
	Creature  uint32    `json:"creature,omitempty"`
	Other     uint32    `json:"other,omitempty"` // victim of a kill
	Kind      string    `json:"kind,omitempty"`
}

// String returns human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypeKill:
		return "kill"
	case EventTypeRespawn:
		return "respawn"
	case EventTypeDuplicate:
		return "duplicate"
	case EventTypeStatsReload:
		return "stats_reload"
	default:
		return "unknown"
	}
}

// MarshalText writes the type by name so the log stays readable.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a name written by MarshalText.
func (t *EventType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "kill":
		*t = EventTypeKill
	case "respawn":
		*t = EventTypeRespawn
	case "duplicate":
		*t = EventTypeDuplicate
	case "stats_reload":
		*t = EventTypeStatsReload
	default:
		*t = EventTypeUnknown
	}
	return nil
}

// NewEvent creates an event for creature c stamped with the current time.
func NewEvent(eventType EventType, tick uint64, c proximity.Handle) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
		Tick:      tick,
		Creature:  uint32(c),
	}
}
