package audio

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an index no longer resolves to a device.
// This is expected during normal operation: a device can vanish between
// the server emitting an event and the daemon looking it up.
var ErrNotFound = errors.New("audio: device not found")

// Facility identifies which class of server object an event refers to.
type Facility int

const (
	// FacilitySink is an audio output device.
	FacilitySink Facility = iota
	// FacilityCard is a hardware profile/device grouping.
	FacilityCard
	// FacilityOther covers every facility the daemon does not classify.
	FacilityOther
)

// String returns the string representation of the facility.
func (f Facility) String() string {
	switch f {
	case FacilitySink:
		return "sink"
	case FacilityCard:
		return "card"
	default:
		return "other"
	}
}

// EventType classifies a change event.
type EventType int

const (
	// EventNew indicates an object appeared.
	EventNew EventType = iota
	// EventChange indicates an object's attributes changed.
	EventChange
	// EventRemove indicates an object disappeared.
	EventRemove
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventNew:
		return "new"
	case EventChange:
		return "change"
	case EventRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Event is a single entry from the server's change-event stream.
type Event struct {
	Facility Facility
	Type     EventType
	Index    uint32
}

// Sink is the observed state of an audio output device.
type Sink struct {
	Name string
	// Muted is the device mute flag.
	Muted bool
	// ChannelVolumes holds one normalized level per channel, in the
	// channel order reported by the device. 1.0 is full volume.
	ChannelVolumes []float64
}

// Card is the observed state of a hardware audio profile.
type Card struct {
	Name string
	// Description is the human-readable device description. May be
	// empty when the server reports none.
	Description string
}

// Client is the audio-server access boundary the daemon depends on.
type Client interface {
	// Sinks lists all current sinks.
	Sinks(ctx context.Context) ([]Sink, error)
	// SinkByIndex fetches a sink by server index.
	// Returns ErrNotFound if the index no longer resolves.
	SinkByIndex(ctx context.Context, index uint32) (Sink, error)
	// CardByIndex fetches a card by server index.
	// Returns ErrNotFound if the index no longer resolves.
	CardByIndex(ctx context.Context, index uint32) (Card, error)
	// Subscribe starts the server's change-event stream. The returned
	// channel is unbuffered and closed when the stream ends; a single
	// subscription per process lifetime is expected.
	Subscribe(ctx context.Context) (<-chan Event, error)
	// Close releases the client's resources.
	Close() error
}
