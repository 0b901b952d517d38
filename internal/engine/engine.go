// Package engine turns raw audio-server change events into desktop
// notifications. Sink events are classified by diffing the freshly
// fetched device attributes against the last-observed snapshot; card
// events map straight to a fixed announcement. Only meaningful
// transitions notify.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/Pa3u3u/volume-monitor/internal/audio"
	"github.com/Pa3u3u/volume-monitor/internal/notify"
	"github.com/Pa3u3u/volume-monitor/internal/store"
)

// Icon names from the freedesktop icon naming specification.
const (
	// iconMuted announces both mute directions; the unmuted state has
	// no icon of its own.
	iconMuted  = "audio-volume-muted"
	iconHigh   = "audio-volume-high"
	iconMedium = "audio-volume-medium"
	iconLow    = "audio-volume-low"
	iconCard   = "audio-card"
)

// cardTimeout is the fixed expiry for card announcements.
const cardTimeout int32 = 5000

// levelTolerance bounds the float comparison that decides whether all
// channels sit at the same level for display purposes. Classification
// itself uses exact equality; this only affects the body text.
const levelTolerance = 1e-3

// Engine decides whether a change event warrants a notification. It is
// driven serially by the event loop and holds no locks of its own.
type Engine struct {
	client  audio.Client
	gateway *notify.Gateway
	state   *store.State
	logger  *slog.Logger
}

// New creates an Engine.
func New(client audio.Client, gateway *notify.Gateway, state *store.State, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		client:  client,
		gateway: gateway,
		state:   state,
		logger:  logger,
	}
}

// HandleEvent dispatches one event by facility. Unclassified
// facilities are ignored.
func (e *Engine) HandleEvent(ctx context.Context, ev audio.Event) error {
	switch ev.Facility {
	case audio.FacilitySink:
		return e.handleSink(ctx, ev)
	case audio.FacilityCard:
		return e.handleCard(ctx, ev)
	default:
		return nil
	}
}

// handleSink re-fetches the sink and classifies the transition against
// the stored snapshot. Mute edges win over volume changes: a
// simultaneous mute and volume change reports only the mute.
func (e *Engine) handleSink(ctx context.Context, ev audio.Event) error {
	sink, err := e.client.SinkByIndex(ctx, ev.Index)
	if errors.Is(err, audio.ErrNotFound) {
		// Expected race: the sink vanished between the event and the
		// lookup.
		e.logger.Debug("sink index no longer resolves", "index", ev.Index, "event", ev.Type)
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch sink %d: %w", ev.Index, err)
	}

	last, known := e.state.Device(sink.Name)

	var msg notify.Message
	switch {
	case sink.Muted && (!known || !last.Muted):
		msg = notify.Message{
			Category: sink.Name,
			Summary:  "Audio muted",
			Icon:     iconMuted,
			Progress: notify.ProgressNone,
			Timeout:  notify.TimeoutDefault,
		}
	case !sink.Muted && (!known || last.Muted):
		msg = notify.Message{
			Category: sink.Name,
			Summary:  "Audio unmuted",
			Icon:     iconMuted,
			Progress: notify.ProgressNone,
			Timeout:  notify.TimeoutDefault,
		}
	case known && slices.Equal(last.ChannelVolumes, sink.ChannelVolumes):
		// Already current: no notification, no snapshot rewrite.
		return nil
	default:
		avg := mean(sink.ChannelVolumes)
		msg = notify.Message{
			Category: sink.Name,
			Summary:  "Volume",
			Body:     formatLevels(sink.ChannelVolumes, avg),
			Icon:     volumeIcon(avg),
			Progress: roundPercent(avg),
			Timeout:  notify.TimeoutDefault,
		}
	}

	if _, err := e.gateway.Send(ctx, msg); err != nil {
		return err
	}

	e.state.SetDevice(sink.Name, store.DeviceSnapshot{
		Muted:          sink.Muted,
		ChannelVolumes: sink.ChannelVolumes,
	})
	return nil
}

// handleCard announces the card event verbatim. Cards keep no
// snapshot, so repeated change events notify every time.
func (e *Engine) handleCard(ctx context.Context, ev audio.Event) error {
	card, err := e.client.CardByIndex(ctx, ev.Index)
	if errors.Is(err, audio.ErrNotFound) {
		e.logger.Debug("card index no longer resolves", "index", ev.Index, "event", ev.Type)
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch card %d: %w", ev.Index, err)
	}

	body := card.Description
	if body == "" {
		body = card.Name
	}

	_, err = e.gateway.Send(ctx, notify.Message{
		Category: card.Name,
		Summary:  cardSummary(ev.Type),
		Body:     body,
		Icon:     iconCard,
		Progress: notify.ProgressNone,
		Timeout:  cardTimeout,
	})
	return err
}

// cardSummary maps a card event type to its display string.
func cardSummary(t audio.EventType) string {
	switch t {
	case audio.EventNew:
		return "New"
	case audio.EventRemove:
		return "Remove"
	default:
		return "Change"
	}
}

// volumeIcon selects an icon by mean level. The 0.66 boundary itself
// is medium.
func volumeIcon(avg float64) string {
	switch {
	case avg > 0.66:
		return iconHigh
	case avg > 0.33:
		return iconMedium
	default:
		return iconLow
	}
}

// formatLevels renders the per-channel levels for the notification
// body: a single percentage when all channels are at the same level,
// otherwise a bracketed list with each channel rounded independently.
func formatLevels(levels []float64, avg float64) string {
	if allApproxEqual(levels) {
		return fmt.Sprintf("%d%%", roundPercent(avg))
	}

	parts := make([]string, len(levels))
	for i, l := range levels {
		parts[i] = fmt.Sprintf("%d%%", roundPercent(l))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// allApproxEqual reports whether every level is within levelTolerance
// of the first.
func allApproxEqual(levels []float64) bool {
	if len(levels) < 2 {
		return true
	}
	for _, l := range levels[1:] {
		if math.Abs(l-levels[0]) > levelTolerance {
			return false
		}
	}
	return true
}

// mean returns the arithmetic mean, or 0 for an empty slice.
func mean(levels []float64) float64 {
	if len(levels) == 0 {
		return 0
	}
	sum := 0.0
	for _, l := range levels {
		sum += l
	}
	return sum / float64(len(levels))
}

// roundPercent converts a normalized level to a rounded percentage.
func roundPercent(level float64) int {
	return int(math.Round(level * 100))
}
