package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Pa3u3u/volume-monitor/internal/audio"
	"github.com/Pa3u3u/volume-monitor/internal/engine"
	"github.com/Pa3u3u/volume-monitor/internal/store"
)

// ErrStreamClosed is returned when the subscription stream ends
// without the loop being canceled. The daemon treats this like any
// other transport failure: fatal, no reconnect.
var ErrStreamClosed = errors.New("daemon: event stream closed")

// Loop owns the single goroutine that consumes the audio-server event
// stream. Events are classified strictly one at a time in arrival
// order; a slow notification send backpressures the stream.
type Loop struct {
	client audio.Client
	engine *engine.Engine
	state  *store.State
	logger *slog.Logger
}

// NewLoop creates a Loop.
func NewLoop(client audio.Client, eng *engine.Engine, state *store.State, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		client: client,
		engine: eng,
		state:  state,
		logger: logger,
	}
}

// Prime populates the snapshot store from the current sink listing so
// the first event per device is diffed against true prior state
// instead of producing a spurious notification at startup.
func (l *Loop) Prime(ctx context.Context) error {
	sinks, err := l.client.Sinks(ctx)
	if err != nil {
		return fmt.Errorf("list sinks: %w", err)
	}

	for _, sink := range sinks {
		l.state.SetDevice(sink.Name, store.DeviceSnapshot{
			Muted:          sink.Muted,
			ChannelVolumes: sink.ChannelVolumes,
		})
	}

	l.logger.Info("snapshot store primed", "sinks", len(sinks))
	return nil
}

// Run subscribes to the event stream and dispatches until cancellation
// or failure. Cancellation is the clean shutdown path and returns nil;
// a classification or send failure is fatal and propagates.
func (l *Loop) Run(ctx context.Context) error {
	events, err := l.client.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	l.logger.Info("subscribed to audio server events")

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("event loop stopping")
			return nil
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					l.logger.Info("event loop stopping")
					return nil
				}
				return ErrStreamClosed
			}

			l.logger.Debug("event received",
				"facility", ev.Facility.String(),
				"type", ev.Type.String(),
				"index", ev.Index,
			)
			if err := l.engine.HandleEvent(ctx, ev); err != nil {
				return fmt.Errorf("handle %s event: %w", ev.Facility, err)
			}
		}
	}
}
