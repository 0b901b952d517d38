package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
	"github.com/oklog/ulid/v2"

	"github.com/Pa3u3u/volume-monitor/internal/store"
)

// ProgressNone disables the progress indicator for a message.
const ProgressNone = -1

// TimeoutDefault lets the notification service pick the expiry.
const TimeoutDefault int32 = -1

// Message is one outbound notification. Category is the coalescing
// key: consecutive messages with the same category replace each other
// on screen.
type Message struct {
	Category string
	Summary  string
	Body     string
	Icon     string
	// Progress is a 0-100 indicator value, or ProgressNone.
	Progress int
	// Timeout is the expiry in milliseconds, or TimeoutDefault.
	Timeout int32
}

// Gateway sends messages through a Transport with per-category replace
// semantics. The handle table lives in the injected store so the
// decision engine and the gateway share one view of issued
// notifications.
type Gateway struct {
	transport Transport
	state     *store.State
	appName   string
	logger    *slog.Logger
}

// NewGateway creates a Gateway.
func NewGateway(transport Transport, state *store.State, appName string, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		transport: transport,
		state:     state,
		appName:   appName,
		logger:    logger,
	}
}

// Send delivers a message. A prior handle for the message's category
// becomes the replace target; the returned id is always written back
// to the handle table, even when it is numerically unchanged. A
// transport failure propagates to the caller and leaves the handle
// table untouched.
func (g *Gateway) Send(ctx context.Context, msg Message) (store.Handle, error) {
	var replaces uint32
	if prior, ok := g.state.Handle(msg.Category); ok {
		replaces = prior.ID
	}

	hints := map[string]dbus.Variant{}
	if msg.Progress != ProgressNone {
		hints["value"] = dbus.MakeVariant(int32(msg.Progress))
	}

	id, err := g.transport.Notify(ctx, Notification{
		AppName:       g.appName,
		ReplacesID:    replaces,
		AppIcon:       msg.Icon,
		Summary:       msg.Summary,
		Body:          msg.Body,
		Hints:         hints,
		ExpireTimeout: msg.Timeout,
	})
	if err != nil {
		return store.Handle{}, fmt.Errorf("send notification for %q: %w", msg.Category, err)
	}

	handle := store.Handle{ID: id}
	g.state.SetHandle(msg.Category, handle)

	g.logger.Debug("notification sent",
		"send_id", ulid.Make().String(),
		"category", msg.Category,
		"summary", msg.Summary,
		"replaces_id", replaces,
		"id", id,
	)
	return handle, nil
}
