package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pa3u3u/volume-monitor/internal/audio"
	"github.com/Pa3u3u/volume-monitor/internal/notify"
	"github.com/Pa3u3u/volume-monitor/internal/store"
)

// fakeClient serves sinks and cards from maps keyed by server index.
type fakeClient struct {
	sinks map[uint32]audio.Sink
	cards map[uint32]audio.Card
}

func (c *fakeClient) Sinks(context.Context) ([]audio.Sink, error) {
	sinks := make([]audio.Sink, 0, len(c.sinks))
	for _, s := range c.sinks {
		sinks = append(sinks, s)
	}
	return sinks, nil
}

func (c *fakeClient) SinkByIndex(_ context.Context, index uint32) (audio.Sink, error) {
	s, ok := c.sinks[index]
	if !ok {
		return audio.Sink{}, audio.ErrNotFound
	}
	return s, nil
}

func (c *fakeClient) CardByIndex(_ context.Context, index uint32) (audio.Card, error) {
	card, ok := c.cards[index]
	if !ok {
		return audio.Card{}, audio.ErrNotFound
	}
	return card, nil
}

func (c *fakeClient) Subscribe(context.Context) (<-chan audio.Event, error) {
	ch := make(chan audio.Event)
	close(ch)
	return ch, nil
}

func (c *fakeClient) Close() error { return nil }

// fakeTransport records Notify calls and assigns increasing ids.
type fakeTransport struct {
	calls  []notify.Notification
	nextID uint32
	err    error
}

func (t *fakeTransport) Notify(_ context.Context, n notify.Notification) (uint32, error) {
	if t.err != nil {
		return 0, t.err
	}
	t.calls = append(t.calls, n)
	if n.ReplacesID != 0 {
		return n.ReplacesID, nil
	}
	t.nextID++
	return t.nextID, nil
}

func newTestEngine(client *fakeClient) (*Engine, *fakeTransport, *store.State) {
	transport := &fakeTransport{}
	state := store.NewState()
	gateway := notify.NewGateway(transport, state, "volume-monitor", nil)
	return New(client, gateway, state, nil), transport, state
}

func sinkEvent(index uint32) audio.Event {
	return audio.Event{Facility: audio.FacilitySink, Type: audio.EventChange, Index: index}
}

func TestHandleEvent_MuteTransitionFromKnownState(t *testing.T) {
	client := &fakeClient{sinks: map[uint32]audio.Sink{
		0: {Name: "sink", Muted: true, ChannelVolumes: []float64{0.3, 0.7}},
	}}
	e, transport, state := newTestEngine(client)
	state.SetDevice("sink", store.DeviceSnapshot{Muted: false, ChannelVolumes: []float64{0.5, 0.5}})

	require.NoError(t, e.HandleEvent(context.Background(), sinkEvent(0)))

	// One mute notification, no separate volume notification despite
	// the simultaneous level change.
	require.Len(t, transport.calls, 1)
	call := transport.calls[0]
	assert.Equal(t, "Audio muted", call.Summary)
	assert.Equal(t, "audio-volume-muted", call.AppIcon)
	assert.NotContains(t, call.Hints, "value")

	snap, ok := state.Device("sink")
	require.True(t, ok)
	assert.True(t, snap.Muted)
	assert.Equal(t, []float64{0.3, 0.7}, snap.ChannelVolumes)
}

func TestHandleEvent_MuteTransitionOnFirstSighting(t *testing.T) {
	client := &fakeClient{sinks: map[uint32]audio.Sink{
		0: {Name: "sink", Muted: true, ChannelVolumes: []float64{0.5}},
	}}
	e, transport, _ := newTestEngine(client)

	require.NoError(t, e.HandleEvent(context.Background(), sinkEvent(0)))

	require.Len(t, transport.calls, 1)
	assert.Equal(t, "Audio muted", transport.calls[0].Summary)
}

func TestHandleEvent_UnmuteTransition(t *testing.T) {
	client := &fakeClient{sinks: map[uint32]audio.Sink{
		0: {Name: "sink", Muted: false, ChannelVolumes: []float64{0.5, 0.5}},
	}}
	e, transport, state := newTestEngine(client)
	state.SetDevice("sink", store.DeviceSnapshot{Muted: true, ChannelVolumes: []float64{0.5, 0.5}})

	require.NoError(t, e.HandleEvent(context.Background(), sinkEvent(0)))

	require.Len(t, transport.calls, 1)
	call := transport.calls[0]
	assert.Equal(t, "Audio unmuted", call.Summary)
	// Both mute directions share the muted icon.
	assert.Equal(t, "audio-volume-muted", call.AppIcon)
}

func TestHandleEvent_NoChangeSendsNothing(t *testing.T) {
	client := &fakeClient{sinks: map[uint32]audio.Sink{
		0: {Name: "sink", Muted: false, ChannelVolumes: []float64{0.5, 0.5}},
	}}
	e, transport, state := newTestEngine(client)

	prior := []float64{0.5, 0.5}
	state.SetDevice("sink", store.DeviceSnapshot{Muted: false, ChannelVolumes: prior})

	require.NoError(t, e.HandleEvent(context.Background(), sinkEvent(0)))
	assert.Empty(t, transport.calls)

	// The stored snapshot still aliases the original slice: the event
	// did not rewrite it with the freshly fetched copy.
	snap, ok := state.Device("sink")
	require.True(t, ok)
	prior[0] = 0.99
	assert.Equal(t, 0.99, snap.ChannelVolumes[0])
}

func TestHandleEvent_VolumeChangeUniformChannels(t *testing.T) {
	client := &fakeClient{sinks: map[uint32]audio.Sink{
		0: {Name: "sink", Muted: false, ChannelVolumes: []float64{0.5, 0.5}},
	}}
	e, transport, state := newTestEngine(client)
	state.SetDevice("sink", store.DeviceSnapshot{Muted: false, ChannelVolumes: []float64{0.4, 0.4}})

	require.NoError(t, e.HandleEvent(context.Background(), sinkEvent(0)))

	require.Len(t, transport.calls, 1)
	call := transport.calls[0]
	assert.Equal(t, "50%", call.Body)
	assert.Equal(t, "audio-volume-medium", call.AppIcon)

	hint, ok := call.Hints["value"]
	require.True(t, ok)
	assert.Equal(t, int32(50), hint.Value())
}

func TestHandleEvent_VolumeChangeUnevenChannels(t *testing.T) {
	client := &fakeClient{sinks: map[uint32]audio.Sink{
		0: {Name: "sink", Muted: false, ChannelVolumes: []float64{0.2, 0.8}},
	}}
	e, transport, state := newTestEngine(client)
	state.SetDevice("sink", store.DeviceSnapshot{Muted: false, ChannelVolumes: []float64{0.5, 0.5}})

	require.NoError(t, e.HandleEvent(context.Background(), sinkEvent(0)))

	require.Len(t, transport.calls, 1)
	call := transport.calls[0]
	assert.Equal(t, "[20%, 80%]", call.Body)

	hint, ok := call.Hints["value"]
	require.True(t, ok)
	assert.Equal(t, int32(50), hint.Value())
}

func TestHandleEvent_VolumeChangeWhileMuted(t *testing.T) {
	// No mute edge: the device stays muted, only levels move. The
	// fallback branch reports the volume change.
	client := &fakeClient{sinks: map[uint32]audio.Sink{
		0: {Name: "sink", Muted: true, ChannelVolumes: []float64{0.1, 0.1}},
	}}
	e, transport, state := newTestEngine(client)
	state.SetDevice("sink", store.DeviceSnapshot{Muted: true, ChannelVolumes: []float64{0.5, 0.5}})

	require.NoError(t, e.HandleEvent(context.Background(), sinkEvent(0)))

	require.Len(t, transport.calls, 1)
	assert.Equal(t, "10%", transport.calls[0].Body)
}

func TestHandleEvent_IdempotentSnapshots(t *testing.T) {
	client := &fakeClient{sinks: map[uint32]audio.Sink{
		0: {Name: "sink", Muted: false, ChannelVolumes: []float64{0.6}},
	}}
	e, transport, state := newTestEngine(client)
	state.SetDevice("sink", store.DeviceSnapshot{Muted: false, ChannelVolumes: []float64{0.4}})

	require.NoError(t, e.HandleEvent(context.Background(), sinkEvent(0)))
	require.NoError(t, e.HandleEvent(context.Background(), sinkEvent(0)))

	// First occurrence notifies, the identical repeat does not.
	assert.Len(t, transport.calls, 1)
}

func TestVolumeIcon(t *testing.T) {
	tests := []struct {
		avg  float64
		icon string
	}{
		{0.70, "audio-volume-high"},
		{0.50, "audio-volume-medium"},
		{0.10, "audio-volume-low"},
		{0.66, "audio-volume-medium"}, // boundary is not high
		{0.33, "audio-volume-low"},    // boundary is not medium
	}

	for _, tt := range tests {
		assert.Equal(t, tt.icon, volumeIcon(tt.avg), "avg %.2f", tt.avg)
	}
}

func TestFormatLevels(t *testing.T) {
	assert.Equal(t, "50%", formatLevels([]float64{0.5, 0.5}, 0.5))
	assert.Equal(t, "[20%, 80%]", formatLevels([]float64{0.2, 0.8}, 0.5))
	assert.Equal(t, "67%", formatLevels([]float64{0.666}, 0.666))
	// Within tolerance counts as uniform.
	assert.Equal(t, "50%", formatLevels([]float64{0.5, 0.5005}, 0.50025))
}

func TestHandleEvent_ReplacesPriorNotificationForSameSink(t *testing.T) {
	client := &fakeClient{sinks: map[uint32]audio.Sink{
		0: {Name: "sink", Muted: false, ChannelVolumes: []float64{0.4}},
	}}
	e, transport, state := newTestEngine(client)
	state.SetDevice("sink", store.DeviceSnapshot{Muted: false, ChannelVolumes: []float64{0.3}})

	require.NoError(t, e.HandleEvent(context.Background(), sinkEvent(0)))

	client.sinks[0] = audio.Sink{Name: "sink", Muted: false, ChannelVolumes: []float64{0.5}}
	require.NoError(t, e.HandleEvent(context.Background(), sinkEvent(0)))

	require.Len(t, transport.calls, 2)
	assert.Equal(t, uint32(0), transport.calls[0].ReplacesID)
	assert.Equal(t, uint32(1), transport.calls[1].ReplacesID)
}

func TestHandleEvent_StaleSinkIndex(t *testing.T) {
	client := &fakeClient{sinks: map[uint32]audio.Sink{}}
	e, transport, state := newTestEngine(client)

	require.NoError(t, e.HandleEvent(context.Background(), sinkEvent(42)))

	assert.Empty(t, transport.calls)
	_, ok := state.Device("sink")
	assert.False(t, ok)
}

func TestHandleEvent_CardEvents(t *testing.T) {
	client := &fakeClient{cards: map[uint32]audio.Card{
		3: {Name: "alsa_card.usb", Description: "USB Audio Device"},
	}}
	e, transport, _ := newTestEngine(client)

	tests := []struct {
		eventType audio.EventType
		summary   string
	}{
		{audio.EventNew, "New"},
		{audio.EventChange, "Change"},
		{audio.EventRemove, "Remove"},
	}

	for _, tt := range tests {
		ev := audio.Event{Facility: audio.FacilityCard, Type: tt.eventType, Index: 3}
		require.NoError(t, e.HandleEvent(context.Background(), ev))
	}

	require.Len(t, transport.calls, 3)
	for i, tt := range tests {
		call := transport.calls[i]
		assert.Equal(t, tt.summary, call.Summary)
		assert.Equal(t, "USB Audio Device", call.Body)
		assert.Equal(t, "audio-card", call.AppIcon)
		assert.Equal(t, int32(5000), call.ExpireTimeout)
		assert.NotContains(t, call.Hints, "value")
	}
}

func TestHandleEvent_CardEventsNotifyEveryTime(t *testing.T) {
	// Cards keep no snapshot: an unchanged card still announces each
	// change event.
	client := &fakeClient{cards: map[uint32]audio.Card{
		3: {Name: "card", Description: "Built-in Audio"},
	}}
	e, transport, _ := newTestEngine(client)

	ev := audio.Event{Facility: audio.FacilityCard, Type: audio.EventChange, Index: 3}
	require.NoError(t, e.HandleEvent(context.Background(), ev))
	require.NoError(t, e.HandleEvent(context.Background(), ev))

	assert.Len(t, transport.calls, 2)
}

func TestHandleEvent_StaleCardIndex(t *testing.T) {
	client := &fakeClient{cards: map[uint32]audio.Card{}}
	e, transport, _ := newTestEngine(client)

	ev := audio.Event{Facility: audio.FacilityCard, Type: audio.EventRemove, Index: 9}
	require.NoError(t, e.HandleEvent(context.Background(), ev))
	assert.Empty(t, transport.calls)
}

func TestHandleEvent_OtherFacilityIgnored(t *testing.T) {
	client := &fakeClient{}
	e, transport, _ := newTestEngine(client)

	ev := audio.Event{Facility: audio.FacilityOther, Type: audio.EventChange, Index: 1}
	require.NoError(t, e.HandleEvent(context.Background(), ev))
	assert.Empty(t, transport.calls)
}

func TestHandleEvent_SendFailurePropagatesWithoutSnapshotUpdate(t *testing.T) {
	client := &fakeClient{sinks: map[uint32]audio.Sink{
		0: {Name: "sink", Muted: true, ChannelVolumes: []float64{0.5}},
	}}
	transport := &fakeTransport{err: errors.New("service unreachable")}
	state := store.NewState()
	gateway := notify.NewGateway(transport, state, "volume-monitor", nil)
	e := New(client, gateway, state, nil)

	err := e.HandleEvent(context.Background(), sinkEvent(0))
	require.Error(t, err)

	_, ok := state.Device("sink")
	assert.False(t, ok)
}
