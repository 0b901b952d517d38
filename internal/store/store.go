// Package store holds the daemon's process-lifetime observation state:
// the last-observed attributes of each sink and the last notification
// handle issued per category. Nothing is persisted across restarts.
package store

// DeviceSnapshot is the last-observed state of a sink. A device absent
// from the store has unknown prior state, which is distinct from a
// zero-valued snapshot.
type DeviceSnapshot struct {
	Muted bool
	// ChannelVolumes holds normalized per-channel levels in the
	// channel order reported by the device.
	ChannelVolumes []float64
}

// Handle identifies the last notification issued for a category. The
// id is assigned by the notification service and reused as the replace
// target on the next send for the same category.
type Handle struct {
	ID uint32
}

// State owns the device-snapshot and notification-handle maps. It is
// created once at loop start and accessed only from the event loop
// goroutine, so it carries no locking. Entries are overwritten but
// never deleted; stale entries for removed devices are simply never
// read again.
type State struct {
	devices map[string]DeviceSnapshot
	handles map[string]Handle
}

// NewState creates an empty State.
func NewState() *State {
	return &State{
		devices: make(map[string]DeviceSnapshot),
		handles: make(map[string]Handle),
	}
}

// Device returns the snapshot for a device name, and whether the
// device has been observed before.
func (s *State) Device(name string) (DeviceSnapshot, bool) {
	snap, ok := s.devices[name]
	return snap, ok
}

// SetDevice records the snapshot for a device name, overwriting any
// prior observation.
func (s *State) SetDevice(name string, snap DeviceSnapshot) {
	s.devices[name] = snap
}

// Handle returns the notification handle for a category, and whether
// one has been issued.
func (s *State) Handle(category string) (Handle, bool) {
	h, ok := s.handles[category]
	return h, ok
}

// SetHandle records the notification handle for a category,
// overwriting any prior handle.
func (s *State) SetHandle(category string, h Handle) {
	s.handles[category] = h
}
