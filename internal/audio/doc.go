// Package audio provides read-only access to PulseAudio server state.
// It exposes sink and card lookups plus a subscription to the server's
// change-event stream. The default implementation shells out to the
// pactl command line tool; consumers depend on the Client interface so
// tests can substitute a fake.
package audio
