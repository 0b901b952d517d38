// Package notify delivers desktop notifications through the
// org.freedesktop.Notifications D-Bus interface. The Gateway adds
// per-category replace semantics on top of the raw Notify call so
// repeated updates for the same device supersede each other instead
// of stacking.
package notify
