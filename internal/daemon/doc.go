// Package daemon provides the main orchestration for volume-monitord.
// It primes the snapshot store from the initial sink listing, drives
// the serialized event loop, and hot-reloads daemon-level
// configuration.
package daemon
