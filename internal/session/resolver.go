// Package session drives the command/response protocol against a
// connected tachograph adapter: channel resolution, the authentication
// handshake, the download state machine, and the diagnostic probe.
package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tacholink/tacholink/internal/ble"
	"github.com/tacholink/tacholink/internal/protocol"
)

var (
	// ErrNoWriteChannel means no characteristic accepts commands; the
	// device cannot be driven at all.
	ErrNoWriteChannel = errors.New("session: no write channel found")
	// ErrNoNotifyChannel means no characteristic can deliver responses.
	// Authentication degrades to a blind write; downloads are impossible.
	ErrNoNotifyChannel = errors.New("session: no notify channel found")
)

// ChannelPair holds the two halves of the device's command/response
// characteristic pair. Resolved once per connection, immutable after.
type ChannelPair struct {
	Write  ble.Characteristic
	Notify ble.Characteristic
}

// ResolveChannels locates the write and notify characteristics of a
// connected device. The dialect's known UUIDs are tried first; any role
// still unresolved falls back to the first characteristic, in discovery
// order, whose capability flags fit. A missing write channel is fatal;
// a missing notify channel returns the partial pair together with
// ErrNoNotifyChannel so callers can choose to run degraded.
func ResolveChannels(conn ble.Connection, d protocol.Dialect) (ChannelPair, error) {
	chars, err := conn.Characteristics()
	if err != nil {
		return ChannelPair{}, fmt.Errorf("session: discover characteristics: %w", err)
	}

	var pair ChannelPair
	for _, c := range chars {
		info := c.Info()
		if pair.Write == nil && strings.EqualFold(info.UUID, d.WriteCharUUID) {
			pair.Write = c
		}
		if pair.Notify == nil && strings.EqualFold(info.UUID, d.NotifyCharUUID) {
			pair.Notify = c
		}
	}

	// Capability scan for whatever the known UUIDs did not cover.
	// First match wins; no scoring.
	for _, c := range chars {
		if pair.Write != nil && pair.Notify != nil {
			break
		}
		props := c.Info().Properties
		if pair.Write == nil && props.CanWrite() {
			pair.Write = c
		}
		if pair.Notify == nil && props.CanNotify() {
			pair.Notify = c
		}
	}

	if pair.Write == nil {
		return pair, ErrNoWriteChannel
	}
	if pair.Notify == nil {
		return pair, ErrNoNotifyChannel
	}
	return pair, nil
}
