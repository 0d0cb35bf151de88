// Package ble abstracts the Bluetooth Low Energy transport used to talk
// to tachograph download adapters. It exposes a small adapter interface
// so the session engine never touches a concrete BLE stack directly.
package ble

import "context"

// CharProperties is a bit set of GATT characteristic capability flags.
type CharProperties uint8

const (
	PropWrite CharProperties = 1 << iota
	PropWriteNoResponse
	PropNotify
	PropIndicate
)

// CanWrite reports whether the characteristic accepts outgoing commands.
func (p CharProperties) CanWrite() bool {
	return p&(PropWrite|PropWriteNoResponse) != 0
}

// CanNotify reports whether the characteristic can push device responses.
func (p CharProperties) CanNotify() bool {
	return p&(PropNotify|PropIndicate) != 0
}

// CharacteristicInfo identifies a discovered characteristic. Properties
// may be zero when the underlying stack does not expose GATT flags.
type CharacteristicInfo struct {
	Service    string
	UUID       string
	Properties CharProperties
}

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// Info returns the identity and capability flags of the characteristic.
	Info() CharacteristicInfo
	// Write sends data to the characteristic. When confirm is true the
	// write requests link-layer delivery confirmation if the stack
	// supports it.
	Write(data []byte, confirm bool) error
	// Subscribe registers a callback for notifications on this
	// characteristic. At most one subscriber is active at a time.
	Subscribe(callback func(data []byte)) error
	// Unsubscribe disables notifications and drops the callback.
	Unsubscribe() error
}

// Device represents a discovered BLE peripheral.
type Device struct {
	Name    string
	Address string
	RSSI    int
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// Characteristics enumerates every characteristic of every service,
	// in the order reported by discovery.
	Characteristics() ([]Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan discovers BLE peripherals advertising the given service UUID.
	// An empty serviceUUID matches any peripheral. Returns discovered
	// devices until ctx is cancelled or times out.
	Scan(ctx context.Context, serviceUUID string) ([]Device, error)
	// Connect establishes a connection to the device at the given address.
	Connect(ctx context.Context, addr string) (Connection, error)
}
