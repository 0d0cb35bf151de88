package ble

import (
	"context"
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"
)

// TinyGoAdapter wraps tinygo-org/bluetooth. On macOS, device addresses are
// CoreBluetooth UUIDs rather than MAC addresses; the Address fields in
// config and Device structs store whichever form the platform reports.
type TinyGoAdapter struct {
	adapter *bluetooth.Adapter

	// mu protects the connections map.
	mu          sync.Mutex
	connections map[string]*tinyGoConnection // keyed by device address
}

// NewTinyGoAdapter creates a BLE adapter backed by the platform default
// Bluetooth stack.
func NewTinyGoAdapter() *TinyGoAdapter {
	return &TinyGoAdapter{
		adapter:     bluetooth.DefaultAdapter,
		connections: make(map[string]*tinyGoConnection),
	}
}

func (a *TinyGoAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		return err
	}

	// Adapter-level connect handler fires with connected=false when a
	// peripheral drops; route it to the matching connection's callback.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		id := device.Address.String()
		a.mu.Lock()
		conn, ok := a.connections[id]
		a.mu.Unlock()
		if ok && conn.disconnectCb != nil {
			conn.disconnectCb()
		}
	})

	return nil
}

func (a *TinyGoAdapter) Scan(ctx context.Context, serviceUUID string) ([]Device, error) {
	var filter bluetooth.UUID
	filtered := serviceUUID != ""
	if filtered {
		uuid, err := bluetooth.ParseUUID(serviceUUID)
		if err != nil {
			return nil, fmt.Errorf("ble: parse service UUID: %w", err)
		}
		filter = uuid
	}

	var mu sync.Mutex
	var devices []Device
	seen := make(map[string]bool)

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			a.adapter.StopScan()
		case <-done:
		}
	}()

	err := a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		if filtered && !result.HasServiceUUID(filter) {
			return
		}
		addr := result.Address.String()
		mu.Lock()
		defer mu.Unlock()
		if seen[addr] {
			return
		}
		seen[addr] = true
		devices = append(devices, Device{
			Name:    result.LocalName(),
			Address: addr,
			RSSI:    int(result.RSSI),
		})
	})
	close(done)

	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	return devices, nil
}

func (a *TinyGoAdapter) Connect(ctx context.Context, addr string) (Connection, error) {
	var target bluetooth.Address
	target.Set(addr)

	// tinygo/bluetooth's Connect blocks internally with its own timeout.
	// Wrap it so we also respect ctx cancellation.
	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := a.adapter.Connect(target, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		// The underlying Connect will eventually time out or succeed on
		// its own; we cannot cancel it from here.
		return nil, fmt.Errorf("ble: connect to %s: %w", addr, ctx.Err())
	case result := <-ch:
		if result.err != nil {
			return nil, fmt.Errorf("ble: connect to %s: %w", addr, result.err)
		}
		conn := &tinyGoConnection{device: &result.device}

		a.mu.Lock()
		a.connections[addr] = conn
		a.mu.Unlock()

		return conn, nil
	}
}

// Compile-time check that TinyGoAdapter implements Adapter.
var _ Adapter = (*TinyGoAdapter)(nil)

type tinyGoConnection struct {
	device       *bluetooth.Device
	disconnectCb func()
}

func (c *tinyGoConnection) Characteristics() ([]Characteristic, error) {
	svcs, err := c.device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("ble: discover services: %w", err)
	}

	var chars []Characteristic
	for _, svc := range svcs {
		discovered, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("ble: discover characteristics of %s: %w", svc.UUID().String(), err)
		}
		for i := range discovered {
			chars = append(chars, &tinyGoCharacteristic{
				char: &discovered[i],
				info: CharacteristicInfo{
					Service: svc.UUID().String(),
					UUID:    discovered[i].UUID().String(),
					// tinygo/bluetooth does not surface GATT property
					// flags; leave Properties unknown so resolution
					// relies on the dialect's known UUIDs.
				},
			})
		}
	}
	return chars, nil
}

func (c *tinyGoConnection) Disconnect() error {
	return c.device.Disconnect()
}

func (c *tinyGoConnection) OnDisconnect(cb func()) {
	c.disconnectCb = cb
}

type tinyGoCharacteristic struct {
	char *bluetooth.DeviceCharacteristic
	info CharacteristicInfo
}

func (c *tinyGoCharacteristic) Info() CharacteristicInfo {
	return c.info
}

func (c *tinyGoCharacteristic) Write(data []byte, confirm bool) error {
	// tinygo/bluetooth only exposes unacknowledged writes on device
	// characteristics; confirmed delivery degrades to a plain write.
	_ = confirm
	_, err := c.char.WriteWithoutResponse(data)
	return err
}

func (c *tinyGoCharacteristic) Subscribe(cb func(data []byte)) error {
	return c.char.EnableNotifications(func(buf []byte) {
		cb(buf)
	})
}

func (c *tinyGoCharacteristic) Unsubscribe() error {
	return c.char.EnableNotifications(nil)
}
