package session

import (
	"sync"
	"testing"

	"github.com/tacholink/tacholink/internal/ble"
	"github.com/tacholink/tacholink/internal/protocol"
)

// fakeChar records writes and lets tests push notifications.
type fakeChar struct {
	mu       sync.Mutex
	info     ble.CharacteristicInfo
	writes   [][]byte
	confirms []bool
	writeErr error
	subErr   error
	cb       func([]byte)
	unsubs   int

	// onWrite, when set, is invoked after each recorded write so tests
	// can script device responses.
	onWrite func(data []byte)
}

func (c *fakeChar) Info() ble.CharacteristicInfo { return c.info }

func (c *fakeChar) Write(data []byte, confirm bool) error {
	c.mu.Lock()
	if c.writeErr != nil {
		err := c.writeErr
		c.mu.Unlock()
		return err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.writes = append(c.writes, cp)
	c.confirms = append(c.confirms, confirm)
	hook := c.onWrite
	c.mu.Unlock()
	if hook != nil {
		hook(cp)
	}
	return nil
}

func (c *fakeChar) Subscribe(cb func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subErr != nil {
		return c.subErr
	}
	c.cb = cb
	return nil
}

func (c *fakeChar) Unsubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cb = nil
	c.unsubs++
	return nil
}

// notify delivers a packet to the current subscriber, if any.
func (c *fakeChar) notify(p []byte) {
	c.mu.Lock()
	cb := c.cb
	c.mu.Unlock()
	if cb != nil {
		cb(p)
	}
}

func (c *fakeChar) writeLog() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

func (c *fakeChar) unsubscribeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unsubs
}

// fakeConn serves a fixed characteristic list in discovery order.
type fakeConn struct {
	chars        []ble.Characteristic
	charsErr     error
	disconnected bool
	disconnectCb func()
}

func (c *fakeConn) Characteristics() ([]ble.Characteristic, error) {
	return c.chars, c.charsErr
}

func (c *fakeConn) Disconnect() error {
	c.disconnected = true
	return nil
}

func (c *fakeConn) OnDisconnect(cb func()) {
	c.disconnectCb = cb
}

// newFakeDevice builds a connection exposing the default dialect's
// write/notify pair and returns the two characteristics for scripting.
func newFakeDevice(d protocol.Dialect) (*fakeConn, *fakeChar, *fakeChar) {
	write := &fakeChar{info: ble.CharacteristicInfo{
		Service:    d.ServiceUUID,
		UUID:       d.WriteCharUUID,
		Properties: ble.PropWriteNoResponse,
	}}
	notify := &fakeChar{info: ble.CharacteristicInfo{
		Service:    d.ServiceUUID,
		UUID:       d.NotifyCharUUID,
		Properties: ble.PropNotify,
	}}
	conn := &fakeConn{chars: []ble.Characteristic{write, notify}}
	return conn, write, notify
}

func TestFakeCharImplementsInterface(t *testing.T) {
	var _ ble.Characteristic = (*fakeChar)(nil)
}

func TestFakeConnImplementsInterface(t *testing.T) {
	var _ ble.Connection = (*fakeConn)(nil)
}
