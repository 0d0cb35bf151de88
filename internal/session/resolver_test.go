package session

import (
	"errors"
	"strings"
	"testing"

	"github.com/tacholink/tacholink/internal/ble"
	"github.com/tacholink/tacholink/internal/protocol"
)

func TestResolveChannelsByKnownUUID(t *testing.T) {
	d := protocol.Default()
	conn, write, notify := newFakeDevice(d)

	pair, err := ResolveChannels(conn, d)
	if err != nil {
		t.Fatalf("ResolveChannels() error = %v", err)
	}
	if pair.Write != write {
		t.Error("write role did not resolve to the dialect's write characteristic")
	}
	if pair.Notify != notify {
		t.Error("notify role did not resolve to the dialect's notify characteristic")
	}
}

func TestResolveChannelsUUIDMatchIsCaseInsensitive(t *testing.T) {
	d := protocol.Default()
	conn, write, _ := newFakeDevice(d)
	write.info.UUID = strings.ToUpper(write.info.UUID)

	pair, err := ResolveChannels(conn, d)
	if err != nil {
		t.Fatalf("ResolveChannels() error = %v", err)
	}
	if pair.Write != write {
		t.Error("uppercase UUID should still match the write role")
	}
}

func TestResolveChannelsCapabilityFallback(t *testing.T) {
	d := protocol.Default()

	// Unknown UUIDs; roles must resolve from capability flags, first
	// match in discovery order.
	readOnly := &fakeChar{info: ble.CharacteristicInfo{UUID: "1111"}}
	writable := &fakeChar{info: ble.CharacteristicInfo{UUID: "2222", Properties: ble.PropWrite}}
	writable2 := &fakeChar{info: ble.CharacteristicInfo{UUID: "3333", Properties: ble.PropWriteNoResponse}}
	indicating := &fakeChar{info: ble.CharacteristicInfo{UUID: "4444", Properties: ble.PropIndicate}}
	conn := &fakeConn{chars: []ble.Characteristic{readOnly, writable, writable2, indicating}}

	pair, err := ResolveChannels(conn, d)
	if err != nil {
		t.Fatalf("ResolveChannels() error = %v", err)
	}
	if pair.Write != writable {
		t.Error("write role should be the first write-capable characteristic")
	}
	if pair.Notify != indicating {
		t.Error("notify role should accept an indicate-capable characteristic")
	}
}

func TestResolveChannelsNoWriteChannel(t *testing.T) {
	d := protocol.Default()
	notifyOnly := &fakeChar{info: ble.CharacteristicInfo{UUID: "9999", Properties: ble.PropNotify}}
	conn := &fakeConn{chars: []ble.Characteristic{notifyOnly}}

	_, err := ResolveChannels(conn, d)
	if !errors.Is(err, ErrNoWriteChannel) {
		t.Errorf("ResolveChannels() error = %v, want ErrNoWriteChannel", err)
	}
}

func TestResolveChannelsNoNotifyChannelKeepsWrite(t *testing.T) {
	d := protocol.Default()
	writeOnly := &fakeChar{info: ble.CharacteristicInfo{UUID: "9999", Properties: ble.PropWrite}}
	conn := &fakeConn{chars: []ble.Characteristic{writeOnly}}

	pair, err := ResolveChannels(conn, d)
	if !errors.Is(err, ErrNoNotifyChannel) {
		t.Fatalf("ResolveChannels() error = %v, want ErrNoNotifyChannel", err)
	}
	if pair.Write != writeOnly {
		t.Error("partial pair should still carry the resolved write channel")
	}
}

func TestResolveChannelsDiscoveryError(t *testing.T) {
	d := protocol.Default()
	conn := &fakeConn{charsErr: errors.New("gatt timeout")}

	_, err := ResolveChannels(conn, d)
	if err == nil {
		t.Fatal("ResolveChannels() should propagate discovery failure")
	}
}
