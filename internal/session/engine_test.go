package session

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tacholink/tacholink/internal/ble"
	"github.com/tacholink/tacholink/internal/protocol"
)

// testDialect returns the default dialect with waits short enough for
// unit tests.
func testDialect() protocol.Dialect {
	d := protocol.Default()
	d.AuthTimeout = 50 * time.Millisecond
	d.DownloadTimeout = 150 * time.Millisecond
	d.ProbeWindow = 30 * time.Millisecond
	return d
}

func TestAuthenticateAccepted(t *testing.T) {
	d := testDialect()
	conn, write, notify := newFakeDevice(d)
	write.onWrite = func(_ []byte) {
		notify.notify([]byte{0x4F, 0x4B}) // "OK"
	}

	s, err := New(conn, d)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	verdict, err := s.Authenticate(context.Background(), []byte("1234"))
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if verdict != protocol.VerdictAccepted {
		t.Errorf("verdict = %v, want %v", verdict, protocol.VerdictAccepted)
	}
	if !s.Authenticated() {
		t.Error("session should be authenticated")
	}
	if s.State() != StateAuthenticated {
		t.Errorf("state = %v, want %v", s.State(), StateAuthenticated)
	}
	if notify.unsubscribeCount() != 1 {
		t.Errorf("unsubscribe count = %d, want 1", notify.unsubscribeCount())
	}
}

func TestAuthenticateRejected(t *testing.T) {
	d := testDialect()
	conn, write, notify := newFakeDevice(d)
	write.onWrite = func(_ []byte) {
		notify.notify([]byte{0x00, 0x00})
	}

	s, _ := New(conn, d)
	verdict, err := s.Authenticate(context.Background(), []byte("1234"))
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if verdict != protocol.VerdictRejected {
		t.Errorf("verdict = %v, want %v", verdict, protocol.VerdictRejected)
	}
	if s.Authenticated() {
		t.Error("session should not be authenticated")
	}
	if s.State() != StateIdle {
		t.Errorf("state = %v, want %v", s.State(), StateIdle)
	}
}

func TestAuthenticateSilenceAssumesSuccess(t *testing.T) {
	d := testDialect()
	conn, _, notify := newFakeDevice(d)

	s, _ := New(conn, d)
	verdict, err := s.Authenticate(context.Background(), []byte("1234"))
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if verdict != protocol.VerdictAssumeSuccess {
		t.Errorf("verdict = %v, want %v", verdict, protocol.VerdictAssumeSuccess)
	}
	if !s.Authenticated() {
		t.Error("silent timeout with a notify channel should authenticate optimistically")
	}
	if notify.unsubscribeCount() != 1 {
		t.Errorf("unsubscribe count = %d, want 1", notify.unsubscribeCount())
	}
}

func TestAuthenticateBlindWithoutNotifyChannel(t *testing.T) {
	d := testDialect()
	writeOnly := &fakeChar{info: ble.CharacteristicInfo{UUID: d.WriteCharUUID, Properties: ble.PropWrite}}
	conn := &fakeConn{chars: []ble.Characteristic{writeOnly}}

	s, err := New(conn, d)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	verdict, err := s.Authenticate(context.Background(), []byte("1234"))
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if verdict != protocol.VerdictRejected {
		t.Errorf("verdict = %v, want %v (blind write is pessimistic by default)", verdict, protocol.VerdictRejected)
	}
	if s.Authenticated() {
		t.Error("blind write must not authenticate by default")
	}
	if len(writeOnly.writeLog()) != 1 {
		t.Errorf("credential writes = %d, want 1", len(writeOnly.writeLog()))
	}
}

func TestAuthenticateBlindOptimisticPolicy(t *testing.T) {
	d := testDialect()
	d.BlindWriteAuthenticates = true
	writeOnly := &fakeChar{info: ble.CharacteristicInfo{UUID: d.WriteCharUUID, Properties: ble.PropWrite}}
	conn := &fakeConn{chars: []ble.Characteristic{writeOnly}}

	s, _ := New(conn, d)
	verdict, err := s.Authenticate(context.Background(), []byte("1234"))
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if verdict != protocol.VerdictAssumeSuccess {
		t.Errorf("verdict = %v, want %v", verdict, protocol.VerdictAssumeSuccess)
	}
	if !s.Authenticated() {
		t.Error("policy flag should mark the session authenticated")
	}
}

func TestDownloadEndToEnd(t *testing.T) {
	d := testDialect()
	conn, write, notify := newFakeDevice(d)

	packet1 := bytes.Repeat([]byte{0x11}, 20)
	packet2 := []byte{0x21, 0x22, 0x23, 0x24, 0x04} // ends with EOT marker
	write.onWrite = func(data []byte) {
		if bytes.Equal(data, d.Commands.DownloadVehicleUnit.Opcode) {
			notify.notify(packet1)
			notify.notify(packet2)
		}
	}

	s := authenticatedSession(t, conn, d)

	var phases []Phase
	var progress []int
	res, err := s.Download(context.Background(), d.Commands.DownloadVehicleUnit, nil, Hooks{
		Phase:    func(p Phase) { phases = append(phases, p) },
		Progress: func(n int) { progress = append(progress, n) },
	})
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	want := append(append([]byte{}, packet1...), packet2...)
	if !bytes.Equal(res.Data, want) {
		t.Errorf("payload = %d bytes, want concatenation of both packets (%d bytes)", len(res.Data), len(want))
	}
	if !res.Complete {
		t.Error("EOT marker should mark the transfer complete")
	}
	if s.State() != StateIdle {
		t.Errorf("state after download = %v, want %v", s.State(), StateIdle)
	}

	// init-session, download command, close-session, in order.
	writes := write.writeLog()[1:] // skip the credential write
	if len(writes) != 3 {
		t.Fatalf("command writes = %d, want 3", len(writes))
	}
	if !bytes.Equal(writes[0], d.Commands.InitSession.Opcode) {
		t.Errorf("first command = %v, want init-session", writes[0])
	}
	if !bytes.Equal(writes[1], d.Commands.DownloadVehicleUnit.Opcode) {
		t.Errorf("second command = %v, want download-vehicle-unit", writes[1])
	}
	if !bytes.Equal(writes[2], d.Commands.CloseSession.Opcode) {
		t.Errorf("third command = %v, want close-session", writes[2])
	}

	if len(progress) != 2 || progress[0] != 20 || progress[1] != 25 {
		t.Errorf("progress = %v, want [20 25]", progress)
	}
	if len(phases) == 0 || phases[len(phases)-1] != PhaseDone {
		t.Errorf("phases = %v, want trailing %q", phases, PhaseDone)
	}
}

func TestDownloadWithDateRange(t *testing.T) {
	d := testDialect()
	conn, write, notify := newFakeDevice(d)
	write.onWrite = func(data []byte) {
		if bytes.Equal(data, d.Commands.DownloadDriverCard.Opcode) {
			notify.notify([]byte{0x01, 0x04})
		}
	}

	s := authenticatedSession(t, conn, d)

	rng := &protocol.DateRange{
		Start: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC),
	}
	if _, err := s.Download(context.Background(), d.Commands.DownloadDriverCard, rng, Hooks{}); err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	writes := write.writeLog()[1:]
	if len(writes) != 4 {
		t.Fatalf("command writes = %d, want 4 (init, range, download, close)", len(writes))
	}
	if len(writes[1]) != 14 || writes[1][0] != 0x83 {
		t.Errorf("second write = %v, want 14-byte set-date-range", writes[1])
	}
}

func TestDownloadTimeoutKeepsPartial(t *testing.T) {
	d := testDialect()
	conn, write, notify := newFakeDevice(d)
	partial := bytes.Repeat([]byte{0x33}, 30) // no EOT signal
	write.onWrite = func(data []byte) {
		if bytes.Equal(data, d.Commands.DownloadVehicleUnit.Opcode) {
			notify.notify(partial)
		}
	}

	s := authenticatedSession(t, conn, d)

	start := time.Now()
	res, err := s.Download(context.Background(), d.Commands.DownloadVehicleUnit, nil, Hooks{})
	if err != nil {
		t.Fatalf("Download() error = %v, want partial result", err)
	}
	if res.Complete {
		t.Error("timeout path should report Complete=false")
	}
	if !bytes.Equal(res.Data, partial) {
		t.Errorf("partial payload = %d bytes, want %d", len(res.Data), len(partial))
	}
	if elapsed := time.Since(start); elapsed < d.DownloadTimeout {
		t.Errorf("download returned after %v, before the %v wait", elapsed, d.DownloadTimeout)
	}
	if s.State() != StateIdle {
		t.Errorf("state = %v, want %v", s.State(), StateIdle)
	}
}

func TestDownloadRejectsReentry(t *testing.T) {
	d := testDialect()
	conn, _, _ := newFakeDevice(d)
	s := authenticatedSession(t, conn, d)

	done := make(chan *Result, 1)
	go func() {
		res, _ := s.Download(context.Background(), d.Commands.DownloadVehicleUnit, nil, Hooks{})
		done <- res
	}()

	waitForState(t, s, StateDownloading)

	_, err := s.Download(context.Background(), d.Commands.DownloadVehicleUnit, nil, Hooks{})
	if !errors.Is(err, ErrDownloadInProgress) {
		t.Errorf("re-entrant Download() error = %v, want ErrDownloadInProgress", err)
	}

	if res := <-done; res == nil {
		t.Fatal("first download should still finish")
	}
}

func TestDownloadRequiresAuthentication(t *testing.T) {
	d := testDialect()
	conn, _, _ := newFakeDevice(d)
	s, _ := New(conn, d)

	_, err := s.Download(context.Background(), d.Commands.DownloadVehicleUnit, nil, Hooks{})
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Download() error = %v, want ErrNotAuthenticated", err)
	}
}

func TestDownloadBufferDoesNotLeakBetweenRuns(t *testing.T) {
	d := testDialect()
	conn, write, notify := newFakeDevice(d)

	payloads := [][]byte{
		{0xAA, 0xAB, 0x04},
		{0xBB, 0xBC, 0xBD, 0x04},
	}
	run := 0
	write.onWrite = func(data []byte) {
		if bytes.Equal(data, d.Commands.DownloadVehicleUnit.Opcode) {
			notify.notify(payloads[run])
		}
	}

	s := authenticatedSession(t, conn, d)

	first, err := s.Download(context.Background(), d.Commands.DownloadVehicleUnit, nil, Hooks{})
	if err != nil {
		t.Fatalf("first Download() error = %v", err)
	}
	run = 1
	second, err := s.Download(context.Background(), d.Commands.DownloadVehicleUnit, nil, Hooks{})
	if err != nil {
		t.Fatalf("second Download() error = %v", err)
	}

	if !bytes.Equal(first.Data, payloads[0]) {
		t.Errorf("first payload = %v, want %v", first.Data, payloads[0])
	}
	if !bytes.Equal(second.Data, payloads[1]) {
		t.Errorf("second payload = %v, want %v (no residue from the first run)", second.Data, payloads[1])
	}
}

func TestDownloadUnsubscribesOnTimeoutPath(t *testing.T) {
	d := testDialect()
	d.DownloadTimeout = 30 * time.Millisecond
	conn, _, notify := newFakeDevice(d)
	s := authenticatedSession(t, conn, d)

	if _, err := s.Download(context.Background(), d.Commands.DownloadVehicleUnit, nil, Hooks{}); err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	// One unsubscribe for the auth attempt, one for the download.
	if notify.unsubscribeCount() != 2 {
		t.Errorf("unsubscribe count = %d, want 2", notify.unsubscribeCount())
	}
}

// authenticatedSession builds a session and completes the handshake via
// the silence-assume-success path.
func authenticatedSession(t *testing.T, conn *fakeConn, d protocol.Dialect) *Session {
	t.Helper()
	s, err := New(conn, d)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	verdict, err := s.Authenticate(context.Background(), []byte("1234"))
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if !verdict.Authenticated() {
		t.Fatalf("handshake verdict = %v, want authenticated", verdict)
	}
	return s
}

func waitForState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("session never reached state %v", want)
}
