package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tacholink/tacholink/internal/ble"
	"github.com/tacholink/tacholink/internal/protocol"
)

// State is the session's position in the protocol state machine.
type State int

const (
	StateIdle State = iota
	StateAuthenticating
	StateAuthenticated
	StateDownloading
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateDownloading:
		return "downloading"
	case StateClosing:
		return "closing"
	default:
		return "idle"
	}
}

// Phase identifies a step of a running operation, reported through Hooks.
type Phase string

const (
	PhasePreparing    Phase = "preparing"
	PhaseSubscribing  Phase = "configuring-channel"
	PhaseSendingInit  Phase = "sending-init"
	PhaseDateRange    Phase = "setting-date-range"
	PhaseDownloading  Phase = "downloading"
	PhaseClosing      Phase = "closing"
	PhaseDone         Phase = "done"
	// PhaseSaved is emitted by the download coordinator once the
	// artifact is persisted; the engine itself never reaches it.
	PhaseSaved Phase = "saved"
)

// Hooks carries optional observer callbacks for a download: Phase fires
// at each step transition, Progress fires with the total buffered byte
// count after every received packet.
type Hooks struct {
	Phase    func(Phase)
	Progress func(bytes int)
}

func (h Hooks) phase(p Phase) {
	if h.Phase != nil {
		h.Phase(p)
	}
}

func (h Hooks) progress(n int) {
	if h.Progress != nil {
		h.Progress(n)
	}
}

var (
	// ErrDownloadInProgress rejects re-entry while a download is running.
	// The in-flight transfer is left untouched.
	ErrDownloadInProgress = errors.New("session: download already in progress")
	// ErrNotAuthenticated rejects downloads before a successful handshake.
	ErrNotAuthenticated = errors.New("session: not authenticated")
)

// Result is the outcome of one download. Complete is true when an
// end-of-transmission signal was observed, false when the bounded wait
// elapsed and whatever arrived so far was kept.
type Result struct {
	Data     []byte
	Complete bool
}

// Session is the single point of authority for one device connection.
// Channels are resolved once at construction and never change. All
// operations are serialized by contract: one authentication or download
// at a time.
type Session struct {
	dialect  protocol.Dialect
	conn     ble.Connection
	channels ChannelPair

	mu            sync.Mutex
	state         State
	authenticated bool
	buf           TransferBuffer
}

// New resolves the dialect's channel pair on the connection and returns
// a fresh idle session. A connection without a notify channel is usable
// only for blind authentication; the condition is logged, not fatal.
func New(conn ble.Connection, d protocol.Dialect) (*Session, error) {
	pair, err := ResolveChannels(conn, d)
	if err != nil {
		if !errors.Is(err, ErrNoNotifyChannel) {
			return nil, err
		}
		slog.Warn("session: no notify channel resolved, device responses cannot be observed",
			"dialect", d.Name)
	}
	return &Session{dialect: d, conn: conn, channels: pair}, nil
}

// State returns the current state machine position.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Authenticated reports whether the handshake succeeded.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Dialect returns the protocol dialect the session was built with.
func (s *Session) Dialect() protocol.Dialect {
	return s.dialect
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Authenticate writes the credential and classifies the device's first
// response. Silence within the auth window resolves to the dialect's
// SilenceVerdict. When no notify channel exists the credential is
// written blind and BlindWriteAuthenticates decides the outcome; the
// default is to report the session unauthenticated, because there
// verification is structurally impossible rather than merely
// inconclusive.
func (s *Session) Authenticate(ctx context.Context, credential []byte) (protocol.Verdict, error) {
	s.setState(StateAuthenticating)

	if s.channels.Notify == nil {
		return s.authenticateBlind(credential)
	}

	packets, cancel, err := s.subscribe()
	if err != nil {
		s.setState(StateIdle)
		return protocol.VerdictRejected, err
	}
	defer cancel()

	if err := s.channels.Write.Write(credential, true); err != nil {
		s.setState(StateIdle)
		return protocol.VerdictRejected, fmt.Errorf("session: write credential: %w", err)
	}

	var verdict protocol.Verdict
	select {
	case resp := <-packets:
		verdict = protocol.Classify(s.dialect.AuthRules, resp)
		slog.Debug("session: classified auth response",
			"bytes", len(resp),
			"rule", protocol.MatchingRule(s.dialect.AuthRules, resp),
			"verdict", verdict.String())
	case <-time.After(s.dialect.AuthTimeout):
		verdict = s.dialect.SilenceVerdict
		slog.Info("session: no auth response within window, device may not confirm explicitly",
			"wait", s.dialect.AuthTimeout, "verdict", verdict.String())
	case <-ctx.Done():
		s.setState(StateIdle)
		return protocol.VerdictRejected, ctx.Err()
	}

	s.mu.Lock()
	s.authenticated = verdict.Authenticated()
	if s.authenticated {
		s.state = StateAuthenticated
	} else {
		s.state = StateIdle
	}
	s.mu.Unlock()

	return verdict, nil
}

// authenticateBlind is the degraded handshake used when the connection
// exposes no notify channel.
func (s *Session) authenticateBlind(credential []byte) (protocol.Verdict, error) {
	if err := s.channels.Write.Write(credential, false); err != nil {
		s.setState(StateIdle)
		return protocol.VerdictRejected, fmt.Errorf("session: write credential: %w", err)
	}

	verdict := protocol.VerdictRejected
	if s.dialect.BlindWriteAuthenticates {
		verdict = protocol.VerdictAssumeSuccess
	}

	s.mu.Lock()
	s.authenticated = verdict.Authenticated()
	if s.authenticated {
		s.state = StateAuthenticated
	} else {
		s.state = StateIdle
	}
	s.mu.Unlock()

	slog.Warn("session: credential written without verification",
		"authenticated", verdict.Authenticated())
	return verdict, nil
}

// Download runs one full transfer: init-session, optional date-range,
// the download command, packet accumulation until end-of-transmission
// or the bounded wait, then close-session. A wait that elapses without
// an EOT signal is not an error; the partial payload is returned with
// Complete=false.
func (s *Session) Download(ctx context.Context, cmd protocol.Command, rng *protocol.DateRange, hooks Hooks) (*Result, error) {
	s.mu.Lock()
	if s.state == StateDownloading {
		s.mu.Unlock()
		return nil, ErrDownloadInProgress
	}
	if !s.authenticated {
		s.mu.Unlock()
		return nil, ErrNotAuthenticated
	}
	if s.channels.Notify == nil {
		s.mu.Unlock()
		return nil, ErrNoNotifyChannel
	}
	s.state = StateDownloading
	s.buf.Reset()
	s.mu.Unlock()

	hooks.phase(PhasePreparing)

	hooks.phase(PhaseSubscribing)
	packets, cancel, err := s.subscribe()
	if err != nil {
		s.setState(StateIdle)
		return nil, err
	}
	defer cancel()

	hooks.phase(PhaseSendingInit)
	if err := s.writeCommand(s.dialect.Commands.InitSession, true); err != nil {
		s.setState(StateIdle)
		return nil, err
	}

	if rng != nil {
		hooks.phase(PhaseDateRange)
		if err := s.writeCommand(protocol.SetDateRangeCommand(s.dialect, *rng), true); err != nil {
			s.setState(StateIdle)
			return nil, err
		}
	}

	if err := s.writeCommand(cmd, true); err != nil {
		s.setState(StateIdle)
		return nil, err
	}

	hooks.phase(PhaseDownloading)
	complete := false
	deadline := time.NewTimer(s.dialect.DownloadTimeout)
	defer deadline.Stop()

loop:
	for {
		select {
		case p := <-packets:
			s.buf.Append(p)
			hooks.progress(s.buf.Len())
			if protocol.EndOfTransmission(s.dialect.EOTRules, p, s.buf.Len()) {
				slog.Debug("session: end of transmission detected",
					"packet", len(p), "total", s.buf.Len())
				complete = true
				break loop
			}
		case <-deadline.C:
			slog.Info("session: download wait elapsed, keeping partial transfer",
				"wait", s.dialect.DownloadTimeout, "bytes", s.buf.Len())
			break loop
		case <-ctx.Done():
			s.closeDevice(hooks)
			return nil, ctx.Err()
		}
	}

	s.closeDevice(hooks)
	hooks.phase(PhaseDone)
	return &Result{Data: s.buf.Bytes(), Complete: complete}, nil
}

// closeDevice writes close-session best-effort and returns the state
// machine to Idle. The notify subscription is cancelled by the caller's
// deferred cancel.
func (s *Session) closeDevice(hooks Hooks) {
	s.setState(StateClosing)
	hooks.phase(PhaseClosing)
	if err := s.writeCommand(s.dialect.Commands.CloseSession, false); err != nil {
		slog.Warn("session: close-session write failed", "error", err)
	}
	s.setState(StateIdle)
}

// writeCommand sends one opcode over the write channel.
func (s *Session) writeCommand(cmd protocol.Command, confirm bool) error {
	if err := s.channels.Write.Write(cmd.Opcode, confirm); err != nil {
		return fmt.Errorf("session: write %s: %w", cmd.Label, err)
	}
	slog.Debug("session: sent command", "command", cmd.Label, "bytes", len(cmd.Opcode))
	return nil
}

// subscribe routes notify packets into a buffered channel with a
// single-consumer contract. The returned cancel func unsubscribes
// exactly once, no matter how many times it runs.
func (s *Session) subscribe() (<-chan []byte, func(), error) {
	packets := make(chan []byte, 32)
	err := s.channels.Notify.Subscribe(func(p []byte) {
		cp := make([]byte, len(p))
		copy(cp, p)
		select {
		case packets <- cp:
		default:
			slog.Warn("session: dropping notification, consumer behind", "bytes", len(p))
		}
	})
	if err != nil {
		return nil, nil, fmt.Errorf("session: subscribe: %w", err)
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			if err := s.channels.Notify.Unsubscribe(); err != nil {
				slog.Warn("session: unsubscribe failed", "error", err)
			}
		})
	}
	return packets, cancel, nil
}
