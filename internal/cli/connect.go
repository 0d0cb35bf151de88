package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tacholink/tacholink/internal/ble"
	"github.com/tacholink/tacholink/internal/session"
)

// openSession enables the adapter, connects to the configured device
// (scanning for one when no address is set) and resolves the session's
// channel pair. The caller owns the returned connection.
func openSession(ctx context.Context) (*session.Session, ble.Connection, error) {
	adapter := ble.NewTinyGoAdapter()
	if err := adapter.Enable(); err != nil {
		return nil, nil, fmt.Errorf("enable adapter: %w", err)
	}

	dialect := cfg.BuildDialect()

	addr := cfg.Device.Address
	if addr == "" {
		scanCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Device.ScanTimeoutSeconds)*time.Second)
		defer cancel()

		devices, err := adapter.Scan(scanCtx, dialect.ServiceUUID)
		if err != nil {
			return nil, nil, fmt.Errorf("scan: %w", err)
		}
		if len(devices) == 0 {
			return nil, nil, fmt.Errorf("no adapter advertising service %s found", dialect.ServiceUUID)
		}
		addr = devices[0].Address
		slog.Info("using first discovered device",
			"name", devices[0].Name, "address", addr, "rssi", devices[0].RSSI)
	}

	conn, err := adapter.Connect(ctx, addr)
	if err != nil {
		return nil, nil, err
	}

	s, err := session.New(conn, dialect)
	if err != nil {
		_ = conn.Disconnect()
		return nil, nil, err
	}
	return s, conn, nil
}

// authenticate runs the handshake with the --password credential and
// fails unless the verdict counts as authenticated.
func authenticate(ctx context.Context, s *session.Session) error {
	verdict, err := s.Authenticate(ctx, []byte(password))
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	if !verdict.Authenticated() {
		return fmt.Errorf("authentication failed (verdict: %s)", verdict)
	}
	slog.Info("authenticated", "verdict", verdict.String())
	return nil
}
