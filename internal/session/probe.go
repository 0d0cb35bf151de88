package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/tacholink/tacholink/internal/protocol"
)

// ProbeResult records every response the device produced for one
// candidate command, possibly none.
type ProbeResult struct {
	Command   protocol.Command
	Responses [][]byte
}

// Probe sends candidate commands one at a time over the write channel,
// without delivery confirmation, and collects whatever the device
// notifies within the dialect's probe window after each. Stale packets
// are drained between commands so responses attribute to the command
// that provoked them. Used for manual protocol discovery; nothing
// retries.
func (s *Session) Probe(ctx context.Context, commands []protocol.Command) ([]ProbeResult, error) {
	if s.channels.Notify == nil {
		return nil, ErrNoNotifyChannel
	}
	s.mu.Lock()
	if s.state == StateDownloading {
		s.mu.Unlock()
		return nil, ErrDownloadInProgress
	}
	s.mu.Unlock()

	packets, cancel, err := s.subscribe()
	if err != nil {
		return nil, err
	}
	defer cancel()

	results := make([]ProbeResult, 0, len(commands))
	for _, cmd := range commands {
		drain(packets)

		if err := s.writeCommand(cmd, false); err != nil {
			return results, err
		}

		var responses [][]byte
		window := time.NewTimer(s.dialect.ProbeWindow)
	collect:
		for {
			select {
			case p := <-packets:
				responses = append(responses, p)
			case <-window.C:
				break collect
			case <-ctx.Done():
				window.Stop()
				return results, ctx.Err()
			}
		}

		slog.Info("session: probe command finished",
			"command", cmd.Label, "responses", len(responses))
		results = append(results, ProbeResult{Command: cmd, Responses: responses})
	}
	return results, nil
}

// drain discards any packets already queued on the subscription.
func drain(packets <-chan []byte) {
	for {
		select {
		case <-packets:
		default:
			return
		}
	}
}
