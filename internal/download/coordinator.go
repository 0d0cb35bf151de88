package download

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tacholink/tacholink/internal/protocol"
	"github.com/tacholink/tacholink/internal/session"
)

// Status is the overall outcome of one download operation.
type Status int

const (
	StatusFailed Status = iota
	StatusNoData
	StatusSuccess
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNoData:
		return "no-data"
	default:
		return "failed"
	}
}

// Record is the immutable result of a finished download operation.
type Record struct {
	Data     []byte
	Status   Status
	Kind     ArtifactKind
	Path     string // empty unless persisted
	Complete bool   // end-of-transmission observed, vs bounded-wait cutoff
}

// Engine is the slice of the session the coordinator drives.
type Engine interface {
	Download(ctx context.Context, cmd protocol.Command, rng *protocol.DateRange, hooks session.Hooks) (*session.Result, error)
	Dialect() protocol.Dialect
}

// Coordinator wraps the session engine with named download operations
// and artifact persistence. Callers observe progress through the
// optional OnPhase and OnProgress callbacks.
type Coordinator struct {
	engine Engine
	store  *Store

	OnPhase    func(session.Phase)
	OnProgress func(bytes int)
}

// NewCoordinator builds a coordinator over an authenticated session.
func NewCoordinator(engine Engine, store *Store) *Coordinator {
	return &Coordinator{engine: engine, store: store}
}

// DownloadVehicleUnit pulls the vehicle unit data, optionally limited
// to a date range, and persists it as a .tgd artifact.
func (c *Coordinator) DownloadVehicleUnit(ctx context.Context, rng *protocol.DateRange) (*Record, error) {
	d := c.engine.Dialect()
	return c.run(ctx, d.Commands.DownloadVehicleUnit, rng, KindVehicleUnit)
}

// DownloadDriverCard pulls the driver card data, optionally limited to
// a date range, and persists it as a .ddd artifact.
func (c *Coordinator) DownloadDriverCard(ctx context.Context, rng *protocol.DateRange) (*Record, error) {
	d := c.engine.Dialect()
	return c.run(ctx, d.Commands.DownloadDriverCard, rng, KindDriverCard)
}

// SendCustomCommand runs a download flow around an ad-hoc opcode; any
// response data is persisted as a .bin artifact.
func (c *Coordinator) SendCustomCommand(ctx context.Context, opcode []byte, label string) (*Record, error) {
	cmd := protocol.Command{Label: label, Opcode: opcode}
	return c.run(ctx, cmd, nil, KindRaw)
}

func (c *Coordinator) run(ctx context.Context, cmd protocol.Command, rng *protocol.DateRange, kind ArtifactKind) (*Record, error) {
	res, err := c.engine.Download(ctx, cmd, rng, session.Hooks{
		Phase:    c.OnPhase,
		Progress: c.OnProgress,
	})
	if err != nil {
		return &Record{Status: StatusFailed, Kind: kind}, err
	}

	if len(res.Data) == 0 {
		slog.Info("download: device sent no data", "command", cmd.Label)
		return &Record{Status: StatusNoData, Kind: kind, Complete: res.Complete}, nil
	}

	path, err := c.store.Save(kind, res.Data)
	if err != nil {
		return &Record{Data: res.Data, Status: StatusFailed, Kind: kind, Complete: res.Complete},
			fmt.Errorf("download: persist %s artifact: %w", kind, err)
	}
	c.phase(session.PhaseSaved)
	slog.Info("download: artifact saved",
		"command", cmd.Label, "kind", kind.String(), "path", path,
		"bytes", len(res.Data), "complete", res.Complete)

	return &Record{
		Data:     res.Data,
		Status:   StatusSuccess,
		Kind:     kind,
		Path:     path,
		Complete: res.Complete,
	}, nil
}

func (c *Coordinator) phase(p session.Phase) {
	if c.OnPhase != nil {
		c.OnPhase(p)
	}
}
