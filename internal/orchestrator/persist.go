package orchestrator

import (
	"context"
	"errors"

	"github.com/nidhogg/nuka-society/internal/model"
	"github.com/nidhogg/nuka-society/internal/simerr"
	"github.com/nidhogg/nuka-society/internal/store"
	"go.uber.org/zap"
)

// Exporter copies the world state.
type Exporter interface {
	Export(ctx context.Context) *store.Snapshot
}

// SnapshotSaver writes a snapshot to durable storage.
type SnapshotSaver interface {
	SaveSnapshot(ctx context.Context, snap *store.Snapshot) error
}

// GraphMirror copies the relationship graph into a graph database.
type GraphMirror interface {
	Sync(ctx context.Context, agents []*model.Agent, rels []*model.Relationship) error
}

// Sweeper drops expired memories.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Persister is the persist pass: it saves a snapshot, mirrors relationships
// and sweeps memories. Nil collaborators are skipped.
type Persister struct {
	source  Exporter
	saver   SnapshotSaver
	mirror  GraphMirror
	sweeper Sweeper
	logger  *zap.Logger
}

// NewPersister creates the persist pass.
func NewPersister(source Exporter, saver SnapshotSaver, mirror GraphMirror, sweeper Sweeper, logger *zap.Logger) *Persister {
	return &Persister{source: source, saver: saver, mirror: mirror, sweeper: sweeper, logger: logger}
}

// Run executes the pass. Every step runs even when an earlier one fails; the
// errors are joined and reported as repository failures.
func (p *Persister) Run(ctx context.Context) error {
	snap := p.source.Export(ctx)
	var errs []error

	if p.saver != nil {
		if err := p.saver.SaveSnapshot(ctx, snap); err != nil {
			errs = append(errs, simerr.Repository("save snapshot", err))
		}
	}
	if p.mirror != nil {
		if err := p.mirror.Sync(ctx, snap.Agents, snap.Relationships); err != nil {
			errs = append(errs, simerr.Repository("mirror relationships", err))
		}
	}
	if p.sweeper != nil {
		n, err := p.sweeper.Sweep(ctx)
		if err != nil {
			errs = append(errs, simerr.Repository("sweep memories", err))
		} else if n > 0 {
			p.logger.Debug("expired memories swept", zap.Int("count", n))
		}
	}
	return errors.Join(errs...)
}
