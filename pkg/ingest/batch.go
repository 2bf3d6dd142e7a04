package ingest

import (
	"context"
	"errors"

	"github.com/alitto/pond/v2"
	"github.com/restakelabs/restakex/pkg/snapshot"
	"github.com/restakelabs/restakex/pkg/utils"
	"go.uber.org/zap"
)

// Skipped is one record rejected during a batch, with the reason.
type Skipped struct {
	Index   int    `json:"index"`
	Address string `json:"address"`
	Reason  string `json:"reason"`
}

// Report summarizes a batch ingestion.
type Report struct {
	Ingested int       `json:"ingested"`
	Skipped  []Skipped `json:"skipped,omitempty"`
}

// Ingester writes validated facts. Satisfied by *snapshot.Store.
type Ingester interface {
	Ingest(ctx context.Context, fact snapshot.SnapshotFact) error
}

// Batcher runs batch ingestion: records are validated concurrently on a
// worker pool, then applied in input order through the single-writer store.
type Batcher struct {
	store  Ingester
	logger *zap.Logger
	pool   pond.Pool
}

// NewBatcher returns a Batcher over store. Pool size follows
// INGEST_PARALLELISM (default 8).
func NewBatcher(logger *zap.Logger, store Ingester) *Batcher {
	workers := utils.EnvInt("INGEST_PARALLELISM", 8)
	return &Batcher{
		store:  store,
		logger: logger.With(zap.String("component", "ingest_batcher")),
		pool:   pond.NewPool(workers),
	}
}

// Close releases the worker pool.
func (b *Batcher) Close() {
	b.pool.StopAndWait()
}

// Run ingests a batch. A ValidationError skips that record and the batch
// continues; a StorageError aborts and is returned alongside the partial
// report.
func (b *Batcher) Run(ctx context.Context, records []Record) (*Report, error) {
	report := &Report{}
	if len(records) == 0 {
		return report, nil
	}

	// Phase 1: validate and convert concurrently. Each worker owns its own
	// slice index, so results land in input order with no extra locking.
	facts := make([]snapshot.SnapshotFact, len(records))
	validationErrs := make([]error, len(records))

	group := b.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for i := range records {
		i := i
		group.Submit(func() {
			if err := groupCtx.Err(); err != nil {
				return
			}
			facts[i], validationErrs[i] = records[i].ToFact()
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		b.logger.Warn("batch validation pool error", zap.Error(err))
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	// Phase 2: apply serially. The store serializes writes anyway; applying
	// in order keeps last-record-wins semantics for duplicate keys.
	for i := range records {
		if err := validationErrs[i]; err != nil {
			report.Skipped = append(report.Skipped, Skipped{Index: i, Address: records[i].Address, Reason: err.Error()})
			continue
		}
		if err := b.store.Ingest(ctx, facts[i]); err != nil {
			if snapshot.IsValidation(err) {
				report.Skipped = append(report.Skipped, Skipped{Index: i, Address: records[i].Address, Reason: err.Error()})
				continue
			}
			// StorageError (or context cancellation): nothing past this
			// record was applied.
			b.logger.Error("batch aborted", zap.Int("index", i), zap.Error(err))
			return report, err
		}
		report.Ingested++
	}

	if len(report.Skipped) > 0 {
		b.logger.Warn("batch completed with skipped records",
			zap.Int("ingested", report.Ingested),
			zap.Int("skipped", len(report.Skipped)))
	}
	return report, nil
}
