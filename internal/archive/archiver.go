package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flemzord/chanreset/internal/fetch"
)

const (
	defaultMaxItems  = 10000
	defaultBatchSize = 500
)

// Fetcher is the bulk retrieval capability the Archiver needs.
type Fetcher interface {
	FetchMany(ctx context.Context, resourceID string, c fetch.Constraints) ([]fetch.Item, error)
}

// Config tunes the Archiver.
type Config struct {
	// MaxItems caps the transcript length. Zero means 10000.
	MaxItems int
	// BatchSize is the FetchMany limit per step. Zero means 500.
	BatchSize int
}

// Archiver collects a resource's history newest-to-oldest in batches and
// delivers it oldest-first to a Sink.
type Archiver struct {
	fetcher Fetcher
	sink    Sink
	config  Config
	logger  *slog.Logger
}

// Result summarizes one archive run.
type Result struct {
	Items int
	// Partial is set when a fetch failure cut the history short.
	Partial bool
}

// New creates an Archiver.
func New(fetcher Fetcher, sink Sink, cfg Config, logger *slog.Logger) *Archiver {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = defaultMaxItems
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{fetcher: fetcher, sink: sink, config: cfg, logger: logger}
}

// Archive collects and delivers the transcript of resourceID. A fetch
// failure is logged and whatever was collected before it is still
// delivered; only a sink failure is returned.
func (a *Archiver) Archive(ctx context.Context, groupID, resourceID string, meta Metadata) (Result, error) {
	items, partial := a.collect(ctx, resourceID)

	if err := a.sink.Deliver(ctx, groupID, resourceID, Render(items), meta); err != nil {
		return Result{Items: len(items), Partial: partial}, fmt.Errorf("archive: deliver %s: %w", resourceID, err)
	}
	return Result{Items: len(items), Partial: partial}, nil
}

func (a *Archiver) collect(ctx context.Context, resourceID string) ([]fetch.Item, bool) {
	var (
		batches [][]fetch.Item
		total   int
		before  string
	)

	for total < a.config.MaxItems {
		limit := min(a.config.BatchSize, a.config.MaxItems-total)
		batch, err := a.fetcher.FetchMany(ctx, resourceID, fetch.Constraints{Limit: limit, Before: before})
		if err != nil {
			var ff *fetch.FetchFailure
			if !errors.As(err, &ff) {
				ff = &fetch.FetchFailure{ResourceID: resourceID, Err: err}
			}
			a.logger.Warn("archive: history fetch failed, archiving partial transcript",
				"resource", resourceID,
				"collected", total,
				"error", ff,
			)
			return flatten(batches, total), true
		}
		if len(batch) == 0 {
			break
		}
		batches = append(batches, batch)
		total += len(batch)
		oldest, _ := fetch.Bounds(batch)
		if oldest == "" || len(batch) < limit {
			break
		}
		before = oldest
	}

	return flatten(batches, total), false
}

// flatten concatenates batches collected newest-first into one ascending run.
func flatten(batches [][]fetch.Item, total int) []fetch.Item {
	out := make([]fetch.Item, 0, total)
	for i := len(batches) - 1; i >= 0; i-- {
		out = append(out, batches[i]...)
	}
	return fetch.Normalize(out)
}
