package fetch

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/flemzord/chanreset/internal/fetch"

// Engine pulls arbitrarily long, ordered, duplicate-free runs of items from
// a paged Source. It is stateless and safe for concurrent use.
type Engine struct {
	source Source
	tracer trace.Tracer
}

// NewEngine creates an Engine reading pages from source.
func NewEngine(source Source) *Engine {
	return &Engine{
		source: source,
		tracer: otel.Tracer(tracerName),
	}
}

// FetchMany returns up to c.Limit items of resourceID sorted ascending by
// numeric id. A failed page aborts the whole call with a *FetchFailure and
// no partial result.
func (e *Engine) FetchMany(ctx context.Context, resourceID string, c Constraints) ([]Item, error) {
	cur := c.cursor()

	ctx, span := e.tracer.Start(ctx, "fetch.FetchMany", trace.WithAttributes(
		attribute.String("resource.id", resourceID),
		attribute.String("fetch.mode", cur.mode.String()),
		attribute.Int("fetch.limit", c.Limit),
	))
	defer span.End()

	items, err := e.fetch(ctx, resourceID, cur)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bulk fetch failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("fetch.items", len(items)))
	return items, nil
}

func (e *Engine) fetch(ctx context.Context, resourceID string, cur cursor) ([]Item, error) {
	switch {
	case cur.remaining <= 0:
		return []Item{}, nil
	case cur.remaining <= PageSize:
		page, err := e.page(ctx, resourceID, PageRequest{Limit: cur.remaining, Mode: cur.mode, Anchor: cur.anchor})
		if err != nil {
			return nil, err
		}
		return Normalize(page), nil
	case cur.mode == Around:
		return e.bisect(ctx, resourceID, cur)
	default:
		return e.walk(ctx, resourceID, cur)
	}
}

// bisect fetches one page centered on the anchor, then fans out a backward
// and a forward walk of half the remaining budget each and merges all three.
func (e *Engine) bisect(ctx context.Context, resourceID string, cur cursor) ([]Item, error) {
	center, err := e.page(ctx, resourceID, PageRequest{Limit: PageSize, Mode: Around, Anchor: cur.anchor})
	if err != nil {
		return nil, err
	}
	if len(center) < PageSize {
		return Normalize(center), nil
	}

	half := (cur.remaining - PageSize) / 2
	oldest, newest := Bounds(center)

	var backward, forward []Item
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		backward, err = e.fetch(gctx, resourceID, cursor{mode: Before, anchor: oldest, remaining: half})
		return err
	})
	g.Go(func() error {
		var err error
		forward, err = e.fetch(gctx, resourceID, cursor{mode: After, anchor: newest, remaining: half})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]Item, 0, len(center)+len(backward)+len(forward))
	merged = append(merged, center...)
	merged = append(merged, backward...)
	merged = append(merged, forward...)
	return Normalize(merged), nil
}

// walk pages sequentially away from the anchor until the budget is spent
// or a short page signals the source is exhausted.
func (e *Engine) walk(ctx context.Context, resourceID string, cur cursor) ([]Item, error) {
	limit := cur.remaining
	acc := make([]Item, 0, limit)

	for len(acc) < limit {
		req := PageRequest{
			Limit:  min(limit-len(acc), PageSize),
			Mode:   cur.mode,
			Anchor: cur.anchor,
		}
		page, err := e.page(ctx, resourceID, req)
		if err != nil {
			return nil, err
		}
		acc = append(acc, page...)
		if len(page) < req.Limit {
			break
		}

		oldest, newest := Bounds(page)
		next := oldest
		if cur.mode == After {
			next = newest
		} else {
			cur.mode = Before
		}
		if next == cur.anchor {
			break
		}
		cur.anchor = next
	}

	return Normalize(acc), nil
}

func (e *Engine) page(ctx context.Context, resourceID string, req PageRequest) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchFailure{ResourceID: resourceID, Request: req, Err: err}
	}
	items, err := e.source.FetchPage(ctx, resourceID, req)
	if err != nil {
		return nil, &FetchFailure{ResourceID: resourceID, Request: req, Err: err}
	}
	return items, nil
}
