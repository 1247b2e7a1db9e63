package reset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/chanreset/internal/archive"
	"github.com/flemzord/chanreset/internal/taskstore"
)

// reset runs archive, clone, reposition and delete for one task, then swaps
// the old task for one tracking the replacement. Any failure before the
// store is touched leaves the task pending for the next sweep.
func (s *Scheduler) reset(ctx context.Context, task taskstore.Task) (err error) {
	runID := uuid.NewString()
	logger := s.logger.With(
		"run", runID,
		"group", task.GroupID,
		"resource", task.ResourceID,
	)

	ctx, span := s.tracer.Start(ctx, "reset.Reset", trace.WithAttributes(
		attribute.String("reset.run_id", runID),
		attribute.String("group.id", task.GroupID),
		attribute.String("resource.id", task.ResourceID),
	))
	defer span.End()

	start := s.now()
	outcome := OutcomeFailed
	defer func() {
		s.metrics.observe(outcome, s.now().Sub(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "reset failed")
			logger.Error("reset: channel reset failed, will retry on next sweep", "error", err)
		}
	}()

	res, err := s.client.Describe(ctx, task.ResourceID)
	if errors.Is(err, ErrResourceNotFound) {
		if err := s.Unregister(ctx, task.GroupID, task.ResourceID); err != nil {
			return err
		}
		outcome = OutcomeVanished
		logger.Warn("reset: channel no longer exists, task retired")
		return nil
	}
	if err != nil {
		return &ResourceOperationFailure{Op: "describe", ResourceID: task.ResourceID, Err: err}
	}

	if s.archiver != nil {
		ar, err := s.archiver.Archive(ctx, task.GroupID, task.ResourceID, archive.Metadata{
			ResourceName: res.Name,
			GroupName:    res.GroupName,
		})
		if err != nil {
			return fmt.Errorf("reset: archive %s: %w", task.ResourceID, err)
		}
		logger.Info("reset: channel archived", "messages", ar.Items, "partial", ar.Partial)
	}

	// Past this point the reset changes the platform, so it runs to
	// completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	position, err := s.client.GetPosition(ctx, task.ResourceID)
	if err != nil {
		return &ResourceOperationFailure{Op: "get position", ResourceID: task.ResourceID, Err: err}
	}

	newID, err := s.client.CloneResource(ctx, task.ResourceID)
	if err != nil {
		return &ResourceOperationFailure{Op: "clone", ResourceID: task.ResourceID, Err: err}
	}

	if err := s.replace(ctx, task.ResourceID, newID, position); err != nil {
		s.rollback(ctx, logger, newID)
		return err
	}

	if err := s.commit(ctx, task, newID); err != nil {
		s.deferSwap(task, newID)
		return err
	}

	outcome = OutcomeReset
	span.SetAttributes(attribute.String("reset.new_resource_id", newID))
	logger.Info("reset: channel reset",
		"name", res.Name,
		"new_resource", newID,
		"position", position,
	)
	return nil
}

// replace moves the clone into the original's slot and deletes the original.
func (s *Scheduler) replace(ctx context.Context, oldID, newID string, position int) error {
	if err := s.client.SetPosition(ctx, newID, position); err != nil {
		return &ResourceOperationFailure{Op: "set position", ResourceID: newID, Err: err}
	}
	if err := s.client.DeleteResource(ctx, oldID); err != nil && !errors.Is(err, ErrResourceNotFound) {
		return &ResourceOperationFailure{Op: "delete", ResourceID: oldID, Err: err}
	}
	return nil
}

// rollback deletes a clone whose original could not be replaced, so a retry
// does not leave two copies behind.
func (s *Scheduler) rollback(ctx context.Context, logger *slog.Logger, cloneID string) {
	if err := s.client.DeleteResource(ctx, cloneID); err != nil && !errors.Is(err, ErrResourceNotFound) {
		logger.Error("reset: could not delete clone after failed reset", "clone", cloneID, "error", err)
	}
}

// commit replaces the old task with one tracking newID. Both steps are
// idempotent, so a failed commit can be repeated as is.
func (s *Scheduler) commit(ctx context.Context, old taskstore.Task, newID string) error {
	if err := s.store.Remove(ctx, old.GroupID, old.ResourceID); err != nil {
		return err
	}
	s.disarm(old.Key())

	if _, err := s.Register(ctx, old.GroupID, newID); err != nil {
		return err
	}
	return nil
}
