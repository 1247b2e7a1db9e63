// Package lifecycle turns channel membership notifications into task store
// registrations: a channel entering the managed set gets a reset task, a
// channel leaving it loses its task.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
)

// Membership is where a resource sits: its owner group and the parent
// (category) that decides whether it is managed.
type Membership struct {
	GroupID  string
	ParentID string
}

// Event reports a change in a resource's membership. Previous is nil for
// a newly created resource and Current is nil for a deleted one.
type Event struct {
	ResourceID string
	Previous   *Membership
	Current    *Membership
}

// Registrar creates and removes reset tasks. Both calls are idempotent.
type Registrar interface {
	Register(ctx context.Context, groupID, resourceID string) (bool, error)
	Unregister(ctx context.Context, groupID, resourceID string) error
}

// Adapter applies Events to a Registrar.
type Adapter struct {
	registrar Registrar
	parents   []string
	logger    *slog.Logger
}

// NewAdapter creates an Adapter managing resources whose parent is one of
// managedParents.
func NewAdapter(registrar Registrar, managedParents []string, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		registrar: registrar,
		parents:   slices.Clone(managedParents),
		logger:    logger,
	}
}

// Managed reports whether m is inside the managed set.
func (a *Adapter) Managed(m *Membership) bool {
	return m != nil && m.ParentID != "" && slices.Contains(a.parents, m.ParentID)
}

// Handle applies one event. A move is a leave from the previous membership
// followed by an enter into the current one; staying managed inside the
// same group keeps the existing task and its deadline.
func (a *Adapter) Handle(ctx context.Context, ev Event) error {
	was, is := a.Managed(ev.Previous), a.Managed(ev.Current)
	sameGroup := was && is && ev.Previous.GroupID == ev.Current.GroupID

	var errs []error
	if was && !sameGroup {
		if err := a.registrar.Unregister(ctx, ev.Previous.GroupID, ev.ResourceID); err != nil {
			errs = append(errs, err)
		} else {
			a.logger.Info("lifecycle: channel left managed set",
				"group", ev.Previous.GroupID,
				"resource", ev.ResourceID,
			)
		}
	}
	if is {
		created, err := a.registrar.Register(ctx, ev.Current.GroupID, ev.ResourceID)
		switch {
		case err != nil:
			errs = append(errs, err)
		case created:
			a.logger.Info("lifecycle: channel entered managed set",
				"group", ev.Current.GroupID,
				"resource", ev.ResourceID,
			)
		}
	}
	return errors.Join(errs...)
}

// Consumer drains an event stream into an Adapter until stopped or until
// the stream closes.
type Consumer struct {
	adapter  *Adapter
	events   <-chan Event
	logger   *slog.Logger
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewConsumer creates a Consumer. Call Start to begin draining.
func NewConsumer(adapter *Adapter, events <-chan Event) *Consumer {
	return &Consumer{
		adapter: adapter,
		events:  events,
		logger:  adapter.logger,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the consume loop in a goroutine.
func (c *Consumer) Start() error {
	go c.loop()
	return nil
}

// Stop signals the loop to stop and waits for it to finish or for ctx to
// expire. It is safe to call Stop multiple times.
func (c *Consumer) Stop(ctx context.Context) error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Consumer) loop() {
	defer close(c.done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-c.stopCh:
			return
		case ev, ok := <-c.events:
			if !ok {
				return
			}
			if err := c.adapter.Handle(ctx, ev); err != nil {
				c.logger.Error("lifecycle: event not applied",
					"resource", ev.ResourceID,
					"error", err,
				)
			}
		}
	}
}
