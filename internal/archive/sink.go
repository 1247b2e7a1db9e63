// Package archive renders a channel's message history to a plain-text
// transcript and hands it to one or more sinks before the channel is reset.
package archive

import (
	"context"
	"errors"
	"fmt"
)

// Metadata describes the archived resource for human readers.
type Metadata struct {
	ResourceName string
	GroupName    string
}

// Sink delivers a finished transcript somewhere durable.
type Sink interface {
	Deliver(ctx context.Context, groupID, resourceID string, transcript []byte, meta Metadata) error
}

// MultiSink delivers to every sink in order. All of them must succeed.
type MultiSink []Sink

// Compile-time interface check.
var _ Sink = MultiSink(nil)

// Deliver implements Sink.
func (m MultiSink) Deliver(ctx context.Context, groupID, resourceID string, transcript []byte, meta Metadata) error {
	var errs []error
	for i, s := range m {
		if err := s.Deliver(ctx, groupID, resourceID, transcript, meta); err != nil {
			errs = append(errs, fmt.Errorf("archive: sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
