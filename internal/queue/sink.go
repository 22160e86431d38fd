// Package queue implements the delivery side of the SDK: captured events go
// into an append-only spool and sinks drain it toward the collector.
package queue

import (
	"context"

	"github.com/paylisher/paylisher-go/pkg/event"
)

type Sink interface {
	Start(ctx context.Context) error
	Enqueue(e event.Event) error
	Close() error
	Name() string // Returns the sink name for metrics and logging
}
