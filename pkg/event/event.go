package event

import (
	"time"

	"github.com/google/uuid"
)

// Names of the events this SDK emits. The backend dashboards key on these
// exact strings, so they are part of the collector contract.
const (
	DeepLinkOpened    = "Deep Link Opened"
	DeepLinkCompleted = "Deep Link Completed"
	DeepLinkCancelled = "Deep Link Cancelled"
	DeepLinkTimeout   = "Deep Link Timeout"
	DeepLinkFailed    = "Deep Link Failed"

	DeepLinkResolved      = "deeplink_resolved"
	DeepLinkResolveFailed = "deeplink_resolve_failed"

	DeferredMatch = "Deferred Deep Link Match"
	DeferredCheck = "Deferred Deep Link Check"
	DeferredError = "Deferred Deep Link Error"
)

// Properties is a free-form event property map.
type Properties map[string]any

// Merge copies all entries of other into p, overwriting on conflict.
func (p Properties) Merge(other Properties) {
	for k, v := range other {
		p[k] = v
	}
}

// Event is one captured event as delivered to the collector.
type Event struct {
	UUID       string     `json:"uuid"`
	Name       string     `json:"event"`
	Timestamp  string     `json:"timestamp"` // ISO8601
	Properties Properties `json:"properties,omitempty"`
}

// New builds an event with a fresh UUID and the given timestamp.
func New(name string, ts time.Time, props Properties) Event {
	return Event{
		UUID:       uuid.New().String(),
		Name:       name,
		Timestamp:  ts.UTC().Format(time.RFC3339Nano),
		Properties: props,
	}
}

// Emitter accepts named events with property maps. The attribution core
// calls out to an Emitter for everything it captures; the surrounding SDK
// owns batching and delivery.
type Emitter interface {
	Capture(name string, properties Properties)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(name string, properties Properties)

func (f EmitterFunc) Capture(name string, properties Properties) { f(name, properties) }
