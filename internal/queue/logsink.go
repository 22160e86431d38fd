package queue

import (
	"context"
	"encoding/json"
	"log"

	"github.com/paylisher/paylisher-go/pkg/event"
)

// LogSink writes every event to the process log. Debug builds and the demo
// binary use it in place of (or next to) the HTTP sink.
type LogSink struct{}

func NewLogSink() *LogSink { return &LogSink{} }

func (s *LogSink) Start(ctx context.Context) error { return nil }

func (s *LogSink) Enqueue(e event.Event) error {
	b, _ := json.Marshal(e)
	log.Printf("event %s", string(b))
	return nil
}

func (s *LogSink) Close() error { return nil }

func (s *LogSink) Name() string { return "log" }
