package queue

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/paylisher/paylisher-go/internal/metrics"
	"github.com/paylisher/paylisher-go/pkg/event"
)

// HTTPConfig holds configuration for the collector sink.
type HTTPConfig struct {
	Endpoint   string // full batch URL, e.g. https://collect.paylisher.com/batch
	APIKey     string
	SDKVersion string

	FlushAt       int           // batch size that triggers a flush
	FlushInterval time.Duration // maximum time between flushes
	Timeout       time.Duration
	MaxAttempts   int // delivery attempts per event before dropping
}

func (c *HTTPConfig) defaults() {
	if c.FlushAt <= 0 {
		c.FlushAt = 20
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 30 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
}

// HTTPSink batches spooled events to the collector as JSON over HTTPS.
// Enqueue appends to the spool and never blocks on the network; a worker
// goroutine flushes when the batch size or the interval is reached.
type HTTPSink struct {
	cfg    HTTPConfig
	spool  spool
	client *http.Client
	m      *metrics.Metrics

	kick chan struct{}
	stop chan struct{}
	done chan struct{}
}

// NewHTTPSink creates a collector sink. db may be nil, in which case events
// are spooled in memory only.
func NewHTTPSink(cfg HTTPConfig, db *sql.DB, m *metrics.Metrics) *HTTPSink {
	cfg.defaults()
	var sp spool
	if db != nil {
		sp = newSQLiteSpool(db)
	} else {
		sp = newMemorySpool()
	}
	return &HTTPSink{
		cfg:    cfg,
		spool:  sp,
		client: &http.Client{Timeout: cfg.Timeout},
		m:      m,
		kick:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (s *HTTPSink) Name() string { return "http" }

func (s *HTTPSink) Start(ctx context.Context) error {
	go s.run(ctx)
	return nil
}

func (s *HTTPSink) Enqueue(e event.Event) error {
	if err := s.spool.append(e); err != nil {
		s.m.IncSinkError(s.Name(), "spool")
		return err
	}
	s.m.IncCaptured(s.Name())
	if depth, err := s.spool.depth(); err == nil {
		s.m.SetQueueDepth(s.Name(), depth)
		if depth >= s.cfg.FlushAt {
			select {
			case s.kick <- struct{}{}:
			default:
			}
		}
	}
	return nil
}

// Flush synchronously drains the spool until it is empty or a batch fails.
func (s *HTTPSink) Flush() {
	for {
		sent, err := s.flushOnce()
		if err != nil || sent == 0 {
			return
		}
	}
}

func (s *HTTPSink) Close() error {
	close(s.stop)
	<-s.done
	s.Flush()
	return nil
}

func (s *HTTPSink) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.Flush()
		case <-s.kick:
			s.Flush()
		}
	}
}

type batchPayload struct {
	APIKey     string        `json:"api_key"`
	SDKVersion string        `json:"sdk_version"`
	Batch      []event.Event `json:"batch"`
}

func (s *HTTPSink) flushOnce() (int, error) {
	batch, err := s.spool.batch(s.cfg.FlushAt)
	if err != nil {
		s.m.IncSinkError(s.Name(), "spool")
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	events := make([]event.Event, len(batch))
	ids := make([]int64, len(batch))
	for i, sp := range batch {
		events[i] = sp.ev
		ids[i] = sp.id
	}

	start := time.Now()
	err = s.send(events)
	s.m.ObserveFlush(s.Name(), time.Since(start))

	if err != nil {
		log.Printf("queue: flush failed: %v", err)
		s.m.IncSinkError(s.Name(), "deliver")
		if dropped, ferr := s.spool.fail(ids, s.cfg.MaxAttempts); ferr == nil && dropped > 0 {
			s.m.AddDropped(s.Name(), dropped)
		}
		return 0, err
	}

	if err := s.spool.ack(ids); err != nil {
		return 0, err
	}
	s.m.AddDelivered(s.Name(), len(events))
	if depth, derr := s.spool.depth(); derr == nil {
		s.m.SetQueueDepth(s.Name(), depth)
	}
	return len(events), nil
}

func (s *HTTPSink) send(events []event.Event) error {
	body, err := json.Marshal(batchPayload{
		APIKey:     s.cfg.APIKey,
		SDKVersion: s.cfg.SDKVersion,
		Batch:      events,
	})
	if err != nil {
		return fmt.Errorf("queue: marshal batch: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("queue: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("X-SDK-Version", "paylisher-go/"+s.cfg.SDKVersion)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("queue: post batch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("queue: collector returned status %d", resp.StatusCode)
	}
	return nil
}
