package queue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/paylisher/paylisher-go/internal/storage"
	"github.com/paylisher/paylisher-go/pkg/event"
)

func testEvent(name string) event.Event {
	return event.New(name, time.Now(), event.Properties{"k": "v"})
}

func TestMemorySpool(t *testing.T) {
	s := newMemorySpool()

	for i := 0; i < 3; i++ {
		if err := s.append(testEvent("e")); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("batch is oldest first and bounded", func(t *testing.T) {
		batch, err := s.batch(2)
		if err != nil {
			t.Fatal(err)
		}
		if len(batch) != 2 {
			t.Fatalf("batch size = %d", len(batch))
		}
		if batch[0].id >= batch[1].id {
			t.Error("batch should be ordered by id")
		}
	})

	t.Run("ack removes", func(t *testing.T) {
		batch, _ := s.batch(1)
		if err := s.ack([]int64{batch[0].id}); err != nil {
			t.Fatal(err)
		}
		if d, _ := s.depth(); d != 2 {
			t.Errorf("depth = %d, want 2", d)
		}
	})

	t.Run("fail drops after max attempts", func(t *testing.T) {
		batch, _ := s.batch(10)
		ids := make([]int64, len(batch))
		for i, sp := range batch {
			ids[i] = sp.id
		}

		dropped, err := s.fail(ids, 2)
		if err != nil {
			t.Fatal(err)
		}
		if dropped != 0 {
			t.Errorf("first failure dropped %d", dropped)
		}

		dropped, err = s.fail(ids, 2)
		if err != nil {
			t.Fatal(err)
		}
		if dropped != 2 {
			t.Errorf("second failure dropped %d, want 2", dropped)
		}
		if d, _ := s.depth(); d != 0 {
			t.Errorf("depth = %d, want 0", d)
		}
	})
}

func TestSQLiteSpool(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "spool.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	s := newSQLiteSpool(db.Handle())

	want := testEvent("Deep Link Opened")
	if err := s.append(want); err != nil {
		t.Fatal(err)
	}

	batch, err := s.batch(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 1 {
		t.Fatalf("batch size = %d", len(batch))
	}
	if batch[0].ev.Name != want.Name || batch[0].ev.UUID != want.UUID {
		t.Errorf("roundtripped event = %+v", batch[0].ev)
	}

	if err := s.ack([]int64{batch[0].id}); err != nil {
		t.Fatal(err)
	}
	if d, _ := s.depth(); d != 0 {
		t.Errorf("depth after ack = %d", d)
	}
}

func TestHTTPSink_FlushDelivers(t *testing.T) {
	var mu sync.Mutex
	var batches []batchPayload
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p batchPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode batch: %v", err)
		}
		mu.Lock()
		batches = append(batches, p)
		gotAuth = r.Header.Get("Authorization")
		mu.Unlock()
	}))
	defer srv.Close()

	s := NewHTTPSink(HTTPConfig{
		Endpoint:   srv.URL + "/batch",
		APIKey:     "test-key",
		SDKVersion: "1.0.0",
		FlushAt:    10,
	}, nil, nil)

	for i := 0; i < 3; i++ {
		if err := s.Enqueue(testEvent("Deep Link Opened")); err != nil {
			t.Fatal(err)
		}
	}
	s.Flush()

	mu.Lock()
	defer mu.Unlock()
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	if len(batches[0].Batch) != 3 {
		t.Errorf("batch size = %d, want 3", len(batches[0].Batch))
	}
	if batches[0].APIKey != "test-key" {
		t.Errorf("api key = %q", batches[0].APIKey)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}

	if d, _ := s.spool.depth(); d != 0 {
		t.Errorf("spool depth after flush = %d", d)
	}
}

func TestHTTPSink_FlushAtTriggersWorker(t *testing.T) {
	delivered := make(chan int, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p batchPayload
		json.NewDecoder(r.Body).Decode(&p)
		delivered <- len(p.Batch)
	}))
	defer srv.Close()

	s := NewHTTPSink(HTTPConfig{
		Endpoint:      srv.URL,
		APIKey:        "k",
		SDKVersion:    "1.0.0",
		FlushAt:       2,
		FlushInterval: time.Hour, // only the depth kick should flush
	}, nil, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	s.Enqueue(testEvent("a"))
	s.Enqueue(testEvent("b"))

	select {
	case n := <-delivered:
		if n != 2 {
			t.Errorf("delivered %d events, want 2", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reaching FlushAt should trigger a flush")
	}
}

func TestHTTPSink_RetriesThenDrops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewHTTPSink(HTTPConfig{
		Endpoint:    srv.URL,
		APIKey:      "k",
		SDKVersion:  "1.0.0",
		MaxAttempts: 2,
	}, nil, nil)

	s.Enqueue(testEvent("doomed"))

	// Each Flush fails one delivery attempt; after MaxAttempts the event
	// is dropped rather than wedging the queue.
	s.Flush()
	if d, _ := s.spool.depth(); d != 1 {
		t.Fatalf("depth after first failure = %d, want 1", d)
	}
	s.Flush()
	if d, _ := s.spool.depth(); d != 0 {
		t.Errorf("depth after exhausting attempts = %d, want 0", d)
	}
}

func TestHTTPSink_DurableSpool(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "spool.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	// Unreachable collector: the event stays spooled.
	s := NewHTTPSink(HTTPConfig{
		Endpoint:   "http://127.0.0.1:0",
		APIKey:     "k",
		SDKVersion: "1.0.0",
		Timeout:    100 * time.Millisecond,
	}, db.Handle(), nil)
	s.Enqueue(testEvent("persisted"))
	s.Flush()

	// A new sink over the same database picks the event back up.
	s2 := NewHTTPSink(HTTPConfig{Endpoint: "http://127.0.0.1:0", APIKey: "k", SDKVersion: "1.0.0"}, db.Handle(), nil)
	if d, _ := s2.spool.depth(); d != 1 {
		t.Errorf("spool depth after restart = %d, want 1", d)
	}
}
