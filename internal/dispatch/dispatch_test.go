package dispatch

import (
	"sync"
	"testing"
	"time"
)

func TestDo_RunsInOrder(t *testing.T) {
	d := New()

	var mu sync.Mutex
	var got []int
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		d.Do(func() {
			defer wg.Done()
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	wg.Wait()
	d.Close()

	for i, v := range got {
		if v != i {
			t.Fatalf("callbacks ran out of order: %v", got)
		}
	}
}

func TestDo_NeverConcurrent(t *testing.T) {
	d := New()
	defer d.Close()

	var active, maxActive int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		d.Do(func() {
			defer wg.Done()
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		})
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if maxActive != 1 {
		t.Errorf("max concurrent callbacks = %d, want 1", maxActive)
	}
}

func TestDo_FromInsideCallbackNeverBlocks(t *testing.T) {
	d := New()
	defer d.Close()

	// An auth completion callback re-delivers its link through Do while the
	// dispatcher goroutine is the one running it. Pile on enough work that a
	// bounded buffer would fill and wedge the loop.
	done := make(chan struct{})
	d.Do(func() {
		for i := 0; i < 256; i++ {
			d.Do(func() {})
		}
		d.Do(func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Do from inside a callback wedged the dispatcher")
	}
}

func TestClose_DrainsPending(t *testing.T) {
	d := New()

	var mu sync.Mutex
	ran := 0
	for i := 0; i < 5; i++ {
		d.Do(func() {
			mu.Lock()
			ran++
			mu.Unlock()
		})
	}
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	if ran != 5 {
		t.Errorf("ran = %d, want 5", ran)
	}
}

func TestDo_AfterCloseIsDropped(t *testing.T) {
	d := New()
	d.Close()

	// Must neither panic nor run.
	ran := false
	d.Do(func() { ran = true })
	time.Sleep(20 * time.Millisecond)
	if ran {
		t.Error("callback after Close should be dropped")
	}
}

func TestClose_Idempotent(t *testing.T) {
	d := New()
	d.Close()
	d.Close()
}

func TestDo_NilIsIgnored(t *testing.T) {
	d := New()
	defer d.Close()
	d.Do(nil)
}
