package outcome

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	name string
	err  error

	mu   sync.Mutex
	seen []Signal
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(ctx context.Context, sig Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, sig)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func TestDispatcher_DeliversToAllSinks(t *testing.T) {
	good := &recordingSink{name: "good"}
	bad := &recordingSink{name: "bad", err: errors.New("boom")}

	d := NewDispatcher(8, nil, nil, bad, good)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if !d.Enqueue(Signal{RequestID: "0x1"}) {
			t.Fatal("Enqueue returned false")
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for good.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("good sink saw %d signals, want 3", good.count())
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := d.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if bad.count() != 3 {
		t.Errorf("failing sink saw %d signals, want 3", bad.count())
	}
}

func TestDispatcher_StopDrainsQueue(t *testing.T) {
	sink := &recordingSink{name: "s"}
	d := NewDispatcher(8, nil, nil, sink)

	// Not started: signals stay queued until Stop drains them.
	d.Enqueue(Signal{RequestID: "0x1"})
	d.Enqueue(Signal{RequestID: "0x2"})

	if err := d.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if sink.count() != 2 {
		t.Errorf("sink saw %d signals, want 2", sink.count())
	}
}

func TestDispatcher_QueueFull(t *testing.T) {
	d := NewDispatcher(1, nil, nil, &recordingSink{name: "s"})
	if !d.Enqueue(Signal{}) {
		t.Fatal("first Enqueue should succeed")
	}
	if d.Enqueue(Signal{}) {
		t.Error("Enqueue on a full queue should fail")
	}
}
