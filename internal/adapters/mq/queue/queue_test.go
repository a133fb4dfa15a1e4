package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okian/critic/internal/domain/model"
)

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	d1 := model.Diagnostic{SessionID: "session-1", Tick: 1, Raw: 0.2, Value: 0.19}
	if !q.Enqueue(ctx, d1) {
		t.Error("expected enqueue to succeed")
	}

	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	recordChan := q.Dequeue(ctx)
	d := <-recordChan
	if d.SessionID != "session-1" || d.Tick != 1 {
		t.Errorf("expected session-1 tick 1, got %s tick %d", d.SessionID, d.Tick)
	}

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_DropWhenFull(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, model.Diagnostic{Tick: 1}) {
		t.Error("expected enqueue to succeed")
	}
	if !q.Enqueue(ctx, model.Diagnostic{Tick: 2}) {
		t.Error("expected enqueue to succeed")
	}

	// A full queue must drop instead of blocking the emitter.
	if q.Enqueue(ctx, model.Diagnostic{Tick: 3}) {
		t.Error("expected enqueue to drop when full")
	}

	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	ctx := context.Background()
	numGoroutines := 10
	numRecords := 100

	done := make(chan bool, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			for j := 0; j < numRecords; j++ {
				d := model.Diagnostic{
					SessionID: fmt.Sprintf("session-%d", id),
					Tick:      uint64(j + 1),
					Raw:       float64(j),
				}
				for !q.Enqueue(ctx, d) {
					time.Sleep(time.Millisecond)
				}
			}
			done <- true
		}(i)
	}

	consumed := make(chan string, numGoroutines*numRecords)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			for d := range q.Dequeue(ctx) {
				consumed <- d.SessionID
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		<-done
	}

	// Give consumers a moment to drain the tail.
	time.Sleep(100 * time.Millisecond)

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected final length 0, got %d", l)
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if !q.Enqueue(ctx, model.Diagnostic{Tick: 1}) {
		t.Error("expected enqueue to succeed")
	}
	if !q.Enqueue(ctx, model.Diagnostic{Tick: 2}) {
		t.Error("expected enqueue to succeed")
	}

	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}

	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}

	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}

	if q.Enqueue(ctx, model.Diagnostic{Tick: 3}) {
		t.Error("expected enqueue to drop after closing")
	}

	// The dequeue channel should drain the buffered records, then close.
	recordChan := q.Dequeue(ctx)
	var drained int
	timeout := time.After(100 * time.Millisecond)
	for {
		select {
		case _, ok := <-recordChan:
			if !ok {
				if drained != 2 {
					t.Errorf("expected 2 drained records, got %d", drained)
				}
				goto channelClosed
			}
			drained++
		case <-timeout:
			t.Error("expected dequeue channel to be closed within timeout")
			return
		}
	}
channelClosed:

	if err := q.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected second close to report ErrClosed, got: %v", err)
	}
}
