package logsink

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oriys/raikiri/internal/domain"
)

type recordingSink struct {
	mu   sync.Mutex
	recs []domain.Execution
}

func (r *recordingSink) Emit(_ context.Context, exec domain.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, exec)
	return nil
}

func (r *recordingSink) Close() error { return nil }

func (r *recordingSink) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.recs)
}

func TestChannel_EmitDeliversToSink(t *testing.T) {
	rec := &recordingSink{}
	ch := NewChannel(rec)
	ch.Emit(context.Background(), domain.Execution{TargetID: "alice.hello", Status: 200})
	if err := ch.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if rec.len() != 1 {
		t.Fatalf("expected 1 record, got %d", rec.len())
	}
}

func TestChannel_EmitRespectsContextCancellation(t *testing.T) {
	rec := &recordingSink{}
	ch := NewChannel(rec)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	<-ctx.Done()
	ch.Emit(ctx, domain.Execution{TargetID: "alice.hello"})
	ch.Close()
}

func TestMultiSink_FansOutToAllSinks(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	m := NewMultiSink(a, b)
	if err := m.Emit(context.Background(), domain.Execution{TargetID: "x.y"}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if a.len() != 1 || b.len() != 1 {
		t.Fatalf("expected both sinks to receive the record")
	}
}
