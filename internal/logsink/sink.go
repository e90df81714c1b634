// Package logsink implements the event sink (§6 "Event records", §5
// "bounded multi-producer channel"): every Invoker call, successful or
// not, emits a domain.Execution record here. The default sink writes one
// JSON line per record to stdout; alternative sinks are injectable at
// process startup, matching the ancestry's pluggable LogSink shape.
package logsink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/oriys/raikiri/internal/domain"
	"github.com/oriys/raikiri/internal/logging"
)

// Sink abstracts the destination for Execution records. Implementations
// must be safe for concurrent use.
type Sink interface {
	Emit(ctx context.Context, exec domain.Execution) error
	Close() error
}

// StdoutSink writes one JSON line per Execution record to w. This is the
// default sink (§6 "The default sink writes one line per record to
// stdout").
type StdoutSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStdoutSink returns a StdoutSink writing to os.Stdout.
func NewStdoutSink() *StdoutSink {
	return &StdoutSink{w: os.Stdout}
}

func (s *StdoutSink) Emit(_ context.Context, exec domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	enc := json.NewEncoder(s.w)
	return enc.Encode(exec)
}

func (s *StdoutSink) Close() error { return nil }

// MultiSink fans out every record to all of its sinks.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a Sink that writes to every sink given.
func NewMultiSink(primary Sink, secondary ...Sink) *MultiSink {
	sinks := make([]Sink, 0, 1+len(secondary))
	sinks = append(sinks, primary)
	sinks = append(sinks, secondary...)
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Emit(ctx context.Context, exec domain.Execution) error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.Emit(ctx, exec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiSink) Close() error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NoopSink discards every record. Useful for tests that don't care about
// the event stream.
type NoopSink struct{}

func NewNoopSink() *NoopSink { return &NoopSink{} }

func (NoopSink) Emit(context.Context, domain.Execution) error { return nil }
func (NoopSink) Close() error                                 { return nil }

// channelCapacity is the event sink's bounded channel capacity (§5).
// There is no drop policy: once full, emitters block.
const channelCapacity = 65535

// Channel is the bounded multi-producer event channel fronting a Sink.
// The Invoker calls Emit on the hot path; a single background goroutine
// drains the channel and forwards records to the underlying Sink so a
// slow sink never blocks invocation completion any longer than it takes
// to enqueue (§5 "the event sink is a bounded multi-producer channel").
type Channel struct {
	events chan domain.Execution
	sink   Sink
	done   chan struct{}
}

// NewChannel starts a Channel delivering records to sink.
func NewChannel(sink Sink) *Channel {
	c := &Channel{
		events: make(chan domain.Execution, channelCapacity),
		sink:   sink,
		done:   make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *Channel) run() {
	defer close(c.done)
	for exec := range c.events {
		if err := c.sink.Emit(context.Background(), exec); err != nil {
			logging.Op().Error("event sink emit failed", "target", exec.TargetID, "error", err)
		}
	}
}

// Emit enqueues exec, blocking if the channel is full (§5 "no drop
// policy"). It returns early if ctx is done first.
func (c *Channel) Emit(ctx context.Context, exec domain.Execution) {
	select {
	case c.events <- exec:
	case <-ctx.Done():
	}
}

// Close drains in-flight records and stops the background goroutine.
func (c *Channel) Close() error {
	close(c.events)
	<-c.done
	return c.sink.Close()
}
