package sandbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/oriys/raikiri/internal/errkind"
)

// HandlerFunc is the signature a locally registered component
// implements. It receives the same Request an Engine would hand to a
// real wasm guest; the entry-point name that selected it is req.Artifact.
type HandlerFunc func(ctx context.Context, req Request) (*Response, error)

// Local is the default in-process Engine. It treats the artifact bytes
// as the UTF-8 name of a previously registered HandlerFunc rather than a
// real compiled module — the component "source" a test or a local
// deployment puts through compiler.Noop is, in effect, that name. This
// keeps the full invocation pipeline (depth limiting, timeouts, the
// capability bridge) exercisable in pure Go.
type Local struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewLocal returns an empty Local engine.
func NewLocal() *Local {
	return &Local{handlers: make(map[string]HandlerFunc)}
}

// Register associates entryPoint with handler. Registering the same
// name twice replaces the previous handler.
func (l *Local) Register(entryPoint string, handler HandlerFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[entryPoint] = handler
}

// Instantiate looks up the handler named by req.Artifact and runs it.
func (l *Local) Instantiate(ctx context.Context, req Request) (*Response, error) {
	entryPoint := string(req.Artifact)

	l.mu.RLock()
	handler, ok := l.handlers[entryPoint]
	l.mu.RUnlock()
	if !ok {
		return nil, errkind.Wrapf(errkind.NotFound, "sandbox: no handler registered for entry point %q", entryPoint)
	}

	resp, err := handler(ctx, req)
	if err != nil {
		return nil, errkind.Wrap(errkind.GuestRuntime, fmt.Errorf("sandbox: handler %q: %w", entryPoint, err))
	}
	return resp, nil
}
