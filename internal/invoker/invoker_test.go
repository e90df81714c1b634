package invoker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/oriys/raikiri/internal/artifactstore"
	"github.com/oriys/raikiri/internal/compiler"
	"github.com/oriys/raikiri/internal/domain"
	"github.com/oriys/raikiri/internal/logsink"
	"github.com/oriys/raikiri/internal/registry"
	"github.com/oriys/raikiri/internal/sandbox"
	"github.com/oriys/raikiri/internal/secrets"
)

func newTestInvoker(t *testing.T, engine *sandbox.Local, bridge Bridge) (*Invoker, *registry.Registry) {
	t.Helper()
	store := artifactstore.New(t.TempDir())
	reg := registry.New(store, compiler.Noop{})
	vault := secrets.New(store)
	sink := logsink.NewChannel(logsink.NewNoopSink())
	t.Cleanup(func() { sink.Close() })
	return New(reg, vault, engine, bridge, sink, 200*time.Millisecond, domain.MaxCallStackDepth), reg
}

func TestInvoker_HelloWorld(t *testing.T) {
	engine := sandbox.NewLocal()
	engine.Register("hello", func(_ context.Context, req sandbox.Request) (*sandbox.Response, error) {
		return &sandbox.Response{Status: 200, Body: []byte("Hello World!")}, nil
	})

	inv, reg := newTestInvoker(t, engine, nil)
	if err := reg.Put(context.Background(), "test", "hello", []byte("hello")); err != nil {
		t.Fatalf("put: %v", err)
	}

	resp := inv.Invoke(context.Background(), "test.hello", domain.ComponentRequest{Method: "GET"}, domain.InvocationContext{})
	if resp.Status != 200 || string(resp.Body) != "Hello World!" {
		t.Fatalf("unexpected response: %d %q", resp.Status, resp.Body)
	}
}

func TestInvoker_NotFound(t *testing.T) {
	engine := sandbox.NewLocal()
	inv, _ := newTestInvoker(t, engine, nil)

	resp := inv.Invoke(context.Background(), "test404.hello", domain.ComponentRequest{Method: "GET"}, domain.InvocationContext{})
	if resp.Status != 404 {
		t.Fatalf("expected 404, got %d", resp.Status)
	}
}

func TestInvoker_DepthLimitReached(t *testing.T) {
	engine := sandbox.NewLocal()
	inv, reg := newTestInvoker(t, engine, nil)
	if err := reg.Put(context.Background(), "test", "recurse", []byte("recurse")); err != nil {
		t.Fatalf("put: %v", err)
	}

	stack := make([]string, domain.MaxCallStackDepth)
	for i := range stack {
		stack[i] = "test.recurse"
	}
	callCtx := domain.InvocationContext{CallStack: stack}

	resp := inv.Invoke(context.Background(), "test.recurse", domain.ComponentRequest{Method: "GET"}, callCtx)
	if resp.Status != 400 || string(resp.Body) != "CALL STACK LIMIT SIZE REACHED" {
		t.Fatalf("unexpected response: %d %q", resp.Status, resp.Body)
	}
}

func TestInvoker_TopLevelTimeout(t *testing.T) {
	engine := sandbox.NewLocal()
	engine.Register("slow", func(ctx context.Context, _ sandbox.Request) (*sandbox.Response, error) {
		select {
		case <-time.After(2 * time.Second):
			return &sandbox.Response{Status: 200}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	inv, reg := newTestInvoker(t, engine, nil)
	if err := reg.Put(context.Background(), "test", "slow", []byte("slow")); err != nil {
		t.Fatalf("put: %v", err)
	}

	resp := inv.Invoke(context.Background(), "test.slow", domain.ComponentRequest{Method: "GET"}, domain.InvocationContext{})
	if resp.Status != 500 || !strings.Contains(string(resp.Body), "EXECUTION TIMEOUT") {
		t.Fatalf("expected timeout response, got %d %q", resp.Status, resp.Body)
	}
}
