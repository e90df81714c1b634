package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/oriys/raikiri/internal/artifactstore"
	"github.com/oriys/raikiri/internal/compiler"
	"github.com/oriys/raikiri/internal/domain"
	"github.com/oriys/raikiri/internal/invoker"
	"github.com/oriys/raikiri/internal/logsink"
	"github.com/oriys/raikiri/internal/registry"
	"github.com/oriys/raikiri/internal/sandbox"
	"github.com/oriys/raikiri/internal/secrets"
)

func newTestGateway(t *testing.T) (*Gateway, *sandbox.Local) {
	t.Helper()
	store := artifactstore.New(t.TempDir())
	reg := registry.New(store, compiler.Noop{})
	vault := secrets.New(store)
	engine := sandbox.NewLocal()
	sink := logsink.NewChannel(logsink.NewNoopSink())
	t.Cleanup(func() { sink.Close() })

	inv := invoker.New(reg, vault, engine, nil, sink, 200*time.Millisecond, domain.MaxCallStackDepth)
	return New(reg, vault, "test", inv.Invoke), engine
}

func TestGateway_HelloWorld(t *testing.T) {
	gw, engine := newTestGateway(t)
	engine.Register("hello", func(_ context.Context, req sandbox.Request) (*sandbox.Response, error) {
		return &sandbox.Response{Status: 200, Body: []byte("Hello World!")}, nil
	})

	put := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("hello"))
	put.Header.Set("Platform-Command", "Put-Component")
	put.Header.Set("Component-Id", "hello")
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, put)
	if rec.Code != http.StatusOK {
		t.Fatalf("put: expected 200, got %d", rec.Code)
	}

	inv := httptest.NewRequest(http.MethodGet, "/", nil)
	inv.Header.Set("Platform-Command", "Invoke-Component")
	inv.Header.Set("Component-Id", "test.hello")
	inv.Header.Set("Host", "localhost:8080")
	rec = httptest.NewRecorder()
	gw.ServeHTTP(rec, inv)

	if rec.Code != http.StatusOK || rec.Body.String() != "Hello World!" {
		t.Fatalf("invoke: unexpected response %d %q", rec.Code, rec.Body.String())
	}
}

func TestGateway_InvokeNotFound(t *testing.T) {
	gw, _ := newTestGateway(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Platform-Command", "Invoke-Component")
	req.Header.Set("Component-Id", "test404.hello")
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGateway_UnknownCommand(t *testing.T) {
	gw, _ := newTestGateway(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing Platform-Command, got %d", rec.Code)
	}
}

func TestGateway_SecretRoundTrip(t *testing.T) {
	gw, _ := newTestGateway(t)

	update := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("FOO: bar\nBAZ: qux\n"))
	update.Header.Set("Platform-Command", "Update-Component-Secrets")
	update.Header.Set("Component-Id", "c")
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, update)
	if rec.Code != http.StatusOK {
		t.Fatalf("update-secrets: expected 200, got %d", rec.Code)
	}

	pairs, err := gw.vault.GetSecretsCached(update.Context(), "test", "c")
	if err != nil {
		t.Fatalf("get secrets: %v", err)
	}
	if len(pairs) != 2 || pairs[0].Key != "FOO" || pairs[0].Value != "bar" || pairs[1].Key != "BAZ" || pairs[1].Value != "qux" {
		t.Fatalf("unexpected secrets: %+v", pairs)
	}
}
