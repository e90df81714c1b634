package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oriys/raikiri/internal/artifactstore"
	"github.com/oriys/raikiri/internal/dbbroker"
	"github.com/oriys/raikiri/internal/domain"
	"github.com/oriys/raikiri/internal/secrets"
)

type fakeInvoker struct {
	calledWith string
	resp       *domain.ComponentResponse
}

func (f *fakeInvoker) Invoke(ctx context.Context, targetID string, req domain.ComponentRequest, callCtx domain.InvocationContext) *domain.ComponentResponse {
	f.calledWith = targetID
	return f.resp
}

func newTestVault(t *testing.T) *secrets.Vault {
	t.Helper()
	store := artifactstore.New(t.TempDir())
	if err := store.Init(); err != nil {
		t.Fatalf("init store: %v", err)
	}
	return secrets.New(store)
}

func TestBridge_DispatchComponent_ReentersInvoker(t *testing.T) {
	inv := &fakeInvoker{resp: &domain.ComponentResponse{Status: 200, Body: []byte("ok")}}
	b := New(inv, newTestVault(t), dbbroker.New(dbbroker.DefaultDialers()), nil)

	callCtx := domain.InvocationContext{}.Fork("acme.caller", nil)
	resp, err := b.Dispatch(context.Background(), callCtx, http.MethodGet, "http://raikiri.components/acme.callee", nil, nil)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp.Status != 200 {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
	if inv.calledWith != "acme.callee" {
		t.Fatalf("invoker called with %q, want acme.callee", inv.calledWith)
	}
}

func TestBridge_DispatchComponent_EmptyTarget(t *testing.T) {
	inv := &fakeInvoker{}
	b := New(inv, newTestVault(t), dbbroker.New(dbbroker.DefaultDialers()), nil)

	resp, err := b.Dispatch(context.Background(), domain.InvocationContext{}, http.MethodGet, "http://raikiri.components/", nil, nil)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp.Status != 404 {
		t.Fatalf("status = %d, want 404", resp.Status)
	}
	if inv.calledWith != "" {
		t.Fatalf("invoker should not have been called, got %q", inv.calledWith)
	}
}

func TestBridge_DispatchPassthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Test"); got != "yes" {
			t.Errorf("X-Test header = %q, want yes", got)
		}
		w.WriteHeader(201)
		w.Write([]byte("passthrough"))
	}))
	defer srv.Close()

	b := New(&fakeInvoker{}, newTestVault(t), dbbroker.New(dbbroker.DefaultDialers()), nil)
	resp, err := b.Dispatch(context.Background(), domain.InvocationContext{}, http.MethodGet, srv.URL, map[string]string{"X-Test": "yes"}, nil)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp.Status != 201 || string(resp.Body) != "passthrough" {
		t.Fatalf("resp = %+v, want 201/passthrough", resp)
	}
}

func TestBridge_ResolveDSN_DynamoDBComposite(t *testing.T) {
	b := New(&fakeInvoker{}, newTestVault(t), dbbroker.New(dbbroker.DefaultDialers()), nil)
	env := domain.SecretMap{
		{Key: "AWS_ACCESS_KEY_ID", Value: "ak"},
		{Key: "AWS_SECRET_ACCESS_KEY", Value: "sk"},
		{Key: "AWS_REGION", Value: "us-east-1"},
		{Key: "AWS_ENDPOINT_URL", Value: ""},
	}
	dsn, err := b.resolveDSN(domain.ConnectionDynamoDB, nil, env)
	if err != nil {
		t.Fatalf("resolveDSN: %v", err)
	}
	if dsn != "ak:sk:us-east-1:" {
		t.Fatalf("dsn = %q", dsn)
	}
}

func TestBridge_ResolveDSN_PostgresSecretNameOverride(t *testing.T) {
	b := New(&fakeInvoker{}, newTestVault(t), dbbroker.New(dbbroker.DefaultDialers()), nil)
	env := domain.SecretMap{{Key: "CUSTOM_DSN", Value: "postgres://x"}}
	dsn, err := b.resolveDSN(domain.ConnectionPostgreSQL, map[string]string{"Connection-String-Secret-Name": "CUSTOM_DSN"}, env)
	if err != nil {
		t.Fatalf("resolveDSN: %v", err)
	}
	if dsn != "postgres://x" {
		t.Fatalf("dsn = %q", dsn)
	}
}

func TestBridge_ResolveDSN_MissingSecret(t *testing.T) {
	b := New(&fakeInvoker{}, newTestVault(t), dbbroker.New(dbbroker.DefaultDialers()), nil)
	if _, err := b.resolveDSN(domain.ConnectionMySQL, nil, nil); err == nil {
		t.Fatal("expected error for missing secret")
	}
}
