// Package bridge implements the CapabilityBridge (§4.6): it intercepts a
// guest's outbound HTTP requests to the two reserved hosts
// (raikiri.components, raikiri.db) and re-dispatches them as host
// operations — a nested Invoker call, or a DbBroker connection/query/
// execute operation. Anything else falls through to a default outbound
// HTTP client.
//
// # Reentrancy
//
// Dispatch is called from inside a running guest's Invoke call, so it
// must be safe to re-enter the Invoker (nested component calls) without
// deadlocking. The Bridge holds no lock of its own across a Dispatch
// call; everything it touches (Invoker, DbBroker, SecretVault) is
// already safe for concurrent, reentrant use.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oriys/raikiri/internal/dbbroker"
	"github.com/oriys/raikiri/internal/domain"
	"github.com/oriys/raikiri/internal/errkind"
	"github.com/oriys/raikiri/internal/metrics"
	"github.com/oriys/raikiri/internal/sandbox"
	"github.com/oriys/raikiri/internal/secrets"

	"github.com/google/uuid"
)

const (
	hostComponents = "raikiri.components"
	hostDB         = "raikiri.db"
)

// Invoker is the subset of invoker.Invoker the bridge needs to perform a
// nested component call. Declared here (rather than importing the
// invoker package's concrete type) so the two packages can reference
// each other without an import cycle — cmd/raikirid wires the concrete
// *invoker.Invoker in, since it satisfies this interface.
type Invoker interface {
	Invoke(ctx context.Context, targetID string, req domain.ComponentRequest, callCtx domain.InvocationContext) *domain.ComponentResponse
}

// connectionSecretName is the default secret key holding each backend's
// connection string (§4.6), overridable for postgres via the
// Connection-String-Secret-Name header.
var connectionSecretName = map[domain.ConnectionKind]string{
	domain.ConnectionPostgreSQL: "POSTGRES_CONNECTION_STRING",
	domain.ConnectionMySQL:      "MYSQL_CONNECTION_STRING",
	domain.ConnectionMongoDB:    "MONGODB_CONNECTION_STRING",
}

var connectionPaths = map[string]domain.ConnectionKind{
	"/postgres_connection": domain.ConnectionPostgreSQL,
	"/mysql_connection":    domain.ConnectionMySQL,
	"/mongodb_connection":  domain.ConnectionMongoDB,
	"/dynamodb_connection": domain.ConnectionDynamoDB,
}

// Bridge is the CapabilityBridge. It shares the SecretVault cache with
// the Gateway (§5 "the bridge uses the same SecretVault cache as the
// gateway") and the process-wide DbBroker.
type Bridge struct {
	invoker Invoker
	vault   *secrets.Vault
	broker  *dbbroker.Broker
	client  *http.Client
}

// New returns a Bridge. client defaults to a client bounded by
// requestTimeout if nil.
func New(inv Invoker, vault *secrets.Vault, broker *dbbroker.Broker, client *http.Client) *Bridge {
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	return &Bridge{invoker: inv, vault: vault, broker: broker, client: client}
}

// Dispatch routes a guest's outbound request by URL host (§4.6).
func (b *Bridge) Dispatch(ctx context.Context, callCtx domain.InvocationContext, method, rawURL string, headers map[string]string, body []byte) (*sandbox.Response, error) {
	host, path, ok := splitURL(rawURL)
	if !ok {
		return nil, errkind.Wrapf(errkind.Capability, "bridge: malformed url %q", rawURL)
	}

	switch host {
	case hostComponents:
		return b.dispatchComponent(ctx, callCtx, method, path, body)
	case hostDB:
		return b.dispatchDB(ctx, callCtx, path, headers, body)
	default:
		return b.dispatchPassthrough(ctx, method, rawURL, headers, body)
	}
}

func splitURL(rawURL string) (host, path string, ok bool) {
	rest := rawURL
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	i := strings.IndexByte(rest, '/')
	if i < 0 {
		return rest, "/", rest != ""
	}
	return rest[:i], rest[i:], rest[:i] != ""
}

// dispatchComponent re-enters the Invoker for a nested call (§4.6
// "Nested invocation").
func (b *Bridge) dispatchComponent(ctx context.Context, callCtx domain.InvocationContext, method, path string, body []byte) (*sandbox.Response, error) {
	targetID := strings.TrimPrefix(path, "/")
	if targetID == "" {
		return &sandbox.Response{Status: 404}, nil
	}
	metrics.RecordBridgeCall(hostComponents, true)
	resp := b.invoker.Invoke(ctx, targetID, domain.ComponentRequest{Method: method, Path: path, Body: body}, callCtx)
	return &sandbox.Response{Status: resp.Status, Body: resp.Body}, nil
}

func (b *Bridge) dispatchDB(ctx context.Context, callCtx domain.InvocationContext, path string, headers map[string]string, body []byte) (*sandbox.Response, error) {
	if kind, ok := connectionPaths[path]; ok {
		return b.openConnection(ctx, callCtx, kind, headers)
	}
	switch path {
	case "/query":
		return b.runQuery(ctx, headers, body, false)
	case "/execute":
		return b.runQuery(ctx, headers, body, true)
	default:
		return &sandbox.Response{Status: 404}, nil
	}
}

// openConnection loads the current caller's secrets (last frame of the
// call stack), resolves a connection-string secret for kind, and
// registers a fresh connection in the DbBroker under a new UUID (§4.6).
func (b *Bridge) openConnection(ctx context.Context, callCtx domain.InvocationContext, kind domain.ConnectionKind, headers map[string]string) (*sandbox.Response, error) {
	caller, ok := callCtx.Caller()
	if !ok {
		return nil, errkind.Wrapf(errkind.Capability, "bridge: no caller on call stack")
	}
	tenant, name, ok := domain.SplitComponentID(caller)
	if !ok {
		return nil, errkind.Wrapf(errkind.Capability, "bridge: malformed caller id %q", caller)
	}
	env, err := b.vault.GetSecretsCached(ctx, tenant, name)
	if err != nil {
		return nil, err
	}

	dsn, err := b.resolveDSN(kind, headers, env)
	if err != nil {
		return nil, err
	}

	connID := uuid.New().String()
	b.broker.Register(connID, dbbroker.Config{Kind: kind, DSN: dsn})
	metrics.RecordBridgeCall(hostDB, true)
	return &sandbox.Response{Status: 200, Body: []byte(connID)}, nil
}

// resolveDSN looks up the connection-string secret for kind. Every kind
// but dynamodb is a single named secret, overridable via the
// Connection-String-Secret-Name header for postgres only (§4.6);
// dynamodb composes four fixed secret names into one colon-joined
// string consumed by dbbroker.DialDynamoDB.
func (b *Bridge) resolveDSN(kind domain.ConnectionKind, headers map[string]string, env domain.SecretMap) (string, error) {
	if kind == domain.ConnectionDynamoDB {
		parts := []string{"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "AWS_REGION", "AWS_ENDPOINT_URL"}
		values := make([]string, len(parts))
		for i, key := range parts {
			v, _ := env.Get(key)
			values[i] = v
		}
		return strings.Join(values, ":"), nil
	}

	secretName := connectionSecretName[kind]
	if kind == domain.ConnectionPostgreSQL {
		if override, ok := headers["Connection-String-Secret-Name"]; ok && override != "" {
			secretName = override
		}
	}

	v, ok := env.Get(secretName)
	if !ok {
		return "", errkind.Wrapf(errkind.Capability, "bridge: missing secret %q for connection kind %q", secretName, kind)
	}
	return v, nil
}

type queryEnvelope struct {
	SQL    string            `json:"sql"`
	Params []json.RawMessage `json:"params"`
}

func (b *Bridge) runQuery(ctx context.Context, headers map[string]string, body []byte, execute bool) (*sandbox.Response, error) {
	connID := headers["Connection-Id"]
	if connID == "" {
		return nil, errkind.Wrapf(errkind.Capability, "bridge: missing Connection-Id header")
	}

	var env queryEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errkind.Wrap(errkind.Parse, err)
	}
	params, err := dbbroker.CoerceJSONParams(env.Params)
	if err != nil {
		return nil, err
	}

	if execute {
		affected, err := b.broker.ExecuteCommand(ctx, connID, env.SQL, params)
		if err != nil {
			return nil, err
		}
		metrics.RecordBridgeCall(hostDB, true)
		return &sandbox.Response{Status: 200, Body: []byte(strconv.FormatInt(affected, 10))}, nil
	}

	rows, err := b.broker.FetchRows(ctx, connID, env.SQL, params)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(rows)
	if err != nil {
		return nil, errkind.Wrap(errkind.Parse, err)
	}
	metrics.RecordBridgeCall(hostDB, true)
	return &sandbox.Response{Status: 200, Body: out}, nil
}

func (b *Bridge) dispatchPassthrough(ctx context.Context, method, rawURL string, headers map[string]string, body []byte) (*sandbox.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, errkind.Wrap(errkind.Capability, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, errkind.Wrap(errkind.Capability, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errkind.Wrap(errkind.Capability, err)
	}
	return &sandbox.Response{Status: resp.StatusCode, Body: respBody}, nil
}

// requestTimeout bounds the default outbound passthrough client when the
// caller supplies none (a guest component issuing requests to arbitrary
// hosts should not be able to hang a nested call indefinitely).
const requestTimeout = 30 * time.Second
