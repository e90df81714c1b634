// Package invoker implements the Invoker (§4.7): per-request artifact
// resolution, call-stack accounting, the top-level-only timeout, and
// response assembly.
//
// # Invocation pipeline
//
// Invoke is the single entry point used by both the Gateway (top-level
// calls) and the CapabilityBridge (nested calls, §4.6). The pipeline is:
//
//  1. Depth check: a call stack already at MaxDepth is rejected with a
//     synthetic 400 before anything is resolved or instantiated.
//  2. The call stack is forked (copied, never aliased — §9 "call stack
//     as value, not reference") with target appended.
//  3. The target's decrypted secrets are read through the shared
//     SecretVault cache (reentrant frames for the same component share
//     one decrypted map, §5).
//  4. The artifact is resolved via the ComponentRegistry; a missing
//     artifact yields a synthetic 404.
//  5. A fresh sandbox instance runs the artifact with the resolved
//     secrets as environment and a Dispatch callback wired to the
//     CapabilityBridge.
//  6. Only the top-level call (post-push depth == 1) is raced against a
//     timeout; nested calls share the outer budget (§9 "timeout scoped
//     to top-level only").
//  7. Regardless of outcome, an Execution record is emitted to the event
//     sink.
package invoker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/raikiri/internal/domain"
	"github.com/oriys/raikiri/internal/errkind"
	"github.com/oriys/raikiri/internal/logging"
	"github.com/oriys/raikiri/internal/metrics"
	"github.com/oriys/raikiri/internal/observability"
	"github.com/oriys/raikiri/internal/registry"
	"github.com/oriys/raikiri/internal/sandbox"
	"github.com/oriys/raikiri/internal/secrets"
)

// maxStdoutBytes bounds captured guest stdout (§4.7 step 5: "a bounded
// in-memory pipe (16 KiB)"). Engines are expected to enforce this
// themselves; this is a defensive backstop.
const maxStdoutBytes = 16 * 1024

func truncateStdout(b []byte) []byte {
	if len(b) > maxStdoutBytes {
		return b[:maxStdoutBytes]
	}
	return b
}

// Bridge re-dispatches a guest's outbound HTTP request (§4.6). The
// Invoker does not import the bridge package directly — wiring it in
// this way keeps the dependency a single direction (cmd/raikirid
// constructs both and ties them together) even though the bridge itself
// needs to re-enter the Invoker for nested component calls.
type Bridge interface {
	Dispatch(ctx context.Context, callCtx domain.InvocationContext, method, url string, headers map[string]string, body []byte) (*sandbox.Response, error)
}

// EventEmitter receives one Execution record per invocation attempt
// (§6). logsink.Channel satisfies this interface.
type EventEmitter interface {
	Emit(ctx context.Context, exec domain.Execution)
}

// OutputRecorder persists captured stdout/stderr for later retrieval by
// request id, independent of the Execution event stream. logging.OutputStore
// satisfies this interface; it backs the operator-facing "get output for
// request X" lookup the ambient logging package already provides.
type OutputRecorder interface {
	Store(requestID, functionID, stdout, stderr string)
}

// Invoker ties the ComponentRegistry, SecretVault, sandbox Engine, and
// CapabilityBridge together into the invocation pipeline.
type Invoker struct {
	registry *registry.Registry
	vault    *secrets.Vault
	engine   sandbox.Engine
	bridge   Bridge
	sink     EventEmitter
	output   OutputRecorder

	// DefaultTimeout bounds a top-level call (env RAIKIRI_TIMEOUT,
	// default 300ms per §6).
	DefaultTimeout time.Duration
	// MaxDepth bounds call-stack length (§3, default 10).
	MaxDepth int
}

// SetBridge wires the CapabilityBridge after construction. The bridge
// itself needs a reference to this Invoker to serve nested component
// calls (§4.6), so the two are necessarily constructed in two steps:
// invoker.New(..., nil, ...) followed by bridge.New(inv, ...) followed by
// inv.SetBridge(capBridge).
func (inv *Invoker) SetBridge(b Bridge) {
	inv.bridge = b
}

// SetOutputRecorder wires an OutputRecorder (typically
// logging.GetOutputStore()) that receives a copy of every invocation's
// captured stdout, keyed by a freshly minted request id, independent of
// the Execution event stream. Optional: a nil recorder (the default) is
// a no-op.
func (inv *Invoker) SetOutputRecorder(output OutputRecorder) {
	inv.output = output
}

// New returns an Invoker. bridge may be nil only for tests that never
// exercise outbound capability dispatch.
func New(reg *registry.Registry, vault *secrets.Vault, engine sandbox.Engine, bridge Bridge, sink EventEmitter, timeout time.Duration, maxDepth int) *Invoker {
	return &Invoker{
		registry:       reg,
		vault:          vault,
		engine:         engine,
		bridge:         bridge,
		sink:           sink,
		DefaultTimeout: timeout,
		MaxDepth:       maxDepth,
	}
}

// Invoke runs targetID with req under callCtx, always returning a
// response — synthetic ones included — never a Go error; every
// failure mode named in §4.7/§7 is represented as a status+body pair
// the Gateway or CapabilityBridge can pass straight through.
func (inv *Invoker) Invoke(ctx context.Context, targetID string, req domain.ComponentRequest, callCtx domain.InvocationContext) *domain.ComponentResponse {
	start := time.Now()
	requestID := uuid.NewString()

	if callCtx.Depth() >= inv.MaxDepth {
		metrics.RecordDepthLimitRejection()
		return inv.finish(ctx, requestID, targetID, start, 400, []byte("CALL STACK LIMIT SIZE REACHED"), nil)
	}

	tenant, name, ok := domain.SplitComponentID(targetID)
	if !ok {
		return inv.finish(ctx, requestID, targetID, start, 404, []byte(fmt.Sprintf("Component %s not found", targetID)), nil)
	}

	env, err := inv.vault.GetSecretsCached(ctx, tenant, name)
	if err != nil {
		return inv.finish(ctx, requestID, targetID, start, 500, []byte("RUNTIME ERROR: "+err.Error()), nil)
	}

	childCtx := callCtx.Fork(targetID, env)

	artifact, err := inv.registry.Get(ctx, tenant, name)
	if err != nil {
		if errkind.From(err) == errkind.NotFound {
			return inv.finish(ctx, requestID, targetID, start, 404, []byte(fmt.Sprintf("Component %s not found", targetID)), nil)
		}
		return inv.finish(ctx, requestID, targetID, start, 500, []byte("RUNTIME ERROR: "+err.Error()), nil)
	}

	sbReq := sandbox.Request{
		Artifact: artifact,
		Env:      env,
		Method:   req.Method,
		Path:     req.Path,
		Body:     req.Body,
		Dispatch: func(dctx context.Context, method, url string, headers map[string]string, body []byte) (*sandbox.Response, error) {
			if inv.bridge == nil {
				return nil, errkind.Wrapf(errkind.Capability, "invoker: no capability bridge configured")
			}
			return inv.bridge.Dispatch(dctx, childCtx, method, url, headers, body)
		},
	}

	topLevel := childCtx.Depth() == 1
	resp, stdout, err := inv.run(ctx, sbReq, topLevel)
	if err != nil {
		if errkind.From(err) == errkind.Timeout {
			return inv.finish(ctx, requestID, targetID, start, 500, []byte("EXECUTION TIMEOUT"), stdout)
		}
		return inv.finish(ctx, requestID, targetID, start, 500, []byte("RUNTIME ERROR: "+err.Error()), stdout)
	}

	return inv.finish(ctx, requestID, targetID, start, resp.Status, resp.Body, resp.Stdout)
}

// run instantiates the sandbox, applying a timeout only when this is
// the top-level call in the chain (§4.7 step 7, §9 "timeout scoped to
// top-level only").
func (inv *Invoker) run(ctx context.Context, req sandbox.Request, topLevel bool) (*sandbox.Response, []byte, error) {
	if !topLevel {
		resp, err := inv.engine.Instantiate(ctx, req)
		if resp != nil {
			return resp, resp.Stdout, err
		}
		return nil, nil, err
	}

	timeout := inv.DefaultTimeout
	if timeout <= 0 {
		timeout = 300 * time.Millisecond
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		resp *sandbox.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := inv.engine.Instantiate(runCtx, req)
		done <- result{resp, err}
	}()

	select {
	case r := <-done:
		if r.resp != nil {
			return r.resp, r.resp.Stdout, r.err
		}
		return nil, nil, r.err
	case <-runCtx.Done():
		return nil, nil, errkind.Wrap(errkind.Timeout, runCtx.Err())
	}
}

func (inv *Invoker) finish(ctx context.Context, requestID, targetID string, start time.Time, status int, body []byte, stdout []byte) *domain.ComponentResponse {
	durationMs := time.Since(start).Milliseconds()
	success := status >= 200 && status < 300

	if inv.sink != nil {
		var stdoutPtr *string
		if len(stdout) > 0 {
			s := string(truncateStdout(stdout))
			stdoutPtr = &s
		}
		inv.sink.Emit(ctx, domain.Execution{
			TargetID:   targetID,
			Stdout:     stdoutPtr,
			Start:      start,
			DurationMs: durationMs,
			Status:     status,
		})
	}

	if inv.output != nil && len(stdout) > 0 {
		inv.output.Store(requestID, targetID, string(truncateStdout(stdout)), "")
	}

	entry := &logging.RequestLog{
		RequestID:  requestID,
		TraceID:    observability.GetTraceID(ctx),
		SpanID:     observability.GetSpanID(ctx),
		Function:   targetID,
		FunctionID: targetID,
		DurationMs: durationMs,
		Success:    success,
		InputSize:  len(body),
		OutputSize: len(body),
	}
	if !success {
		entry.Error = string(body)
	}
	logging.Default().Log(entry)

	componentKey := targetID
	metrics.Global().RecordInvocation(componentKey, durationMs, success)

	logging.Op().Debug("invocation complete", "target", targetID, "request_id", requestID, "status", status, "duration_ms", durationMs)

	return &domain.ComponentResponse{Status: status, Body: body}
}
