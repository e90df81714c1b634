// Package domain holds the data model shared by every component of the
// runtime: tenants, components, secret maps, invocation contexts, and
// database connection handles.
package domain

import (
	"strings"
	"time"
)

// ConnectionKind identifies the backend a DB connection handle talks to.
type ConnectionKind string

const (
	ConnectionPostgreSQL ConnectionKind = "POSTGRESQL"
	ConnectionMySQL      ConnectionKind = "MYSQL"
	ConnectionMongoDB    ConnectionKind = "MONGODB"
	ConnectionDynamoDB   ConnectionKind = "DYNAMODB"
)

// MaxCallStackDepth bounds recursive component invocation (§3 invariants).
const MaxCallStackDepth = 10

// SplitComponentID splits "<tenant>.<name>" into its two parts at the
// first '.' (§3 "Component ids ... contain exactly one '.' separator").
func SplitComponentID(id string) (tenant, name string, ok bool) {
	i := strings.IndexByte(id, '.')
	if i < 0 {
		return "", "", false
	}
	return id[:i], id[i+1:], true
}

// SecretPair is one ordered entry of a secret map. Order matters: §8
// requires get_secrets to round-trip the same ordered sequence that was
// written, so secret maps are carried as slices rather than Go maps
// throughout the runtime.
type SecretPair struct {
	Key   string
	Value string
}

// SecretMap is the ordered (key, value) sequence owned by a
// (tenant, component) pair.
type SecretMap []SecretPair

// Get returns the value for key and whether it was present.
func (m SecretMap) Get(key string) (string, bool) {
	for _, p := range m {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// AsEnv renders the secret map as process environment lines ("KEY=value").
func (m SecretMap) AsEnv() []string {
	env := make([]string, 0, len(m))
	for _, p := range m {
		env = append(env, p.Key+"="+p.Value)
	}
	return env
}

// InvocationContext is the transient per-call record threaded through a
// chain of (possibly nested) component invocations.
type InvocationContext struct {
	// CallStack is ordered, most recent last. Each invocation frame
	// receives a copy with its own entry appended (§9 "call stack as
	// value, not reference") so nested frames never alias a caller's
	// slice.
	CallStack []string

	// Env is the effective environment for the component currently being
	// invoked: its tenant's decrypted secrets.
	Env SecretMap
}

// Fork returns a copy of the context with target appended to the call
// stack, leaving the receiver untouched.
func (c InvocationContext) Fork(target string, env SecretMap) InvocationContext {
	stack := make([]string, len(c.CallStack), len(c.CallStack)+1)
	copy(stack, c.CallStack)
	stack = append(stack, target)
	return InvocationContext{CallStack: stack, Env: env}
}

// Depth returns the current call stack length.
func (c InvocationContext) Depth() int { return len(c.CallStack) }

// Caller returns the last entry of the call stack (the component that is
// currently executing and, via the CapabilityBridge, issuing the request
// being served) and whether one exists.
func (c InvocationContext) Caller() (string, bool) {
	if len(c.CallStack) == 0 {
		return "", false
	}
	return c.CallStack[len(c.CallStack)-1], true
}

// ComponentRequest is an inbound call to a single component, whether
// from the Gateway (top-level) or the CapabilityBridge (nested, §4.6).
type ComponentRequest struct {
	Method string
	Path   string
	Body   []byte
}

// ComponentResponse is a synthetic or guest-produced HTTP-shaped result.
type ComponentResponse struct {
	Status int
	Body   []byte
}

// Execution is the structured record emitted to the event sink for every
// invocation attempt, successful or not (§6).
type Execution struct {
	TargetID   string    `json:"tenant_component_name"`
	Stdout     *string   `json:"captured_stdout,omitempty"`
	Start      time.Time `json:"start_time"`
	DurationMs int64     `json:"duration_ms"`
	Status     int       `json:"status"`
}
