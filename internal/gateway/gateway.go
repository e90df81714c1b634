// Package gateway implements the Gateway (§4.8): the single HTTP front
// door that dispatches on the Platform-Command header to Put-Component,
// Invoke-Component, and Update-Component-Secrets (§6), plus the
// Update-Crypto-Key operation named in §3's Encryption Key lifecycle.
//
// The Gateway never leaks internal stack traces (§7): every core error is
// mapped to a synthetic text/plain response before it reaches the wire.
package gateway

import (
	"context"
	"io"
	"net/http"

	"github.com/oriys/raikiri/internal/domain"
	"github.com/oriys/raikiri/internal/errkind"
	"github.com/oriys/raikiri/internal/logging"
	"github.com/oriys/raikiri/internal/observability"
	"github.com/oriys/raikiri/internal/registry"
	"github.com/oriys/raikiri/internal/secrets"
)

const (
	headerCommand     = "Platform-Command"
	headerComponentID = "Component-Id"

	cmdPutComponent    = "Put-Component"
	cmdInvokeComponent = "Invoke-Component"
	cmdUpdateSecrets   = "Update-Component-Secrets"
	cmdUpdateCryptoKey = "Update-Crypto-Key"
)

// Invoke is the top-level entry point the Gateway drives for
// Invoke-Component (§4.7): a fresh, empty call stack is the starting
// context for every externally-triggered invocation. cmd/raikirid passes
// (*invoker.Invoker).Invoke directly — its signature already matches.
type Invoke func(ctx context.Context, targetID string, req domain.ComponentRequest, callCtx domain.InvocationContext) *domain.ComponentResponse

// Gateway is the Platform-Command HTTP dispatcher.
type Gateway struct {
	registry *registry.Registry
	vault    *secrets.Vault
	invoke   Invoke

	// Tenant is the server's configured username (§6 "Put-Component
	// receives <name> only; the tenant is the server's configured
	// username").
	Tenant string
}

// New returns a Gateway backed by reg and vault, calling invoke for every
// Invoke-Component request.
func New(reg *registry.Registry, vault *secrets.Vault, tenant string, invoke Invoke) *Gateway {
	return &Gateway{registry: reg, vault: vault, invoke: invoke, Tenant: tenant}
}

// ServeHTTP dispatches on Platform-Command (§6).
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Header.Get(headerCommand) {
	case cmdPutComponent:
		g.handlePutComponent(w, r)
	case cmdInvokeComponent:
		g.handleInvokeComponent(w, r)
	case cmdUpdateSecrets:
		g.handleUpdateSecrets(w, r)
	case cmdUpdateCryptoKey:
		g.handleUpdateCryptoKey(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (g *Gateway) handlePutComponent(w http.ResponseWriter, r *http.Request) {
	name := r.Header.Get(headerComponentID)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeText(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := g.registry.Put(r.Context(), g.Tenant, name, body); err != nil {
		writeKindError(w, err)
		return
	}
	logging.Op().Info("component put", "tenant", g.Tenant, "name", name, "bytes", len(body))
	w.WriteHeader(http.StatusOK)
}

func (g *Gateway) handleInvokeComponent(w http.ResponseWriter, r *http.Request) {
	targetID := r.Header.Get(headerComponentID)

	ctx, span := observability.StartServerSpan(r.Context(), "gateway.invoke",
		observability.AttrComponentID.String(targetID),
		observability.AttrTenant.String(g.Tenant),
		observability.AttrDepth.Int(0),
	)
	defer span.End()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeText(w, http.StatusInternalServerError, err.Error())
		return
	}

	req := domain.ComponentRequest{Method: r.Method, Path: r.URL.Path, Body: body}
	resp := g.invoke(ctx, targetID, req, domain.InvocationContext{})

	span.SetAttributes(observability.AttrStatus.Int(resp.Status))
	if resp.Status >= 400 {
		observability.SetSpanError(span, errkind.Wrapf(errkind.Unknown, "invoke %s: status %d", targetID, resp.Status))
	} else {
		observability.SetSpanOK(span)
	}

	w.WriteHeader(resp.Status)
	w.Write(resp.Body)
}

func (g *Gateway) handleUpdateSecrets(w http.ResponseWriter, r *http.Request) {
	name := r.Header.Get(headerComponentID)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeText(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := g.vault.UpdateSecrets(r.Context(), g.Tenant, name, body); err != nil {
		writeKindError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (g *Gateway) handleUpdateCryptoKey(w http.ResponseWriter, r *http.Request) {
	if err := g.vault.RotateKey(r.Context(), g.Tenant); err != nil {
		writeKindError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

// writeKindError maps a core error to the synthetic HTTP response §7
// prescribes, without ever surfacing the error's internal detail beyond
// its message text.
func writeKindError(w http.ResponseWriter, err error) {
	switch errkind.From(err) {
	case errkind.NotFound:
		writeText(w, http.StatusNotFound, err.Error())
	case errkind.Parse, errkind.Capability:
		writeText(w, http.StatusBadRequest, err.Error())
	default:
		writeText(w, http.StatusInternalServerError, err.Error())
	}
}
