// Package compiler defines the seam between the runtime and whatever
// produces a loadable artifact from component source (§4.4). The real
// AOT toolchain a production deployment would shell out to (the
// counterpart of the teacher's Docker-based per-language compilation) is
// an opaque external collaborator here: this package only defines the
// interface and a passthrough implementation for artifacts that arrive
// pre-built.
package compiler

import (
	"context"

	"github.com/oriys/raikiri/internal/errkind"
	"github.com/oriys/raikiri/internal/logging"
)

// Service turns component source bytes into a loadable artifact.
// Put-Component calls Compile once, synchronously, before the artifact
// is written to the ArtifactStore — there is no background compilation
// state machine here, unlike the teacher's CompileAsync, because the
// spec's Put-Component is a single blocking request (§4.4).
type Service interface {
	Compile(ctx context.Context, source []byte) ([]byte, error)
}

// Noop is the default Service: it treats source as an already-loadable
// artifact and passes it through unchanged. It grounds the "interpreted
// language: store source as-is" branch of the teacher's compiler, which
// is the only branch that requires no external toolchain.
type Noop struct{}

// Compile returns source unchanged.
func (Noop) Compile(_ context.Context, source []byte) ([]byte, error) {
	if len(source) == 0 {
		return nil, errkind.Wrapf(errkind.Parse, "compiler: empty component source")
	}
	return source, nil
}

// Logging wraps an inner Service and logs success/failure through the
// operational logger, the way the teacher's CompileAsync logs around
// its own compile step.
type Logging struct {
	Inner Service
}

// Compile delegates to l.Inner and logs the outcome.
func (l Logging) Compile(ctx context.Context, source []byte) ([]byte, error) {
	artifact, err := l.Inner.Compile(ctx, source)
	if err != nil {
		logging.Op().Error("component compilation failed", "error", err, "source_bytes", len(source))
		return nil, err
	}
	logging.Op().Info("component compiled", "source_bytes", len(source), "artifact_bytes", len(artifact))
	return artifact, nil
}
