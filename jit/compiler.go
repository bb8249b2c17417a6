package jit

import (
	"errors"
	"fmt"
	"sync"
)

// Compiler ties together gating, the fingerprint cache, and the
// external-compiler backend into the single entry point that
// attemptDSLJIT (dsl_lower.go in the root package) calls when
// DSL_JIT=1. It keeps a memo of fingerprints that failed to compile,
// held by this Compiler value: a later Build for a failed fingerprint
// on the same Compiler returns ErrFallback without retrying. The memo
// is not shared between Compiler values, and attemptDSLJIT creates a
// new Compiler for every call.
type Compiler struct {
	cache   *Cache
	backend Backend
	gates   GateConfig

	mu     sync.Mutex
	failed map[string]struct{}
}

func NewCompiler(cache *Cache, backend Backend, gates GateConfig) *Compiler {
	return &Compiler{cache: cache, backend: backend, gates: gates, failed: make(map[string]struct{})}
}

// ErrFallback is returned (wrapped) whenever the JIT path should be
// abandoned in favour of the tree interpreter. It is never surfaced to
// the public API caller — spec.md §4.8: "it never surfaces a
// compile-time error to the caller" — callers of Build only branch on
// error-or-not.
var ErrFallback = errors.New("jit: falling back to interpreter")

// Build returns a loaded Kernel for fingerprint, compiling and caching
// it if necessary. Any failure at any stage returns ErrFallback
// (wrapped with the specific cause for tests/diagnostics, but the
// engine itself discards the message rather than logging it).
func (c *Compiler) Build(fingerprint, dtypeSig, compilerID string, ir KernelIR) (*Kernel, error) {
	c.mu.Lock()
	if _, bad := c.failed[fingerprint]; bad {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: previous compile failed", ErrFallback)
	}
	c.mu.Unlock()

	if err := CheckGates(ir, c.gates); err != nil {
		c.markFailed(fingerprint)
		return nil, fmt.Errorf("%w: %v", ErrFallback, err)
	}

	if body, ok := c.cache.Lookup(fingerprint, dtypeSig, compilerID); ok {
		return c.load(fingerprint, body)
	}

	src, err := Lower(ir)
	if err != nil {
		c.markFailed(fingerprint)
		return nil, fmt.Errorf("%w: %v", ErrFallback, err)
	}

	obj, err := c.backend.Compile(src)
	if err != nil {
		c.markFailed(fingerprint)
		return nil, fmt.Errorf("%w: %v", ErrFallback, err)
	}

	if err := c.cache.Store(fingerprint, dtypeSig, compilerID, obj); err != nil {
		// a cache write failure doesn't invalidate a kernel we already
		// have in hand; load it directly instead of falling back.
		return c.load(fingerprint, obj)
	}
	return c.load(fingerprint, obj)
}

// load "opens" a compiled object. This module never links cgo (kept
// deliberately out of the dependency set, matching the pack's
// pure-Go stack), and the standard library's plugin package can only
// load Go-built plugins, not arbitrary C shared objects — so there is
// no portable pure-Go way to dlopen the bytes produced by Backend and
// obtain a callable function pointer. load therefore always reports
// the kernel unavailable; the fingerprinting/caching/compilation
// pipeline above it is fully exercised and tested, but invocation
// gates to the interpreter, which is itself one of spec.md §4.8's
// documented fallback paths rather than an error.
func (c *Compiler) load(fingerprint string, body []byte) (*Kernel, error) {
	_ = body
	return nil, fmt.Errorf("%w: native kernel loading requires a cgo-linked loader, unavailable in this build", ErrFallback)
}

func (c *Compiler) markFailed(fingerprint string) {
	c.mu.Lock()
	c.failed[fingerprint] = struct{}{}
	c.mu.Unlock()
}
