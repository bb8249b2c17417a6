// Package jit implements the optional DSL-kernel JIT compiler from
// spec.md §4.8: lowering a kernel AST to C, invoking a pluggable
// backend compiler, caching the resulting code object on disk by
// fingerprint, and the reference-counted Kernel type for a loaded
// native kernel. Loading itself is not available: Compiler.load always
// returns ErrFallback (compiler.go).
package jit

import "sync/atomic"

// Kernel is a loaded native code object backing one compiled
// Expression. It is reference-counted (spec.md §4.8: "an expression
// handle holds one strong reference and drops it on free") because the
// same fingerprint may be shared by several Expression handles
// compiled from identical DSL source/dtypes/layout.
type Kernel struct {
	Fingerprint string
	Fn          KernelFunc
	refcount    int32
	onRelease   func()
}

// KernelFunc matches the C signature spec.md §4.8 specifies:
// void kernel_block(const void *inputs[], void *output, long nitems, const long indices[]).
// inputs/output are passed as opaque pointers from the caller's buffers.
// Nothing in this package produces a KernelFunc: Backend only returns
// object bytes, and Compiler.load never turns them into a Kernel since
// the engine never links cgo.
type KernelFunc func(inputs []uintptr, output uintptr, nitems int64, indices []int64)

func newKernel(fingerprint string, fn KernelFunc, onRelease func()) *Kernel {
	k := &Kernel{Fingerprint: fingerprint, Fn: fn, onRelease: onRelease}
	atomic.StoreInt32(&k.refcount, 1)
	return k
}

// Acquire increments the reference count; used when a second
// Expression handle resolves to the same cached fingerprint.
func (k *Kernel) Acquire() *Kernel {
	atomic.AddInt32(&k.refcount, 1)
	return k
}

// Release drops a reference; when it reaches zero the backing loaded
// code object is unloaded via onRelease (e.g. dlclose / freeing the
// allocator's buffer).
func (k *Kernel) Release() {
	if atomic.AddInt32(&k.refcount, -1) == 0 && k.onRelease != nil {
		k.onRelease()
	}
}

// AllocFunc/FreeFunc let a host environment that cannot open native
// code (e.g. sandboxed Go-only embedding) supply its own memory
// management for loaded kernels, per spec.md §6's
// register_jit_helpers. Nil means "use the backend's own allocator."
type AllocFunc func(size int) uintptr
type FreeFunc func(ptr uintptr)

var (
	registeredAlloc AllocFunc
	registeredFree  FreeFunc
)

// RegisterHelpers installs caller-supplied alloc/free functions for
// environments that cannot rely on the backend's own loader.
func RegisterHelpers(alloc AllocFunc, free FreeFunc) {
	registeredAlloc = alloc
	registeredFree = free
}
