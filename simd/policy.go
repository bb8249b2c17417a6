// Package simd implements the accuracy/latency dispatch policy and
// per-dtype transcendental kernels described in spec.md §4.5.
//
// A thread-local push/pop policy stack (the source behaviour spec.md
// §9 asks implementers to replace) becomes here an explicit Policy
// value threaded through evaluation, plus a scoped-override helper
// (WithPolicy) for ergonomics when a caller wants the old push/pop feel
// without a mutable global.
package simd

import "github.com/klauspost/cpuid/v2"

// ULPMode selects the accuracy tier for vector transcendentals.
// ULP1 is the default, correctly-rounded-to-~1-ULP tier; ULP35 trades
// accuracy (up to 3.5 ULP) for latency.
type ULPMode int

const (
	ULP1 ULPMode = iota
	ULP35
)

func (m ULPMode) String() string {
	if m == ULP35 {
		return "ULP_3_5"
	}
	return "ULP_1"
}

// Policy is the per-evaluation-call accuracy/latency policy. It is a
// plain value (spec.md §9's redesign note), not a thread-local
// push/pop stack: callers construct one, pass it down, and it is read
// once at the top of a block-interpreter walk.
type Policy struct {
	Mode        ULPMode
	DisableSIMD bool
}

// Default returns the policy a caller gets when it passes no explicit
// override: 1-ULP accuracy, vector kernels enabled.
func Default() Policy {
	return Policy{Mode: ULP1, DisableSIMD: false}
}

// WithPolicy runs fn under the given policy and returns its result.
// It exists purely for ergonomics at call sites that want the old
// "push, run, pop" shape without installing a mutable global: there is
// no shared state to restore because Policy is a value.
func WithPolicy[T any](p Policy, fn func(Policy) T) T {
	return fn(p)
}

// VectorWidthHint reports how many lanes of the given byte-width the
// host's vector ISA can plausibly process per instruction, read once
// via cpuid at process start. It does not gate correctness: the u10/u35
// kernel tables are portable Go and run identically regardless of the
// hint. It exists so callers sizing block buffers (spec.md §4.4's "a
// natural choice is 1024-4096 elements tuned for L1/L2 cache") can bias
// their block size to the host's actual vector width instead of a
// fixed guess.
func VectorWidthHint(elemBytes int) int {
	bits := 128
	switch {
	case cpuid.CPU.Supports(cpuid.AVX512F):
		bits = 512
	case cpuid.CPU.Supports(cpuid.AVX2):
		bits = 256
	case cpuid.CPU.Supports(cpuid.AVX):
		bits = 256
	case cpuid.CPU.Supports(cpuid.SSE2):
		bits = 128
	}
	if elemBytes <= 0 {
		elemBytes = 8
	}
	lanes := bits / 8 / elemBytes
	if lanes < 1 {
		lanes = 1
	}
	return lanes
}
