package jit

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// BackendKind selects the compiler invoked to turn generated C source
// into a loadable object, spec.md §6's BENCH_COMPILER=tcc|cc.
type BackendKind int

const (
	BackendCC BackendKind = iota
	BackendTCC
	// BackendEmbedded names the "embedded tiny C compiler" option
	// spec.md §4.8 mentions. No pure-Go C codegen backend exists in
	// this module's dependency set (a pure-Go C frontend only parses,
	// it doesn't emit machine code) so commandName reports no command
	// for this Kind and Compile returns an error for it, rather than
	// being backed by a fabricated implementation.
	BackendEmbedded
)

func (k BackendKind) commandName() (string, bool) {
	switch k {
	case BackendCC:
		return "cc", true
	case BackendTCC:
		return "tcc", true
	default:
		return "", false
	}
}

// CompileTimeout bounds the external compiler invocation, spec.md
// §4.8/§5: "may be bounded internally by a wall-clock limit; on
// timeout it falls back to the interpreter."
const CompileTimeout = 5 * time.Second

// Backend invokes an external C compiler via os/exec on a temporary
// source file and returns the compiled shared-object bytes. It never
// writes anything to stdout/stderr on failure (spec.md §4.8: "the
// engine logs nothing to stdout") — failures are communicated purely
// through the returned error, for the caller to swallow and fall back.
type Backend struct {
	Kind   BackendKind
	TmpDir string
}

// Compile writes src to a uniquely-named temp .c file under TmpDir,
// invokes the backend compiler with a bounded context, and returns the
// resulting shared object's bytes. Any failure (missing compiler,
// non-zero exit, timeout) is a plain error — the jit package's caller
// (Compiler.Build) is responsible for treating it as non-fatal.
func (b Backend) Compile(src string) ([]byte, error) {
	cmdName, ok := b.Kind.commandName()
	if !ok {
		return nil, fmt.Errorf("jit backend: no external compiler available for this Kind")
	}
	if _, err := exec.LookPath(cmdName); err != nil {
		return nil, fmt.Errorf("jit backend: %s not found in PATH: %w", cmdName, err)
	}

	id := uuid.NewString()
	srcPath := filepath.Join(b.TmpDir, "mx-"+id+".c")
	objPath := filepath.Join(b.TmpDir, "mx-"+id+".so")
	if err := os.WriteFile(srcPath, []byte(src), 0o644); err != nil {
		return nil, err
	}
	defer os.Remove(srcPath)
	defer os.Remove(objPath)

	ctx, cancel := context.WithTimeout(context.Background(), CompileTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, cmdName, "-O2", "-fPIC", "-shared", "-o", objPath, srcPath)
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("jit backend: %s exited with error: %w", cmdName, err)
	}
	return os.ReadFile(objPath)
}

// ParseBackendKind maps the BENCH_COMPILER environment value to a Kind.
func ParseBackendKind(name string) BackendKind {
	switch name {
	case "tcc":
		return BackendTCC
	default:
		return BackendCC
	}
}
