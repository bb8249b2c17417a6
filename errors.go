package miniexpr

import "fmt"

// CompileStatus is the language-neutral compile-time status code from
// spec.md §6. COMPILE_SUCCESS is the zero value so a freshly zeroed
// CompileError never accidentally reads as an error.
type CompileStatus int

const (
	CompileSuccess CompileStatus = iota
	CompileSyntax
	CompileUnresolvedName
	CompileArity
	CompileTypeMismatch
	CompileTypeUnrepresentable
	CompileOOM
)

var compileStatusNames = map[CompileStatus]string{
	CompileSuccess:             "COMPILE_SUCCESS",
	CompileSyntax:              "COMPILE_SYNTAX",
	CompileUnresolvedName:      "COMPILE_UNRESOLVED_NAME",
	CompileArity:               "COMPILE_ARITY",
	CompileTypeMismatch:        "COMPILE_TYPE_MISMATCH",
	CompileTypeUnrepresentable: "COMPILE_TYPE_UNREPRESENTABLE",
	CompileOOM:                 "COMPILE_OOM",
}

func (s CompileStatus) String() string {
	if n, ok := compileStatusNames[s]; ok {
		return n
	}
	return "COMPILE_UNKNOWN"
}

// CompileError is the only error type the compile pipeline produces.
// It always carries a zero-based character offset into the source, per
// spec.md §4.1 ("Errors report a zero-based character offset"). Source
// is set by the top-level Compile/CompileDSL entry points (asCompileError)
// when the original source text is still in scope; it is empty for
// errors constructed deeper in the pipeline without that context, in
// which case Error falls back to rendering the bare offset.
type CompileError struct {
	Code    CompileStatus
	Message string
	Offset  int
	Source  string
}

func (e *CompileError) Error() string {
	if e.Source != "" {
		// Offset counts characters; LineIndex takes a byte offset.
		runes := []rune(e.Source)
		off := e.Offset
		if off > len(runes) {
			off = len(runes)
		}
		if off < 0 {
			off = 0
		}
		loc := NewLineIndex([]byte(e.Source)).LocationAt(len(string(runes[:off])))
		return fmt.Sprintf("%s @ %d:%d: %s", e.Code, loc.Line, loc.Column, e.Message)
	}
	return fmt.Sprintf("%s @ %d: %s", e.Code, e.Offset, e.Message)
}

func newCompileError(code CompileStatus, offset int, format string, args ...any) *CompileError {
	return &CompileError{Code: code, Offset: offset, Message: fmt.Sprintf(format, args...)}
}

// EvalStatus is the language-neutral evaluation status code from
// spec.md §6. A dtype mismatch discovered at evaluation time is a bug
// in the compile step (spec.md §7) and is reported as EvalInternal, it
// is never its own status.
type EvalStatus int

const (
	EvalSuccess EvalStatus = iota
	EvalShapeMismatch
	EvalNullArg
	EvalOOM
	EvalInternal
)

var evalStatusNames = map[EvalStatus]string{
	EvalSuccess:       "EVAL_SUCCESS",
	EvalShapeMismatch: "EVAL_SHAPE_MISMATCH",
	EvalNullArg:       "EVAL_NULL_ARG",
	EvalOOM:           "EVAL_OOM",
	EvalInternal:      "EVAL_INTERNAL",
}

func (s EvalStatus) String() string {
	if n, ok := evalStatusNames[s]; ok {
		return n
	}
	return "EVAL_UNKNOWN"
}
