package miniexpr

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/clarete/miniexpr/jit"
	"github.com/clarete/miniexpr/simd"
)

// EngineVersion is folded into every JIT fingerprint (spec.md §4.8), so
// a rebuilt engine with different codegen never reuses another
// version's cached object.
const EngineVersion = "miniexpr-0"

// Params is the public, per-evaluation-call override of the SIMD
// policy (spec.md §6's "params" argument: simd_ulp_mode, disable_simd).
// Passing nil instead of a *Params requests the process-wide default;
// a non-nil value, the zero value included, is used as given.
type Params struct {
	ULPMode     simd.ULPMode
	DisableSIMD bool
}

func (p Params) toPolicy() simd.Policy {
	return simd.Policy{Mode: p.ULPMode, DisableSIMD: p.DisableSIMD}
}

// Config is a small typed key/value map, used for the process-wide JIT
// gates read from the environment (spec.md §6). The typed get/set
// pattern panics on a type mismatch by design: these are programming
// errors (a caller asking for a bool under a key that was set as a
// string), not data the engine should tolerate silently.
type Config map[string]*cfgVal

// NewJITConfig reads the environment variables spec.md §6 lists as
// recognised options and returns a Config primed with their values (or
// defaults when unset). It is read once at process start; nothing in
// the hot eval path consults the environment again.
func NewJITConfig() *Config {
	m := make(Config)
	m.SetBool("jit.enabled", os.Getenv("DSL_JIT") == "1")
	m.SetBool("jit.index_vars", os.Getenv("DSL_JIT_INDEX_VARS") == "1")
	m.SetBool("jit.index_vars_synth", os.Getenv("DSL_JIT_INDEX_VARS_SYNTH") == "1")
	m.SetBool("jit.pos_cache", os.Getenv("DSL_JIT_POS_CACHE") == "1")
	compiler := os.Getenv("BENCH_COMPILER")
	if compiler == "" {
		compiler = "cc"
	}
	m.SetString("jit.compiler", compiler)
	tmpdir := os.Getenv("TMPDIR")
	if tmpdir == "" {
		tmpdir = os.TempDir()
	}
	m.SetString("jit.tmpdir", tmpdir)
	return &m
}

type cfgValType int

const (
	cfgValType_Undefined cfgValType = iota
	cfgValType_Bool
	cfgValType_Int
	cfgValType_String
)

func (vt cfgValType) String() string {
	return map[cfgValType]string{
		cfgValType_Undefined: "undefined",
		cfgValType_Bool:      "bool",
		cfgValType_Int:       "int",
		cfgValType_String:    "string",
	}[vt]
}

type cfgVal struct {
	typ      cfgValType
	asBool   bool
	asInt    int
	asString string
}

func (v *cfgVal) assignType(vt cfgValType) {
	if v.typ != vt && v.typ != cfgValType_Undefined {
		panic(fmt.Sprintf("can't assign `%s` to type `%s`", vt, v.typ))
	}
	v.typ = vt
}

func (v *cfgVal) checkType(vt cfgValType) {
	if v.typ != vt {
		panic(fmt.Sprintf("can't retrieve `%s` from `%s` variable", vt, v.typ))
	}
}

func (c *Config) SetBool(path string, v bool) {
	(*c)[path] = &cfgVal{}
	(*c)[path].assignType(cfgValType_Bool)
	(*c)[path].asBool = v
}

func (c *Config) SetInt(path string, v int) {
	(*c)[path] = &cfgVal{}
	(*c)[path].assignType(cfgValType_Int)
	(*c)[path].asInt = v
}

func (c *Config) SetString(path string, v string) {
	(*c)[path] = &cfgVal{}
	(*c)[path].assignType(cfgValType_String)
	(*c)[path].asString = v
}

func (c *Config) GetBool(path string) bool {
	if val, ok := (*c)[path]; ok {
		val.checkType(cfgValType_Bool)
		return val.asBool
	}
	panic(fmt.Sprintf("bool setting `%s` does not exist", path))
}

func (c *Config) GetInt(path string) int {
	if val, ok := (*c)[path]; ok {
		val.checkType(cfgValType_Int)
		return val.asInt
	}
	panic(fmt.Sprintf("int setting `%s` does not exist", path))
}

func (c *Config) GetString(path string) string {
	if val, ok := (*c)[path]; ok {
		val.checkType(cfgValType_String)
		return val.asString
	}
	panic(fmt.Sprintf("string setting `%s` does not exist", path))
}

// jitEnabled reports whether CompileDSL should attempt JIT lowering at
// all (spec.md §6's DSL_JIT gate). Guards the whole pipeline: when
// false, CompileDSL never constructs a Cache/Backend/Compiler.
func (c *Config) jitEnabled() bool { return c.GetBool("jit.enabled") }

// toGateConfig derives the jit package's GateConfig from the env-var
// settings NewJITConfig parsed, plus a live check that the configured
// cache directory is actually writable — CheckGates (jit/lower.go)
// rejects a kernel outright rather than discovering a write failure
// only once Cache.Store runs.
func (c *Config) toGateConfig() jit.GateConfig {
	return jit.GateConfig{
		IndexVarsAllowed:      c.GetBool("jit.index_vars"),
		IndexVarsSynthAllowed: c.GetBool("jit.index_vars_synth"),
		CacheDirWritable:      cacheDirWritable(c.GetString("jit.tmpdir")),
	}
}

func cacheDirWritable(tmpdir string) bool {
	if _, err := jit.NewCache(tmpdir); err != nil {
		return false
	}
	f, err := os.CreateTemp(filepath.Join(tmpdir, "miniexpr-jit"), "probe-*")
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(f.Name())
	return true
}

// newJITBackend builds the external-compiler backend CompileDSL's JIT
// attempt hands generated C source to, per the jit.compiler field this
// configuration feeds (BENCH_COMPILER / TMPDIR, spec.md §6).
func (c *Config) newJITBackend() jit.Backend {
	return jit.Backend{Kind: jit.ParseBackendKind(c.GetString("jit.compiler")), TmpDir: c.GetString("jit.tmpdir")}
}

// compilerID identifies the backend for fingerprinting and cache
// headers — spec.md §4.8's "compiler identity" fingerprint input.
func (c *Config) compilerID() string { return c.GetString("jit.compiler") }

func (c *Config) tmpdir() string { return c.GetString("jit.tmpdir") }

// ---- process-wide SIMD policy default (spec.md §5) ----
//
// Two pieces of process-wide mutable state are allowed by spec.md §5:
// the SIMD policy default (below) and the on-disk JIT cache (package
// jit). Both are safe for concurrent use; this one is a pair of
// atomics rather than a mutex because the values are read on every
// single Eval/EvalND call and writes are rare (a setter call, not a
// hot-path operation).

var (
	defaultULPMode      atomic.Int32 // simd.ULPMode
	defaultSIMDDisabled atomic.Bool
)

func init() {
	defaultULPMode.Store(int32(simd.ULP1))
}

// SetDefaultULPMode changes the process-wide default accuracy tier
// used by evaluation calls that don't pass an explicit Params. Safe to
// call from any goroutine at any time; sequentially consistent with
// reads taken at the start of Eval/EvalND.
func SetDefaultULPMode(mode simd.ULPMode) {
	defaultULPMode.Store(int32(mode))
}

// SetDefaultSIMDDisabled changes the process-wide default for whether
// vector kernels are used at all.
func SetDefaultSIMDDisabled(disabled bool) {
	defaultSIMDDisabled.Store(disabled)
}

func defaultParams() Params {
	return Params{
		ULPMode:     simd.ULPMode(defaultULPMode.Load()),
		DisableSIMD: defaultSIMDDisabled.Load(),
	}
}
