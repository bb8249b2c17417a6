package jit

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// cacheMagic/cacheVersion identify the fixed-width header spec.md §6
// requires on every cached object: "{magic, version, dtype_signature,
// arch_tag, compiler_tag}".
const (
	cacheMagic   uint32 = 0x4d584a31 // "MXJ1"
	cacheVersion uint32 = 1
	headerSize   int    = 4 + 4 + 32 + 16 + 16 // magic+version+dtype_sig+arch+compiler
)

// FingerprintInputs is everything spec.md §4.8 says the deterministic
// fingerprint must cover: "DSL source text, resolved dtypes of
// parameters, N-D layout, engine version, compiler identity, dialect,
// and accuracy mode."
type FingerprintInputs struct {
	Source       string
	DtypeSig     string
	LayoutSig    string
	EngineVer    string
	CompilerID   string
	Dialect      string
	AccuracyMode string
}

func Fingerprint(in FingerprintInputs) string {
	h := sha256.New()
	for _, s := range []string{in.Source, in.DtypeSig, in.LayoutSig, in.EngineVer, in.CompilerID, in.Dialect, in.AccuracyMode} {
		io.WriteString(h, s)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Cache is a per-process on-disk directory of fingerprint-keyed
// compiled kernel objects, spec.md §6's "Per-process cache directory
// miniexpr-jit/." Entries are published with create-then-rename and
// readers retry once on a header mismatch, per spec.md §9's "JIT cache
// concurrency" design note — this tolerates a partial write from an
// aborted generator without ever serving corrupt bytes.
type Cache struct {
	dir string
}

func NewCache(tmpdir string) (*Cache, error) {
	dir := filepath.Join(tmpdir, "miniexpr-jit")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("jit cache: %w", err)
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) path(fingerprint string) string {
	return filepath.Join(c.dir, fingerprint+".so")
}

// Lookup returns the cached object bytes for fingerprint, or ok=false
// on a miss (including a header mismatch, which is treated as a miss
// per spec.md §4.8: "any mismatch is treated as a miss and the entry
// is overwritten").
func (c *Cache) Lookup(fingerprint string, dtypeSig, compilerID string) ([]byte, bool) {
	for attempt := 0; attempt < 2; attempt++ {
		data, err := os.ReadFile(c.path(fingerprint))
		if err != nil {
			return nil, false
		}
		if validateHeader(data, dtypeSig, compilerID) {
			return data[headerSize:], true
		}
		// a concurrent writer may be mid-rename; retry once before
		// declaring a genuine corruption/mismatch miss.
	}
	return nil, false
}

// Store publishes body under fingerprint using create-then-rename: the
// new file is written to a uniquely-named temp path in the same
// directory (so the rename is same-filesystem and therefore atomic),
// flock'd for the duration of the write, then renamed into place.
func (c *Cache) Store(fingerprint string, dtypeSig, compilerID string, body []byte) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	tmpPath := filepath.Join(c.dir, ".tmp-"+uuid.NewString())
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer os.Remove(tmpPath) // no-op once renamed away; cleans up on any early return

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return fmt.Errorf("jit cache: flock: %w", err)
	}
	header := buildHeader(dtypeSig, compilerID)
	if _, err := f.Write(header); err != nil {
		f.Close()
		return err
	}
	if _, err := f.Write(body); err != nil {
		f.Close()
		return err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, c.path(fingerprint))
}

func buildHeader(dtypeSig, compilerID string) []byte {
	h := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(h[0:4], cacheMagic)
	binary.LittleEndian.PutUint32(h[4:8], cacheVersion)
	copy(h[8:40], padTo(dtypeSig, 32))
	copy(h[40:56], padTo(runtime.GOARCH, 16))
	copy(h[56:72], padTo(compilerID, 16))
	return h
}

func validateHeader(data []byte, dtypeSig, compilerID string) bool {
	if len(data) < headerSize {
		return false
	}
	if binary.LittleEndian.Uint32(data[0:4]) != cacheMagic {
		return false
	}
	if binary.LittleEndian.Uint32(data[4:8]) != cacheVersion {
		return false
	}
	if string(trimNUL(data[8:40])) != dtypeSig {
		return false
	}
	if string(trimNUL(data[40:56])) != runtime.GOARCH {
		return false
	}
	if string(trimNUL(data[56:72])) != compilerID {
		return false
	}
	return true
}

func padTo(s string, n int) []byte {
	b := make([]byte, n)
	copy(b, s)
	return b
}

func trimNUL(b []byte) []byte {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return b[:end]
}
