// Package objcache caches decoded object-file summaries on disk so repeat
// inspection of unchanged files skips the full decode and validation pass.
package objcache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"rgbobj/internal/objfile"
)

// Current schema version - increment when Summary format changes
const cacheSchemaVersion uint16 = 1

// Digest identifies a file's content (SHA-256).
type Digest [sha256.Size]byte

// DigestFile hashes the file at path.
func DigestFile(path string) (Digest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Digest{}, err
	}
	return sha256.Sum256(content), nil
}

// Summary is what inspection commands need without re-decoding the object.
type Summary struct {
	// Schema version for safe invalidation when format changes
	Schema uint16

	Revision   uint32
	Nodes      uint32
	Symbols    uint32
	Sections   uint32
	Patches    uint32
	Assertions uint32

	SectionNames []string
	SectionSizes []uint32

	// Valid is false when Validate failed; Problem keeps the message.
	Valid   bool
	Problem string
}

// Summarize condenses a decoded object into its cacheable form.
func Summarize(obj *objfile.Object) *Summary {
	s := &Summary{
		Schema:     cacheSchemaVersion,
		Revision:   obj.Revision,
		Nodes:      uint32(len(obj.Nodes)),
		Symbols:    uint32(len(obj.Symbols)),
		Sections:   uint32(len(obj.Sections)),
		Assertions: uint32(len(obj.Assertions)),
		Valid:      true,
	}
	for i := range obj.Sections {
		sect := &obj.Sections[i]
		s.SectionNames = append(s.SectionNames, sect.Name)
		s.SectionSizes = append(s.SectionSizes, sect.Size)
		s.Patches += uint32(len(sect.Patches))
	}
	if err := obj.Validate(); err != nil {
		s.Valid = false
		s.Problem = err.Error()
	}
	return s
}

// Cache хранит сводки по Digest на диске. Thread-safe for concurrent access.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// Open initializes and returns a disk cache at the standard location.
func Open(app string) (*Cache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, app)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

// OpenAt returns a cache rooted at an explicit directory (tests).
func OpenAt(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) pathFor(key Digest) string {
	hexKey := hex.EncodeToString(key[:])
	// Подкаталог "objs" — для удобства читаемости и очистки
	return filepath.Join(c.dir, "objs", hexKey+".mp")
}

// Put serializes and writes a summary to the disk cache.
func (c *Cache) Put(key Digest, summary *Summary) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(f.Name())
	}()

	enc := msgpack.NewEncoder(f)
	if err := enc.Encode(summary); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	// Атомарная замена
	return os.Rename(f.Name(), p)
}

// Get reads and deserializes a summary from the disk cache.
func (c *Cache) Get(key Digest, out *Summary) (bool, error) {
	if c == nil {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	p := c.pathFor(key)
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer func() {
		_ = f.Close()
	}()
	dec := msgpack.NewDecoder(f)
	if err := dec.Decode(out); err != nil {
		return false, err
	}
	if out.Schema != cacheSchemaVersion {
		return false, nil
	}
	return true, nil
}

// DropAll invalidates the cache, useful after format changes.
func (c *Cache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		return err
	}
	return os.RemoveAll(old)
}

// String renders the digest for messages.
func (d Digest) String() string {
	return fmt.Sprintf("%x", d[:8])
}
