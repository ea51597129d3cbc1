package kv

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// File is a Store persisted to a single JSON file. Every mutation rewrites
// the file atomically (temp file + rename), so a crash never leaves a
// half-written store behind. Unlike the browser storage it replaces, state
// survives process restarts.
type File struct {
	path string

	mu   sync.RWMutex
	data map[string]string
}

// OpenFile loads the store at path, creating an empty one when the file does
// not exist yet.
func OpenFile(path string) (*File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, errors.Wrap(err, "create store dir")
		}
	}

	f := &File{
		path: path,
		data: make(map[string]string),
	}

	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return f, nil
	case err != nil:
		return nil, errors.Wrap(err, "read store")
	}

	if err := decodeInto(raw, f.data); err != nil {
		return nil, errors.Wrapf(err, "decode store %q", path)
	}
	return f, nil
}

func (f *File) Get(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.data[key]
	return v, ok
}

func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return f.persist()
}

func (f *File) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; !ok {
		return nil
	}
	delete(f.data, key)
	return f.persist()
}

func (f *File) Keys(prefix string) []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var keys []string
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys
}

// persist writes the current map to disk. Caller must hold f.mu.
func (f *File) persist() error {
	keys := make([]string, 0, len(f.data))
	for k := range f.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var e jx.Encoder
	e.ObjStart()
	for _, k := range keys {
		e.FieldStart(k)
		e.Str(f.data[k])
	}
	e.ObjEnd()

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, e.Bytes(), 0o600); err != nil {
		return errors.Wrap(err, "write store")
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return errors.Wrap(err, "replace store")
	}
	return nil
}

func decodeInto(raw []byte, dst map[string]string) error {
	d := jx.DecodeBytes(raw)
	return d.Obj(func(d *jx.Decoder, key string) error {
		v, err := d.Str()
		if err != nil {
			return errors.Wrapf(err, "value for %q", key)
		}
		dst[key] = v
		return nil
	})
}

// DefaultPath returns a store path under the user cache directory, falling
// back to the working directory when the cache dir is unavailable.
func DefaultPath(name string) string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return name
	}
	return filepath.Join(dir, "storefront-checkout", name)
}
