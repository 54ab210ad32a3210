package kvstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/magiconair/properties"
)

// FileStore persists typed key/value pairs to a single Java-style properties
// file on disk, using magiconair/properties for load/parse/write - the same
// library solatis-trapperkeeper pulls in for its own config layer. Spec §6
// calls this file "the properties store" and names one of its keys
// explicitly (rudderstack.event.batch.index.<writeKey>); every value is
// encoded as "<kind>:<rawvalue>" so a read under the wrong type can detect
// the mismatch and fall back to the caller's default (spec §4.2 invariant).
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a Store backed by the properties file at path. The
// parent directory is created if it does not already exist.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("kvstore: create properties dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

func (f *FileStore) load() (*properties.Properties, error) {
	if _, err := os.Stat(f.path); os.IsNotExist(err) {
		return properties.NewProperties(), nil
	}
	return properties.LoadFile(f.path, properties.UTF8)
}

func (f *FileStore) save(p *properties.Properties) error {
	fh, err := os.Create(f.path)
	if err != nil {
		return err
	}
	defer fh.Close()
	_, err = p.Write(fh, properties.UTF8)
	return err
}

func encode(kind, raw string) string { return kind + ":" + raw }

func decode(stored, wantKind string) (string, bool) {
	prefix := wantKind + ":"
	if !strings.HasPrefix(stored, prefix) {
		return "", false
	}
	return strings.TrimPrefix(stored, prefix), true
}

func (f *FileStore) write(key, kind, raw string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.load()
	if err != nil {
		return err
	}
	if _, _, err := p.Set(key, encode(kind, raw)); err != nil {
		return err
	}
	return f.save(p)
}

func (f *FileStore) read(key, kind string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.load()
	if err != nil {
		return "", false
	}
	stored, ok := p.Get(key)
	if !ok {
		return "", false
	}
	return decode(stored, kind)
}

func (f *FileStore) WriteInt(key string, v int) error {
	return f.write(key, "int", strconv.Itoa(v))
}

func (f *FileStore) ReadInt(key string, def int) int {
	raw, ok := f.read(key, "int")
	if !ok {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func (f *FileStore) WriteLong(key string, v int64) error {
	return f.write(key, "long", strconv.FormatInt(v, 10))
}

func (f *FileStore) ReadLong(key string, def int64) int64 {
	raw, ok := f.read(key, "long")
	if !ok {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}

func (f *FileStore) WriteBool(key string, v bool) error {
	return f.write(key, "bool", strconv.FormatBool(v))
}

func (f *FileStore) ReadBool(key string, def bool) bool {
	raw, ok := f.read(key, "bool")
	if !ok {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func (f *FileStore) WriteString(key string, v string) error {
	return f.write(key, "string", v)
}

func (f *FileStore) ReadString(key string, def string) string {
	raw, ok := f.read(key, "string")
	if !ok {
		return def
	}
	return raw
}

func (f *FileStore) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.load()
	if err != nil {
		return err
	}
	p.Delete(key)
	return f.save(p)
}

func (f *FileStore) DeleteAll() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.save(properties.NewProperties())
}
