package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// forever is the expiry written for values without a ttl.
const forever = 9999999999

// FileStore keeps one file per key below a directory. A file holds a
// ten-digit expiry timestamp followed by the value.
type FileStore struct {
	dir string
	now func() time.Time
}

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir, now: time.Now}
}

// Dir returns the cache directory.
func (f *FileStore) Dir() string { return f.dir }

func (f *FileStore) path(key string) string {
	sum := sha1.Sum([]byte(key))
	h := hex.EncodeToString(sum[:])
	return filepath.Join(f.dir, h[0:2], h[2:4], h)
}

func (f *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	p := f.path(key)
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(b) < 10 {
		_ = os.Remove(p)
		return nil, false, nil
	}
	exp, err := strconv.ParseInt(string(b[:10]), 10, 64)
	if err != nil {
		_ = os.Remove(p)
		return nil, false, nil
	}
	if exp != forever && f.now().Unix() >= exp {
		_ = os.Remove(p)
		return nil, false, nil
	}
	return b[10:], true, nil
}

func (f *FileStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	exp := int64(forever)
	if ttl > 0 {
		exp = f.now().Add(ttl).Unix()
		if exp > forever {
			exp = forever
		}
	}
	p := f.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	data := append([]byte(fmt.Sprintf("%010d", exp)), value...)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

func (f *FileStore) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := f.Get(ctx, key)
	return ok, err
}

func (f *FileStore) Forget(_ context.Context, key string) (bool, error) {
	err := os.Remove(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// Flush removes every entry but keeps the directory itself.
func (f *FileStore) Flush(context.Context) error {
	entries, err := os.ReadDir(f.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(f.dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
