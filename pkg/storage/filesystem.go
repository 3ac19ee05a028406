package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// ErrObjectNotFound is returned when a named export file does not exist.
var ErrObjectNotFound = errors.New("storage: object not found")

// Object describes a stored export file. Name is relative to the store root
// and always uses forward slashes.
type Object struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// DiskStore keeps rendered exports under a single root directory. Names are
// confined to the root: absolute paths and ".." segments are re-rooted.
type DiskStore struct {
	root string
}

// NewDiskStore creates root if needed.
func NewDiskStore(root string) (*DiskStore, error) {
	if root == "" {
		root = "./exports"
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create export root: %w", err)
	}
	return &DiskStore{root: root}, nil
}

// Put writes data under name. The file appears atomically: readers never
// observe a partial export.
func (d *DiskStore) Put(name string, data []byte) (Object, error) {
	name = clean(name)
	dst := d.Locate(name)
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return Object{}, fmt.Errorf("prepare %s: %w", name, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return Object{}, fmt.Errorf("stage %s: %w", name, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return Object{}, fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return Object{}, fmt.Errorf("flush %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return Object{}, fmt.Errorf("commit %s: %w", name, err)
	}
	info, err := os.Stat(dst)
	if err != nil {
		return Object{}, fmt.Errorf("stat %s: %w", name, err)
	}
	return Object{Name: name, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Get opens name for reading. The caller closes the reader.
func (d *DiskStore) Get(name string) (io.ReadCloser, Object, error) {
	name = clean(name)
	f, err := os.Open(d.Locate(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, Object{}, ErrObjectNotFound
	}
	if err != nil {
		return nil, Object{}, fmt.Errorf("open %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close() //nolint:errcheck
		return nil, Object{}, fmt.Errorf("stat %s: %w", name, err)
	}
	return f, Object{Name: name, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Remove deletes name. Missing files are not an error.
func (d *DiskStore) Remove(name string) error {
	err := os.Remove(d.Locate(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// Expire removes every file last modified more than maxAge ago and returns
// what it removed. Staging files left by interrupted writes are swept too.
func (d *DiskStore) Expire(maxAge time.Duration) ([]Object, error) {
	cutoff := time.Now().Add(-maxAge)
	var removed []Object
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		info, err := entry.Info()
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			rel = path
		}
		removed = append(removed, Object{Name: filepath.ToSlash(rel), Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("expire exports: %w", err)
	}
	return removed, nil
}

// Locate maps name to its path on disk.
func (d *DiskStore) Locate(name string) string {
	return filepath.Join(d.root, filepath.FromSlash(clean(name)))
}

func clean(name string) string {
	return filepath.ToSlash(filepath.Clean("/" + filepath.ToSlash(name)))[1:]
}
