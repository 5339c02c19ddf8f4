// Package dirindex wraps the directory listings the rig uses as its only
// persistent state, so components can be exercised without touching disk.
package dirindex

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/keagan/kitchencam/internal/apperr"
	"github.com/keagan/kitchencam/internal/layout"
)

// Index lists files and checks for existence.
type Index interface {
	// Files returns the names of regular files directly in dir whose name
	// ends with one of exts (all regular files when exts is empty), sorted.
	Files(dir string, exts ...string) ([]string, error)
	// Exists reports whether path exists.
	Exists(path string) (bool, error)
}

// Set turns a listing into a lookup set.
func Set(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// OS is the Index backed by the real filesystem.
type OS struct{}

func (OS) Files(dir string, exts ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperr.Filesystem("list directory", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if len(exts) > 0 && !layout.HasExt(e.Name(), exts...) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (OS) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, apperr.Filesystem("stat", path, err)
}

// Mem is an in-memory Index for tests. Directories exist once they have
// been added with AddDir or hold a file.
type Mem struct {
	mu    sync.Mutex
	dirs  map[string]map[string]struct{}
	Lists int
}

// NewMem returns an empty in-memory index.
func NewMem() *Mem {
	return &Mem{dirs: make(map[string]map[string]struct{})}
}

// AddDir registers an empty directory.
func (m *Mem) AddDir(dir string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dir(filepath.Clean(dir))
}

// Add registers files in dir.
func (m *Mem) Add(dir string, names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.dir(filepath.Clean(dir))
	for _, n := range names {
		d[n] = struct{}{}
	}
}

// Put registers the file at path.
func (m *Mem) Put(path string) {
	m.Add(filepath.Dir(path), filepath.Base(path))
}

func (m *Mem) dir(dir string) map[string]struct{} {
	d, ok := m.dirs[dir]
	if !ok {
		d = make(map[string]struct{})
		m.dirs[dir] = d
	}
	return d
}

func (m *Mem) Files(dir string, exts ...string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Lists++

	d, ok := m.dirs[filepath.Clean(dir)]
	if !ok {
		return nil, apperr.Filesystem("list directory", dir, fs.ErrNotExist)
	}
	names := make([]string, 0, len(d))
	for n := range d {
		if len(exts) > 0 && !layout.HasExt(n, exts...) {
			continue
		}
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Mem) Exists(path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = filepath.Clean(path)
	if _, ok := m.dirs[path]; ok {
		return true, nil
	}
	d, ok := m.dirs[filepath.Dir(path)]
	if !ok {
		return false, nil
	}
	_, ok = d[filepath.Base(path)]
	return ok, nil
}
