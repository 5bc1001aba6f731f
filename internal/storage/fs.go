package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Anya-org/docalign/internal/checksum"
)

// TempPrefix is the name prefix of in-flight atomic writes. The clean
// command sweeps leftovers matching it after a crashed run.
const TempPrefix = ".docalign-tmp-"

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the docs root
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// safePath resolves a relative path against the docs root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	joined := filepath.Join(f.root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes docs root: %s", rel)
	}
	return abs, nil
}

// List walks dir (relative to root) and returns metadata for every .md file.
// Entries that cannot be read (dangling symlinks, files deleted mid-walk)
// are skipped and accumulated in the result; only a failure to walk dir
// itself aborts.
func (f *FS) List(dir string) (*ListResult, error) {
	base, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	res := &ListResult{}
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == base {
				return walkErr
			}
			res.Errors = append(res.Errors, fmt.Errorf("storage: read %s: %w", p, walkErr))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			res.Errors = append(res.Errors, fmt.Errorf("storage: stat %s: %w", p, infoErr))
			return nil
		}
		cs, sumErr := checksum.SumFile(p)
		if sumErr != nil {
			res.Errors = append(res.Errors, sumErr)
			return nil
		}
		rel, _ := filepath.Rel(f.root, p)
		res.Files = append(res.Files, FileInfo{
			Path:      filepath.ToSlash(rel),
			Checksum:  cs,
			UpdatedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return res, nil
}

// Read returns the raw bytes of a docs-tree file.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(path string, content []byte) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, TempPrefix+"*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// MoveDir renames a directory subtree. The target must not already exist;
// callers are expected to have chosen a conflict-free archive name.
func (f *FS) MoveDir(oldPath, newPath string) error {
	absOld, err := f.safePath(oldPath)
	if err != nil {
		return err
	}
	absNew, err := f.safePath(newPath)
	if err != nil {
		return err
	}
	if _, err := os.Stat(absNew); err == nil {
		return fmt.Errorf("storage: move dir target exists: %s", newPath)
	}
	if err := os.MkdirAll(filepath.Dir(absNew), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir for move dir: %w", err)
	}
	if err := os.Rename(absOld, absNew); err != nil {
		return fmt.Errorf("storage: move dir: %w", err)
	}
	return nil
}

// Exists reports whether path exists under the docs root.
func (f *FS) Exists(path string) bool {
	abs, err := f.safePath(path)
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}

// RemoveEmptyDirs prunes empty directories under dir, deepest first, and
// returns their relative paths. dir itself is never removed.
func (f *FS) RemoveEmptyDirs(dir string) ([]string, error) {
	base, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}

	var dirs []string
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() {
			return nil
		}
		// Archive subtrees hold historical content; leave them alone even
		// when empty.
		if d.Name() == "archive" {
			return fs.SkipDir
		}
		if p != base {
			dirs = append(dirs, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: scan dirs: %w", err)
	}

	// Deepest first so emptied parents get removed in the same pass.
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })

	var removed []string
	for _, p := range dirs {
		entries, readErr := os.ReadDir(p)
		if readErr != nil || len(entries) > 0 {
			continue
		}
		if rmErr := os.Remove(p); rmErr == nil {
			rel, _ := filepath.Rel(f.root, p)
			removed = append(removed, filepath.ToSlash(rel))
		}
	}
	return removed, nil
}
