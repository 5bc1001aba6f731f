// Package storage defines the documentation-tree file-system abstraction.
// All reconciler, migrator, and duplication disk I/O goes through a
// Provider so that the planning phases can stay free of side effects.
package storage

import "time"

// FileInfo is a lightweight description of one file under the docs root.
type FileInfo struct {
	Path      string    // relative to the docs root, slash-separated
	Checksum  string    // hex SHA-256 of the content
	UpdatedAt time.Time // file modification time
}

// ListResult holds the files found by one List walk plus per-entry errors
// that were skipped over.
type ListResult struct {
	Files  []FileInfo
	Errors []error
}

// Provider is the interface for documentation tree file operations.
// All paths are relative to the docs root.
type Provider interface {
	// List walks dir and returns metadata for every .md file under it.
	// Unreadable entries are skipped and accumulated; only a failure to
	// walk dir itself is fatal.
	List(dir string) (*ListResult, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, creating parent directories.
	Write(path string, content []byte) error
	// MoveDir renames a whole directory subtree. The target must not exist.
	MoveDir(oldPath, newPath string) error
	// Exists reports whether a file or directory exists at path.
	Exists(path string) bool
	// RemoveEmptyDirs prunes empty directories under dir (never dir itself).
	RemoveEmptyDirs(dir string) ([]string, error)
}
