package safe

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultMaxFileSize is the default maximum file size for ReadFile (1MB).
const DefaultMaxFileSize = 1 << 20

// ReadOptions configures ReadFile and OpenFile.
type ReadOptions struct {
	// MaxSize is the maximum allowed file size in bytes. Zero means
	// DefaultMaxFileSize for ReadFile and no limit for OpenFile.
	MaxSize int64
	// AllowSymlinks allows reading through a symlink. Default is false.
	AllowSymlinks bool
}

// check validates path and returns the cleaned path and its size.
func check(path string, opts *ReadOptions) (string, int64, error) {
	cleanPath := filepath.Clean(path)

	info, err := os.Lstat(cleanPath)
	if err != nil {
		return "", 0, err
	}

	if info.Mode()&os.ModeSymlink != 0 {
		if !opts.AllowSymlinks {
			return "", 0, fmt.Errorf("file %q is a symlink, which is not allowed for security reasons", path)
		}
		if info, err = os.Stat(cleanPath); err != nil {
			return "", 0, err
		}
	}

	if !info.Mode().IsRegular() {
		return "", 0, fmt.Errorf("path %q is not a regular file", path)
	}

	if opts.MaxSize > 0 && info.Size() > opts.MaxSize {
		return "", 0, fmt.Errorf("file exceeds maximum allowed size of %d bytes", opts.MaxSize)
	}

	return cleanPath, info.Size(), nil
}

// ReadFile reads a regular file, rejecting symlinks and oversized files.
func ReadFile(path string, opts *ReadOptions) ([]byte, error) {
	o := ReadOptions{}
	if opts != nil {
		o = *opts
	}
	if o.MaxSize == 0 {
		o.MaxSize = DefaultMaxFileSize
	}

	cleanPath, _, err := check(path, &o)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(cleanPath)
}

// OpenFile opens a regular file for reading with the same checks as ReadFile.
// Dumps can be large, so no size limit applies unless MaxSize is set.
func OpenFile(path string, opts *ReadOptions) (*os.File, error) {
	o := ReadOptions{}
	if opts != nil {
		o = *opts
	}

	cleanPath, _, err := check(path, &o)
	if err != nil {
		return nil, err
	}
	// #nosec G304 - path was validated above.
	return os.Open(cleanPath)
}
