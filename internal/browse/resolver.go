// Package browse implements the filesystem-facing core: path resolution
// against a configured root, directory listing, and download streaming.
package browse

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	// ErrTraversal means the requested path would escape the configured root.
	ErrTraversal = errors.New("path escapes root")
	// ErrNotFound means the path does not exist.
	ErrNotFound = errors.New("path not found")
	// ErrNotADirectory means a listing was requested on a non-directory.
	ErrNotADirectory = errors.New("not a directory")
	// ErrNotAFile means a file operation was requested on a non-regular file.
	ErrNotAFile = errors.New("not a regular file")
	// ErrPermission means the filesystem denied access.
	ErrPermission = errors.New("permission denied")
)

// Resolve validates a client-supplied relative path against root and returns
// the canonical absolute path. root must already be canonical (symlinks
// resolved). The empty string resolves to root itself.
//
// The canonical result is checked to still live under root, which defends
// against symlink escapes. Callers must re-resolve on every request; a path
// that resolved once may have been renamed or redirected since.
func Resolve(root, requested string) (string, error) {
	if strings.ContainsRune(requested, 0) {
		return "", ErrTraversal
	}
	if filepath.IsAbs(requested) || strings.HasPrefix(requested, "/") || strings.HasPrefix(requested, "\\") {
		return "", ErrTraversal
	}

	req := strings.ReplaceAll(requested, "\\", "/")
	for _, seg := range strings.Split(req, "/") {
		if seg == ".." {
			return "", ErrTraversal
		}
	}

	clean := path.Clean(req)
	if clean == "." || clean == "" {
		return root, nil
	}
	// Clean can only surface a leading ".." here if the input had one,
	// which the segment check already rejected. Guard anyway.
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", ErrTraversal
	}

	joined := filepath.Join(root, filepath.FromSlash(clean))
	canonical, err := filepath.EvalSymlinks(joined)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return "", ErrNotFound
		case os.IsPermission(err):
			return "", ErrPermission
		default:
			return "", fmt.Errorf("canonicalize %s: %w", joined, err)
		}
	}

	if canonical != root && !strings.HasPrefix(canonical, root+string(filepath.Separator)) {
		return "", ErrTraversal
	}
	return canonical, nil
}

// Rel returns the forward-slash path of abs relative to root, or "" for root
// itself. abs must be a path previously returned by Resolve.
func Rel(root, abs string) string {
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." {
		return ""
	}
	return filepath.ToSlash(rel)
}
