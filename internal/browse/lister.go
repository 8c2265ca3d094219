package browse

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Entry describes one immediate child of a listed directory. Entries are
// built fresh on every request and never cached.
type Entry struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"` // relative to root, forward slashes
	IsDir     bool      `json:"is_dir"`
	Size      int64     `json:"size,omitempty"`       // files only
	SizeHuman string    `json:"size_human,omitempty"` // files only
	Modified  time.Time `json:"modified"`
}

// Listing is the result of enumerating one directory.
type Listing struct {
	Entries []Entry `json:"entries"`
	Skipped int     `json:"skipped,omitempty"` // children that could not be read
}

// List enumerates the immediate children of dir, which must be a canonical
// path under root as returned by Resolve. Directories sort before files;
// within each group the order is case-insensitive by name and stable.
// Symlinks are classified by their target type. Unreadable children are
// skipped and counted rather than failing the whole listing.
func List(root, dir string) (*Listing, error) {
	children, err := os.ReadDir(dir)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return nil, ErrNotFound
		case os.IsPermission(err):
			return nil, ErrPermission
		}
		if info, statErr := os.Stat(dir); statErr == nil && !info.IsDir() {
			return nil, ErrNotADirectory
		}
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	listing := &Listing{Entries: make([]Entry, 0, len(children))}
	for _, child := range children {
		full := filepath.Join(dir, child.Name())
		// Stat follows symlinks, so links are classified by target type.
		info, err := os.Stat(full)
		if err != nil {
			listing.Skipped++
			continue
		}

		entry := Entry{
			Name:     child.Name(),
			Path:     Rel(root, full),
			IsDir:    info.IsDir(),
			Modified: info.ModTime(),
		}
		if !info.IsDir() {
			entry.Size = info.Size()
			entry.SizeHuman = humanize.IBytes(uint64(info.Size()))
		}
		listing.Entries = append(listing.Entries, entry)
	}

	sort.SliceStable(listing.Entries, func(i, j int) bool {
		a, b := listing.Entries[i], listing.Entries[j]
		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})

	return listing, nil
}
