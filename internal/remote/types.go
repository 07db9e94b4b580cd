package remote

import (
	"sort"
	"time"

	"github.com/OllieHu/webdav-markdown-manager/internal/paths"
)

// Entry describes one remote file or directory. Entries are produced
// by List and Stat and never mutated in place; a fresh listing
// replaces them after every tree mutation.
type Entry struct {
	Path    string    `json:"path"`
	IsDir   bool      `json:"is_dir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mtime"`
}

// Name returns the entry's base name.
func (e Entry) Name() string {
	return paths.Base(e.Path)
}

// SortEntries orders a listing: directories before files,
// case-insensitive name order within the same kind.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return paths.LessEntries(entries[i].Name(), entries[i].IsDir,
			entries[j].Name(), entries[j].IsDir)
	})
}

// Session describes the active connection. A successful Connect
// replaces it atomically; callers receive copies.
type Session struct {
	ID          string
	ServerURL   string
	BasePath    string
	Username    string
	ConnectedAt time.Time
}
