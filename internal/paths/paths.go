// Package paths maps between absolute remote paths, the configured
// base path, and safe local mirror paths. Pure functions, no I/O
// except the local-collision probe in SafeLocalPath.
package paths

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
)

// Normalize resolves p against basePath and returns an absolute remote
// path: repeated separators collapse, trailing separators are stripped
// except at the root, and an input that resolves to empty yields
// basePath itself. A path already under basePath passes through
// unchanged; anything else is treated as relative to basePath.
func Normalize(p, basePath string) string {
	base := cleanAbsolute(basePath)
	cleaned := cleanAbsolute(p)
	if cleaned == "/" {
		return base
	}
	if base == "/" {
		return cleaned
	}
	if cleaned == base || strings.HasPrefix(cleaned, base+"/") {
		return cleaned
	}
	return base + cleaned
}

// RelativeTo strips basePath from an absolute path. It returns "/"
// when the two are equal, the remainder with a single leading
// separator when absolutePath lies under basePath, and otherwise the
// input unchanged with ok=false so the caller can log the mismatch.
func RelativeTo(absolutePath, basePath string) (rel string, ok bool) {
	base := cleanAbsolute(basePath)
	abs := cleanAbsolute(absolutePath)
	if base == "/" {
		return abs, true
	}
	if abs == base {
		return "/", true
	}
	if strings.HasPrefix(abs, base+"/") {
		return abs[len(base):], true
	}
	return absolutePath, false
}

// Join appends a name to a parent directory path.
func Join(parent, name string) string {
	if parent == "/" || parent == "" {
		return "/" + name
	}
	return parent + "/" + name
}

// Parent returns the directory containing p ("/" for the root).
func Parent(p string) string {
	dir := path.Dir(cleanAbsolute(p))
	if dir == "." {
		return "/"
	}
	return dir
}

// Base returns the last element of p.
func Base(p string) string {
	return path.Base(cleanAbsolute(p))
}

// ValidateName rejects entry names that cannot form a single path
// segment: empty, containing separators, or referencing a parent
// directory.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("name must not be empty")
	}
	if strings.ContainsAny(trimmed, "/\\") {
		return fmt.Errorf("name %q must not contain path separators", name)
	}
	if trimmed == "." || trimmed == ".." {
		return fmt.Errorf("name %q must not reference the current or parent directory", name)
	}
	return nil
}

// LocalPath maps a relative remote path under a local root. Parent
// references in the input clamp at the root, so the result never
// escapes localRoot.
func LocalPath(localRoot, relativePath string) string {
	rel := strings.TrimPrefix(cleanAbsolute(relativePath), "/")
	return filepath.Join(localRoot, filepath.FromSlash(rel))
}

// SafeLocalPath is LocalPath for file downloads: when a local
// directory already occupies the exact target name, the file's local
// name gains a ".file" suffix instead of clobbering the directory.
func SafeLocalPath(localRoot, relativePath string) string {
	target := LocalPath(localRoot, relativePath)
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		return target + ".file"
	}
	return target
}

// LessEntries is the listing sort order: directories before files,
// case-insensitive name order within the same kind.
func LessEntries(nameA string, dirA bool, nameB string, dirB bool) bool {
	if dirA != dirB {
		return dirA
	}
	return strings.ToLower(nameA) < strings.ToLower(nameB)
}

// DocumentsRoot returns the platform default documents folder, used
// as the ${documents} substitution in the local sync path.
func DocumentsRoot() string {
	if runtime.GOOS != "windows" {
		if xdg := os.Getenv("XDG_DOCUMENTS_DIR"); xdg != "" {
			return xdg
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "Documents"
	}
	return filepath.Join(home, "Documents")
}

// cleanAbsolute normalizes a single path to absolute form with no
// trailing slash except at the root. Parent references clamp at the
// root rather than escaping it.
func cleanAbsolute(p string) string {
	return path.Clean("/" + p)
}
