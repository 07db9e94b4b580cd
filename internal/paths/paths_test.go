package paths

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		path string
		base string
		want string
	}{
		{"empty resolves to base", "", "/notes", "/notes"},
		{"root resolves to base", "/", "/notes", "/notes"},
		{"relative under base", "todo.md", "/notes", "/notes/todo.md"},
		{"relative with leading slash", "/todo.md", "/notes", "/notes/todo.md"},
		{"already absolute under base", "/notes/todo.md", "/notes", "/notes/todo.md"},
		{"equals base", "/notes", "/notes", "/notes"},
		{"repeated separators collapse", "/a//b///c", "/", "/a/b/c"},
		{"trailing separator stripped", "/a/b/", "/", "/a/b"},
		{"nested relative", "sub/dir/f.md", "/notes", "/notes/sub/dir/f.md"},
		{"root base passes through", "/x/y", "/", "/x/y"},
		{"parent refs clamp at root", "../../etc", "/notes", "/notes/etc"},
		{"empty base treated as root", "/a", "", "/a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.path, tt.base); got != tt.want {
				t.Errorf("Normalize(%q, %q) = %q, want %q", tt.path, tt.base, got, tt.want)
			}
		})
	}
}

func TestRelativeTo(t *testing.T) {
	tests := []struct {
		name   string
		abs    string
		base   string
		want   string
		wantOK bool
	}{
		{"equal paths", "/notes", "/notes", "/", true},
		{"direct child", "/notes/todo.md", "/notes", "/todo.md", true},
		{"nested child", "/notes/a/b.md", "/notes", "/a/b.md", true},
		{"root base", "/x/y", "/", "/x/y", true},
		{"root against root", "/", "/", "/", true},
		{"mismatch returned unchanged", "/other/f.md", "/notes", "/other/f.md", false},
		{"sibling prefix is not a match", "/notes2/f.md", "/notes", "/notes2/f.md", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RelativeTo(tt.abs, tt.base)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("RelativeTo(%q, %q) = (%q, %v), want (%q, %v)",
					tt.abs, tt.base, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestRelativeToRoundTrip(t *testing.T) {
	pairs := []struct {
		abs  string
		base string
	}{
		{"/notes/todo.md", "/notes"},
		{"/notes/a/b/c.md", "/notes"},
		{"/notes", "/notes"},
		{"/deep/base/path/file", "/deep/base"},
		{"/x", "/"},
	}
	for _, p := range pairs {
		rel, ok := RelativeTo(p.abs, p.base)
		if !ok {
			t.Fatalf("RelativeTo(%q, %q) reported mismatch", p.abs, p.base)
		}
		again, ok := RelativeTo(Normalize(rel, p.base), p.base)
		if !ok || again != rel {
			t.Errorf("round trip for (%q, %q): got %q, want %q", p.abs, p.base, again, rel)
		}
	}
}

func TestJoinParentBase(t *testing.T) {
	if got := Join("/", "a"); got != "/a" {
		t.Errorf("Join(/, a) = %q, want /a", got)
	}
	if got := Join("/notes", "a.md"); got != "/notes/a.md" {
		t.Errorf("Join(/notes, a.md) = %q, want /notes/a.md", got)
	}
	if got := Parent("/notes/a.md"); got != "/notes" {
		t.Errorf("Parent(/notes/a.md) = %q, want /notes", got)
	}
	if got := Parent("/a"); got != "/" {
		t.Errorf("Parent(/a) = %q, want /", got)
	}
	if got := Base("/notes/a.md"); got != "a.md" {
		t.Errorf("Base(/notes/a.md) = %q, want a.md", got)
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain name", "todo.md", false},
		{"name with spaces", "my notes.md", false},
		{"empty", "", true},
		{"only whitespace", "   ", true},
		{"forward slash", "a/b", true},
		{"backslash", "a\\b", true},
		{"parent reference", "..", true},
		{"current reference", ".", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestSafeLocalPath(t *testing.T) {
	root := t.TempDir()

	got := SafeLocalPath(root, "/sub/file.md")
	want := filepath.Join(root, "sub", "file.md")
	if got != want {
		t.Errorf("SafeLocalPath = %q, want %q", got, want)
	}

	// A directory occupying the file's target name forces a suffix.
	if err := os.MkdirAll(filepath.Join(root, "notes"), 0755); err != nil {
		t.Fatal(err)
	}
	got = SafeLocalPath(root, "/notes")
	want = filepath.Join(root, "notes") + ".file"
	if got != want {
		t.Errorf("SafeLocalPath with dir collision = %q, want %q", got, want)
	}

	// Parent references cannot escape the root.
	got = SafeLocalPath(root, "../../escape")
	want = filepath.Join(root, "escape")
	if got != want {
		t.Errorf("SafeLocalPath with parent refs = %q, want %q", got, want)
	}
}

func TestLessEntriesOrder(t *testing.T) {
	entries := []struct {
		name string
		dir  bool
	}{
		{"b.txt", false},
		{"A", true},
		{"a.txt", false},
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return LessEntries(entries[i].name, entries[i].dir, entries[j].name, entries[j].dir)
	})
	want := []string{"A", "a.txt", "b.txt"}
	for i, w := range want {
		if entries[i].name != w {
			t.Errorf("position %d = %q, want %q", i, entries[i].name, w)
		}
	}
}

func TestDocumentsRoot(t *testing.T) {
	t.Setenv("XDG_DOCUMENTS_DIR", "/tmp/docs")
	if got := DocumentsRoot(); got != "/tmp/docs" {
		t.Errorf("DocumentsRoot() = %q, want /tmp/docs", got)
	}
}
