package operations

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/net/webdav"

	"github.com/OllieHu/webdav-markdown-manager/internal/documents"
	"github.com/OllieHu/webdav-markdown-manager/internal/events"
	"github.com/OllieHu/webdav-markdown-manager/internal/remote"
)

func newTestEngine(t *testing.T) (*Engine, *remote.Client, *documents.Overlay) {
	t.Helper()
	fs := webdav.NewMemFS()
	if err := fs.Mkdir(context.Background(), "/notes", 0o755); err != nil {
		t.Fatalf("seed base dir: %v", err)
	}
	srv := httptest.NewServer(&webdav.Handler{
		FileSystem: fs,
		LockSystem: webdav.NewMemLS(),
	})
	t.Cleanup(srv.Close)

	client := remote.NewClient()
	if err := client.Connect(context.Background(), srv.URL, "", "", "/notes"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	bus := events.NewBroadcaster()
	overlay, err := documents.NewOverlay(client, t.TempDir(), 1<<20, bus)
	if err != nil {
		t.Fatalf("overlay: %v", err)
	}
	return NewEngine(client, overlay, bus), client, overlay
}

func mustWrite(t *testing.T, client *remote.Client, path, content string) {
	t.Helper()
	if err := client.Write(context.Background(), path, []byte(content), true); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func mustMkdir(t *testing.T, client *remote.Client, path string) {
	t.Helper()
	if err := client.Mkdir(context.Background(), path); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}

func mustStat(t *testing.T, client *remote.Client, path string) remote.Entry {
	t.Helper()
	entry, err := client.Stat(context.Background(), path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	return entry
}

// countTree counts the files and directories strictly below root.
func countTree(t *testing.T, client *remote.Client, root string) (files, dirs int) {
	t.Helper()
	entries, err := client.ListAll(context.Background(), root)
	if err != nil {
		t.Fatalf("list %s: %v", root, err)
	}
	for _, e := range entries {
		if e.IsDir {
			dirs++
			f, d := countTree(t, client, e.Path)
			files, dirs = files+f, dirs+d
		} else {
			files++
		}
	}
	return files, dirs
}

func approve(string) bool { return true }
func decline(string) bool { return false }

func TestCreateFile(t *testing.T) {
	eng, client, _ := newTestEngine(t)
	ctx := context.Background()

	p, err := eng.CreateFile(ctx, NoTarget(), "a.md")
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if p != "/notes/a.md" {
		t.Errorf("CreateFile path = %q, want %q", p, "/notes/a.md")
	}
	if entry := mustStat(t, client, p); entry.IsDir || entry.Size != 0 {
		t.Errorf("created entry = %+v, want empty file", entry)
	}

	if _, err := eng.CreateFile(ctx, NoTarget(), "a.md"); !remote.IsConflict(err) {
		t.Errorf("duplicate CreateFile error = %v, want conflict", err)
	}
	if _, err := eng.CreateFile(ctx, NoTarget(), "a/b.md"); err == nil {
		t.Error("CreateFile with separator in name should fail")
	}
	if _, err := eng.CreateFile(ctx, NoTarget(), "   "); err == nil {
		t.Error("CreateFile with blank name should fail")
	}
}

func TestCreateFolder(t *testing.T) {
	eng, client, _ := newTestEngine(t)
	ctx := context.Background()

	p, err := eng.CreateFolder(ctx, NoTarget(), "docs")
	if err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	if !mustStat(t, client, p).IsDir {
		t.Errorf("%s should be a directory", p)
	}
	if _, err := eng.CreateFolder(ctx, NoTarget(), "docs"); !remote.IsConflict(err) {
		t.Errorf("duplicate CreateFolder error = %v, want conflict", err)
	}

	nested, err := eng.CreateFile(ctx, TargetPath("docs"), "inside.md")
	if err != nil {
		t.Fatalf("CreateFile under folder: %v", err)
	}
	if nested != "/notes/docs/inside.md" {
		t.Errorf("nested path = %q, want %q", nested, "/notes/docs/inside.md")
	}
}

func TestTargetResolution(t *testing.T) {
	eng, client, _ := newTestEngine(t)
	ctx := context.Background()
	mustWrite(t, client, "/notes/a.md", "x")

	// A file target resolves to its parent.
	p, err := eng.CreateFile(ctx, TargetEntry(mustStat(t, client, "/notes/a.md")), "sibling.md")
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if p != "/notes/sibling.md" {
		t.Errorf("sibling path = %q, want %q", p, "/notes/sibling.md")
	}

	// A stale directory entry walks up to the nearest live directory.
	stale := remote.Entry{Path: "/notes/ghost/deeper", IsDir: true}
	p, err = eng.CreateFile(ctx, TargetEntry(stale), "rescued.md")
	if err != nil {
		t.Fatalf("CreateFile with stale target: %v", err)
	}
	if p != "/notes/rescued.md" {
		t.Errorf("rescued path = %q, want %q", p, "/notes/rescued.md")
	}

	// The filesystem root corrects to the base path.
	p, err = eng.CreateFile(ctx, TargetPath("/"), "atbase.md")
	if err != nil {
		t.Fatalf("CreateFile at root: %v", err)
	}
	if p != "/notes/atbase.md" {
		t.Errorf("root-target path = %q, want %q", p, "/notes/atbase.md")
	}
}

func TestDelete(t *testing.T) {
	eng, client, _ := newTestEngine(t)
	ctx := context.Background()
	mustWrite(t, client, "/notes/doomed.md", "bye")

	entry := mustStat(t, client, "/notes/doomed.md")
	if err := eng.Delete(ctx, entry, decline); !errors.Is(err, ErrCancelled) {
		t.Fatalf("declined delete error = %v, want ErrCancelled", err)
	}
	mustStat(t, client, "/notes/doomed.md")

	if err := eng.Delete(ctx, entry, approve); err != nil {
		t.Fatalf("Delete file: %v", err)
	}
	if _, err := client.Stat(ctx, "/notes/doomed.md"); !remote.IsNotFound(err) {
		t.Errorf("stat after delete = %v, want not-found", err)
	}

	mustMkdir(t, client, "/notes/dir")
	mustWrite(t, client, "/notes/dir/a.md", "1")
	mustWrite(t, client, "/notes/dir/b.md", "2")
	if err := eng.Delete(ctx, mustStat(t, client, "/notes/dir"), approve); err != nil {
		t.Fatalf("Delete dir: %v", err)
	}
	if _, err := client.Stat(ctx, "/notes/dir"); !remote.IsNotFound(err) {
		t.Errorf("stat after tree delete = %v, want not-found", err)
	}
}

func TestRename(t *testing.T) {
	eng, client, overlay := newTestEngine(t)
	ctx := context.Background()
	mustWrite(t, client, "/notes/old.md", "payload")
	mustWrite(t, client, "/notes/taken.md", "other")

	if _, err := overlay.Open(ctx, "/notes/old.md", "old.md"); err != nil {
		t.Fatalf("open: %v", err)
	}

	if _, err := eng.Rename(ctx, mustStat(t, client, "/notes/old.md"), "taken.md"); !remote.IsConflict(err) {
		t.Fatalf("rename onto existing error = %v, want conflict", err)
	}

	same, err := eng.Rename(ctx, mustStat(t, client, "/notes/old.md"), "old.md")
	if err != nil || same != "/notes/old.md" {
		t.Fatalf("rename to same name = %q, %v; want no-op", same, err)
	}

	newPath, err := eng.Rename(ctx, mustStat(t, client, "/notes/old.md"), "new.md")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	data, _, err := client.Read(ctx, newPath)
	if err != nil || string(data) != "payload" {
		t.Fatalf("read renamed = %q, %v; want %q", data, err, "payload")
	}
	if _, err := client.Stat(ctx, "/notes/old.md"); !remote.IsNotFound(err) {
		t.Errorf("old path still exists after rename")
	}

	// The open document follows the rename.
	moved := documents.NewHandle(newPath, "new.md")
	if _, ok := overlay.Get(moved); !ok {
		t.Errorf("open document did not follow rename to %s", newPath)
	}
}

func seedTree(t *testing.T, client *remote.Client) {
	t.Helper()
	mustMkdir(t, client, "/notes/src")
	mustMkdir(t, client, "/notes/src/sub")
	mustWrite(t, client, "/notes/src/a.md", "alpha")
	mustWrite(t, client, "/notes/src/b.md", "beta")
	mustWrite(t, client, "/notes/src/sub/c.md", "gamma")
	mustMkdir(t, client, "/notes/dst")
}

func TestPasteCopyRecursive(t *testing.T) {
	eng, client, _ := newTestEngine(t)
	ctx := context.Background()
	seedTree(t, client)

	if err := eng.Copy(ctx, mustStat(t, client, "/notes/src")); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	dest, err := eng.Paste(ctx, TargetPath("/notes/dst"), nil)
	if err != nil {
		t.Fatalf("Paste: %v", err)
	}
	if dest != "/notes/dst/src" {
		t.Errorf("paste destination = %q, want %q", dest, "/notes/dst/src")
	}

	srcFiles, srcDirs := countTree(t, client, "/notes/src")
	dstFiles, dstDirs := countTree(t, client, dest)
	if srcFiles != 3 || srcDirs != 1 {
		t.Fatalf("source tree = %d files %d dirs, want 3 and 1", srcFiles, srcDirs)
	}
	if dstFiles != srcFiles || dstDirs != srcDirs {
		t.Errorf("copied tree = %d files %d dirs, want %d and %d",
			dstFiles, dstDirs, srcFiles, srcDirs)
	}
	data, _, err := client.Read(ctx, "/notes/dst/src/sub/c.md")
	if err != nil || string(data) != "gamma" {
		t.Errorf("nested copy = %q, %v; want %q", data, err, "gamma")
	}

	// A copy stays pasteable.
	if _, _, ok := eng.Clipboard(); !ok {
		t.Error("clipboard should survive a copy paste")
	}
}

func TestPasteCutMovesAndClears(t *testing.T) {
	eng, client, _ := newTestEngine(t)
	ctx := context.Background()
	seedTree(t, client)

	if err := eng.Cut(ctx, mustStat(t, client, "/notes/src/a.md")); err != nil {
		t.Fatalf("Cut: %v", err)
	}
	mustStat(t, client, "/notes/src/a.md") // cut alone must not touch the source

	dest, err := eng.Paste(ctx, TargetPath("/notes/dst"), nil)
	if err != nil {
		t.Fatalf("Paste: %v", err)
	}
	data, _, err := client.Read(ctx, dest)
	if err != nil || string(data) != "alpha" {
		t.Fatalf("moved content = %q, %v; want %q", data, err, "alpha")
	}
	if _, err := client.Stat(ctx, "/notes/src/a.md"); !remote.IsNotFound(err) {
		t.Errorf("source survives after cut paste")
	}
	if _, err := eng.Paste(ctx, TargetPath("/notes/dst"), nil); !errors.Is(err, ErrClipboardEmpty) {
		t.Errorf("second paste after cut = %v, want ErrClipboardEmpty", err)
	}
}

func TestPasteSelfReference(t *testing.T) {
	eng, client, _ := newTestEngine(t)
	ctx := context.Background()
	seedTree(t, client)

	// A directory cannot land inside itself or its own subtree.
	for _, target := range []string{"/notes/src", "/notes/src/sub"} {
		if err := eng.Copy(ctx, mustStat(t, client, "/notes/src")); err != nil {
			t.Fatalf("Copy: %v", err)
		}
		if _, err := eng.Paste(ctx, TargetPath(target), nil); !errors.Is(err, ErrSelfReference) {
			t.Errorf("paste into %s = %v, want ErrSelfReference", target, err)
		}
	}
	if _, err := client.Stat(ctx, "/notes/src/src"); !remote.IsNotFound(err) {
		t.Errorf("rejected paste still created /notes/src/src")
	}

	// A file pasted into its own parent resolves to itself.
	if err := eng.Copy(ctx, mustStat(t, client, "/notes/src/a.md")); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if _, err := eng.Paste(ctx, TargetPath("/notes/src"), nil); !errors.Is(err, ErrSelfReference) {
		t.Errorf("paste onto itself = %v, want ErrSelfReference", err)
	}
}

func TestPasteOverwrite(t *testing.T) {
	eng, client, _ := newTestEngine(t)
	ctx := context.Background()
	seedTree(t, client)
	mustWrite(t, client, "/notes/dst/a.md", "stale")

	if err := eng.Copy(ctx, mustStat(t, client, "/notes/src/a.md")); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if _, err := eng.Paste(ctx, TargetPath("/notes/dst"), decline); !errors.Is(err, ErrCancelled) {
		t.Fatalf("declined overwrite = %v, want ErrCancelled", err)
	}
	data, _, _ := client.Read(ctx, "/notes/dst/a.md")
	if string(data) != "stale" {
		t.Fatalf("declined overwrite still changed destination: %q", data)
	}

	if _, err := eng.Paste(ctx, TargetPath("/notes/dst"), approve); err != nil {
		t.Fatalf("Paste with overwrite: %v", err)
	}
	data, _, _ = client.Read(ctx, "/notes/dst/a.md")
	if string(data) != "alpha" {
		t.Errorf("overwritten content = %q, want %q", data, "alpha")
	}
}

func TestPasteSourceGone(t *testing.T) {
	eng, client, _ := newTestEngine(t)
	ctx := context.Background()
	mustWrite(t, client, "/notes/here.md", "x")
	mustMkdir(t, client, "/notes/dst")

	if err := eng.Copy(ctx, mustStat(t, client, "/notes/here.md")); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if err := client.DeleteFile(ctx, "/notes/here.md"); err != nil {
		t.Fatalf("delete behind clipboard: %v", err)
	}
	if _, err := eng.Paste(ctx, TargetPath("/notes/dst"), nil); err == nil {
		t.Fatal("paste of vanished source should fail")
	}
	if _, err := eng.Paste(ctx, TargetPath("/notes/dst"), nil); !errors.Is(err, ErrClipboardEmpty) {
		t.Errorf("clipboard should be cleared after vanished source, got %v", err)
	}
}

func TestClearClipboard(t *testing.T) {
	eng, client, _ := newTestEngine(t)
	ctx := context.Background()
	mustWrite(t, client, "/notes/keep.md", "k")

	if err := eng.Copy(ctx, mustStat(t, client, "/notes/keep.md")); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	eng.ClearClipboard()
	if _, _, ok := eng.Clipboard(); ok {
		t.Error("clipboard should be empty after clear")
	}
	if _, err := eng.Paste(ctx, NoTarget(), nil); !errors.Is(err, ErrClipboardEmpty) {
		t.Errorf("paste after clear = %v, want ErrClipboardEmpty", err)
	}
}

func TestClipboardExpiry(t *testing.T) {
	eng, client, _ := newTestEngine(t)
	ctx := context.Background()
	seedTree(t, client)

	base := time.Now()
	current := base
	eng.clip.now = func() time.Time { return current }

	if err := eng.Copy(ctx, mustStat(t, client, "/notes/src/a.md")); err != nil {
		t.Fatalf("Copy: %v", err)
	}

	// Exactly at the deadline the entry is still good.
	current = base.Add(clipboardTTL)
	if _, err := eng.Paste(ctx, TargetPath("/notes/dst"), nil); err != nil {
		t.Fatalf("paste at deadline: %v", err)
	}

	if err := eng.Copy(ctx, mustStat(t, client, "/notes/src/b.md")); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	current = current.Add(clipboardTTL + time.Second)
	if _, err := eng.Paste(ctx, TargetPath("/notes/dst"), nil); !errors.Is(err, ErrClipboardExpired) {
		t.Fatalf("paste past deadline = %v, want ErrClipboardExpired", err)
	}
	// Expiry consumes the entry.
	if _, err := eng.Paste(ctx, TargetPath("/notes/dst"), nil); !errors.Is(err, ErrClipboardEmpty) {
		t.Errorf("paste after expiry = %v, want ErrClipboardEmpty", err)
	}
}

func TestUpload(t *testing.T) {
	eng, client, _ := newTestEngine(t)
	ctx := context.Background()

	local := filepath.Join(t.TempDir(), "report.md")
	if err := os.WriteFile(local, []byte("quarterly"), 0o644); err != nil {
		t.Fatalf("write local: %v", err)
	}

	dest, err := eng.Upload(ctx, NoTarget(), local, nil)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if dest != "/notes/report.md" {
		t.Errorf("upload dest = %q, want %q", dest, "/notes/report.md")
	}
	data, _, err := client.Read(ctx, dest)
	if err != nil || string(data) != "quarterly" {
		t.Fatalf("uploaded content = %q, %v", data, err)
	}

	if _, err := eng.Upload(ctx, NoTarget(), local, nil); !errors.Is(err, ErrCancelled) {
		t.Errorf("unconfirmed overwrite upload = %v, want ErrCancelled", err)
	}
	if _, err := eng.Upload(ctx, NoTarget(), local, approve); err != nil {
		t.Errorf("confirmed overwrite upload: %v", err)
	}
}

func TestUploadAllCountsIndependently(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()
	dir := t.TempDir()

	good1 := filepath.Join(dir, "one.md")
	good2 := filepath.Join(dir, "two.md")
	for _, p := range []string{good1, good2} {
		if err := os.WriteFile(p, []byte("ok"), 0o644); err != nil {
			t.Fatalf("write local: %v", err)
		}
	}
	missing := filepath.Join(dir, "absent.md")

	uploaded, failed, err := eng.UploadAll(ctx, NoTarget(), []string{good1, missing, good2}, nil)
	if err != nil {
		t.Fatalf("UploadAll: %v", err)
	}
	if uploaded != 2 || failed != 1 {
		t.Errorf("UploadAll = %d uploaded %d failed, want 2 and 1", uploaded, failed)
	}
}

func TestDownloadTree(t *testing.T) {
	eng, client, _ := newTestEngine(t)
	ctx := context.Background()
	seedTree(t, client)

	root := t.TempDir()
	n, err := eng.Download(ctx, mustStat(t, client, "/notes/src"), root)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if n != 3 {
		t.Errorf("Download wrote %d files, want 3", n)
	}
	data, err := os.ReadFile(filepath.Join(root, "src", "sub", "c.md"))
	if err != nil || string(data) != "gamma" {
		t.Errorf("mirrored file = %q, %v; want %q", data, err, "gamma")
	}
}

func TestEngineEvents(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	ch := eng.bus.Subscribe()
	defer eng.bus.Unsubscribe(ch)

	if _, err := eng.CreateFile(ctx, NoTarget(), "seen.md"); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	select {
	case ev := <-ch:
		if ev.Type != events.EventCreated || ev.Path != "/notes/seen.md" {
			t.Errorf("event = %+v, want created /notes/seen.md", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event after create")
	}
}

// TestEditThenMoveScenario walks a whole session: create a note, edit
// and save it through the overlay, check a second handle sees the
// saved bytes, then cut the file into an archive folder.
func TestEditThenMoveScenario(t *testing.T) {
	eng, client, overlay := newTestEngine(t)
	ctx := context.Background()

	p, err := eng.CreateFile(ctx, NoTarget(), "todo.md")
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	h, err := overlay.Open(ctx, p, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := overlay.Write(h, []byte("- buy milk")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := overlay.Save(ctx, h); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A second handle for the same path fetches fresh from the remote.
	h2, err := overlay.Open(ctx, p, "second")
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	if doc, ok := overlay.Get(h2); !ok || string(doc.Content) != "- buy milk" {
		t.Fatalf("second handle content = %q (ok=%v), want %q", doc.Content, ok, "- buy milk")
	}

	mustMkdir(t, client, "/notes/archive")
	if err := eng.Cut(ctx, mustStat(t, client, p)); err != nil {
		t.Fatalf("Cut: %v", err)
	}
	dest, err := eng.Paste(ctx, TargetPath("/notes/archive"), nil)
	if err != nil {
		t.Fatalf("Paste: %v", err)
	}
	if dest != "/notes/archive/todo.md" {
		t.Errorf("paste dest = %q, want %q", dest, "/notes/archive/todo.md")
	}

	if _, err := client.Stat(ctx, p); !remote.IsNotFound(err) {
		t.Errorf("source after move: %v, want not found", err)
	}
	data, _, err := client.Read(ctx, dest)
	if err != nil || string(data) != "- buy milk" {
		t.Errorf("moved content = %q, %v; want %q", data, err, "- buy milk")
	}

	// Open documents followed the move.
	if doc, ok := overlay.Get(documents.NewHandle(dest, "todo.md")); !ok || doc.RemotePath != dest {
		t.Errorf("tracked document after move = %+v (ok=%v), want path %q", doc, ok, dest)
	}
}
