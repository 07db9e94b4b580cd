package documents

import (
	"os"
	"path/filepath"
	"testing"
)

func newCache(t *testing.T, maxSize int64) *diskCache {
	t.Helper()
	c, err := newDiskCache(t.TempDir(), maxSize)
	if err != nil {
		t.Fatalf("newDiskCache: %v", err)
	}
	return c
}

func TestCachePutGet(t *testing.T) {
	c := newCache(t, 1<<20)

	if err := c.put("k1", []byte("hello")); err != nil {
		t.Fatalf("put: %v", err)
	}
	data, ok := c.get("k1")
	if !ok || string(data) != "hello" {
		t.Fatalf("get = %q, %v; want %q", data, ok, "hello")
	}
	if _, ok := c.get("absent"); ok {
		t.Error("get of absent key should miss")
	}

	size, _, count := c.stats()
	if size != 5 || count != 1 {
		t.Errorf("stats = %d bytes %d entries, want 5 and 1", size, count)
	}
}

func TestCacheReplaceAdjustsSize(t *testing.T) {
	c := newCache(t, 10)

	if err := c.put("k", []byte("12345678")); err != nil {
		t.Fatalf("put: %v", err)
	}
	// Replacing may exceed the cap only transiently; the old entry's
	// bytes are reclaimed, not double counted.
	if err := c.put("k", []byte("123456789")); err != nil {
		t.Fatalf("replace: %v", err)
	}
	size, _, count := c.stats()
	if size != 9 || count != 1 {
		t.Errorf("stats after replace = %d bytes %d entries, want 9 and 1", size, count)
	}
	data, _ := c.get("k")
	if string(data) != "123456789" {
		t.Errorf("content after replace = %q", data)
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := newCache(t, 10)

	if err := c.put("a", []byte("aaaa")); err != nil {
		t.Fatalf("put a: %v", err)
	}
	if err := c.put("b", []byte("bbbb")); err != nil {
		t.Fatalf("put b: %v", err)
	}
	// Touch a so b becomes the eviction candidate.
	if _, ok := c.get("a"); !ok {
		t.Fatal("a should be cached")
	}
	if err := c.put("c", []byte("cccc")); err != nil {
		t.Fatalf("put c: %v", err)
	}

	if _, ok := c.get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.get("a"); !ok {
		t.Error("a should have survived")
	}
	if _, ok := c.get("c"); !ok {
		t.Error("c should be cached")
	}
}

func TestCacheRehydrates(t *testing.T) {
	dir := t.TempDir()
	c, err := newDiskCache(dir, 1<<20)
	if err != nil {
		t.Fatalf("newDiskCache: %v", err)
	}
	if err := c.put("stable", []byte("survives")); err != nil {
		t.Fatalf("put: %v", err)
	}
	// Leftover temp files from a crashed write are ignored.
	if err := os.WriteFile(filepath.Join(dir, "broken.tmp"), []byte("junk"), 0o600); err != nil {
		t.Fatalf("plant tmp file: %v", err)
	}

	c2, err := newDiskCache(dir, 1<<20)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	data, ok := c2.get("stable")
	if !ok || string(data) != "survives" {
		t.Errorf("rehydrated get = %q, %v; want %q", data, ok, "survives")
	}
	size, _, count := c2.stats()
	if count != 1 || size != int64(len("survives")) {
		t.Errorf("rehydrated stats = %d bytes %d entries, want %d and 1",
			size, count, len("survives"))
	}
}

func TestCacheClear(t *testing.T) {
	c := newCache(t, 1<<20)
	for _, k := range []string{"x", "y", "z"} {
		if err := c.put(k, []byte(k)); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	if n := c.clear(); n != 3 {
		t.Errorf("clear() = %d, want 3", n)
	}
	size, _, count := c.stats()
	if size != 0 || count != 0 {
		t.Errorf("stats after clear = %d bytes %d entries, want zeros", size, count)
	}
	if _, ok := c.get("x"); ok {
		t.Error("cleared entry still readable")
	}
}
