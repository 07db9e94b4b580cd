package documents

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/OllieHu/webdav-markdown-manager/internal/events"
	"github.com/OllieHu/webdav-markdown-manager/internal/logging"
	"github.com/OllieHu/webdav-markdown-manager/internal/metrics"
	"github.com/OllieHu/webdav-markdown-manager/internal/paths"
	"github.com/OllieHu/webdav-markdown-manager/internal/remote"
)

// Overlay tracks open documents. Per document the states are
// absent → open(clean) → open(dirty) → open(clean) … → closed.
type Overlay struct {
	client *remote.Client
	cache  *diskCache
	bus    *events.Broadcaster

	mu   sync.Mutex
	docs map[Handle]*Document
}

// NewOverlay opens the disk cache and returns an empty overlay.
func NewOverlay(client *remote.Client, cacheDir string, cacheMaxSize int64, bus *events.Broadcaster) (*Overlay, error) {
	cache, err := newDiskCache(cacheDir, cacheMaxSize)
	if err != nil {
		return nil, err
	}
	if bus == nil {
		bus = events.NewBroadcaster()
	}
	return &Overlay{
		client: client,
		cache:  cache,
		bus:    bus,
		docs:   make(map[Handle]*Document),
	}, nil
}

// Open fetches the remote content and registers a clean document,
// returning its stable handle. A remote 404 means "new empty file",
// not an error. Opening an already-tracked pair returns the existing
// handle without refetching.
func (o *Overlay) Open(ctx context.Context, remotePath, displayName string) (Handle, error) {
	remotePath = paths.Normalize(remotePath, o.client.BasePath())
	if displayName == "" {
		displayName = paths.Base(remotePath)
	}
	h := NewHandle(remotePath, displayName)

	o.mu.Lock()
	if _, ok := o.docs[h]; ok {
		o.mu.Unlock()
		return h, nil
	}
	o.mu.Unlock()

	content, err := o.client.ReadBinary(ctx, remotePath)
	if err != nil {
		if !remote.IsNotFound(err) {
			return "", err
		}
		content = []byte{}
	}

	now := time.Now()
	doc := &Document{
		RemotePath:  remotePath,
		DisplayName: displayName,
		Content:     content,
		CreatedAt:   now,
		ModifiedAt:  now,
	}

	o.mu.Lock()
	if _, ok := o.docs[h]; !ok {
		o.docs[h] = doc
	}
	count := len(o.docs)
	o.mu.Unlock()

	if err := o.cache.put(h.cacheKey(), content); err != nil {
		logging.Warn("cache write failed", zap.String("path", remotePath), zap.Error(err))
	}
	metrics.SetDocumentsOpen(int64(count))
	o.bus.Publish(events.Event{Type: events.EventOpened, Path: remotePath, Size: doc.Size()})
	return h, nil
}

// Write replaces the document's buffer, marks it dirty, refreshes the
// disk cache and notifies subscribers.
func (o *Overlay) Write(h Handle, newContent []byte) error {
	o.mu.Lock()
	doc, ok := o.docs[h]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("document %s is not open", h.RemotePath())
	}
	doc.Content = append([]byte(nil), newContent...)
	doc.Dirty = true
	doc.ModifiedAt = time.Now()
	path, size := doc.RemotePath, doc.Size()
	o.mu.Unlock()

	if err := o.cache.put(h.cacheKey(), newContent); err != nil {
		logging.Warn("cache write failed", zap.String("path", path), zap.Error(err))
	}
	o.bus.Publish(events.Event{Type: events.EventChanged, Path: path, Size: size})
	return nil
}

// Save pushes the buffer to the remote path with overwrite enabled.
// Failure leaves the document dirty and propagates the classified
// error.
func (o *Overlay) Save(ctx context.Context, h Handle) error {
	o.mu.Lock()
	doc, ok := o.docs[h]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("document %s is not open", h.RemotePath())
	}
	content := append([]byte(nil), doc.Content...)
	path := doc.RemotePath
	modifiedAt := doc.ModifiedAt
	o.mu.Unlock()

	if err := o.client.Write(ctx, path, content, true); err != nil {
		metrics.RecordDocumentSave(false)
		return err
	}

	o.mu.Lock()
	// Clear dirty only if no edit landed while the push was in flight.
	if doc, ok := o.docs[h]; ok && doc.ModifiedAt.Equal(modifiedAt) {
		doc.Dirty = false
		doc.ModifiedAt = time.Now()
	}
	o.mu.Unlock()

	metrics.RecordDocumentSave(true)
	o.bus.Publish(events.Event{Type: events.EventSaved, Path: path, Size: int64(len(content))})
	return nil
}

// SaveAll attempts Save on every dirty document independently and
// returns the aggregate counts; one failure never blocks the rest.
func (o *Overlay) SaveAll(ctx context.Context) (saved, failed int) {
	o.mu.Lock()
	dirty := make([]Handle, 0, len(o.docs))
	for h, doc := range o.docs {
		if doc.Dirty {
			dirty = append(dirty, h)
		}
	}
	o.mu.Unlock()

	for _, h := range dirty {
		if err := o.Save(ctx, h); err != nil {
			logging.Error("save failed",
				zap.String("path", h.RemotePath()), zap.Error(err))
			failed++
			continue
		}
		saved++
	}
	return saved, failed
}

// Close flushes one document to the disk cache and stops tracking it.
// Unsaved edits are not pushed to the remote store.
func (o *Overlay) Close(h Handle) error {
	o.mu.Lock()
	doc, ok := o.docs[h]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("document %s is not open", h.RemotePath())
	}
	content := append([]byte(nil), doc.Content...)
	path := doc.RemotePath
	delete(o.docs, h)
	count := len(o.docs)
	o.mu.Unlock()

	if err := o.cache.put(h.cacheKey(), content); err != nil {
		logging.Warn("cache flush on close failed", zap.String("path", path), zap.Error(err))
	}
	metrics.SetDocumentsOpen(int64(count))
	o.bus.Publish(events.Event{Type: events.EventClosed, Path: path})
	return nil
}

// CloseAll flushes every tracked document to the disk cache (best
// effort) and clears the tracked set. Nothing is pushed remotely.
func (o *Overlay) CloseAll() {
	o.mu.Lock()
	closing := make(map[Handle]*Document, len(o.docs))
	for h, doc := range o.docs {
		closing[h] = doc
	}
	o.docs = make(map[Handle]*Document)
	o.mu.Unlock()

	for h, doc := range closing {
		if err := o.cache.put(h.cacheKey(), doc.Content); err != nil {
			logging.Warn("cache flush on close failed",
				zap.String("path", doc.RemotePath), zap.Error(err))
		}
		o.bus.Publish(events.Event{Type: events.EventClosed, Path: doc.RemotePath})
	}
	metrics.SetDocumentsOpen(0)
}

// Get returns a copy of the tracked document.
func (o *Overlay) Get(h Handle) (Document, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	doc, ok := o.docs[h]
	if !ok {
		return Document{}, false
	}
	return doc.clone(), true
}

// OpenDocuments lists copies of every tracked document, ordered by
// remote path.
func (o *Overlay) OpenDocuments() []Document {
	o.mu.Lock()
	docs := make([]Document, 0, len(o.docs))
	for _, doc := range o.docs {
		docs = append(docs, doc.clone())
	}
	o.mu.Unlock()
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].RemotePath < docs[j].RemotePath
	})
	return docs
}

// Count returns the number of tracked documents.
func (o *Overlay) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.docs)
}

// CacheStats reports the disk cache's size, cap and entry count.
func (o *Overlay) CacheStats() (size, maxSize int64, count int) {
	return o.cache.stats()
}

// MovePath retargets tracked documents after the tree engine moved
// oldPath (or a directory containing them) to newPath. Handles are
// rekeyed; buffers and dirty state carry over.
func (o *Overlay) MovePath(oldPath, newPath string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	type rekey struct {
		old   Handle
		moved string
	}
	var rekeys []rekey
	for h, doc := range o.docs {
		if moved, ok := rebasePath(doc.RemotePath, oldPath, newPath); ok {
			rekeys = append(rekeys, rekey{old: h, moved: moved})
		}
	}
	for _, rk := range rekeys {
		doc := o.docs[rk.old]
		delete(o.docs, rk.old)
		if doc.DisplayName == paths.Base(doc.RemotePath) {
			doc.DisplayName = paths.Base(rk.moved)
		}
		doc.RemotePath = rk.moved
		newHandle := doc.Handle()
		o.docs[newHandle] = doc
		o.cache.remove(rk.old.cacheKey())
		if err := o.cache.put(newHandle.cacheKey(), doc.Content); err != nil {
			logging.Warn("cache rekey failed", zap.String("path", rk.moved), zap.Error(err))
		}
	}
}

// DropPath closes tracked documents at or under a deleted path.
func (o *Overlay) DropPath(deleted string) {
	o.mu.Lock()
	var dropped []*Document
	for h, doc := range o.docs {
		if doc.RemotePath != deleted && !strings.HasPrefix(doc.RemotePath, deleted+"/") {
			continue
		}
		delete(o.docs, h)
		o.cache.remove(h.cacheKey())
		dropped = append(dropped, doc)
	}
	count := len(o.docs)
	o.mu.Unlock()

	metrics.SetDocumentsOpen(int64(count))
	for _, doc := range dropped {
		o.bus.Publish(events.Event{Type: events.EventClosed, Path: doc.RemotePath})
	}
}

// rebasePath maps p from the oldRoot subtree into newRoot.
func rebasePath(p, oldRoot, newRoot string) (string, bool) {
	if p == oldRoot {
		return newRoot, true
	}
	if strings.HasPrefix(p, oldRoot+"/") {
		return newRoot + p[len(oldRoot):], true
	}
	return "", false
}
