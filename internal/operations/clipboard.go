package operations

import (
	"context"
	"errors"
	"fmt"
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

// ClipOp says what the next paste does with the clipboard entry.
type ClipOp string

const (
	ClipCopy ClipOp = "copy"
	ClipCut  ClipOp = "cut"
)

// clipboardTTL bounds how long a cut or copy stays pasteable. The
// source can drift arbitrarily far from the snapshot after that.
const clipboardTTL = 10 * time.Minute

var (
	ErrClipboardEmpty   = errors.New("clipboard is empty")
	ErrClipboardExpired = errors.New("clipboard entry has expired, cut or copy again")
	ErrSelfReference    = errors.New("destination overlaps the source")
)

type clipboardItem struct {
	entry   remote.Entry
	op      ClipOp
	takenAt time.Time
}

// clipboard holds at most one pending entry.
type clipboard struct {
	mu   sync.Mutex
	item *clipboardItem
	now  func() time.Time
}

func (cb *clipboard) set(entry remote.Entry, op ClipOp) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.item = &clipboardItem{entry: entry, op: op, takenAt: cb.now()}
}

// get returns the pending item. An expired item is dropped on sight.
func (cb *clipboard) get() (clipboardItem, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.item == nil {
		return clipboardItem{}, ErrClipboardEmpty
	}
	if cb.now().Sub(cb.item.takenAt) > clipboardTTL {
		cb.item = nil
		return clipboardItem{}, ErrClipboardExpired
	}
	return *cb.item, nil
}

func (cb *clipboard) clear() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.item = nil
}

func (cb *clipboard) current() (remote.Entry, ClipOp, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.item == nil {
		return remote.Entry{}, "", false
	}
	return cb.item.entry, cb.item.op, true
}

// Cut marks the entry for a move on the next paste. The source is
// verified to still exist and stays untouched until then.
func (e *Engine) Cut(ctx context.Context, entry remote.Entry) error {
	fresh, err := e.client.Stat(ctx, entry.Path)
	if err != nil {
		return err
	}
	e.clip.set(fresh, ClipCut)
	logging.Info("cut to clipboard", zap.String("path", fresh.Path))
	return nil
}

// Copy marks the entry for duplication on the next paste.
func (e *Engine) Copy(ctx context.Context, entry remote.Entry) error {
	fresh, err := e.client.Stat(ctx, entry.Path)
	if err != nil {
		return err
	}
	e.clip.set(fresh, ClipCopy)
	logging.Info("copied to clipboard", zap.String("path", fresh.Path))
	return nil
}

// Clipboard reports the pending entry, its operation and whether one
// is set at all.
func (e *Engine) Clipboard() (remote.Entry, ClipOp, bool) {
	return e.clip.current()
}

// ClearClipboard drops any pending entry.
func (e *Engine) ClearClipboard() {
	e.clip.clear()
}

// Paste lands the clipboard entry in the target directory and returns
// the destination path. The source is re-checked against the store
// first, self-referencing pastes are rejected before anything mutates,
// and an occupied destination is only replaced with the caller's
// approval. A cut consumes the clipboard whether the move succeeds or
// not; a copy leaves it pasteable again.
func (e *Engine) Paste(ctx context.Context, target Target, confirmOverwrite ConfirmFunc) (string, error) {
	item, err := e.clip.get()
	if err != nil {
		metrics.RecordTreeTransaction("paste", false)
		return "", err
	}

	src, err := e.client.Stat(ctx, item.entry.Path)
	if err != nil {
		if remote.IsNotFound(err) {
			e.clip.clear()
			return "", fmt.Errorf("clipboard source is gone: %w", err)
		}
		return "", err
	}

	op := "copy"
	if item.op == ClipCut {
		op = "move"
	}

	dir := e.resolveParent(target)
	dest := paths.Join(dir, src.Name())
	if dest == src.Path {
		return "", fmt.Errorf("paste %s into %s: %w", src.Path, dir, ErrSelfReference)
	}
	if src.IsDir && strings.HasPrefix(dir+"/", src.Path+"/") {
		return "", fmt.Errorf("paste %s into %s: %w", src.Path, dir, ErrSelfReference)
	}

	if existing, err := e.client.Stat(ctx, dest); err == nil {
		if confirmOverwrite == nil || !confirmOverwrite(fmt.Sprintf("%q already exists, overwrite?", dest)) {
			return "", ErrCancelled
		}
		if existing.IsDir {
			err = e.client.DeleteTree(ctx, dest)
		} else {
			err = e.client.DeleteFile(ctx, dest)
		}
		if err != nil {
			metrics.RecordTreeTransaction(op, false)
			return "", err
		}
		if e.overlay != nil {
			e.overlay.DropPath(dest)
		}
	} else if !remote.IsNotFound(err) {
		return "", err
	}

	if item.op == ClipCut {
		err = e.moveEntry(ctx, src, dest)
		e.clip.clear()
		metrics.RecordTreeTransaction(op, err == nil)
		if err != nil {
			return "", err
		}
		if e.overlay != nil {
			e.overlay.MovePath(src.Path, dest)
		}
		e.publish(events.Event{Type: events.EventMoved, Path: src.Path, NewPath: dest})
		logging.Info("moved", zap.String("from", src.Path), zap.String("to", dest))
		return dest, nil
	}

	err = e.copyEntry(ctx, src, dest)
	metrics.RecordTreeTransaction(op, err == nil)
	if err != nil {
		return "", err
	}
	e.publish(events.Event{Type: events.EventCopied, Path: src.Path, NewPath: dest})
	logging.Info("copied", zap.String("from", src.Path), zap.String("to", dest))
	return dest, nil
}
