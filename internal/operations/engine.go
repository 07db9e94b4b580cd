// Package operations implements tree transactions against the remote
// store: create, delete, rename, clipboard paste and local transfers.
// Every operation resolves its destination first, validates before
// mutating, and keeps the document overlay informed of path changes.
package operations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/OllieHu/webdav-markdown-manager/internal/documents"
	"github.com/OllieHu/webdav-markdown-manager/internal/events"
	"github.com/OllieHu/webdav-markdown-manager/internal/logging"
	"github.com/OllieHu/webdav-markdown-manager/internal/metrics"
	"github.com/OllieHu/webdav-markdown-manager/internal/paths"
	"github.com/OllieHu/webdav-markdown-manager/internal/remote"
)

// ErrCancelled is returned when the caller's confirmation hook declines
// a destructive step.
var ErrCancelled = errors.New("operation cancelled")

// ConfirmFunc asks the caller to approve a destructive step. A nil
// hook means nothing is approved.
type ConfirmFunc func(prompt string) bool

type targetKind int

const (
	targetNone targetKind = iota
	targetPath
	targetEntry
)

// Target names where an operation should act. It is either a raw path,
// a live listing entry, or absent, in which case the connection's base
// path is used.
type Target struct {
	kind  targetKind
	path  string
	entry remote.Entry
}

// TargetPath targets a raw remote path.
func TargetPath(p string) Target { return Target{kind: targetPath, path: p} }

// TargetEntry targets a listing entry. Files resolve to their parent
// directory.
func TargetEntry(e remote.Entry) Target { return Target{kind: targetEntry, entry: e} }

// NoTarget resolves to the connection's base path.
func NoTarget() Target { return Target{kind: targetNone} }

// Engine runs tree transactions on top of a connected client.
type Engine struct {
	client  *remote.Client
	overlay *documents.Overlay
	bus     *events.Broadcaster
	clip    clipboard
}

// NewEngine wires the engine to its collaborators. overlay and bus may
// be nil when no documents are open and nobody listens.
func NewEngine(client *remote.Client, overlay *documents.Overlay, bus *events.Broadcaster) *Engine {
	return &Engine{
		client:  client,
		overlay: overlay,
		bus:     bus,
		clip:    clipboard{now: time.Now},
	}
}

// resolveParent turns a target into a candidate parent directory path.
// A directory entry is the parent itself, a file entry contributes its
// parent, and an absent target or a resolved root falls back to the
// base path.
func (e *Engine) resolveParent(t Target) string {
	base := e.client.BasePath()
	var p string
	switch t.kind {
	case targetPath:
		p = paths.Normalize(t.path, base)
	case targetEntry:
		if t.entry.IsDir {
			p = t.entry.Path
		} else {
			p = paths.Parent(t.entry.Path)
		}
	default:
		p = base
	}
	if p == "/" && base != "/" {
		p = base
	}
	return p
}

// nearestDirectory walks upward from p until it finds a path that
// currently stats as a directory. Targets can come from stale tree
// snapshots whose node has since been deleted or turned into a file.
func (e *Engine) nearestDirectory(ctx context.Context, p string) (string, error) {
	base := e.client.BasePath()
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if p == base || p == "/" {
			return base, nil
		}
		entry, err := e.client.Stat(ctx, p)
		if err == nil {
			if entry.IsDir {
				return p, nil
			}
		} else if !remote.IsNotFound(err) {
			return "", err
		}
		logging.Debug("target is not a directory, trying parent",
			zap.String("path", p))
		p = paths.Parent(p)
		if !strings.HasPrefix(p, base) {
			return base, nil
		}
	}
}

// preparePlacement resolves the directory a new child lands in and the
// full path the child will have.
func (e *Engine) preparePlacement(ctx context.Context, target Target, name string) (string, error) {
	if err := paths.ValidateName(name); err != nil {
		return "", err
	}
	dir, err := e.nearestDirectory(ctx, e.resolveParent(target))
	if err != nil {
		return "", err
	}
	return paths.Join(dir, strings.TrimSpace(name)), nil
}

// CreateFile creates an empty file under the target directory and
// returns its path. An existing entry at the destination is a
// conflict, never an overwrite.
func (e *Engine) CreateFile(ctx context.Context, target Target, name string) (string, error) {
	p, err := e.preparePlacement(ctx, target, name)
	if err != nil {
		metrics.RecordTreeTransaction("create_file", false)
		return "", err
	}
	if err := e.client.Write(ctx, p, nil, false); err != nil {
		metrics.RecordTreeTransaction("create_file", false)
		return "", err
	}
	metrics.RecordTreeTransaction("create_file", true)
	e.publish(events.Event{Type: events.EventCreated, Path: p})
	logging.Info("created file", zap.String("path", p))
	return p, nil
}

// CreateFolder creates a directory under the target directory and
// returns its path.
func (e *Engine) CreateFolder(ctx context.Context, target Target, name string) (string, error) {
	p, err := e.preparePlacement(ctx, target, name)
	if err != nil {
		metrics.RecordTreeTransaction("create_folder", false)
		return "", err
	}
	if _, err := e.client.Stat(ctx, p); err == nil {
		metrics.RecordTreeTransaction("create_folder", false)
		return "", &remote.Error{
			Kind: remote.KindConflict,
			Op:   "mkdir",
			Path: p,
			Err:  errors.New("an entry with this name already exists"),
		}
	} else if !remote.IsNotFound(err) {
		metrics.RecordTreeTransaction("create_folder", false)
		return "", err
	}
	if err := e.client.Mkdir(ctx, p); err != nil {
		metrics.RecordTreeTransaction("create_folder", false)
		return "", err
	}
	metrics.RecordTreeTransaction("create_folder", true)
	e.publish(events.Event{Type: events.EventCreated, Path: p})
	logging.Info("created folder", zap.String("path", p))
	return p, nil
}

// Delete removes the entry, recursively for directories, after the
// caller confirms. Open documents under the path are dropped from the
// overlay without a remote flush.
func (e *Engine) Delete(ctx context.Context, entry remote.Entry, confirm ConfirmFunc) error {
	kind := "file"
	if entry.IsDir {
		kind = "folder"
	}
	if confirm == nil || !confirm(fmt.Sprintf("Delete %s %q?", kind, entry.Path)) {
		return ErrCancelled
	}
	var err error
	if entry.IsDir {
		err = e.client.DeleteTree(ctx, entry.Path)
	} else {
		err = e.client.DeleteFile(ctx, entry.Path)
	}
	metrics.RecordTreeTransaction("delete", err == nil)
	if err != nil {
		return err
	}
	if e.overlay != nil {
		e.overlay.DropPath(entry.Path)
	}
	e.publish(events.Event{Type: events.EventDeleted, Path: entry.Path})
	logging.Info("deleted", zap.String("path", entry.Path), zap.String("kind", kind))
	return nil
}

// Rename gives the entry a new name in place. The store has no rename
// primitive, so this copies to the new path and then deletes the
// original; a failed copy leaves the source untouched.
func (e *Engine) Rename(ctx context.Context, entry remote.Entry, newName string) (string, error) {
	if err := paths.ValidateName(newName); err != nil {
		metrics.RecordTreeTransaction("rename", false)
		return "", err
	}
	newPath := paths.Join(paths.Parent(entry.Path), strings.TrimSpace(newName))
	if newPath == entry.Path {
		return newPath, nil
	}
	if _, err := e.client.Stat(ctx, newPath); err == nil {
		metrics.RecordTreeTransaction("rename", false)
		return "", &remote.Error{
			Kind: remote.KindConflict,
			Op:   "rename",
			Path: newPath,
			Err:  errors.New("an entry with this name already exists"),
		}
	} else if !remote.IsNotFound(err) {
		metrics.RecordTreeTransaction("rename", false)
		return "", err
	}
	if err := e.moveEntry(ctx, entry, newPath); err != nil {
		metrics.RecordTreeTransaction("rename", false)
		return "", err
	}
	metrics.RecordTreeTransaction("rename", true)
	if e.overlay != nil {
		e.overlay.MovePath(entry.Path, newPath)
	}
	e.publish(events.Event{Type: events.EventMoved, Path: entry.Path, NewPath: newPath})
	logging.Info("renamed", zap.String("from", entry.Path), zap.String("to", newPath))
	return newPath, nil
}

func (e *Engine) publish(ev events.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}
