package operations

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/OllieHu/webdav-markdown-manager/internal/events"
	"github.com/OllieHu/webdav-markdown-manager/internal/logging"
	"github.com/OllieHu/webdav-markdown-manager/internal/metrics"
	"github.com/OllieHu/webdav-markdown-manager/internal/paths"
	"github.com/OllieHu/webdav-markdown-manager/internal/remote"
)

func (e *Engine) copyEntry(ctx context.Context, src remote.Entry, dest string) error {
	if src.IsDir {
		return e.copyTree(ctx, src.Path, dest)
	}
	return e.copyFile(ctx, src.Path, dest)
}

// copyFile transfers one file byte for byte.
func (e *Engine) copyFile(ctx context.Context, src, dest string) error {
	data, err := e.client.ReadBinary(ctx, src)
	if err != nil {
		return err
	}
	return e.client.Write(ctx, dest, data, true)
}

// copyTree recreates the directory at dest and copies every child,
// hidden ones included. A child failure aborts the remainder of that
// directory and leaves the partial copy in place.
func (e *Engine) copyTree(ctx context.Context, src, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.client.Mkdir(ctx, dest); err != nil {
		return err
	}
	children, err := e.client.ListAll(ctx, src)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := ctx.Err(); err != nil {
			return err
		}
		childDest := paths.Join(dest, child.Name())
		if child.IsDir {
			err = e.copyTree(ctx, child.Path, childDest)
		} else {
			err = e.copyFile(ctx, child.Path, childDest)
		}
		if err != nil {
			return fmt.Errorf("copy %s: %w", child.Path, err)
		}
	}
	return nil
}

// moveEntry copies src to dest, then deletes the source. A file whose
// delete finds nothing was already consumed by an enclosing move and
// counts as done. When the copy fails the source is left alone.
func (e *Engine) moveEntry(ctx context.Context, src remote.Entry, dest string) error {
	if err := e.copyEntry(ctx, src, dest); err != nil {
		logging.Warn("not deleting source, copy failed",
			zap.String("path", src.Path), zap.Error(err))
		return err
	}
	if src.IsDir {
		return e.client.DeleteTree(ctx, src.Path)
	}
	if err := e.client.DeleteFile(ctx, src.Path); err != nil && !remote.IsNotFound(err) {
		return err
	}
	return nil
}

// Upload pushes one local file into the target directory and returns
// the remote path. An occupied destination needs the caller's
// approval.
func (e *Engine) Upload(ctx context.Context, target Target, localPath string, confirmOverwrite ConfirmFunc) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		metrics.RecordTreeTransaction("upload", false)
		return "", err
	}
	dest, err := e.preparePlacement(ctx, target, filepath.Base(localPath))
	if err != nil {
		metrics.RecordTreeTransaction("upload", false)
		return "", err
	}
	if _, err := e.client.Stat(ctx, dest); err == nil {
		if confirmOverwrite == nil || !confirmOverwrite(fmt.Sprintf("%q already exists, overwrite?", dest)) {
			metrics.RecordTreeTransaction("upload", false)
			return "", ErrCancelled
		}
	} else if !remote.IsNotFound(err) {
		metrics.RecordTreeTransaction("upload", false)
		return "", err
	}
	if err := e.client.Write(ctx, dest, data, true); err != nil {
		metrics.RecordTreeTransaction("upload", false)
		return "", err
	}
	metrics.RecordTreeTransaction("upload", true)
	e.publish(events.Event{Type: events.EventCreated, Path: dest, Size: int64(len(data))})
	logging.Info("uploaded", zap.String("file", localPath), zap.String("to", dest))
	return dest, nil
}

// UploadAll uploads several local files, counting successes and
// failures independently of each other. Cancellation stops before the
// next file rather than mid-transfer.
func (e *Engine) UploadAll(ctx context.Context, target Target, localPaths []string, confirmOverwrite ConfirmFunc) (uploaded, failed int, err error) {
	for _, lp := range localPaths {
		if cerr := ctx.Err(); cerr != nil {
			return uploaded, failed, cerr
		}
		if _, uerr := e.Upload(ctx, target, lp, confirmOverwrite); uerr != nil {
			failed++
			logging.Error("upload failed", zap.String("file", lp), zap.Error(uerr))
			continue
		}
		uploaded++
	}
	return uploaded, failed, nil
}

// Download mirrors the entry under localRoot, preserving the remote
// layout relative to the base path. A path outside the base is
// flattened to its name. It returns the number of files written.
func (e *Engine) Download(ctx context.Context, entry remote.Entry, localRoot string) (int, error) {
	rel, ok := paths.RelativeTo(entry.Path, e.client.BasePath())
	if !ok {
		logging.Warn("path outside the base path, downloading by name",
			zap.String("path", entry.Path))
		rel = "/" + entry.Name()
	}
	n, err := e.download(ctx, entry, localRoot, rel)
	metrics.RecordTreeTransaction("download", err == nil)
	return n, err
}

func (e *Engine) download(ctx context.Context, entry remote.Entry, localRoot, rel string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !entry.IsDir {
		data, err := e.client.ReadBinary(ctx, entry.Path)
		if err != nil {
			return 0, err
		}
		local := paths.SafeLocalPath(localRoot, rel)
		if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
			return 0, err
		}
		if err := os.WriteFile(local, data, 0o644); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err := os.MkdirAll(paths.LocalPath(localRoot, rel), 0o755); err != nil {
		return 0, err
	}
	children, err := e.client.List(ctx, entry.Path)
	if err != nil {
		return 0, err
	}
	written := 0
	for _, child := range children {
		n, err := e.download(ctx, child, localRoot, paths.Join(rel, child.Name()))
		written += n
		if err != nil {
			return written, fmt.Errorf("download %s: %w", child.Path, err)
		}
	}
	return written, nil
}
