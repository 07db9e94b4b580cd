// Package mirror keeps a local directory tree in sync with the remote
// base path: periodic full passes, plus per-document syncs driven by
// save events.
package mirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/OllieHu/webdav-markdown-manager/internal/events"
	"github.com/OllieHu/webdav-markdown-manager/internal/logging"
	"github.com/OllieHu/webdav-markdown-manager/internal/metrics"
	"github.com/OllieHu/webdav-markdown-manager/internal/paths"
	"github.com/OllieHu/webdav-markdown-manager/internal/remote"
	"github.com/OllieHu/webdav-markdown-manager/internal/retry"
)

// Result aggregates one sync pass. Every file counts exactly once.
type Result struct {
	Synced int
	Failed int
}

// Syncer mirrors the remote tree below the base path into a local
// root. The remote store stays the source of truth; the mirror is
// download-only.
type Syncer struct {
	client    *remote.Client
	bus       *events.Broadcaster
	localRoot string
	retryCfg  retry.Config
}

// NewSyncer returns a syncer writing under localRoot. bus may be nil
// when save-triggered syncing is not wanted.
func NewSyncer(client *remote.Client, bus *events.Broadcaster, localRoot string) *Syncer {
	cfg := retry.DefaultConfig()
	cfg.InitialWait = 500 * time.Millisecond
	cfg.MaxWait = 5 * time.Second
	cfg.RetryIf = remote.IsTransient
	return &Syncer{
		client:    client,
		bus:       bus,
		localRoot: localRoot,
		retryCfg:  cfg,
	}
}

// LocalRoot returns the mirror's target directory.
func (s *Syncer) LocalRoot() string { return s.localRoot }

// SyncAll mirrors the whole base path. Files fail independently: a
// broken download is counted and logged, the pass continues.
func (s *Syncer) SyncAll(ctx context.Context) (Result, error) {
	start := time.Now()
	var res Result
	err := s.syncDir(ctx, s.client.BasePath(), &res)
	metrics.RecordSyncPass(time.Since(start), err == nil && res.Failed == 0)
	if err != nil {
		return res, err
	}
	logging.Info("sync pass finished",
		zap.Int("synced", res.Synced),
		zap.Int("failed", res.Failed),
		zap.Duration("took", time.Since(start)))
	return res, nil
}

func (s *Syncer) syncDir(ctx context.Context, remoteDir string, res *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rel, ok := paths.RelativeTo(remoteDir, s.client.BasePath())
	if !ok {
		rel = "/" + paths.Base(remoteDir)
	}
	if err := os.MkdirAll(paths.LocalPath(s.localRoot, rel), 0o755); err != nil {
		return fmt.Errorf("mirror dir %s: %w", remoteDir, err)
	}
	entries, err := s.client.List(ctx, remoteDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir {
			if err := s.syncDir(ctx, e.Path, res); err != nil {
				return err
			}
			continue
		}
		if err := s.SyncFile(ctx, e.Path); err != nil {
			res.Failed++
			logging.Error("sync failed", zap.String("path", e.Path), zap.Error(err))
			continue
		}
		res.Synced++
	}
	return nil
}

// SyncFile downloads one file into the mirror, retrying transient
// failures with backoff.
func (s *Syncer) SyncFile(ctx context.Context, remotePath string) error {
	data, err := retry.DoWithResult(ctx, s.retryCfg, func() ([]byte, error) {
		return s.client.ReadBinary(ctx, remotePath)
	})
	if err != nil {
		metrics.RecordSyncFile(false)
		return err
	}
	rel, ok := paths.RelativeTo(remotePath, s.client.BasePath())
	if !ok {
		logging.Warn("path outside the base path, mirroring by name",
			zap.String("path", remotePath))
		rel = "/" + paths.Base(remotePath)
	}
	local := paths.SafeLocalPath(s.localRoot, rel)
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		metrics.RecordSyncFile(false)
		return err
	}
	if err := os.WriteFile(local, data, 0o644); err != nil {
		metrics.RecordSyncFile(false)
		return err
	}
	metrics.RecordSyncFile(true)
	return nil
}

// Run blocks until ctx is done: one pass up front, another every
// interval, and when onSave is set each saved document is mirrored the
// moment its event arrives.
func (s *Syncer) Run(ctx context.Context, interval time.Duration, onSave bool) error {
	var ch chan events.Event
	if onSave && s.bus != nil {
		ch = s.bus.Subscribe()
		defer s.bus.Unsubscribe(ch)
	}

	if _, err := s.SyncAll(ctx); err != nil {
		logging.Error("initial sync pass failed", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.SyncAll(ctx); err != nil {
				logging.Error("sync pass failed", zap.Error(err))
			}
		case ev := <-ch:
			if ev.Type != events.EventSaved {
				continue
			}
			if err := s.SyncFile(ctx, ev.Path); err != nil {
				logging.Error("save sync failed",
					zap.String("path", ev.Path), zap.Error(err))
			}
		}
	}
}
