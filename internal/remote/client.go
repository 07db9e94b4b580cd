// Package remote implements the WebDAV store client: session
// management, listing, content transfer and tree deletion, with
// classified errors and fixed per-operation deadlines.
package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/OllieHu/webdav-markdown-manager/internal/logging"
	"github.com/OllieHu/webdav-markdown-manager/internal/metrics"
	"github.com/OllieHu/webdav-markdown-manager/internal/paths"
)

// Fixed deadlines per operation class. Metadata calls answer fast or
// not at all; content transfers get longer.
const (
	metadataTimeout = 10 * time.Second
	contentTimeout  = 30 * time.Second
	connectTimeout  = 30 * time.Second
)

const hiddenPrefix = "."

// Client is the single point of truth for the connection state and
// the remote tree. All methods classify failures (see Kind) and
// propagate them unchanged; the only self-healing retries are
// create-missing-parent on Write and create-base-path on Connect.
type Client struct {
	mu         sync.RWMutex
	transport  Transport
	session    *Session
	connecting singleflight.Group
}

// NewClient returns a disconnected client.
func NewClient() *Client { return &Client{} }

// Connect validates the server URL, probes the base path and installs
// the session. A 404 on the probe creates the base path once before
// giving up. Concurrent calls while one connect is in flight receive
// the in-flight result. Success replaces any existing session
// atomically; failure leaves the client disconnected.
func (c *Client) Connect(ctx context.Context, serverURL, username, password, basePath string) error {
	serverURL = strings.TrimRight(serverURL, "/")
	if !strings.HasPrefix(serverURL, "http://") && !strings.HasPrefix(serverURL, "https://") {
		return fmt.Errorf("server URL %q must start with http:// or https://", serverURL)
	}
	endpoint, err := url.Parse(serverURL)
	if err != nil {
		return fmt.Errorf("parse server URL: %w", err)
	}
	base := cleanPath(basePath)

	_, err, _ = c.connecting.Do("connect", func() (interface{}, error) {
		t := newDavTransport(endpoint, username, password)
		probeCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()

		_, probeErr := t.ListDirectory(probeCtx, base)
		if IsNotFound(probeErr) {
			logging.Info("base path missing, creating it", zap.String("path", base))
			if probeErr = t.CreateDirectory(probeCtx, base, true); probeErr == nil {
				_, probeErr = t.ListDirectory(probeCtx, base)
			}
		}
		if probeErr != nil {
			c.mu.Lock()
			c.transport, c.session = nil, nil
			c.mu.Unlock()
			logging.Error("connect failed",
				zap.String("server", serverURL), zap.Error(probeErr))
			return nil, probeErr
		}

		s := &Session{
			ID:          uuid.NewString(),
			ServerURL:   serverURL,
			BasePath:    base,
			Username:    username,
			ConnectedAt: time.Now(),
		}
		c.mu.Lock()
		c.transport, c.session = t, s
		c.mu.Unlock()
		logging.Info("connected",
			zap.String("server", serverURL),
			zap.String("base", base),
			zap.String("session", s.ID))
		return nil, nil
	})
	return err
}

// Disconnect drops the session. Open documents are the overlay's
// responsibility.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		logging.Info("disconnected", zap.String("session", c.session.ID))
	}
	c.transport, c.session = nil, nil
}

// Connected reports whether a session is active.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session != nil
}

// Session returns a copy of the active session.
func (c *Client) Session() (Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// BasePath returns the configured base path, "/" when disconnected.
func (c *Client) BasePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return "/"
	}
	return c.session.BasePath
}

func (c *Client) current() (Transport, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.transport == nil {
		return nil, ErrNotConnected
	}
	return c.transport, nil
}

// List returns the directory's entries with hidden names filtered out,
// directories first and case-insensitive name order within each kind.
func (c *Client) List(ctx context.Context, p string) ([]Entry, error) {
	entries, err := c.ListAll(ctx, p)
	if err != nil {
		return nil, err
	}
	filtered := entries[:0]
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), hiddenPrefix) {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered, nil
}

// ListAll is List without the hidden filter. Recursive copy and
// deletion go through it so they see the true tree, not the browsing
// view.
func (c *Client) ListAll(ctx context.Context, p string) ([]Entry, error) {
	t, err := c.current()
	if err != nil {
		return nil, err
	}
	opCtx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	start := time.Now()
	entries, err := t.ListDirectory(opCtx, cleanPath(p))
	metrics.RecordRemoteOperation("list", time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}
	SortEntries(entries)
	return entries, nil
}

// Stat returns the entry at path.
func (c *Client) Stat(ctx context.Context, p string) (Entry, error) {
	t, err := c.current()
	if err != nil {
		return Entry{}, err
	}
	opCtx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	start := time.Now()
	entry, err := t.Stat(opCtx, cleanPath(p))
	metrics.RecordRemoteOperation("stat", time.Since(start), err == nil)
	return entry, err
}

// Read fetches content and reports whether it looks like text.
// Callers that need exact bytes regardless use ReadBinary.
func (c *Client) Read(ctx context.Context, p string) (data []byte, isText bool, err error) {
	data, err = c.ReadBinary(ctx, p)
	if err != nil {
		return nil, false, err
	}
	return data, isTextContent(data), nil
}

// ReadBinary fetches exact content bytes.
func (c *Client) ReadBinary(ctx context.Context, p string) ([]byte, error) {
	t, err := c.current()
	if err != nil {
		return nil, err
	}
	opCtx, cancel := context.WithTimeout(ctx, contentTimeout)
	defer cancel()
	start := time.Now()
	data, err := t.GetContent(opCtx, cleanPath(p))
	metrics.RecordRemoteOperation("read", time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}
	metrics.RecordDownload(int64(len(data)))
	return data, nil
}

// Write pushes content. When the immediate parent chain is missing the
// write heals it once: create the ancestors, then retry the put.
func (c *Client) Write(ctx context.Context, p string, content []byte, overwrite bool) error {
	t, err := c.current()
	if err != nil {
		return err
	}
	p = cleanPath(p)
	start := time.Now()
	err = c.put(ctx, t, p, content, overwrite)
	if err != nil && missingParent(err) {
		logging.Info("parent missing on write, creating ancestors",
			zap.String("path", p))
		mkCtx, cancel := context.WithTimeout(ctx, metadataTimeout)
		if mkErr := t.CreateDirectory(mkCtx, paths.Parent(p), true); mkErr != nil {
			cancel()
			metrics.RecordRemoteOperation("write", time.Since(start), false)
			return mkErr
		}
		cancel()
		err = c.put(ctx, t, p, content, overwrite)
	}
	metrics.RecordRemoteOperation("write", time.Since(start), err == nil)
	if err != nil {
		return err
	}
	metrics.RecordUpload(int64(len(content)))
	return nil
}

func (c *Client) put(ctx context.Context, t Transport, p string, content []byte, overwrite bool) error {
	opCtx, cancel := context.WithTimeout(ctx, contentTimeout)
	defer cancel()
	return t.PutContent(opCtx, p, content, overwrite)
}

// missingParent reports whether a write failed because an ancestor
// directory does not exist: servers answer 409, some 404. An
// exists-and-no-overwrite conflict carries no HTTP status and stays
// fatal.
func missingParent(err error) bool {
	e, ok := AsError(err)
	return ok && (e.Status == http.StatusNotFound || e.Status == http.StatusConflict)
}

// DeleteFile removes a single file.
func (c *Client) DeleteFile(ctx context.Context, p string) error {
	t, err := c.current()
	if err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	start := time.Now()
	err = t.DeleteFile(opCtx, cleanPath(p))
	metrics.RecordRemoteOperation("delete", time.Since(start), err == nil)
	return err
}

// DeleteTree removes a directory recursively: files directly,
// sub-directories through itself, then the emptied directory. A child
// failure aborts the remainder and leaves the partial state as-is.
func (c *Client) DeleteTree(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := c.ListAll(ctx, p)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir {
			err = c.DeleteTree(ctx, e.Path)
		} else {
			err = c.DeleteFile(ctx, e.Path)
		}
		if err != nil {
			return fmt.Errorf("delete %s: %w", e.Path, err)
		}
	}
	return c.DeleteEmptyDir(ctx, p)
}

// DeleteEmptyDir removes a directory that has no children left.
func (c *Client) DeleteEmptyDir(ctx context.Context, p string) error {
	t, err := c.current()
	if err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	start := time.Now()
	err = t.DeleteDirectoryShallow(opCtx, cleanPath(p))
	metrics.RecordRemoteOperation("rmdir", time.Since(start), err == nil)
	return err
}

// Mkdir creates a single directory. The call is not idempotent:
// callers needing create-if-missing stat first.
func (c *Client) Mkdir(ctx context.Context, p string) error {
	t, err := c.current()
	if err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	start := time.Now()
	err = t.CreateDirectory(opCtx, cleanPath(p), false)
	metrics.RecordRemoteOperation("mkdir", time.Since(start), err == nil)
	return err
}

// isTextContent sniffs whether bytes are editable text.
func isTextContent(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}
