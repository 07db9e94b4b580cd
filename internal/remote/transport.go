package remote

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// Transport is the protocol surface the client consumes. DeleteDirectoryShallow
// is only valid on an empty directory; recursive emptying is the
// caller's job.
type Transport interface {
	ListDirectory(ctx context.Context, path string) ([]Entry, error)
	Stat(ctx context.Context, path string) (Entry, error)
	GetContent(ctx context.Context, path string) ([]byte, error)
	PutContent(ctx context.Context, path string, data []byte, overwrite bool) error
	DeleteFile(ctx context.Context, path string) error
	DeleteDirectoryShallow(ctx context.Context, path string) error
	CreateDirectory(ctx context.Context, path string, recursive bool) error
}

// davTransport talks WebDAV over HTTP: PROPFIND for listings and
// stats, GET/PUT for content, DELETE and MKCOL for tree mutations.
type davTransport struct {
	endpoint *url.URL
	username string
	password string
	hc       *http.Client
}

func newDavTransport(endpoint *url.URL, username, password string) *davTransport {
	return &davTransport{
		endpoint: endpoint,
		username: username,
		password: password,
		hc: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

func (t *davTransport) ListDirectory(ctx context.Context, dir string) ([]Entry, error) {
	ms, err := t.propfind(ctx, "list", dir, "1")
	if err != nil {
		return nil, err
	}
	self := strings.TrimSuffix(dir, "/")
	if self == "" {
		self = "/"
	}
	var entries []Entry
	for _, r := range ms.Responses {
		p := t.hrefToPath(r.Href)
		if p == "" {
			continue
		}
		prop, ok := r.okProp()
		if !ok {
			continue
		}
		// A PROPFIND on a plain file answers with just the file itself.
		if p == self {
			if !prop.isDir() {
				return nil, &Error{Kind: KindPathMismatch, Op: "list", Path: dir,
					Err: fmt.Errorf("not a directory")}
			}
			continue
		}
		entries = append(entries, entryFromProp(p, prop))
	}
	return entries, nil
}

func (t *davTransport) Stat(ctx context.Context, p string) (Entry, error) {
	ms, err := t.propfind(ctx, "stat", p, "0")
	if err != nil {
		return Entry{}, err
	}
	for _, r := range ms.Responses {
		prop, ok := r.okProp()
		if !ok {
			continue
		}
		return entryFromProp(cleanPath(p), prop), nil
	}
	return Entry{}, &Error{Kind: KindNotFound, Op: "stat", Path: p, Status: http.StatusNotFound}
}

func (t *davTransport) GetContent(ctx context.Context, p string) ([]byte, error) {
	resp, err := t.do(ctx, "read", http.MethodGet, p, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, classifyStatus("read", p, resp.StatusCode, snippet(resp.Body))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport("read", p, err)
	}
	return data, nil
}

func (t *davTransport) PutContent(ctx context.Context, p string, data []byte, overwrite bool) error {
	if !overwrite {
		_, err := t.Stat(ctx, p)
		if err == nil {
			return &Error{Kind: KindConflict, Op: "write", Path: p,
				Err: fmt.Errorf("destination exists and overwrite is disabled")}
		}
		if !IsNotFound(err) {
			return err
		}
	}
	hdr := map[string]string{"Content-Type": "application/octet-stream"}
	resp, err := t.do(ctx, "write", http.MethodPut, p, bytes.NewReader(data), hdr)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode >= 400 {
		return classifyStatus("write", p, resp.StatusCode, snippet(resp.Body))
	}
	return nil
}

func (t *davTransport) DeleteFile(ctx context.Context, p string) error {
	resp, err := t.do(ctx, "delete", http.MethodDelete, p, nil, nil)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode >= 400 {
		return classifyStatus("delete", p, resp.StatusCode, snippet(resp.Body))
	}
	return nil
}

// DeleteDirectoryShallow refuses to remove a non-empty directory even
// though WebDAV DELETE on a collection is recursive, so recursive
// removal stays under the caller's control.
func (t *davTransport) DeleteDirectoryShallow(ctx context.Context, p string) error {
	children, err := t.ListDirectory(ctx, p)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return &Error{Kind: KindConflict, Op: "rmdir", Path: p,
			Err: fmt.Errorf("directory not empty")}
	}
	resp, err := t.do(ctx, "rmdir", http.MethodDelete, p, nil, nil)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode >= 400 {
		return classifyStatus("rmdir", p, resp.StatusCode, snippet(resp.Body))
	}
	return nil
}

func (t *davTransport) CreateDirectory(ctx context.Context, p string, recursive bool) error {
	if !recursive {
		return t.mkcol(ctx, p)
	}
	segments := strings.Split(strings.Trim(cleanPath(p), "/"), "/")
	current := ""
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		current += "/" + seg
		if err := t.mkcol(ctx, current); err != nil && !IsConflict(err) {
			return err
		}
	}
	return nil
}

// mkcol creates a single collection. An existing collection answers
// 405, a missing parent 409; both classify as Conflict.
func (t *davTransport) mkcol(ctx context.Context, p string) error {
	resp, err := t.do(ctx, "mkdir", "MKCOL", p, nil, nil)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode >= 400 {
		return classifyStatus("mkdir", p, resp.StatusCode, snippet(resp.Body))
	}
	return nil
}

func (t *davTransport) propfind(ctx context.Context, op, p, depth string) (*multiStatus, error) {
	hdr := map[string]string{
		"Depth":        depth,
		"Content-Type": "application/xml; charset=utf-8",
	}
	resp, err := t.do(ctx, op, "PROPFIND", p, strings.NewReader(propfindBody), hdr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMultiStatus && resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(op, p, resp.StatusCode, snippet(resp.Body))
	}
	var ms multiStatus
	if err := xml.NewDecoder(resp.Body).Decode(&ms); err != nil {
		return nil, &Error{Kind: KindUnknown, Op: op, Path: p,
			Err: fmt.Errorf("decode multistatus: %w", err)}
	}
	return &ms, nil
}

// do builds, authenticates and executes one request. Request-level
// failures come back classified; HTTP statuses are the caller's to
// judge.
func (t *davTransport) do(ctx context.Context, op, method, p string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, t.url(p), body)
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Op: op, Path: p, Err: err}
	}
	if t.username != "" {
		req.SetBasicAuth(t.username, t.password)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := t.hc.Do(req)
	if err != nil {
		return nil, classifyTransport(op, p, err)
	}
	return resp, nil
}

// url joins a remote path onto the endpoint, escaping per segment.
func (t *davTransport) url(remotePath string) string {
	u := *t.endpoint
	u.Path = path.Join("/", t.endpoint.Path, remotePath)
	return u.String()
}

// hrefToPath maps a multistatus href back to a remote path relative to
// the endpoint. Hrefs may be absolute URLs or server-rooted paths.
func (t *davTransport) hrefToPath(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	p := strings.TrimSuffix(u.Path, "/")
	base := strings.TrimSuffix(t.endpoint.Path, "/")
	if base != "" && strings.HasPrefix(p, base) {
		p = p[len(base):]
	}
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func entryFromProp(p string, prop davProp) Entry {
	size := prop.Length
	if prop.isDir() || size < 0 {
		size = 0
	}
	return Entry{
		Path:    p,
		IsDir:   prop.isDir(),
		Size:    size,
		ModTime: parseDavTime(prop.Modified),
	}
}

// cleanPath normalizes a remote path to absolute form with no
// trailing slash except at the root.
func cleanPath(p string) string {
	return path.Clean("/" + p)
}

func snippet(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(data))
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
