// Package documents keeps the overlay of remote files currently open
// for editing: in-memory buffers with dirty/clean state, a disk-backed
// resiliency cache, and change notifications.
package documents

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"time"
)

// Handle identifies an open document. It is a deterministic encoding
// of (remote path, display name): two opens of the same pair yield the
// same handle. Callers treat it as opaque.
type Handle string

// NewHandle builds the handle for a remote path and display name.
func NewHandle(remotePath, displayName string) Handle {
	v := url.Values{}
	v.Set("path", remotePath)
	v.Set("name", displayName)
	return Handle(v.Encode())
}

// RemotePath returns the remote path encoded in the handle.
func (h Handle) RemotePath() string {
	v, err := url.ParseQuery(string(h))
	if err != nil {
		return ""
	}
	return v.Get("path")
}

// DisplayName returns the display name encoded in the handle.
func (h Handle) DisplayName() string {
	v, err := url.ParseQuery(string(h))
	if err != nil {
		return ""
	}
	return v.Get("name")
}

// cacheKey is the stable hash naming this handle's disk cache file.
func (h Handle) cacheKey() string {
	sum := sha256.Sum256([]byte(h))
	return hex.EncodeToString(sum[:])
}

// Document is an in-memory, editable representation of a remote file.
// Content is owned exclusively by the overlay; accessors hand out
// copies.
type Document struct {
	RemotePath  string
	DisplayName string
	Content     []byte
	Dirty       bool
	CreatedAt   time.Time
	ModifiedAt  time.Time
}

// Handle returns the document's identity.
func (d *Document) Handle() Handle {
	return NewHandle(d.RemotePath, d.DisplayName)
}

// Size returns the buffer length in bytes.
func (d *Document) Size() int64 {
	return int64(len(d.Content))
}

func (d *Document) clone() Document {
	copied := *d
	copied.Content = append([]byte(nil), d.Content...)
	return copied
}
