// Package netio provides the reconnecting, abortable network transports
// the demuxer plugs in for schemes the media library has no native
// protocol handler for. It implements spec.md's "network inputs...
// enable reconnect and set an I/O read-write timeout (5 seconds default)"
// and "register an abort callback the library polls" behaviors as a
// plain io.ReadWriteCloser any custom-IO hook can sit on top of.
package netio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync/atomic"
	"time"
)

// ErrAborted is returned from a blocked Read/Write once Abort is called,
// so avformat's interrupt callback contract is satisfied promptly.
var ErrAborted = errors.New("netio: aborted")

// ErrUnsupportedScheme is returned when no backend understands a URL.
var ErrUnsupportedScheme = errors.New("netio: unsupported scheme")

// Backend opens a scheme-specific connection to the given URL.
type Backend interface {
	Dial(ctx context.Context, u *url.URL, timeout time.Duration) (io.ReadWriteCloser, error)
	Scheme() string
}

var backends = map[string]Backend{}

// Register makes a Backend available under its scheme (e.g. "srt", "quic").
// Called from each backend's package init.
func Register(b Backend) {
	backends[b.Scheme()] = b
}

// Reconnector wraps a Backend with the demuxer's reconnect/abort/timeout
// contract: unconditional reconnect on read error (when enabled), a fixed
// read/write timeout, and an atomic abort flag polled the way an
// AVIOInterruptCB polls one.
type Reconnector struct {
	backend   Backend
	url       *url.URL
	timeout   time.Duration
	reconnect bool

	aborted atomic.Bool
	conn    io.ReadWriteCloser
}

// NewReconnector resolves rawURL against the registered backend for its
// scheme and returns a Reconnector ready to Open.
func NewReconnector(rawURL string, timeout time.Duration, reconnect bool) (*Reconnector, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("netio: parse url: %w", err)
	}
	b, ok := backends[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}
	return &Reconnector{backend: b, url: u, timeout: timeout, reconnect: reconnect}, nil
}

// InterruptCallback is polled by the media library's blocking I/O calls;
// it returns non-zero once abort is requested so reads/writes unwind
// promptly, matching the abort-callback contract in spec.md §4.1/§5.
func (r *Reconnector) InterruptCallback() int {
	if r.aborted.Load() {
		return 1
	}
	return 0
}

// Abort marks the transport aborted and closes the underlying connection
// so any in-flight blocking read/write returns immediately.
func (r *Reconnector) Abort() {
	r.aborted.Store(true)
	if r.conn != nil {
		r.conn.Close()
	}
}

func (r *Reconnector) dial() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	conn, err := r.backend.Dial(ctx, r.url, r.timeout)
	if err != nil {
		return err
	}
	r.conn = conn
	return nil
}

// Read implements io.Reader, reconnecting once and only once per call when
// reconnect is enabled and the read fails for a reason other than abort.
func (r *Reconnector) Read(p []byte) (int, error) {
	if r.aborted.Load() {
		return 0, ErrAborted
	}
	if r.conn == nil {
		if err := r.dial(); err != nil {
			return 0, err
		}
	}
	n, err := r.conn.Read(p)
	if err != nil && r.reconnect && !r.aborted.Load() {
		r.conn.Close()
		r.conn = nil
		if dialErr := r.dial(); dialErr == nil {
			return r.conn.Read(p)
		}
	}
	if r.aborted.Load() {
		return n, ErrAborted
	}
	return n, err
}

// Write implements io.Writer (used only by push-mode transports).
func (r *Reconnector) Write(p []byte) (int, error) {
	if r.aborted.Load() {
		return 0, ErrAborted
	}
	if r.conn == nil {
		if err := r.dial(); err != nil {
			return 0, err
		}
	}
	return r.conn.Write(p)
}

// Close releases the underlying connection.
func (r *Reconnector) Close() error {
	r.aborted.Store(true)
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
