//go:build avpipe

package netio

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/zsiec/srtgo"
)

// srtBackend dials srt:// network inputs, the low-latency contribution
// transport SRT sources typically arrive over.
type srtBackend struct{}

func init() {
	Register(srtBackend{})
}

func (srtBackend) Scheme() string { return "srt" }

func (srtBackend) Dial(ctx context.Context, u *url.URL, timeout time.Duration) (io.ReadWriteCloser, error) {
	host := u.Hostname()
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return nil, fmt.Errorf("netio: srt: invalid port in %q: %w", u.String(), err)
	}

	opts := map[string]string{
		"transtype": "live",
	}
	if q := u.Query().Get("latency"); q != "" {
		opts["latency"] = q
	}
	if q := u.Query().Get("streamid"); q != "" {
		opts["streamid"] = q
	}

	sock := srtgo.NewSrtSocket(host, uint16(port), opts)

	done := make(chan error, 1)
	go func() { done <- sock.Connect() }()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("netio: srt: connect %s: %w", u.String(), err)
		}
	case <-ctx.Done():
		sock.Close()
		return nil, fmt.Errorf("netio: srt: connect %s: %w", u.String(), ctx.Err())
	}

	return &srtConn{sock: sock}, nil
}

// srtConn adapts srtgo.SrtSocket to io.ReadWriteCloser.
type srtConn struct {
	sock *srtgo.SrtSocket
}

func (c *srtConn) Read(p []byte) (int, error)  { return c.sock.Read(p) }
func (c *srtConn) Write(p []byte) (int, error) { return c.sock.Write(p) }
func (c *srtConn) Close() error                { return c.sock.Close() }
