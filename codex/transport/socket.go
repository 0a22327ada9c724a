package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/codex-sync/codex/framer"
)

const defaultWriteWait = 10 * time.Second

// SocketOptions tunes a stream socket connection.
type SocketOptions struct {
	SendQueue int
	// MaxFrame caps a single inbound object; zero uses framer.DefaultMaxSize.
	MaxFrame int
	// ProbeInterval writes the keepalive token when nothing else was written for
	// that long. Zero disables probing.
	ProbeInterval time.Duration
	WriteWait     time.Duration
}

// SocketConn frames JSON objects over a byte stream, one object per line.
type SocketConn struct {
	*base
	conn net.Conn
	opts SocketOptions

	lastWrite atomic.Int64
}

// NewSocketConn wraps an established stream connection. Call Start after
// registering handlers.
func NewSocketConn(c net.Conn, opts SocketOptions) *SocketConn {
	if opts.WriteWait <= 0 {
		opts.WriteWait = defaultWriteWait
	}
	s := &SocketConn{conn: c, opts: opts}
	s.base = newBase(c.RemoteAddr().String(), opts.SendQueue, c.Close)
	return s
}

func (s *SocketConn) Start() {
	if !s.startDelivery() {
		return
	}
	go s.writeLoop()
	go s.readLoop()
}

func (s *SocketConn) readLoop() {
	defer func() { _ = s.Close() }()
	r := framer.NewReader(s.conn, s.opts.MaxFrame)
	for {
		msg, err := r.Next()
		if err != nil {
			switch {
			case errors.Is(err, framer.ErrFrameTooLarge), errors.Is(err, framer.ErrMalformed):
				log.Warn().Err(err).Str("remote", s.remote).Msg("[socket] framing error")
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				if n := r.Pending(); n > 0 {
					log.Debug().Int("bytes", n).Str("remote", s.remote).Msg("[socket] discarding partial frame")
				}
			default:
				log.Debug().Err(err).Str("remote", s.remote).Msg("[socket] read")
			}
			return
		}
		if !s.deliver(msg) {
			return
		}
	}
}

func (s *SocketConn) writeLoop() {
	defer func() { _ = s.Close() }()
	w := bufio.NewWriter(s.conn)

	var probe <-chan time.Time
	if s.opts.ProbeInterval > 0 {
		ticker := time.NewTicker(s.opts.ProbeInterval)
		defer ticker.Stop()
		probe = ticker.C
	}
	s.lastWrite.Store(time.Now().UnixNano())

	write := func(b []byte) error {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
		if _, err := w.Write(b); err != nil {
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
		if err := w.Flush(); err != nil {
			return err
		}
		s.lastWrite.Store(time.Now().UnixNano())
		return nil
	}

	for {
		select {
		case <-s.done:
			return
		case payload := <-s.out:
			if err := write(payload); err != nil {
				log.Debug().Err(err).Str("remote", s.remote).Msg("[socket] write")
				return
			}
		case now := <-probe:
			idle := now.Sub(time.Unix(0, s.lastWrite.Load()))
			if idle < s.opts.ProbeInterval {
				continue
			}
			if err := write([]byte(framer.Keepalive)); err != nil {
				log.Debug().Err(err).Str("remote", s.remote).Msg("[socket] probe")
				return
			}
		}
	}
}

// socketListener accepts stream connections.
type socketListener struct {
	ln   net.Listener
	opts SocketOptions
}

// ListenSocket listens for stream clients on addr.
func ListenSocket(addr string, opts SocketOptions) (Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen socket %s: %w", addr, err)
	}
	return &socketListener{ln: ln, opts: opts}, nil
}

func (l *socketListener) Accept() (Conn, error) {
	c, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return NewSocketConn(c, l.opts), nil
}

func (l *socketListener) Close() error { return l.ln.Close() }
func (l *socketListener) Addr() string { return l.ln.Addr().String() }

// DialSocket connects to a socket server.
func DialSocket(ctx context.Context, addr string, opts SocketOptions) (*SocketConn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &DialError{Transport: "socket", Stage: "dial", Err: err}
	}
	return NewSocketConn(c, opts), nil
}

// DialError reports which step of connection establishment failed.
type DialError struct {
	Transport string
	Stage     string
	Err       error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Transport, e.Stage, e.Err)
}

func (e *DialError) Unwrap() error { return e.Err }
