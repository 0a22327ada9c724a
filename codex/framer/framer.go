// Package framer splits a byte stream into JSON objects. Objects may arrive split
// across reads or several to one read; the keepalive token may appear between
// objects and is discarded.
package framer

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// Keepalive is the token written by idle stream writers to probe the connection.
const Keepalive = "ping"

// DefaultMaxSize caps the bytes buffered for a single incomplete object.
const DefaultMaxSize = 1 << 20

var (
	// ErrFrameTooLarge is returned when buffered input exceeds the size cap.
	ErrFrameTooLarge = errors.New("framer: frame exceeds maximum size")
	// ErrMalformed is returned when buffered input can never become a JSON object.
	ErrMalformed = errors.New("framer: malformed stream")
)

// Framer accumulates stream chunks. It is not safe for concurrent use.
type Framer struct {
	MaxSize int

	buf []byte
}

// New returns a framer with the given cap; a non-positive cap uses DefaultMaxSize.
func New(maxSize int) *Framer {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Framer{MaxSize: maxSize}
}

// Pending reports the number of buffered bytes not yet emitted.
func (f *Framer) Pending() int { return len(f.buf) }

// Feed appends chunk and returns every complete object now available, in order.
// After an error the framer must not be used again.
func (f *Framer) Feed(chunk []byte) ([]json.RawMessage, error) {
	f.buf = append(f.buf, chunk...)
	var out []json.RawMessage
	for {
		f.buf = trimLeftSpace(f.buf)
		if len(f.buf) == 0 {
			f.buf = nil
			return out, nil
		}
		if f.buf[0] != '{' {
			switch {
			case bytes.HasPrefix(f.buf, []byte(Keepalive)):
				f.buf = f.buf[len(Keepalive):]
				continue
			case bytes.HasPrefix([]byte(Keepalive), f.buf):
				return out, nil
			default:
				return out, ErrMalformed
			}
		}

		dec := json.NewDecoder(bytes.NewReader(f.buf))
		var raw json.RawMessage
		err := dec.Decode(&raw)
		switch {
		case err == nil:
			n := int(dec.InputOffset())
			obj := make(json.RawMessage, n)
			copy(obj, f.buf[:n])
			out = append(out, obj)
			f.buf = f.buf[n:]
		case errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF):
			if len(f.buf) > f.MaxSize {
				return out, ErrFrameTooLarge
			}
			return out, nil
		default:
			return out, ErrMalformed
		}
	}
}

func trimLeftSpace(b []byte) []byte {
	for len(b) > 0 {
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			b = b[1:]
		default:
			return b
		}
	}
	return b
}

// Reader pulls objects from an io.Reader through a Framer.
type Reader struct {
	r     io.Reader
	f     *Framer
	queue []json.RawMessage
	chunk []byte
	err   error
}

// NewReader wraps r. maxSize follows New.
func NewReader(r io.Reader, maxSize int) *Reader {
	return &Reader{r: r, f: New(maxSize), chunk: make([]byte, 32*1024)}
}

// Pending reports bytes read but not yet returned as an object.
func (r *Reader) Pending() int { return r.f.Pending() }

// Next returns the next object. Objects completed before a read or framing error
// are still returned; the error is reported once they are drained. At end of
// stream an incomplete trailing object is discarded and io.EOF returned.
func (r *Reader) Next() (json.RawMessage, error) {
	for len(r.queue) == 0 {
		if r.err != nil {
			return nil, r.err
		}
		n, err := r.r.Read(r.chunk)
		if n > 0 {
			objs, ferr := r.f.Feed(r.chunk[:n])
			r.queue = append(r.queue, objs...)
			if ferr != nil {
				r.err = ferr
				continue
			}
		}
		if err != nil {
			r.err = err
		}
	}
	msg := r.queue[0]
	r.queue = r.queue[1:]
	return msg, nil
}
