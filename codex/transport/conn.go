// Package transport carries encoded messages between the server and its clients.
// Every adapter presents the same Conn contract: a non-blocking bounded Send, ordered
// delivery of inbound messages on a dedicated goroutine, and close notification.
package transport

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"sync/atomic"
)

const (
	// DefaultSendQueue is the outbound buffer of each connection.
	DefaultSendQueue = 64
	inboundQueue     = 256
)

var (
	// ErrClosed is returned by Send on a closed connection.
	ErrClosed = errors.New("transport: connection closed")
	// ErrSendQueueFull is returned by Send when the peer is not draining its queue.
	ErrSendQueueFull = errors.New("transport: send queue full")
)

// Conn is one bidirectional message channel.
type Conn interface {
	ID() string
	// Send enqueues one encoded message without blocking.
	Send(payload []byte) error
	// OnMessage registers a handler for inbound messages. Handlers registered
	// before Start see every message, in arrival order, each exactly once.
	OnMessage(func(payload []byte))
	// OnArrival registers a callback run on the reading goroutine as each
	// message arrives, before it waits behind the message handlers.
	OnArrival(func())
	// OnClose registers a handler run once after the connection closes.
	OnClose(func())
	// Start begins reading and delivering.
	Start()
	// Close is idempotent.
	Close() error
	RemoteAddr() string
}

// Listener accepts connections of one transport.
type Listener interface {
	Accept() (Conn, error)
	Close() error
	Addr() string
}

func newID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// base implements the queueing and callback plumbing shared by the adapters.
// Adapters feed inbound payloads through deliver and drain outbound through out.
type base struct {
	id     string
	remote string

	out chan []byte
	in  chan []byte

	mu       sync.Mutex
	handlers []func([]byte)
	arrival  []func()
	onClose  []func()
	fired    bool

	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
	started   atomic.Bool
	closeFn   func() error
}

func newBase(remote string, sendQueue int, closeFn func() error) *base {
	if sendQueue <= 0 {
		sendQueue = DefaultSendQueue
	}
	return &base{
		id:      newID(),
		remote:  remote,
		out:     make(chan []byte, sendQueue),
		in:      make(chan []byte, inboundQueue),
		done:    make(chan struct{}),
		closeFn: closeFn,
	}
}

func (b *base) ID() string         { return b.id }
func (b *base) RemoteAddr() string { return b.remote }

func (b *base) Send(payload []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}
	select {
	case <-b.done:
		return ErrClosed
	case b.out <- payload:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (b *base) OnMessage(fn func([]byte)) {
	b.mu.Lock()
	b.handlers = append(b.handlers, fn)
	b.mu.Unlock()
}

func (b *base) OnArrival(fn func()) {
	b.mu.Lock()
	b.arrival = append(b.arrival, fn)
	b.mu.Unlock()
}

func (b *base) OnClose(fn func()) {
	b.mu.Lock()
	if b.fired {
		b.mu.Unlock()
		go fn()
		return
	}
	b.onClose = append(b.onClose, fn)
	b.mu.Unlock()
}

// startDelivery runs the delivery goroutine once.
func (b *base) startDelivery() bool {
	if !b.started.CompareAndSwap(false, true) {
		return false
	}
	go b.deliverLoop()
	return true
}

func (b *base) deliverLoop() {
	for {
		select {
		case <-b.done:
			return
		case payload := <-b.in:
			b.mu.Lock()
			handlers := append([]func([]byte){}, b.handlers...)
			b.mu.Unlock()
			for _, h := range handlers {
				h(payload)
			}
		}
	}
}

// deliver hands one inbound payload to the delivery goroutine. It blocks while the
// handlers are behind, which applies backpressure to the reader. Arrival
// callbacks run first.
func (b *base) deliver(payload []byte) bool {
	b.mu.Lock()
	arrival := b.arrival
	b.mu.Unlock()
	for _, fn := range arrival {
		fn()
	}
	select {
	case <-b.done:
		return false
	case b.in <- payload:
		return true
	}
}

func (b *base) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		close(b.done)
		if b.closeFn != nil {
			err = b.closeFn()
		}
		b.mu.Lock()
		listeners := b.onClose
		b.onClose = nil
		b.fired = true
		b.mu.Unlock()
		// Listeners never run on the closing goroutine.
		go func() {
			for _, fn := range listeners {
				fn()
			}
		}()
	})
	return err
}

// Done is closed once the connection is closed.
func (b *base) Done() <-chan struct{} { return b.done }
