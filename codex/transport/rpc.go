package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

// The remote-call transport: each side exposes a codex.Peer service and pushes
// messages by calling Deliver on the other side. The client announces a callback
// address in Attach and the server dials back to it.

const (
	codecName     = "json"
	methodAttach  = "/codex.Peer/Attach"
	methodDeliver = "/codex.Peer/Deliver"

	// DefaultCallTimeout bounds each Deliver call.
	DefaultCallTimeout = 3 * time.Second
)

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type AttachRequest struct {
	Session      string `json:"session"`
	CallbackAddr string `json:"callbackAddr"`
}

type AttachReply struct {
	Session string `json:"session"`
}

// Envelope is one message in flight. Seq increases by one per message and
// per direction.
type Envelope struct {
	Session string          `json:"session"`
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

type Ack struct {
	Seq uint64 `json:"seq"`
}

type peerServer interface {
	Attach(ctx context.Context, in *AttachRequest) (*AttachReply, error)
	Deliver(ctx context.Context, in *Envelope) (*Ack, error)
}

var peerServiceDesc = grpc.ServiceDesc{
	ServiceName: "codex.Peer",
	HandlerType: (*peerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Attach", Handler: attachHandler},
		{MethodName: "Deliver", Handler: deliverHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "codex/peer",
}

func attachHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AttachRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(peerServer).Attach(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodAttach}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(peerServer).Attach(ctx, req.(*AttachRequest))
	})
}

func deliverHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Envelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(peerServer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodDeliver}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(peerServer).Deliver(ctx, req.(*Envelope))
	})
}

// RPCOptions tunes the remote-call transport.
type RPCOptions struct {
	SendQueue   int
	CallTimeout time.Duration
	// CallbackAddr is where a dialling client serves its own endpoint.
	// Defaults to 127.0.0.1:0.
	CallbackAddr string
}

func (o RPCOptions) withDefaults() RPCOptions {
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	if o.CallbackAddr == "" {
		o.CallbackAddr = "127.0.0.1:0"
	}
	return o
}

// RPCConn is one side of a remote-call session.
type RPCConn struct {
	*base
	session     string
	peer        *grpc.ClientConn
	callTimeout time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	onClosed    func()

	recvMu  sync.Mutex
	lastSeq uint64
	sendSeq uint64
}

func newRPCConn(session, remote string, peer *grpc.ClientConn, opts RPCOptions) *RPCConn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &RPCConn{
		session:     session,
		peer:        peer,
		callTimeout: opts.CallTimeout,
		ctx:         ctx,
		cancel:      cancel,
	}
	c.base = newBase(remote, opts.SendQueue, c.shutdown)
	c.id = session
	return c
}

// Session returns the session id shared by both ends.
func (c *RPCConn) Session() string { return c.session }

func (c *RPCConn) Start() {
	if !c.startDelivery() {
		return
	}
	go c.callLoop()
}

func (c *RPCConn) callLoop() {
	defer func() { _ = c.Close() }()
	for {
		select {
		case <-c.done:
			return
		case payload := <-c.out:
			c.sendSeq++
			ctx, cancel := context.WithTimeout(c.ctx, c.callTimeout)
			err := c.peer.Invoke(ctx, methodDeliver,
				&Envelope{Session: c.session, Seq: c.sendSeq, Payload: payload},
				new(Ack), grpc.CallContentSubtype(codecName))
			cancel()
			if err != nil {
				if c.ctx.Err() == nil {
					log.Warn().Err(err).Str("session", c.session).Msg("[rpc] deliver failed")
				}
				return
			}
		}
	}
}

// receive enqueues an inbound envelope, dropping replays.
func (c *RPCConn) receive(env *Envelope) error {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()
	if env.Seq <= c.lastSeq {
		return nil
	}
	c.lastSeq = env.Seq
	if !c.deliver(append([]byte(nil), env.Payload...)) {
		return ErrClosed
	}
	return nil
}

func (c *RPCConn) shutdown() error {
	c.cancel()
	if c.onClosed != nil {
		c.onClosed()
	}
	return c.peer.Close()
}

// sessionTable routes inbound Deliver calls to their connection.
type sessionTable struct {
	mu       sync.RWMutex
	sessions map[string]*RPCConn
}

func (t *sessionTable) add(c *RPCConn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.sessions[c.session]; dup {
		return false
	}
	t.sessions[c.session] = c
	return true
}

func (t *sessionTable) remove(session string) {
	t.mu.Lock()
	delete(t.sessions, session)
	t.mu.Unlock()
}

func (t *sessionTable) all() []*RPCConn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*RPCConn, 0, len(t.sessions))
	for _, c := range t.sessions {
		out = append(out, c)
	}
	return out
}

func (t *sessionTable) Deliver(_ context.Context, in *Envelope) (*Ack, error) {
	t.mu.RLock()
	c := t.sessions[in.Session]
	t.mu.RUnlock()
	if c == nil {
		return nil, status.Errorf(codes.NotFound, "unknown session %q", in.Session)
	}
	if err := c.receive(in); err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return &Ack{Seq: in.Seq}, nil
}

// rpcListener is the server end.
type rpcListener struct {
	sessionTable
	ln     net.Listener
	srv    *grpc.Server
	opts   RPCOptions
	accept chan *RPCConn
	done   chan struct{}
	once   sync.Once
}

// ListenRPC serves the remote-call transport on addr.
func ListenRPC(addr string, opts RPCOptions) (Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen rpc %s: %w", addr, err)
	}
	l := &rpcListener{
		sessionTable: sessionTable{sessions: make(map[string]*RPCConn)},
		ln:           ln,
		srv:          grpc.NewServer(),
		opts:         opts.withDefaults(),
		accept:       make(chan *RPCConn, 16),
		done:         make(chan struct{}),
	}
	l.srv.RegisterService(&peerServiceDesc, l)
	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error().Err(err).Msg("[rpc] serve")
		}
	}()
	return l, nil
}

func (l *rpcListener) Attach(ctx context.Context, in *AttachRequest) (*AttachReply, error) {
	if in.Session == "" || in.CallbackAddr == "" {
		return nil, status.Error(codes.InvalidArgument, "session and callback address are required")
	}
	peer, err := grpc.NewClient(in.CallbackAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "callback %s: %v", in.CallbackAddr, err)
	}
	c := newRPCConn(in.Session, in.CallbackAddr, peer, l.opts)
	if !l.add(c) {
		_ = peer.Close()
		return nil, status.Errorf(codes.AlreadyExists, "session %q already attached", in.Session)
	}
	c.onClosed = func() { l.remove(in.Session) }

	select {
	case l.accept <- c:
		return &AttachReply{Session: in.Session}, nil
	case <-l.done:
		_ = c.Close()
		return nil, status.Error(codes.Unavailable, "listener closed")
	case <-ctx.Done():
		_ = c.Close()
		return nil, status.FromContextError(ctx.Err()).Err()
	}
}

func (l *rpcListener) Accept() (Conn, error) {
	select {
	case c := <-l.accept:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *rpcListener) Close() error {
	l.once.Do(func() {
		close(l.done)
		l.srv.Stop()
		for _, c := range l.all() {
			_ = c.Close()
		}
	})
	return nil
}

func (l *rpcListener) Addr() string { return l.ln.Addr().String() }

// callbackServer is the client end; it only accepts deliveries.
type callbackServer struct {
	sessionTable
}

func (s *callbackServer) Attach(context.Context, *AttachRequest) (*AttachReply, error) {
	return nil, status.Error(codes.Unimplemented, "client endpoint does not accept sessions")
}

// DialRPC attaches to a remote-call server. The returned connection owns a local
// callback endpoint that is shut down when the connection closes.
func DialRPC(ctx context.Context, addr string, opts RPCOptions) (*RPCConn, error) {
	opts = opts.withDefaults()
	ln, err := net.Listen("tcp", opts.CallbackAddr)
	if err != nil {
		return nil, &DialError{Transport: "rpc", Stage: "callback", Err: err}
	}
	side := &callbackServer{sessionTable: sessionTable{sessions: make(map[string]*RPCConn)}}
	srv := grpc.NewServer()
	srv.RegisterService(&peerServiceDesc, side)
	go func() { _ = srv.Serve(ln) }()

	peer, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		srv.Stop()
		return nil, &DialError{Transport: "rpc", Stage: "dial", Err: err}
	}
	session := newID()
	c := newRPCConn(session, addr, peer, opts)
	c.onClosed = func() {
		side.remove(session)
		srv.Stop()
	}
	side.add(c)

	callCtx, cancel := context.WithTimeout(ctx, opts.CallTimeout)
	defer cancel()
	var reply AttachReply
	err = peer.Invoke(callCtx, methodAttach,
		&AttachRequest{Session: session, CallbackAddr: ln.Addr().String()},
		&reply, grpc.CallContentSubtype(codecName))
	if err != nil {
		_ = c.Close()
		return nil, &DialError{Transport: "rpc", Stage: "attach", Err: err}
	}
	return c, nil
}
