package client

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/gosuda/codex-sync/codex/game"
	"github.com/gosuda/codex-sync/codex/liveness"
	"github.com/gosuda/codex-sync/codex/protocol"
	"github.com/gosuda/codex-sync/codex/registry"
	"github.com/gosuda/codex-sync/codex/transport"
	"github.com/gosuda/codex-sync/codex/view"
)

type recorder struct {
	mu     sync.Mutex
	views  []view.VirtualView
	errs   []protocol.ErrorMessage
	chats  []protocol.ChatMessage
	gone   []string
	closed []error
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnView:    func(v view.VirtualView) { r.mu.Lock(); r.views = append(r.views, v); r.mu.Unlock() },
		OnError:   func(e protocol.ErrorMessage) { r.mu.Lock(); r.errs = append(r.errs, e); r.mu.Unlock() },
		OnChat:    func(c protocol.ChatMessage) { r.mu.Lock(); r.chats = append(r.chats, c); r.mu.Unlock() },
		OnDeleted: func(g string) { r.mu.Lock(); r.gone = append(r.gone, g); r.mu.Unlock() },
		OnClose:   func(err error) { r.mu.Lock(); r.closed = append(r.closed, err); r.mu.Unlock() },
	}
}

func (r *recorder) lastStatus() view.GameStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.views) == 0 {
		return ""
	}
	return r.views[len(r.views)-1].GameView.Status
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func serve(ln transport.Listener, reg *registry.Registry) {
	for {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		reg.Accept(c)
	}
}

func TestSessionsOverSocketAndRPC(t *testing.T) {
	live := liveness.Config{Interval: 50 * time.Millisecond, Timeout: 2 * time.Second}
	reg := registry.New(game.NewManager(game.WithSeed(1)), registry.Options{Liveness: live})
	defer reg.Close()

	// Keepalive probes run on both socket ends and must stay invisible to the sessions.
	sockLn, err := transport.ListenSocket("127.0.0.1:0", transport.SocketOptions{ProbeInterval: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	defer sockLn.Close()
	rpcLn, err := transport.ListenRPC("127.0.0.1:0", transport.RPCOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer rpcLn.Close()
	go serve(sockLn, reg)
	go serve(rpcLn, reg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	adaConn, err := Dial(ctx, TransportSocket, sockLn.Addr(), DialOptions{ProbeInterval: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	bobConn, err := Dial(ctx, TransportRPC, rpcLn.Addr(), DialOptions{})
	if err != nil {
		t.Fatal(err)
	}

	var adaRec, bobRec recorder
	ada := New(adaConn, live, adaRec.handlers())
	bob := New(bobConn, live, bobRec.handlers())
	ada.Start()
	bob.Start()
	defer ada.Close()
	defer bob.Close()

	if err := ada.CreateGame("g", "ada", 2); err != nil {
		t.Fatal(err)
	}
	eventually(t, "ada's first snapshot", func() bool { return adaRec.lastStatus() == view.StatusWaiting })

	if err := bob.JoinGame("g", "bob"); err != nil {
		t.Fatal(err)
	}
	eventually(t, "setup on both ends", func() bool {
		return adaRec.lastStatus() == view.StatusSetup && bobRec.lastStatus() == view.StatusSetup
	})

	v, ok := bob.LastView()
	if !ok || len(v.GameView.Players) != 2 {
		t.Fatalf("bob's last view = %+v", v.GameView)
	}
	if p, _ := v.Player("bob"); len(p.Hand.Cards) != 4 {
		t.Fatalf("bob's hand = %d cards", len(p.Hand.Cards))
	}

	if err := bob.Say("hello"); err != nil {
		t.Fatal(err)
	}
	eventually(t, "chat on ada's end", func() bool {
		adaRec.mu.Lock()
		defer adaRec.mu.Unlock()
		return len(adaRec.chats) == 1 && adaRec.chats[0].Sender == "bob" && adaRec.chats[0].Content == "hello"
	})

	if err := bob.JoinGame("g", "bob"); err != nil {
		t.Fatal(err)
	}
	eventually(t, "error for the second join", func() bool {
		bobRec.mu.Lock()
		defer bobRec.mu.Unlock()
		return len(bobRec.errs) == 1 && bobRec.errs[0].Code == protocol.CodeInvalidAction
	})

	// Heartbeats keep both sessions open well past several intervals.
	time.Sleep(300 * time.Millisecond)
	select {
	case <-ada.Done():
		t.Fatal("ada's session closed")
	case <-bob.Done():
		t.Fatal("bob's session closed")
	default:
	}

	if err := ada.Disconnect(); err != nil {
		t.Fatal(err)
	}
	eventually(t, "bob to see ada leave", func() bool {
		v, ok := bob.LastView()
		if !ok {
			return false
		}
		p, _ := v.Player("ada")
		return p != nil && !p.Connected
	})
	select {
	case <-ada.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("server did not close ada's connection")
	}
}

func TestSilentServerEndsSession(t *testing.T) {
	cli, srv := net.Pipe()
	go func() { _, _ = io.Copy(io.Discard, srv) }()
	defer srv.Close()

	mock := clock.NewMock()
	var rec recorder
	s := New(transport.NewSocketConn(cli, transport.SocketOptions{}),
		liveness.Config{Interval: time.Second, Timeout: 3 * time.Second, Clock: mock}, rec.handlers())
	s.Start()
	for i := 0; i < 5; i++ {
		mock.Add(time.Second)
	}
	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session outlived a silent server")
	}
	if !errors.Is(s.Err(), liveness.ErrTimeout) {
		t.Fatalf("err = %v", s.Err())
	}
	eventually(t, "OnClose", func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.closed) == 1 && errors.Is(rec.closed[0], liveness.ErrTimeout)
	})
}

func TestLastViewFollowsServer(t *testing.T) {
	cli, srv := net.Pipe()
	server := transport.NewSocketConn(srv, transport.SocketOptions{})
	server.Start()
	defer server.Close()

	var rec recorder
	s := New(transport.NewSocketConn(cli, transport.SocketOptions{}),
		liveness.Config{Interval: time.Hour, Timeout: time.Hour}, rec.handlers())
	s.Start()
	defer s.Close()

	if _, ok := s.LastView(); ok {
		t.Fatal("view before any update")
	}
	push := func(m protocol.ServerMessage) {
		b, err := protocol.EncodeServer(m)
		if err != nil {
			t.Fatal(err)
		}
		if err := server.Send(b); err != nil {
			t.Fatal(err)
		}
	}
	push(protocol.UpdateView{VirtualView: view.VirtualView{GameView: view.GameView{Name: "g", Status: view.StatusWaiting, MaxPlayers: 2}}})
	eventually(t, "snapshot", func() bool { _, ok := s.LastView(); return ok })

	v, _ := s.LastView()
	v.GameView.Name = "changed"
	if again, _ := s.LastView(); again.GameView.Name != "g" {
		t.Fatal("LastView shares memory")
	}

	push(protocol.GameDeleted{GameName: "g"})
	eventually(t, "delete", func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.gone) == 1
	})
	if _, ok := s.LastView(); ok {
		t.Fatal("view kept after its game was deleted")
	}
}

func TestDialUnknownTransport(t *testing.T) {
	if _, err := Dial(context.Background(), "carrier-pigeon", "x", DialOptions{}); !errors.Is(err, ErrUnknownTransport) {
		t.Fatalf("err = %v", err)
	}
}
