// Package client is the player side of a connection: it encodes actions,
// decodes server messages into callbacks and watches the server with its own
// liveness monitor.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/codex-sync/codex/liveness"
	"github.com/gosuda/codex-sync/codex/protocol"
	"github.com/gosuda/codex-sync/codex/transport"
	"github.com/gosuda/codex-sync/codex/view"
)

// Handlers are called from the connection's delivery goroutine, one message at
// a time. Nil handlers are skipped.
type Handlers struct {
	OnView    func(view.VirtualView)
	OnGames   func([]view.GameRecord)
	OnError   func(protocol.ErrorMessage)
	OnChat    func(protocol.ChatMessage)
	OnDeleted func(game string)
	// OnClose receives liveness.ErrTimeout (wrapped) when the server went
	// silent and nil for any other close.
	OnClose func(err error)
}

type Session struct {
	conn    transport.Conn
	monitor *liveness.Monitor
	h       Handlers

	mu      sync.Mutex
	last    view.VirtualView
	hasView bool
	err     error

	done chan struct{}
}

// New wraps conn. Call Start once the session is set up.
func New(conn transport.Conn, cfg liveness.Config, h Handlers) *Session {
	s := &Session{conn: conn, h: h, done: make(chan struct{})}
	s.monitor = liveness.New(cfg, func() error {
		return s.send(protocol.ClientHeartbeat{})
	}, func(err error) {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		log.Warn().Err(err).Str("remote", conn.RemoteAddr()).Msg("[client] server lost")
		_ = conn.Close()
	})
	conn.OnArrival(s.monitor.Touch)
	conn.OnMessage(s.handle)
	conn.OnClose(func() {
		s.monitor.Stop()
		close(s.done)
		if s.h.OnClose != nil {
			s.h.OnClose(s.Err())
		}
	})
	return s
}

func (s *Session) Start() {
	s.monitor.Start()
	s.conn.Start()
}

func (s *Session) handle(payload []byte) {
	msg, err := protocol.DecodeServer(payload)
	if err != nil {
		log.Warn().Err(err).Msg("[client] dropping message")
		return
	}
	switch m := msg.(type) {
	case protocol.UpdateView:
		s.mu.Lock()
		s.last, s.hasView = m.VirtualView, true
		s.mu.Unlock()
		if s.h.OnView != nil {
			s.h.OnView(m.VirtualView.Clone())
		}
	case protocol.GameList:
		if s.h.OnGames != nil {
			s.h.OnGames(m.Games)
		}
	case protocol.ErrorMessage:
		if s.h.OnError != nil {
			s.h.OnError(m)
		}
	case protocol.ChatMsg:
		if s.h.OnChat != nil {
			s.h.OnChat(m.Message)
		}
	case protocol.GameDeleted:
		s.mu.Lock()
		if s.hasView && s.last.GameView.Name == m.GameName {
			s.last, s.hasView = view.VirtualView{}, false
		}
		s.mu.Unlock()
		if s.h.OnDeleted != nil {
			s.h.OnDeleted(m.GameName)
		}
	case protocol.ServerHeartbeat:
	}
}

// LastView returns the most recent snapshot of the session's game.
func (s *Session) LastView() (view.VirtualView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasView {
		return view.VirtualView{}, false
	}
	return s.last.Clone(), true
}

// Err reports why the session ended; nil while open or after a normal close.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Close() error { return s.conn.Close() }

func (s *Session) send(m protocol.ClientMessage) error {
	b, err := protocol.EncodeClient(m)
	if err != nil {
		return err
	}
	return s.conn.Send(b)
}

func (s *Session) GetGames() error { return s.send(protocol.GetGames{}) }

func (s *Session) CreateGame(game, player string, players int) error {
	return s.send(protocol.CreateGame{GameName: game, PlayerName: player, NPlayers: players})
}

func (s *Session) JoinGame(game, player string) error {
	return s.send(protocol.JoinGame{GameName: game, PlayerName: player})
}

func (s *Session) DeleteGame(game string) error {
	return s.send(protocol.DeleteGame{GameName: game})
}

func (s *Session) ChooseColor(c view.Color) error {
	return s.send(protocol.ChoosePlayerColor{Color: c})
}

func (s *Session) ChooseObjective(id int) error {
	return s.send(protocol.SetPlayerObjective{ObjectiveID: id})
}

func (s *Session) PlaceCard(cardID, x, y int) error {
	return s.send(protocol.PlaceCard{CardID: cardID, X: x, Y: y})
}

func (s *Session) DrawFromField(cardID int) error {
	return s.send(protocol.DrawCardFromField{CardID: cardID})
}

func (s *Session) DrawFromResourceDeck() error { return s.send(protocol.DrawCardFromResourceDeck{}) }

func (s *Session) DrawFromGoldDeck() error { return s.send(protocol.DrawCardFromGoldDeck{}) }

func (s *Session) SwitchCardSide(cardID int) error {
	return s.send(protocol.SwitchCardSide{CardID: cardID})
}

// Say sends a chat line to the whole game.
func (s *Session) Say(content string) error {
	return s.send(protocol.SendChatMessage{Message: protocol.ChatMessage{Content: content}})
}

// Whisper sends a chat line to one player.
func (s *Session) Whisper(to, content string) error {
	return s.send(protocol.SendChatMessage{Message: protocol.ChatMessage{Recipient: to, Content: content}})
}

// Disconnect asks the server to drop this session. The server closes the
// connection once it has handled the request.
func (s *Session) Disconnect() error { return s.send(protocol.Disconnect{}) }

// Transport names accepted by Dial.
const (
	TransportSocket    = "socket"
	TransportRPC       = "rpc"
	TransportWebSocket = "ws"
)

type DialOptions struct {
	SendQueue int
	MaxFrame  int
	// ProbeInterval enables the socket keepalive writer.
	ProbeInterval time.Duration
	// CallbackAddr is where the rpc transport serves the client's endpoint.
	CallbackAddr string
}

var ErrUnknownTransport = errors.New("client: unknown transport")

// Dial connects over the named transport. addr is host:port for socket and
// rpc, and a ws:// URL for ws.
func Dial(ctx context.Context, kind, addr string, opts DialOptions) (transport.Conn, error) {
	var (
		c   transport.Conn
		err error
	)
	switch kind {
	case TransportSocket:
		var sc *transport.SocketConn
		sc, err = transport.DialSocket(ctx, addr, transport.SocketOptions{
			SendQueue:     opts.SendQueue,
			MaxFrame:      opts.MaxFrame,
			ProbeInterval: opts.ProbeInterval,
		})
		c = sc
	case TransportRPC:
		var rc *transport.RPCConn
		rc, err = transport.DialRPC(ctx, addr, transport.RPCOptions{SendQueue: opts.SendQueue, CallbackAddr: opts.CallbackAddr})
		c = rc
	case TransportWebSocket:
		var wc *transport.WebSocketConn
		wc, err = transport.DialWebSocket(ctx, addr, opts.SendQueue, opts.MaxFrame)
		c = wc
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, kind)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}
