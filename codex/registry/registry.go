// Package registry binds transport connections to players and games. It routes
// decoded client actions to the engine and fans snapshots out to every
// connection subscribed to a game.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/codex-sync/codex/card"
	"github.com/gosuda/codex-sync/codex/chat"
	"github.com/gosuda/codex-sync/codex/game"
	"github.com/gosuda/codex-sync/codex/liveness"
	"github.com/gosuda/codex-sync/codex/protocol"
	"github.com/gosuda/codex-sync/codex/transport"
	"github.com/gosuda/codex-sync/codex/view"
)

// Engine is the game engine contract the registry drives. *game.Manager
// implements it.
type Engine interface {
	CreateGame(name, player string, n int) error
	JoinGame(name, player string) error
	DeleteGame(name string) error
	HasGame(name string) bool
	ChoosePlayerColor(name, player string, color view.Color) error
	SetPlayerObjective(name, player string, objectiveID int) error
	PlaceCard(name, player string, cardID, x, y int) error
	DrawFromField(name, player string, cardID int) error
	DrawFromDeck(name, player string, kind card.Kind) error
	SwitchCardSide(name, player string, cardID int) error
	SetConnected(name, player string, connected bool) error
	VirtualView(name string) (view.VirtualView, error)
	Games() []view.GameRecord
}

type Options struct {
	Liveness liveness.Config
	// AfterUpdate runs after every published snapshot while the game's publish
	// lock is held, so calls for one game arrive in snapshot order.
	AfterUpdate func(game string, v view.VirtualView)
	// OnDelete runs after a game was deleted, before its subscribers hear of it.
	OnDelete func(game string)
}

type BroadcastResult struct {
	Attempts  int
	Delivered int
}

// Connection is one accepted client. Its identity is empty until it creates or
// joins a game.
type Connection struct {
	conn    transport.Conn
	monitor *liveness.Monitor

	mu     sync.Mutex
	game   string
	player string

	gone atomic.Bool
}

func (c *Connection) ID() string { return c.conn.ID() }

// Identity returns the bound game and player, empty when unbound.
func (c *Connection) Identity() (game, player string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.game, c.player
}

// Liveness reports the state of the connection's monitor.
func (c *Connection) Liveness() liveness.State { return c.monitor.State() }

// Send encodes and enqueues one message for this connection.
func (c *Connection) Send(m protocol.ServerMessage) error {
	b, err := protocol.EncodeServer(m)
	if err != nil {
		return err
	}
	return c.conn.Send(b)
}

func (c *Connection) setIdentity(game, player string) {
	c.mu.Lock()
	c.game, c.player = game, player
	c.mu.Unlock()
}

// Registry is the process wide table of connections. Lock order is Registry.mu
// before Connection.mu; publish locks are never taken under Registry.mu.
type Registry struct {
	engine Engine
	opts   Options
	clock  clock.Clock

	mu     sync.RWMutex
	conns  map[*Connection]struct{}
	games  map[string]map[string]*Connection
	closed bool

	pubMu sync.Mutex
	pub   map[string]*sync.Mutex
}

func New(engine Engine, opts Options) *Registry {
	c := opts.Liveness.Clock
	if c == nil {
		c = clock.New()
	}
	return &Registry{
		engine: engine,
		opts:   opts,
		clock:  c,
		conns:  make(map[*Connection]struct{}),
		games:  make(map[string]map[string]*Connection),
		pub:    make(map[string]*sync.Mutex),
	}
}

// Accept takes ownership of conn: inbound messages are decoded and routed, a
// liveness monitor watches the peer and the connection is unregistered when it
// closes for any reason.
func (r *Registry) Accept(conn transport.Conn) *Connection {
	c := &Connection{conn: conn}
	c.monitor = liveness.New(r.opts.Liveness, func() error {
		return c.Send(protocol.ServerHeartbeat{})
	}, func(err error) {
		log.Warn().Err(err).Str("conn", conn.ID()).Msg("[registry] peer lost")
		_ = conn.Close()
	})
	conn.OnArrival(c.monitor.Touch)
	conn.OnMessage(func(payload []byte) {
		msg, err := protocol.DecodeClient(payload)
		if err != nil {
			log.Warn().Err(err).Str("conn", conn.ID()).Msg("[registry] dropping message")
			return
		}
		r.Route(c, msg)
	})
	conn.OnClose(func() { r.Unregister(c) })

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = conn.Close()
		return c
	}
	r.conns[c] = struct{}{}
	r.mu.Unlock()

	c.monitor.Start()
	conn.Start()
	log.Debug().Str("conn", conn.ID()).Str("remote", conn.RemoteAddr()).Msg("[registry] connection accepted")
	return c
}

// Register joins player to an existing game through the engine and subscribes c
// to it.
func (r *Registry) Register(c *Connection, gameName, player string) error {
	if g, _ := c.Identity(); g != "" {
		return fmt.Errorf("%w: connection already plays in %q", game.ErrInvalidAction, g)
	}
	r.mu.RLock()
	_, live := r.games[gameName][player]
	r.mu.RUnlock()
	if live {
		return fmt.Errorf("%w: %q in %q", game.ErrAlreadyJoined, player, gameName)
	}
	if err := r.engine.JoinGame(gameName, player); err != nil {
		return err
	}
	return r.bind(c, gameName, player)
}

// bind subscribes c to a game the engine has just accepted it into. The
// existence check runs under r.mu, the same lock delete unbinds under, so a
// connection is never left bound to a deleted game.
func (r *Registry) bind(c *Connection, gameName, player string) error {
	r.mu.Lock()
	if !r.engine.HasGame(gameName) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", game.ErrGameNotFound, gameName)
	}
	if c.gone.Load() {
		r.mu.Unlock()
		_ = r.engine.SetConnected(gameName, player, false)
		return transport.ErrClosed
	}
	subs := r.games[gameName]
	if subs == nil {
		subs = make(map[string]*Connection)
		r.games[gameName] = subs
	}
	subs[player] = c
	c.setIdentity(gameName, player)
	r.mu.Unlock()
	return nil
}

// Route handles one decoded message from c. Game scoped actions from an unbound
// connection are ignored. Failures are reported to c alone.
func (r *Registry) Route(c *Connection, msg protocol.ClientMessage) {
	switch m := msg.(type) {
	case protocol.ClientHeartbeat:
		return
	case protocol.GetGames:
		r.reply(c, protocol.GameList{Games: r.engine.Games()})
		return
	case protocol.CreateGame:
		r.create(c, m)
		return
	case protocol.JoinGame:
		r.join(c, m)
		return
	case protocol.DeleteGame:
		r.delete(c, m.GameName)
		return
	case protocol.Disconnect:
		r.Unregister(c)
		return
	}

	gameName, player := c.Identity()
	if gameName == "" {
		log.Debug().Str("conn", c.ID()).Str("kind", string(msg.Kind())).Msg("[registry] ignoring action from unbound connection")
		return
	}
	var err error
	switch m := msg.(type) {
	case protocol.ChoosePlayerColor:
		err = r.engine.ChoosePlayerColor(gameName, player, m.Color)
	case protocol.SetPlayerObjective:
		err = r.engine.SetPlayerObjective(gameName, player, m.ObjectiveID)
	case protocol.PlaceCard:
		err = r.engine.PlaceCard(gameName, player, m.CardID, m.X, m.Y)
	case protocol.DrawCardFromField:
		err = r.engine.DrawFromField(gameName, player, m.CardID)
	case protocol.DrawCardFromResourceDeck, protocol.DrawCardFromGoldDeck:
		k, _ := protocol.DeckKind(msg)
		err = r.engine.DrawFromDeck(gameName, player, k)
	case protocol.SwitchCardSide:
		err = r.engine.SwitchCardSide(gameName, player, m.CardID)
	case protocol.SendChatMessage:
		r.chat(c, gameName, player, m.Message)
		return
	default:
		log.Warn().Str("kind", string(msg.Kind())).Msg("[registry] unhandled message")
		return
	}
	if err != nil {
		r.fail(c, err)
		return
	}
	r.Publish(gameName)
}

func validNames(gameName, player string) error {
	if !chat.ValidName(gameName) || !chat.ValidName(player) {
		return fmt.Errorf("%w: names must be plain text of at most %d characters", game.ErrInvalidAction, chat.MaxNameLength)
	}
	return nil
}

func (r *Registry) create(c *Connection, m protocol.CreateGame) {
	if g, _ := c.Identity(); g != "" {
		r.fail(c, fmt.Errorf("%w: connection already plays in %q", game.ErrInvalidAction, g))
		return
	}
	if err := validNames(m.GameName, m.PlayerName); err != nil {
		r.fail(c, err)
		return
	}
	if err := r.engine.CreateGame(m.GameName, m.PlayerName, m.NPlayers); err != nil {
		r.fail(c, err)
		return
	}
	if err := r.bind(c, m.GameName, m.PlayerName); err != nil {
		if !errors.Is(err, transport.ErrClosed) {
			r.fail(c, err)
		}
		return
	}
	log.Info().Str("game", m.GameName).Str("player", m.PlayerName).Int("players", m.NPlayers).Msg("[registry] game created")
	r.Publish(m.GameName)
}

func (r *Registry) join(c *Connection, m protocol.JoinGame) {
	if err := validNames(m.GameName, m.PlayerName); err != nil {
		r.fail(c, err)
		return
	}
	if err := r.Register(c, m.GameName, m.PlayerName); err != nil {
		r.fail(c, err)
		return
	}
	log.Info().Str("game", m.GameName).Str("player", m.PlayerName).Msg("[registry] player joined")
	r.Publish(m.GameName)
}

// delete removes a game, tells its subscribers and leaves them unbound. It holds
// the game's publish lock, so a publish already under way, AfterUpdate
// included, finishes before OnDelete runs.
func (r *Registry) delete(c *Connection, gameName string) {
	mu := r.publishLock(gameName)
	mu.Lock()
	if err := r.engine.DeleteGame(gameName); err != nil {
		mu.Unlock()
		r.fail(c, err)
		return
	}
	r.mu.Lock()
	subs := r.games[gameName]
	delete(r.games, gameName)
	for _, s := range subs {
		s.setIdentity("", "")
	}
	r.mu.Unlock()
	if r.opts.OnDelete != nil {
		r.opts.OnDelete(gameName)
	}
	mu.Unlock()

	msg := protocol.GameDeleted{GameName: gameName}
	told := false
	for _, s := range subs {
		r.reply(s, msg)
		told = told || s == c
	}
	if !told {
		r.reply(c, msg)
	}
	log.Info().Str("game", gameName).Int("subscribers", len(subs)).Msg("[registry] game deleted")
}

func (r *Registry) chat(c *Connection, gameName, player string, m protocol.ChatMessage) {
	line, ok := chat.Prepare(player, m, r.clock.Now())
	if !ok {
		return
	}
	if line.Private() {
		if line.Recipient == player {
			r.fail(c, fmt.Errorf("%w: private message to yourself", game.ErrInvalidAction))
			return
		}
		r.mu.RLock()
		_, ok := r.games[gameName][line.Recipient]
		r.mu.RUnlock()
		if !ok {
			r.fail(c, fmt.Errorf("%w: %q is not connected to %q", ErrNotJoined, line.Recipient, gameName))
			return
		}
	}
	r.Notify(gameName, line)
}

func (r *Registry) reply(c *Connection, m protocol.ServerMessage) {
	if err := c.Send(m); err != nil {
		log.Debug().Err(err).Str("conn", c.ID()).Str("kind", string(m.Kind())).Msg("[registry] reply not sent")
	}
}

func (r *Registry) fail(c *Connection, err error) {
	log.Debug().Err(err).Str("conn", c.ID()).Msg("[registry] action rejected")
	r.reply(c, protocol.ErrorMessage{Code: CodeOf(err), Message: err.Error()})
}

// publishLock returns the lock ordering publishes and deletion of one game.
// Entries are kept after deletion so a recreated game shares its predecessor's
// lock with any publish still waiting on it.
func (r *Registry) publishLock(gameName string) *sync.Mutex {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	mu, ok := r.pub[gameName]
	if !ok {
		mu = new(sync.Mutex)
		r.pub[gameName] = mu
	}
	return mu
}

// Publish reads the current snapshot of a game and broadcasts it. Publishing is
// serialised per game, so subscribers see snapshots in the order they were read.
func (r *Registry) Publish(gameName string) BroadcastResult {
	mu := r.publishLock(gameName)
	mu.Lock()
	defer mu.Unlock()

	v, err := r.engine.VirtualView(gameName)
	if err != nil {
		log.Debug().Err(err).Str("game", gameName).Msg("[registry] nothing to publish")
		return BroadcastResult{}
	}
	res := r.Broadcast(gameName, v)
	if r.opts.AfterUpdate != nil {
		r.opts.AfterUpdate(gameName, v)
	}
	return res
}

// Broadcast sends snapshot to every connection subscribed to gameName. A
// connection that cannot take the message is closed; the others still get it.
func (r *Registry) Broadcast(gameName string, snapshot view.VirtualView) BroadcastResult {
	payload, err := protocol.EncodeServer(protocol.UpdateView{VirtualView: snapshot})
	if err != nil {
		log.Error().Err(err).Str("game", gameName).Msg("[registry] encode snapshot")
		return BroadcastResult{}
	}
	return r.fanOut(r.subscribers(gameName), payload)
}

// Notify sends a chat line to the game, or only to sender and recipient when
// the line is private.
func (r *Registry) Notify(gameName string, m protocol.ChatMessage) BroadcastResult {
	payload, err := protocol.EncodeServer(protocol.ChatMsg{Message: m})
	if err != nil {
		log.Error().Err(err).Str("game", gameName).Msg("[registry] encode chat")
		return BroadcastResult{}
	}
	subs := r.subscribers(gameName)
	if m.Private() {
		var to []*Connection
		for _, s := range subs {
			if _, p := s.Identity(); p == m.Sender || p == m.Recipient {
				to = append(to, s)
			}
		}
		subs = to
	}
	return r.fanOut(subs, payload)
}

func (r *Registry) subscribers(gameName string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.games[gameName]))
	for _, c := range r.games[gameName] {
		out = append(out, c)
	}
	return out
}

func (r *Registry) fanOut(conns []*Connection, payload []byte) BroadcastResult {
	var res BroadcastResult
	for _, c := range conns {
		res.Attempts++
		if err := c.conn.Send(payload); err != nil {
			log.Warn().Err(err).Str("conn", c.ID()).Msg("[registry] delivery failed, closing connection")
			_ = c.conn.Close()
			continue
		}
		res.Delivered++
	}
	return res
}

// Unregister tears c down: its monitor stops, the transport closes, and a bound
// player is marked disconnected with a fresh snapshot sent to the rest of the
// game. It is idempotent.
func (r *Registry) Unregister(c *Connection) {
	if !c.gone.CompareAndSwap(false, true) {
		return
	}
	c.monitor.Stop()
	_ = c.conn.Close()

	r.mu.Lock()
	delete(r.conns, c)
	gameName, player := c.Identity()
	if gameName != "" {
		if subs := r.games[gameName]; subs[player] == c {
			delete(subs, player)
			if len(subs) == 0 {
				delete(r.games, gameName)
			}
		}
		c.setIdentity("", "")
	}
	r.mu.Unlock()

	if gameName == "" {
		log.Debug().Str("conn", c.ID()).Msg("[registry] connection closed")
		return
	}
	if err := r.engine.SetConnected(gameName, player, false); err != nil {
		log.Debug().Err(err).Str("game", gameName).Msg("[registry] mark disconnected")
		return
	}
	log.Info().Str("game", gameName).Str("player", player).Msg("[registry] player disconnected")
	r.Publish(gameName)
}

// Connections returns every live connection.
func (r *Registry) Connections() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.conns))
	for c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Close unregisters every connection and refuses new ones.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	for _, c := range r.Connections() {
		r.Unregister(c)
	}
}
