// Package game is the reference rules engine: lobby, setup, turn order, placement
// rules, scoring and the virtual view builder. Each game is serialised by its own
// mutex; the Manager only guards the name table.
package game

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gosuda/codex-sync/codex/card"
	"github.com/gosuda/codex-sync/codex/view"
)

const (
	MinPlayers = 2
	MaxPlayers = 4
)

var (
	ErrGameNotFound  = errors.New("game not found")
	ErrGameExists    = errors.New("game already exists")
	ErrGameFull      = errors.New("game is full")
	ErrAlreadyJoined = errors.New("player already joined")
	ErrNotYourTurn   = errors.New("not your turn")
	ErrInvalidAction = errors.New("invalid action")
)

type Manager struct {
	catalog *card.Catalog
	scorer  Scorer

	mu    sync.RWMutex
	games map[string]*game

	rngMu sync.Mutex
	rng   *rand.Rand
}

type Option func(*Manager)

// WithSeed makes shuffles reproducible.
func WithSeed(seed uint64) Option {
	return func(m *Manager) { m.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithScorer replaces the objective scorer used at game end.
func WithScorer(s Scorer) Option {
	return func(m *Manager) { m.scorer = s }
}

func WithCatalog(c *card.Catalog) Option {
	return func(m *Manager) { m.catalog = c }
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{games: make(map[string]*game)}
	for _, opt := range opts {
		opt(m)
	}
	if m.catalog == nil {
		m.catalog = card.Standard()
	}
	if m.scorer == nil {
		m.scorer = DefaultScorer{}
	}
	if m.rng == nil {
		seed := uint64(time.Now().UnixNano())
		m.rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return m
}

// Catalog returns the card set games are dealt from.
func (m *Manager) Catalog() *card.Catalog { return m.catalog }

func (m *Manager) newRand() *rand.Rand {
	m.rngMu.Lock()
	defer m.rngMu.Unlock()
	return rand.New(rand.NewPCG(m.rng.Uint64(), m.rng.Uint64()))
}

func (m *Manager) lookup(name string) (*game, error) {
	m.mu.RLock()
	g, ok := m.games[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrGameNotFound, name)
	}
	return g, nil
}

// HasGame reports whether a game with this name is on the table.
func (m *Manager) HasGame(name string) bool {
	_, err := m.lookup(name)
	return err == nil
}

// with runs fn under the game lock.
func (m *Manager) with(name string, fn func(g *game) error) error {
	g, err := m.lookup(name)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(g)
}

// withPlayer runs fn under the game lock for a seated player.
func (m *Manager) withPlayer(name, playerName string, fn func(g *game, p *player) error) error {
	return m.with(name, func(g *game) error {
		p, _ := g.player(playerName)
		if p == nil {
			return fmt.Errorf("%w: %q is not seated in %q", ErrInvalidAction, playerName, name)
		}
		return fn(g, p)
	})
}

func (m *Manager) create(name, playerName string, n int, restoring bool) error {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(playerName) == "" {
		return fmt.Errorf("%w: game and player names are required", ErrInvalidAction)
	}
	if n < MinPlayers || n > MaxPlayers {
		return fmt.Errorf("%w: %d players, want %d to %d", ErrInvalidAction, n, MinPlayers, MaxPlayers)
	}
	g := &game{
		name:       name,
		maxPlayers: n,
		status:     view.StatusWaiting,
		players:    []*player{newPlayer(playerName)},
		rng:        m.newRand(),
		scorer:     m.scorer,
		restoring:  restoring,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.games[name]; exists {
		return fmt.Errorf("%w: %q", ErrGameExists, name)
	}
	m.games[name] = g
	return nil
}

// CreateGame opens a table for n players with the creator seated and connected.
func (m *Manager) CreateGame(name, playerName string, n int) error {
	return m.create(name, playerName, n, false)
}

// JoinGame seats a new player or reconnects a disconnected one. The cards are
// dealt as soon as the last seat is taken.
func (m *Manager) JoinGame(name, playerName string) error {
	if strings.TrimSpace(playerName) == "" {
		return fmt.Errorf("%w: player name is required", ErrInvalidAction)
	}
	return m.with(name, func(g *game) error {
		if p, _ := g.player(playerName); p != nil {
			if p.connected {
				return fmt.Errorf("%w: %q in %q", ErrAlreadyJoined, playerName, name)
			}
			p.connected = true
			g.skipStalled()
			return nil
		}
		if len(g.players) >= g.maxPlayers || g.status != view.StatusWaiting {
			return fmt.Errorf("%w: %q", ErrGameFull, name)
		}
		g.players = append(g.players, newPlayer(playerName))
		if len(g.players) == g.maxPlayers && !g.restoring {
			return g.deal(m.catalog)
		}
		return nil
	})
}

func (m *Manager) DeleteGame(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[name]; !ok {
		return fmt.Errorf("%w: %q", ErrGameNotFound, name)
	}
	delete(m.games, name)
	return nil
}

// SetConnected records a player's connection state. A current player who drops
// out has their turn passed on.
func (m *Manager) SetConnected(name, playerName string, connected bool) error {
	return m.withPlayer(name, playerName, func(g *game, p *player) error {
		p.connected = connected
		g.skipStalled()
		return nil
	})
}

func (m *Manager) ChoosePlayerColor(name, playerName string, color view.Color) error {
	if !color.Valid() {
		return fmt.Errorf("%w: unknown colour %q", ErrInvalidAction, color)
	}
	return m.withPlayer(name, playerName, func(g *game, p *player) error {
		if g.status != view.StatusSetup && g.status != view.StatusWaiting {
			return fmt.Errorf("%w: colours are chosen before play starts", ErrInvalidAction)
		}
		for _, other := range g.players {
			if other != p && other.color == color {
				return fmt.Errorf("%w: colour %s is taken by %q", ErrInvalidAction, color, other.name)
			}
		}
		p.color = color
		g.finishSetup()
		return nil
	})
}

func (m *Manager) SetPlayerObjective(name, playerName string, objectiveID int) error {
	return m.withPlayer(name, playerName, func(g *game, p *player) error {
		if g.status != view.StatusSetup {
			return fmt.Errorf("%w: objectives are chosen during setup", ErrInvalidAction)
		}
		for _, o := range p.options {
			if o.ObjectiveID() == objectiveID {
				p.objective = o
				g.finishSetup()
				return nil
			}
		}
		return fmt.Errorf("%w: objective %d was not offered", ErrInvalidAction, objectiveID)
	})
}

// PlaceCard lays a hand card on the player's board with the face the hand shows.
func (m *Manager) PlaceCard(name, playerName string, cardID, x, y int) error {
	return m.withPlayer(name, playerName, func(g *game, p *player) error {
		i := p.handIndex(cardID)
		if i < 0 {
			return fmt.Errorf("%w: card %d is not in hand", ErrInvalidAction, cardID)
		}
		h := p.hand[i]

		switch {
		case g.status == view.StatusSetup:
			if h.card.Kind != card.Starter {
				return fmt.Errorf("%w: only the starter card is placed during setup", ErrInvalidAction)
			}
		case g.inPlay():
			if g.currentName() != playerName {
				return fmt.Errorf("%w: %q plays now", ErrNotYourTurn, g.currentName())
			}
			if g.phase != view.PhasePlace {
				return fmt.Errorf("%w: draw a card first", ErrInvalidAction)
			}
		default:
			return fmt.Errorf("%w: game is %s", ErrInvalidAction, g.status)
		}

		if err := p.board.CanPlace(h.card, h.face, x, y); err != nil {
			return err
		}
		covered := p.board.place(h.card, h.face, x, y)
		p.points += placementPoints(h.card.Side(h.face), covered, p.board)
		p.hand = append(p.hand[:i], p.hand[i+1:]...)

		if g.status == view.StatusSetup {
			g.finishSetup()
			return nil
		}
		g.phase = view.PhaseDraw
		if !g.canDraw() {
			g.endTurn()
		}
		return nil
	})
}

func (m *Manager) drawTurn(name, playerName string, draw func(g *game, p *player) error) error {
	return m.withPlayer(name, playerName, func(g *game, p *player) error {
		if !g.inPlay() {
			return fmt.Errorf("%w: game is %s", ErrInvalidAction, g.status)
		}
		if g.currentName() != playerName {
			return fmt.Errorf("%w: %q plays now", ErrNotYourTurn, g.currentName())
		}
		if g.phase != view.PhaseDraw {
			return fmt.Errorf("%w: place a card first", ErrInvalidAction)
		}
		if err := draw(g, p); err != nil {
			return err
		}
		g.endTurn()
		return nil
	})
}

func (m *Manager) DrawFromField(name, playerName string, cardID int) error {
	return m.drawTurn(name, playerName, func(g *game, p *player) error {
		return g.drawFromField(p, cardID)
	})
}

func (m *Manager) DrawFromDeck(name, playerName string, kind card.Kind) error {
	return m.drawTurn(name, playerName, func(g *game, p *player) error {
		return g.drawFromDeck(p, kind)
	})
}

// SwitchCardSide flips the face a hand card will be placed with.
func (m *Manager) SwitchCardSide(name, playerName string, cardID int) error {
	return m.withPlayer(name, playerName, func(g *game, p *player) error {
		i := p.handIndex(cardID)
		if i < 0 {
			return fmt.Errorf("%w: card %d is not in hand", ErrInvalidAction, cardID)
		}
		p.hand[i].face = p.hand[i].face.Flip()
		return nil
	})
}

// VirtualView snapshots one game.
func (m *Manager) VirtualView(name string) (view.VirtualView, error) {
	var v view.VirtualView
	err := m.with(name, func(g *game) error {
		v = buildView(g)
		return nil
	})
	return v, err
}

// Games lists every game ordered by name.
func (m *Manager) Games() []view.GameRecord {
	m.mu.RLock()
	games := make([]*game, 0, len(m.games))
	for _, g := range m.games {
		games = append(games, g)
	}
	m.mu.RUnlock()

	out := make([]view.GameRecord, 0, len(games))
	for _, g := range games {
		g.mu.Lock()
		out = append(out, view.GameRecord{Name: g.name, JoinedPlayers: len(g.players), MaxPlayers: g.maxPlayers})
		g.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
