package game

import (
	"fmt"
	"maps"

	"github.com/gosuda/codex-sync/codex/card"
	"github.com/gosuda/codex-sync/codex/view"
)

// Rebuilding a game from a snapshot: BeginRestore seats the first player,
// JoinGame seats the rest without dealing, RestorePlayer replays each player's
// state and RestoreTable rebuilds decks and turn state, ending the restore.

// BeginRestore creates an empty game that is filled from a snapshot.
func (m *Manager) BeginRestore(name, firstPlayer string, n int) error {
	return m.create(name, firstPlayer, n, true)
}

func (m *Manager) cardByID(id int) (*card.Card, error) {
	c, ok := m.catalog.Card(id)
	if !ok {
		return nil, fmt.Errorf("%w: unknown card %d", ErrInvalidAction, id)
	}
	return c, nil
}

func (m *Manager) objectiveByID(id int) (card.Objective, error) {
	o, ok := m.catalog.Objective(id)
	if !ok {
		return nil, fmt.Errorf("%w: unknown objective %d", ErrInvalidAction, id)
	}
	return o, nil
}

func (m *Manager) objectives(in []card.AnyObjective) ([]card.Objective, error) {
	var out []card.Objective
	for _, a := range in {
		if a.Objective == nil {
			return nil, fmt.Errorf("%w: empty objective", ErrInvalidAction)
		}
		o, err := m.objectiveByID(a.ObjectiveID())
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// RestorePlayer replays one player's saved state. Placements are replayed in
// their saved order so covered corners and symbol counts are recomputed.
func (m *Manager) RestorePlayer(name string, pv view.PlayerView) error {
	return m.withPlayer(name, pv.Name, func(g *game, p *player) error {
		if !g.restoring {
			return fmt.Errorf("%w: %q is not being restored", ErrInvalidAction, name)
		}
		if pv.Color != "" && !pv.Color.Valid() {
			return fmt.Errorf("%w: unknown colour %q", ErrInvalidAction, pv.Color)
		}
		p.color = pv.Color
		p.points = pv.Position
		p.connected = pv.Connected

		p.objective = nil
		if pv.Objective != nil && pv.Objective.Objective != nil {
			o, err := m.objectiveByID(pv.Objective.ObjectiveID())
			if err != nil {
				return err
			}
			p.objective = o
		}
		opts, err := m.objectives(pv.ObjectiveOptions)
		if err != nil {
			return err
		}
		p.options = opts

		p.hand = nil
		for _, hc := range pv.Hand.Cards {
			c, err := m.cardByID(hc.ID)
			if err != nil {
				return err
			}
			if !hc.Face.Valid() {
				return fmt.Errorf("%w: card %d has face %q", ErrInvalidAction, hc.ID, hc.Face)
			}
			p.hand = append(p.hand, handCard{c, hc.Face})
		}

		p.board = NewBoard()
		for _, pl := range pv.Board.Placements {
			c, err := m.cardByID(pl.CardID)
			if err != nil {
				return err
			}
			if !pl.Face.Valid() {
				return fmt.Errorf("%w: placed card %d has face %q", ErrInvalidAction, pl.CardID, pl.Face)
			}
			if _, taken := p.board.At(pl.X, pl.Y); taken {
				return fmt.Errorf("%w: two cards at (%d,%d)", ErrInvalidAction, pl.X, pl.Y)
			}
			p.board.place(c, pl.Face, pl.X, pl.Y)
		}
		if !maps.Equal(p.board.Symbols(), nonZero(pv.Board.Symbols)) {
			return fmt.Errorf("%w: symbols of %q do not match the placed cards", ErrInvalidAction, pv.Name)
		}
		return nil
	})
}

func nonZero(in map[card.Symbol]int) map[card.Symbol]int {
	out := make(map[card.Symbol]int, len(in))
	for s, n := range in {
		if n != 0 {
			out[s] = n
		}
	}
	return out
}

// RestoreTable rebuilds the shared table. Decks hold every catalog card not
// accounted for by a hand, a board or the field; their sizes and top kingdoms
// must match the snapshot.
func (m *Manager) RestoreTable(name string, gv view.GameView) error {
	return m.with(name, func(g *game) error {
		if !g.restoring {
			return fmt.Errorf("%w: %q is not being restored", ErrInvalidAction, name)
		}
		switch gv.Status {
		case view.StatusWaiting:
			if len(g.players) >= g.maxPlayers {
				return fmt.Errorf("%w: a full table cannot be waiting", ErrInvalidAction)
			}
			g.status = view.StatusWaiting
			g.phase = view.PhaseNone
			g.restoring = false
			return nil
		case view.StatusSetup, view.StatusPlaying, view.StatusLastRound, view.StatusEnded:
		default:
			return fmt.Errorf("%w: unknown status %q", ErrInvalidAction, gv.Status)
		}
		if len(g.players) != g.maxPlayers {
			return fmt.Errorf("%w: %d of %d seats restored", ErrInvalidAction, len(g.players), g.maxPlayers)
		}

		cards := make(map[int]bool)
		objs := make(map[int]bool)
		account := func(id int) error {
			if cards[id] {
				return fmt.Errorf("%w: card %d appears twice", ErrInvalidAction, id)
			}
			cards[id] = true
			return nil
		}
		accountObj := func(o card.Objective) error {
			if objs[o.ObjectiveID()] {
				return fmt.Errorf("%w: objective %d appears twice", ErrInvalidAction, o.ObjectiveID())
			}
			objs[o.ObjectiveID()] = true
			return nil
		}
		for _, p := range g.players {
			for _, h := range p.hand {
				if err := account(h.card.ID); err != nil {
					return err
				}
			}
			for _, pl := range p.board.order {
				if err := account(pl.Card.ID); err != nil {
					return err
				}
			}
			for _, o := range p.options {
				if err := accountObj(o); err != nil {
					return err
				}
			}
		}

		field := func(in []view.CardView) ([]*card.Card, error) {
			var out []*card.Card
			for _, cv := range in {
				c, err := m.cardByID(cv.ID)
				if err != nil {
					return nil, err
				}
				if c.Kind != card.Resource && c.Kind != card.Gold {
					return nil, fmt.Errorf("%w: card %d cannot lie on the field", ErrInvalidAction, c.ID)
				}
				if err := account(c.ID); err != nil {
					return nil, err
				}
				out = append(out, c)
			}
			return out, nil
		}
		var err error
		if g.resourceField, err = field(gv.Board.ResourceField); err != nil {
			return err
		}
		if g.goldField, err = field(gv.Board.GoldField); err != nil {
			return err
		}
		if g.common, err = m.objectives(gv.Board.CommonObjectives); err != nil {
			return err
		}
		for _, o := range g.common {
			if err := accountObj(o); err != nil {
				return err
			}
		}

		rebuild := func(k card.Kind, size int, top card.Symbol) (deck, error) {
			var d deck
			for _, id := range m.catalog.IDs(k) {
				if !cards[id] {
					c, _ := m.catalog.Card(id)
					d.cards = append(d.cards, c)
				}
			}
			if k == card.Starter {
				d.shuffle(g.rng)
				return d, nil
			}
			if d.len() != size {
				return d, fmt.Errorf("%w: %s deck has %d cards, snapshot says %d", ErrInvalidAction, k, d.len(), size)
			}
			d.shuffle(g.rng)
			if err := d.setTop(top); err != nil {
				return d, fmt.Errorf("%w: %s deck: %v", ErrInvalidAction, k, err)
			}
			return d, nil
		}
		if g.resource, err = rebuild(card.Resource, gv.Board.ResourceDeckSize, gv.Board.ResourceDeckTop); err != nil {
			return err
		}
		if g.gold, err = rebuild(card.Gold, gv.Board.GoldDeckSize, gv.Board.GoldDeckTop); err != nil {
			return err
		}
		if g.starter, err = rebuild(card.Starter, 0, ""); err != nil {
			return err
		}

		g.objectives = nil
		for _, id := range m.catalog.ObjectiveIDs() {
			if !objs[id] {
				o, _ := m.catalog.Objective(id)
				g.objectives = append(g.objectives, o)
			}
		}
		g.rng.Shuffle(len(g.objectives), func(i, j int) {
			g.objectives[i], g.objectives[j] = g.objectives[j], g.objectives[i]
		})

		g.current = 0
		if gv.CurrentPlayer != "" {
			_, idx := g.player(gv.CurrentPlayer)
			if idx < 0 {
				return fmt.Errorf("%w: current player %q is not seated", ErrInvalidAction, gv.CurrentPlayer)
			}
			g.current = idx
		} else if gv.Status == view.StatusPlaying || gv.Status == view.StatusLastRound {
			return fmt.Errorf("%w: %s game without a current player", ErrInvalidAction, gv.Status)
		}
		g.status = gv.Status
		g.phase = gv.TurnPhase
		g.remaining = gv.RemainingTurns
		g.winners = nil
		if gv.Winners != nil {
			g.winners = append([]string{}, gv.Winners...)
		}
		g.restoring = false
		return nil
	})
}

// setTop moves a card of kingdom k to the top of the deck.
func (d *deck) setTop(k card.Symbol) error {
	if k == "" {
		if d.len() != 0 {
			return fmt.Errorf("top is empty but %d cards remain", d.len())
		}
		return nil
	}
	last := d.len() - 1
	for i := last; i >= 0; i-- {
		if d.cards[i].Kingdom() == k {
			d.cards[i], d.cards[last] = d.cards[last], d.cards[i]
			return nil
		}
	}
	return fmt.Errorf("no %s card left for the top", k)
}
