package game

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/gosuda/codex-sync/codex/card"
	"github.com/gosuda/codex-sync/codex/view"
)

const (
	// EndScore starts the last round once a player reaches it.
	EndScore = 20

	fieldSize     = 2
	objectiveDeal = 2
	commonDeal    = 2
)

type handCard struct {
	card *card.Card
	face card.Face
}

type player struct {
	name      string
	color     view.Color
	points    int
	connected bool
	objective card.Objective
	options   []card.Objective
	hand      []handCard
	board     *Board
}

func newPlayer(name string) *player {
	return &player{name: name, connected: true, board: NewBoard()}
}

func (p *player) handIndex(id int) int {
	for i, h := range p.hand {
		if h.card.ID == id {
			return i
		}
	}
	return -1
}

func (p *player) ready() bool {
	return p.board.Len() > 0 && p.color != "" && p.objective != nil
}

// deck draws from the end of the slice.
type deck struct {
	cards []*card.Card
}

func (d *deck) len() int { return len(d.cards) }

func (d *deck) draw() (*card.Card, bool) {
	if len(d.cards) == 0 {
		return nil, false
	}
	c := d.cards[len(d.cards)-1]
	d.cards = d.cards[:len(d.cards)-1]
	return c, true
}

func (d *deck) top() card.Symbol {
	if len(d.cards) == 0 {
		return ""
	}
	return d.cards[len(d.cards)-1].Kingdom()
}

func (d *deck) shuffle(rng *rand.Rand) {
	rng.Shuffle(len(d.cards), func(i, j int) { d.cards[i], d.cards[j] = d.cards[j], d.cards[i] })
}

// game is one table. All fields are guarded by mu.
type game struct {
	mu sync.Mutex

	name       string
	maxPlayers int
	status     view.GameStatus
	players    []*player
	current    int
	phase      view.TurnPhase
	remaining  int
	winners    []string

	resource   deck
	gold       deck
	starter    deck
	objectives []card.Objective

	resourceField []*card.Card
	goldField     []*card.Card
	common        []card.Objective

	rng       *rand.Rand
	scorer    Scorer
	restoring bool
}

func (g *game) player(name string) (*player, int) {
	for i, p := range g.players {
		if p.name == name {
			return p, i
		}
	}
	return nil, -1
}

func (g *game) inPlay() bool {
	return g.status == view.StatusPlaying || g.status == view.StatusLastRound
}

func (g *game) currentName() string {
	if !g.inPlay() || g.current < 0 || g.current >= len(g.players) {
		return ""
	}
	return g.players[g.current].name
}

// deal builds the decks and hands once the table is full.
func (g *game) deal(cat *card.Catalog) error {
	build := func(k card.Kind) deck {
		var d deck
		for _, id := range cat.IDs(k) {
			c, _ := cat.Card(id)
			d.cards = append(d.cards, c)
		}
		d.shuffle(g.rng)
		return d
	}
	g.resource = build(card.Resource)
	g.gold = build(card.Gold)
	g.starter = build(card.Starter)
	g.objectives = g.objectives[:0]
	for _, id := range cat.ObjectiveIDs() {
		o, _ := cat.Objective(id)
		g.objectives = append(g.objectives, o)
	}
	g.rng.Shuffle(len(g.objectives), func(i, j int) {
		g.objectives[i], g.objectives[j] = g.objectives[j], g.objectives[i]
	})

	need := len(g.players)*objectiveDeal + commonDeal
	if g.starter.len() < len(g.players) || len(g.objectives) < need ||
		g.resource.len() < len(g.players)*2+fieldSize || g.gold.len() < len(g.players)+fieldSize {
		return fmt.Errorf("%w: catalog too small for %d players", ErrInvalidAction, len(g.players))
	}

	for i := 0; i < fieldSize; i++ {
		c, _ := g.resource.draw()
		g.resourceField = append(g.resourceField, c)
		c, _ = g.gold.draw()
		g.goldField = append(g.goldField, c)
	}
	g.common = g.takeObjectives(commonDeal)
	for _, p := range g.players {
		s, _ := g.starter.draw()
		r1, _ := g.resource.draw()
		r2, _ := g.resource.draw()
		gc, _ := g.gold.draw()
		p.hand = []handCard{{s, card.Front}, {r1, card.Front}, {r2, card.Front}, {gc, card.Front}}
		p.options = g.takeObjectives(objectiveDeal)
	}
	g.status = view.StatusSetup
	g.phase = view.PhaseNone
	return nil
}

func (g *game) takeObjectives(n int) []card.Objective {
	out := append([]card.Objective(nil), g.objectives[:n]...)
	g.objectives = g.objectives[n:]
	return out
}

// finishSetup starts the first turn once every player is ready.
func (g *game) finishSetup() {
	if g.status != view.StatusSetup {
		return
	}
	for _, p := range g.players {
		if !p.ready() {
			return
		}
	}
	g.status = view.StatusPlaying
	g.current = 0
	g.phase = view.PhasePlace
	g.skipStalled()
}

func (g *game) canDraw() bool {
	return g.resource.len() > 0 || g.gold.len() > 0 || len(g.resourceField) > 0 || len(g.goldField) > 0
}

// drawFromField moves a field card into the hand and refills its slot from the
// matching deck, the other deck, or drops the slot.
func (g *game) drawFromField(p *player, id int) error {
	for _, f := range []struct {
		field        *[]*card.Card
		same, backup *deck
	}{
		{&g.resourceField, &g.resource, &g.gold},
		{&g.goldField, &g.gold, &g.resource},
	} {
		for i, c := range *f.field {
			if c.ID != id {
				continue
			}
			p.hand = append(p.hand, handCard{c, card.Front})
			if next, ok := f.same.draw(); ok {
				(*f.field)[i] = next
			} else if next, ok := f.backup.draw(); ok {
				(*f.field)[i] = next
			} else {
				*f.field = append((*f.field)[:i], (*f.field)[i+1:]...)
			}
			return nil
		}
	}
	return fmt.Errorf("%w: card %d is not on the field", ErrInvalidAction, id)
}

func (g *game) drawFromDeck(p *player, k card.Kind) error {
	d := &g.resource
	if k == card.Gold {
		d = &g.gold
	} else if k != card.Resource {
		return fmt.Errorf("%w: no %s deck", ErrInvalidAction, k)
	}
	c, ok := d.draw()
	if !ok {
		return fmt.Errorf("%w: %s deck is empty", ErrInvalidAction, k)
	}
	p.hand = append(p.hand, handCard{c, card.Front})
	return nil
}

// autoDraw refills the hand of a player who left during the draw phase.
func (g *game) autoDraw(p *player) {
	if g.drawFromDeck(p, card.Resource) == nil || g.drawFromDeck(p, card.Gold) == nil {
		return
	}
	if len(g.resourceField) > 0 {
		_ = g.drawFromField(p, g.resourceField[0].ID)
	} else if len(g.goldField) > 0 {
		_ = g.drawFromField(p, g.goldField[0].ID)
	}
}

// endTurn closes the current player's turn.
func (g *game) endTurn() {
	switch g.status {
	case view.StatusPlaying:
		if g.lastRoundReached() {
			n := len(g.players)
			g.status = view.StatusLastRound
			g.remaining = (n - 1 - g.current) + n
		}
	case view.StatusLastRound:
		g.remaining--
	}
	if g.status == view.StatusLastRound && g.remaining <= 0 {
		g.finish()
		return
	}
	g.advance()
}

func (g *game) lastRoundReached() bool {
	if g.resource.len() == 0 && g.gold.len() == 0 {
		return true
	}
	for _, p := range g.players {
		if p.points >= EndScore {
			return true
		}
	}
	return false
}

// advance moves to the next connected player. Skipped players lose their turn.
func (g *game) advance() {
	g.phase = view.PhasePlace
	for range g.players {
		g.current = (g.current + 1) % len(g.players)
		if g.players[g.current].connected {
			return
		}
		if g.status == view.StatusLastRound {
			g.remaining--
			if g.remaining <= 0 {
				g.finish()
				return
			}
		}
	}
}

// skipStalled ends the turn of a disconnected current player while someone else
// can play. A player who left after placing gets their draw done for them.
func (g *game) skipStalled() {
	if !g.inPlay() || g.players[g.current].connected {
		return
	}
	for _, p := range g.players {
		if p.connected {
			if g.phase == view.PhaseDraw {
				g.autoDraw(g.players[g.current])
			}
			g.endTurn()
			return
		}
	}
}

// finish scores objectives and picks the winners.
func (g *game) finish() {
	scorer := g.scorer
	if scorer == nil {
		scorer = DefaultScorer{}
	}
	best := -1
	for _, p := range g.players {
		if p.objective != nil {
			p.points += scorer.Score(p.objective, p.board)
		}
		for _, o := range g.common {
			p.points += scorer.Score(o, p.board)
		}
		if p.points > best {
			best = p.points
		}
	}
	g.winners = nil
	for _, p := range g.players {
		if p.points == best {
			g.winners = append(g.winners, p.name)
		}
	}
	g.status = view.StatusEnded
	g.phase = view.PhaseNone
	g.remaining = 0
}
