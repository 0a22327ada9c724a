package game

import (
	"fmt"
	"sort"

	"github.com/gosuda/codex-sync/codex/card"
)

type point struct{ x, y int }

// Placement is one card laid on a personal board.
type Placement struct {
	Card *card.Card
	Face card.Face
	X, Y int

	covered [4]bool
}

// Side returns the side facing up.
func (p *Placement) Side() card.Side { return p.Card.Side(p.Face) }

// Covered reports whether corner i has a later card on top of it.
func (p *Placement) Covered(i card.CornerIndex) bool { return p.covered[i] }

// Board is a personal play area. Cards are addressed by integer coordinates with
// the starter card at the origin and diagonal neighbours at (x±1, y±1).
type Board struct {
	cells   map[point]*Placement
	order   []*Placement
	symbols map[card.Symbol]int
}

func NewBoard() *Board {
	return &Board{cells: make(map[point]*Placement), symbols: make(map[card.Symbol]int)}
}

func (b *Board) Len() int { return len(b.order) }

func (b *Board) At(x, y int) (*Placement, bool) {
	p, ok := b.cells[point{x, y}]
	return p, ok
}

// Placements returns the cards in placement order.
func (b *Board) Placements() []*Placement { return append([]*Placement(nil), b.order...) }

// Count returns how many s symbols are visible.
func (b *Board) Count(s card.Symbol) int { return b.symbols[s] }

// Symbols returns the visible symbol counts, omitting zeros.
func (b *Board) Symbols() map[card.Symbol]int {
	out := make(map[card.Symbol]int, len(b.symbols))
	for s, n := range b.symbols {
		if n > 0 {
			out[s] = n
		}
	}
	return out
}

// CanPlace checks the placement rules without changing the board.
func (b *Board) CanPlace(c *card.Card, f card.Face, x, y int) error {
	if _, taken := b.cells[point{x, y}]; taken {
		return fmt.Errorf("%w: cell (%d,%d) is occupied", ErrInvalidAction, x, y)
	}
	if b.Len() == 0 {
		if c.Kind != card.Starter || x != 0 || y != 0 {
			return fmt.Errorf("%w: the starter card goes first at (0,0)", ErrInvalidAction)
		}
		return nil
	}
	if c.Kind == card.Starter {
		return fmt.Errorf("%w: starter card already placed", ErrInvalidAction)
	}

	neighbours := 0
	for i := card.TopLeft; i <= card.BottomLeft; i++ {
		dx, dy := i.Offset()
		n, ok := b.cells[point{x + dx, y + dy}]
		if !ok {
			continue
		}
		neighbours++
		if !n.Side().CornerSet()[i.Opposite()].Coverable() {
			return fmt.Errorf("%w: (%d,%d) would cover a hidden corner of card %d", ErrInvalidAction, x, y, n.Card.ID)
		}
	}
	if neighbours == 0 {
		return fmt.Errorf("%w: (%d,%d) does not touch any placed card", ErrInvalidAction, x, y)
	}

	if f == card.Front {
		for s, need := range card.Requirements(c.Front) {
			if b.symbols[s] < need {
				return fmt.Errorf("%w: card %d needs %d %s, board shows %d", ErrInvalidAction, c.ID, need, s, b.symbols[s])
			}
		}
	}
	return nil
}

// place lays the card without checking the rules and returns the number of
// corners it covered.
func (b *Board) place(c *card.Card, f card.Face, x, y int) int {
	p := &Placement{Card: c, Face: f, X: x, Y: y}
	covered := 0
	for i := card.TopLeft; i <= card.BottomLeft; i++ {
		dx, dy := i.Offset()
		n, ok := b.cells[point{x + dx, y + dy}]
		if !ok {
			continue
		}
		opp := i.Opposite()
		n.covered[opp] = true
		if s, ok := n.Side().CornerSet()[opp].Symbol(); ok {
			b.symbols[s]--
		}
		covered++
	}
	side := p.Side()
	for _, corner := range side.CornerSet() {
		if s, ok := corner.Symbol(); ok {
			b.symbols[s]++
		}
	}
	for _, s := range side.Center() {
		b.symbols[s]++
	}
	b.cells[point{x, y}] = p
	b.order = append(b.order, p)
	return covered
}

// placementPoints scores a side right after it was placed.
func placementPoints(side card.Side, covered int, b *Board) int {
	switch s := side.(type) {
	case *card.FrontSide:
		return s.Points
	case *card.GoldSide:
		return s.Points
	case *card.ItemGoldSide:
		return s.Points * b.Count(s.Item)
	case *card.PositionalGoldSide:
		return s.Points * covered
	}
	return 0
}

// Scorer evaluates an objective against a finished board.
type Scorer interface {
	Score(obj card.Objective, b *Board) int
}

// DefaultScorer counts complete symbol sets for item objectives and disjoint
// pattern occurrences for positional objectives.
type DefaultScorer struct{}

func (DefaultScorer) Score(obj card.Objective, b *Board) int {
	switch o := obj.(type) {
	case *card.ItemObjective:
		sets := -1
		for s, need := range o.Requirements {
			if need <= 0 {
				continue
			}
			if n := b.Count(s) / need; sets < 0 || n < sets {
				sets = n
			}
		}
		if sets < 0 {
			return 0
		}
		return sets * o.Points
	case *card.PositionalObjective:
		return countPattern(o.Pattern, b) * o.Points
	}
	return 0
}

func countPattern(pattern []card.Cell, b *Board) int {
	if len(pattern) == 0 {
		return 0
	}
	anchors := b.Placements()
	sort.Slice(anchors, func(i, j int) bool {
		if anchors[i].Y != anchors[j].Y {
			return anchors[i].Y > anchors[j].Y
		}
		return anchors[i].X < anchors[j].X
	})

	used := make(map[point]bool)
	count := 0
	cells := make([]point, 0, len(pattern))
	for _, a := range anchors {
		cells = cells[:0]
		match := true
		for _, cell := range pattern {
			pt := point{a.X + cell.DX, a.Y + cell.DY}
			q, ok := b.cells[pt]
			if !ok || used[pt] || q.Card.Kind == card.Starter || q.Card.Kingdom() != cell.Kingdom {
				match = false
				break
			}
			cells = append(cells, pt)
		}
		if !match {
			continue
		}
		for _, pt := range cells {
			used[pt] = true
		}
		count++
	}
	return count
}
