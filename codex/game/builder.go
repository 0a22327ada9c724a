package game

import (
	"github.com/gosuda/codex-sync/codex/card"
	"github.com/gosuda/codex-sync/codex/view"
)

// buildView snapshots g. The caller holds g.mu. Nothing in the result aliases
// engine state: sides and objectives are cloned.
func buildView(g *game) view.VirtualView {
	gv := view.GameView{
		Name:           g.name,
		Status:         g.status,
		MaxPlayers:     g.maxPlayers,
		CurrentPlayer:  g.currentName(),
		TurnPhase:      g.phase,
		RemainingTurns: g.remaining,
		Board: view.GlobalBoardView{
			ResourceDeckSize: g.resource.len(),
			GoldDeckSize:     g.gold.len(),
			ResourceDeckTop:  g.resource.top(),
			GoldDeckTop:      g.gold.top(),
			ResourceField:    cardViews(g.resourceField),
			GoldField:        cardViews(g.goldField),
			CommonObjectives: objectiveViews(g.common),
		},
	}
	if g.winners != nil {
		gv.Winners = append([]string{}, g.winners...)
	}
	for _, p := range g.players {
		gv.Players = append(gv.Players, playerView(p))
	}
	return view.VirtualView{GameView: gv}
}

func playerView(p *player) view.PlayerView {
	pv := view.PlayerView{
		Name:             p.name,
		Color:            p.color,
		Position:         p.points,
		Connected:        p.connected,
		ObjectiveOptions: objectiveViews(p.options),
		Board:            view.PlayerBoardView{Symbols: p.board.Symbols()},
	}
	if p.objective != nil {
		pv.Objective = &card.AnyObjective{Objective: p.objective.Clone()}
	}
	for _, h := range p.hand {
		pv.Hand.Cards = append(pv.Hand.Cards, view.HandCardView{CardView: cardView(h.card), Face: h.face})
	}
	for _, pl := range p.board.order {
		pv.Board.Placements = append(pv.Board.Placements, view.PlacementView{
			CardID: pl.Card.ID,
			X:      pl.X,
			Y:      pl.Y,
			Face:   pl.Face,
			Side:   card.AnySide{Side: pl.Side().Clone()},
		})
	}
	return pv
}

func cardView(c *card.Card) view.CardView {
	return view.CardView{
		ID:    c.ID,
		Kind:  c.Kind,
		Front: card.AnySide{Side: c.Front.Clone()},
		Back:  card.AnySide{Side: c.Back.Clone()},
	}
}

func cardViews(cards []*card.Card) []view.CardView {
	var out []view.CardView
	for _, c := range cards {
		out = append(out, cardView(c))
	}
	return out
}

func objectiveViews(objs []card.Objective) []card.AnyObjective {
	var out []card.AnyObjective
	for _, o := range objs {
		out = append(out, card.AnyObjective{Objective: o.Clone()})
	}
	return out
}
