// Package view defines the virtual view: the read-only snapshot of a game that is
// serialised to clients and to storage. Snapshots are plain values; Clone returns a
// copy sharing no memory with the receiver.
package view

import (
	"maps"

	"github.com/gosuda/codex-sync/codex/card"
)

// GameStatus is the lifecycle stage of a game.
type GameStatus string

const (
	StatusWaiting   GameStatus = "WAITING_FOR_PLAYERS"
	StatusSetup     GameStatus = "SETUP"
	StatusPlaying   GameStatus = "PLAYING"
	StatusLastRound GameStatus = "LAST_ROUND"
	StatusEnded     GameStatus = "ENDED"
)

// TurnPhase is the step the current player is in.
type TurnPhase string

const (
	PhaseNone  TurnPhase = ""
	PhasePlace TurnPhase = "PLACE"
	PhaseDraw  TurnPhase = "DRAW"
)

// Color is a player's pawn colour.
type Color string

const (
	Red    Color = "RED"
	Blue   Color = "BLUE"
	Green  Color = "GREEN"
	Yellow Color = "YELLOW"
)

// Colors lists every selectable colour.
var Colors = []Color{Red, Blue, Green, Yellow}

// Valid reports whether c is a selectable colour.
func (c Color) Valid() bool {
	for _, v := range Colors {
		if c == v {
			return true
		}
	}
	return false
}

// GameRecord is the lobby listing entry for one game.
type GameRecord struct {
	Name          string `json:"name"`
	JoinedPlayers int    `json:"joinedPlayers"`
	MaxPlayers    int    `json:"maxPlayers"`
}

// IsFull reports whether no seat is left.
func (r GameRecord) IsFull() bool { return r.JoinedPlayers == r.MaxPlayers }

// VirtualView is the root of a snapshot.
type VirtualView struct {
	GameView GameView `json:"gameView"`
}

type GameView struct {
	Name           string          `json:"gameName"`
	Status         GameStatus      `json:"gameStatus"`
	MaxPlayers     int             `json:"maxPlayers"`
	CurrentPlayer  string          `json:"currentPlayer"`
	TurnPhase      TurnPhase       `json:"turnPhase"`
	RemainingTurns int             `json:"remainingTurns"`
	Players        []PlayerView    `json:"players"`
	Board          GlobalBoardView `json:"globalBoard"`
	Winners        []string        `json:"winners"`
}

type PlayerView struct {
	Name             string              `json:"playerName"`
	Color            Color               `json:"color"`
	Position         int                 `json:"position"` // score track
	Connected        bool                `json:"isConnected"`
	Objective        *card.AnyObjective  `json:"objective"`
	ObjectiveOptions []card.AnyObjective `json:"objectiveOptions"`
	Hand             PlayerHandView      `json:"hand"`
	Board            PlayerBoardView     `json:"board"`
}

type PlayerHandView struct {
	Cards []HandCardView `json:"cards"`
}

// CardView shows both sides of a card.
type CardView struct {
	ID    int          `json:"cardId"`
	Kind  card.Kind    `json:"cardKind"`
	Front card.AnySide `json:"front"`
	Back  card.AnySide `json:"back"`
}

// HandCardView is a card in hand together with the face it will be placed on.
type HandCardView struct {
	CardView
	Face card.Face `json:"face"`
}

type PlayerBoardView struct {
	Placements []PlacementView     `json:"placements"`
	Symbols    map[card.Symbol]int `json:"symbols"`
}

// PlacementView is one card on a personal board, in placement order.
type PlacementView struct {
	CardID int          `json:"cardId"`
	X      int          `json:"x"`
	Y      int          `json:"y"`
	Face   card.Face    `json:"face"`
	Side   card.AnySide `json:"side"`
}

type GlobalBoardView struct {
	ResourceDeckSize int                 `json:"resourceDeckSize"`
	GoldDeckSize     int                 `json:"goldDeckSize"`
	ResourceDeckTop  card.Symbol         `json:"resourceDeckTop"`
	GoldDeckTop      card.Symbol         `json:"goldDeckTop"`
	ResourceField    []CardView          `json:"resourceField"`
	GoldField        []CardView          `json:"goldField"`
	CommonObjectives []card.AnyObjective `json:"commonObjectives"`
}

// Player returns the view of the named player.
func (v *VirtualView) Player(name string) (*PlayerView, bool) {
	for i := range v.GameView.Players {
		if v.GameView.Players[i].Name == name {
			return &v.GameView.Players[i], true
		}
	}
	return nil, false
}

// PlayerNames lists players in join order.
func (v *VirtualView) PlayerNames() []string {
	names := make([]string, len(v.GameView.Players))
	for i, p := range v.GameView.Players {
		names[i] = p.Name
	}
	return names
}

// Clone returns a deep copy.
func (v VirtualView) Clone() VirtualView {
	return VirtualView{GameView: v.GameView.Clone()}
}

func (g GameView) Clone() GameView {
	out := g
	if g.Players != nil {
		out.Players = make([]PlayerView, len(g.Players))
		for i, p := range g.Players {
			out.Players[i] = p.Clone()
		}
	}
	out.Board = g.Board.Clone()
	if g.Winners != nil {
		out.Winners = append([]string{}, g.Winners...)
	}
	return out
}

func (p PlayerView) Clone() PlayerView {
	out := p
	if p.Objective != nil {
		o := p.Objective.Clone()
		out.Objective = &o
	}
	out.ObjectiveOptions = cloneObjectives(p.ObjectiveOptions)
	if p.Hand.Cards != nil {
		out.Hand.Cards = make([]HandCardView, len(p.Hand.Cards))
		for i, c := range p.Hand.Cards {
			out.Hand.Cards[i] = HandCardView{CardView: c.CardView.Clone(), Face: c.Face}
		}
	}
	if p.Board.Placements != nil {
		out.Board.Placements = make([]PlacementView, len(p.Board.Placements))
		for i, pl := range p.Board.Placements {
			pl.Side = pl.Side.Clone()
			out.Board.Placements[i] = pl
		}
	}
	out.Board.Symbols = maps.Clone(p.Board.Symbols)
	return out
}

func (c CardView) Clone() CardView {
	c.Front = c.Front.Clone()
	c.Back = c.Back.Clone()
	return c
}

func (b GlobalBoardView) Clone() GlobalBoardView {
	out := b
	out.ResourceField = cloneCards(b.ResourceField)
	out.GoldField = cloneCards(b.GoldField)
	out.CommonObjectives = cloneObjectives(b.CommonObjectives)
	return out
}

func cloneCards(in []CardView) []CardView {
	if in == nil {
		return nil
	}
	out := make([]CardView, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}

func cloneObjectives(in []card.AnyObjective) []card.AnyObjective {
	if in == nil {
		return nil
	}
	out := make([]card.AnyObjective, len(in))
	for i, o := range in {
		out[i] = o.Clone()
	}
	return out
}
