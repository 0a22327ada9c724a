package card

import "maps"

// ObjectiveType discriminates the closed family of objective cards on the wire.
type ObjectiveType string

const (
	PositionalObjectiveCard ObjectiveType = "PositionalObjectiveCard"
	ItemObjectiveCard       ObjectiveType = "ItemObjectiveCard"
)

// Objective is a scoring goal evaluated against a player's board at game end.
type Objective interface {
	ObjectiveType() ObjectiveType
	ObjectiveID() int
	ObjectivePoints() int
	Clone() Objective
}

// Cell is one element of a positional pattern, relative to the pattern anchor.
type Cell struct {
	DX      int    `json:"dx"`
	DY      int    `json:"dy"`
	Kingdom Symbol `json:"kingdom"`
}

// PositionalObjective awards Points for every disjoint occurrence of Pattern.
type PositionalObjective struct {
	ID      int    `json:"id"`
	Points  int    `json:"points"`
	Pattern []Cell `json:"pattern"`
}

func (o *PositionalObjective) ObjectiveType() ObjectiveType { return PositionalObjectiveCard }
func (o *PositionalObjective) ObjectiveID() int             { return o.ID }
func (o *PositionalObjective) ObjectivePoints() int         { return o.Points }
func (o *PositionalObjective) Clone() Objective {
	c := *o
	c.Pattern = append([]Cell(nil), o.Pattern...)
	return &c
}

// ItemObjective awards Points for every complete set of Requirements visible.
type ItemObjective struct {
	ID           int            `json:"id"`
	Points       int            `json:"points"`
	Requirements map[Symbol]int `json:"requirements"`
}

func (o *ItemObjective) ObjectiveType() ObjectiveType { return ItemObjectiveCard }
func (o *ItemObjective) ObjectiveID() int             { return o.ID }
func (o *ItemObjective) ObjectivePoints() int         { return o.Points }
func (o *ItemObjective) Clone() Objective {
	c := *o
	c.Requirements = maps.Clone(o.Requirements)
	return &c
}
