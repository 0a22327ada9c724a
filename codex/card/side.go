package card

import "maps"

// SideType discriminates the closed family of card sides on the wire.
type SideType string

const (
	FrontGameCard               SideType = "FrontGameCard"
	FrontGoldGameCard           SideType = "FrontGoldGameCard"
	FrontItemGoldGameCard       SideType = "FrontItemGoldGameCard"
	FrontPositionalGoldGameCard SideType = "FrontPositionalGoldGameCard"
	BackGameCard                SideType = "BackGameCard"
)

// Side is one printed face of a playable card.
type Side interface {
	SideType() SideType
	CornerSet() [4]Corner
	// Center returns the permanent symbols printed in the middle of the side.
	Center() []Symbol
	Clone() Side
}

// FrontSide is the front of a resource card, and the corner-only back of a starter card.
type FrontSide struct {
	Kingdom Symbol    `json:"kingdom"`
	Corners [4]Corner `json:"corners"`
	Points  int       `json:"points"`
}

func (s *FrontSide) SideType() SideType   { return FrontGameCard }
func (s *FrontSide) CornerSet() [4]Corner { return s.Corners }
func (s *FrontSide) Center() []Symbol     { return nil }
func (s *FrontSide) Clone() Side          { c := *s; return &c }

// GoldSide is the front of a gold card scoring a flat amount once its
// requirements are visible on the board.
type GoldSide struct {
	Kingdom      Symbol         `json:"kingdom"`
	Corners      [4]Corner      `json:"corners"`
	Points       int            `json:"points"`
	Requirements map[Symbol]int `json:"requirements"`
}

func (s *GoldSide) SideType() SideType   { return FrontGoldGameCard }
func (s *GoldSide) CornerSet() [4]Corner { return s.Corners }
func (s *GoldSide) Center() []Symbol     { return nil }
func (s *GoldSide) Clone() Side          { return s.clone() }

func (s *GoldSide) clone() *GoldSide {
	c := *s
	c.Requirements = maps.Clone(s.Requirements)
	return &c
}

// ItemGoldSide scores Points for every visible Item after placement.
type ItemGoldSide struct {
	GoldSide
	Item Symbol `json:"item"`
}

func (s *ItemGoldSide) SideType() SideType { return FrontItemGoldGameCard }
func (s *ItemGoldSide) Clone() Side {
	return &ItemGoldSide{GoldSide: *s.GoldSide.clone(), Item: s.Item}
}

// PositionalGoldSide scores Points for every corner it covers when placed.
type PositionalGoldSide struct {
	GoldSide
}

func (s *PositionalGoldSide) SideType() SideType { return FrontPositionalGoldGameCard }
func (s *PositionalGoldSide) Clone() Side {
	return &PositionalGoldSide{GoldSide: *s.GoldSide.clone()}
}

// BackSide is the back of resource and gold cards and the front of starter cards:
// corners plus permanent center resources.
type BackSide struct {
	Kingdom   Symbol    `json:"kingdom"`
	Corners   [4]Corner `json:"corners"`
	Resources []Symbol  `json:"resources"`
}

func (s *BackSide) SideType() SideType   { return BackGameCard }
func (s *BackSide) CornerSet() [4]Corner { return s.Corners }
func (s *BackSide) Center() []Symbol     { return s.Resources }
func (s *BackSide) Clone() Side {
	c := *s
	if s.Resources != nil {
		c.Resources = append([]Symbol(nil), s.Resources...)
	}
	return &c
}

// Requirements returns the symbols that must be visible before the side can be
// played, or nil when the side is free to play.
func Requirements(s Side) map[Symbol]int {
	switch v := s.(type) {
	case *GoldSide:
		return v.Requirements
	case *ItemGoldSide:
		return v.Requirements
	case *PositionalGoldSide:
		return v.Requirements
	}
	return nil
}
