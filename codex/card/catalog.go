package card

import (
	"fmt"
	"sort"
)

// Catalog is the immutable set of cards a game is played with.
type Catalog struct {
	cards      map[int]*Card
	objectives map[int]Objective

	resource  []int
	gold      []int
	starter   []int
	objective []int
}

// Card looks up a playable card by id.
func (c *Catalog) Card(id int) (*Card, bool) {
	card, ok := c.cards[id]
	return card, ok
}

// Objective looks up an objective card by id.
func (c *Catalog) Objective(id int) (Objective, bool) {
	o, ok := c.objectives[id]
	return o, ok
}

// IDs returns the ids of every card of kind k in catalog order.
func (c *Catalog) IDs(k Kind) []int {
	switch k {
	case Resource:
		return append([]int(nil), c.resource...)
	case Gold:
		return append([]int(nil), c.gold...)
	case Starter:
		return append([]int(nil), c.starter...)
	}
	return nil
}

// ObjectiveIDs returns every objective id in catalog order.
func (c *Catalog) ObjectiveIDs() []int { return append([]int(nil), c.objective...) }

// Len reports the number of playable cards.
func (c *Catalog) Len() int { return len(c.cards) }

// NewCatalog builds a catalog from explicit cards and objectives. Ids must be unique.
func NewCatalog(cards []*Card, objectives []Objective) (*Catalog, error) {
	c := &Catalog{cards: make(map[int]*Card, len(cards)), objectives: make(map[int]Objective, len(objectives))}
	for _, card := range cards {
		if _, dup := c.cards[card.ID]; dup {
			return nil, fmt.Errorf("card: duplicate card id %d", card.ID)
		}
		c.cards[card.ID] = card
		switch card.Kind {
		case Resource:
			c.resource = append(c.resource, card.ID)
		case Gold:
			c.gold = append(c.gold, card.ID)
		case Starter:
			c.starter = append(c.starter, card.ID)
		default:
			return nil, fmt.Errorf("card: card %d has unknown kind %q", card.ID, card.Kind)
		}
	}
	for _, o := range objectives {
		if _, dup := c.objectives[o.ObjectiveID()]; dup {
			return nil, fmt.Errorf("card: duplicate objective id %d", o.ObjectiveID())
		}
		c.objectives[o.ObjectiveID()] = o
		c.objective = append(c.objective, o.ObjectiveID())
	}
	for _, ids := range [][]int{c.resource, c.gold, c.starter, c.objective} {
		sort.Ints(ids)
	}
	return c, nil
}

// Corner layouts. K is the card's kingdom, I the item assigned to the card,
// E empty and H hidden.
var (
	resourceLayouts = [10]string{"KKEH", "KHKE", "EKHK", "HEKK", "KIHE", "IKEH", "EHKI", "KEHK", "HKKE", "KHEK"}
	goldLayouts     = [10]string{"EIHE", "HEEI", "IEEH", "EHEE", "EEHE", "HEEE", "EEHI", "EIEH", "EHEE", "HEEE"}
	starterLayouts  = [6]string{"EPEA", "AEFE", "FEEP", "EAPE", "EEEE", "PEEF"}
)

const (
	resourcePerKingdom = 10
	goldPerKingdom     = 10
	firstGoldID        = 41
	firstStarterID     = 81
	firstObjectiveID   = 87
)

func layout(pattern string, kingdom, item Symbol) [4]Corner {
	var out [4]Corner
	for i, r := range pattern {
		switch r {
		case 'K':
			out[i] = SymbolCorner(kingdom)
		case 'I':
			out[i] = SymbolCorner(item)
		case 'H':
			out[i] = Hidden
		case 'F':
			out[i] = SymbolCorner(Fungi)
		case 'P':
			out[i] = SymbolCorner(Plant)
		case 'A':
			out[i] = SymbolCorner(Animal)
		default:
			out[i] = Empty
		}
	}
	return out
}

func cardBack(kingdom Symbol) *BackSide {
	return &BackSide{
		Kingdom:   kingdom,
		Corners:   [4]Corner{Empty, Empty, Empty, Empty},
		Resources: []Symbol{kingdom},
	}
}

// Standard returns the reference catalog: 40 resource cards (ids 1-40), 40 gold
// cards (41-80), 6 starter cards (81-86) and 16 objectives (87-102).
func Standard() *Catalog {
	cards := make([]*Card, 0, 86)
	id := 1
	for k, kingdom := range Kingdoms {
		for i := 0; i < resourcePerKingdom; i++ {
			points := 0
			if i >= 7 {
				points = 1
			}
			cards = append(cards, &Card{
				ID:    id,
				Kind:  Resource,
				Front: &FrontSide{Kingdom: kingdom, Corners: layout(resourceLayouts[i], kingdom, Items[(i+k)%len(Items)]), Points: points},
				Back:  cardBack(kingdom),
			})
			id++
		}
	}

	id = firstGoldID
	for k, kingdom := range Kingdoms {
		next := Kingdoms[(k+1)%len(Kingdoms)]
		for i := 0; i < goldPerKingdom; i++ {
			item := Items[i%len(Items)]
			corners := layout(goldLayouts[i], kingdom, item)
			var front Side
			switch {
			case i < 3:
				front = &ItemGoldSide{
					GoldSide: GoldSide{Kingdom: kingdom, Corners: corners, Points: 1, Requirements: map[Symbol]int{kingdom: 2, next: 1}},
					Item:     item,
				}
			case i < 6:
				front = &PositionalGoldSide{
					GoldSide: GoldSide{Kingdom: kingdom, Corners: corners, Points: 2, Requirements: map[Symbol]int{kingdom: 3, next: 1}},
				}
			case i < 9:
				front = &GoldSide{Kingdom: kingdom, Corners: corners, Points: 3, Requirements: map[Symbol]int{kingdom: 3}}
			default:
				front = &GoldSide{Kingdom: kingdom, Corners: corners, Points: 5, Requirements: map[Symbol]int{kingdom: 5}}
			}
			cards = append(cards, &Card{ID: id, Kind: Gold, Front: front, Back: cardBack(kingdom)})
			id++
		}
	}

	id = firstStarterID
	for i, pattern := range starterLayouts {
		center := []Symbol{Kingdoms[i%len(Kingdoms)]}
		if i >= 2 {
			center = append(center, Kingdoms[(i+1)%len(Kingdoms)])
		}
		if i >= 4 {
			center = append(center, Kingdoms[(i+2)%len(Kingdoms)])
		}
		back := [4]Corner{}
		for c := range back {
			back[c] = SymbolCorner(Kingdoms[(i+c)%len(Kingdoms)])
		}
		cards = append(cards, &Card{
			ID:    id,
			Kind:  Starter,
			Front: &BackSide{Corners: layout(pattern, "", ""), Resources: center},
			Back:  &FrontSide{Corners: back},
		})
		id++
	}

	objectives := make([]Objective, 0, 16)
	id = firstObjectiveID
	for k, kingdom := range Kingdoms {
		objectives = append(objectives, &PositionalObjective{
			ID:      id,
			Points:  2,
			Pattern: diagonal(kingdom, k%2 == 0),
		})
		id++
	}
	for k, kingdom := range Kingdoms {
		below := Kingdoms[(k+1)%len(Kingdoms)]
		objectives = append(objectives, &PositionalObjective{
			ID:     id,
			Points: 3,
			Pattern: []Cell{
				{DX: 0, DY: 0, Kingdom: kingdom},
				{DX: 0, DY: -2, Kingdom: kingdom},
				{DX: 1, DY: -3, Kingdom: below},
			},
		})
		id++
	}
	for _, kingdom := range Kingdoms {
		objectives = append(objectives, &ItemObjective{ID: id, Points: 2, Requirements: map[Symbol]int{kingdom: 3}})
		id++
	}
	for _, item := range Items {
		objectives = append(objectives, &ItemObjective{ID: id, Points: 2, Requirements: map[Symbol]int{item: 2}})
		id++
	}
	objectives = append(objectives, &ItemObjective{ID: id, Points: 3, Requirements: map[Symbol]int{Quill: 1, Inkwell: 1, Manuscript: 1}})

	catalog, err := NewCatalog(cards, objectives)
	if err != nil {
		panic(err)
	}
	return catalog
}

func diagonal(kingdom Symbol, rising bool) []Cell {
	step := -1
	if rising {
		step = 1
	}
	return []Cell{
		{DX: 0, DY: 0, Kingdom: kingdom},
		{DX: 1, DY: step, Kingdom: kingdom},
		{DX: 2, DY: 2 * step, Kingdom: kingdom},
	}
}
