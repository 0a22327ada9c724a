// Package card holds the card model shared by the engine, the virtual view and the
// wire codec: playable cards with two sides, objective cards, and the closed
// families of side and objective shapes.
package card

// Symbol is a resource (kingdom) or item printed on a card.
type Symbol string

const (
	Fungi      Symbol = "FUNGI"
	Plant      Symbol = "PLANT"
	Animal     Symbol = "ANIMAL"
	Insect     Symbol = "INSECT"
	Quill      Symbol = "QUILL"
	Inkwell    Symbol = "INKWELL"
	Manuscript Symbol = "MANUSCRIPT"
)

// Kingdoms lists the four resource symbols in catalog order.
var Kingdoms = []Symbol{Fungi, Plant, Animal, Insect}

// Items lists the three item symbols in catalog order.
var Items = []Symbol{Quill, Inkwell, Manuscript}

// Corner is the content of one card corner: HIDDEN, EMPTY or a symbol.
type Corner string

const (
	Hidden Corner = "HIDDEN"
	Empty  Corner = "EMPTY"
)

// SymbolCorner returns a visible corner carrying s.
func SymbolCorner(s Symbol) Corner { return Corner(s) }

// Symbol reports the symbol shown by the corner, if any.
func (c Corner) Symbol() (Symbol, bool) {
	if c == Hidden || c == Empty || c == "" {
		return "", false
	}
	return Symbol(c), true
}

// Coverable reports whether another card may be laid over this corner.
func (c Corner) Coverable() bool { return c != Hidden && c != "" }

// CornerIndex addresses the four corners clockwise from the top left.
type CornerIndex int

const (
	TopLeft CornerIndex = iota
	TopRight
	BottomRight
	BottomLeft
)

// Opposite returns the corner of a diagonal neighbour that touches corner i.
func (i CornerIndex) Opposite() CornerIndex { return (i + 2) % 4 }

// Offset returns the board delta of the diagonal neighbour reached through corner i.
// The y axis grows upwards.
func (i CornerIndex) Offset() (dx, dy int) {
	switch i {
	case TopLeft:
		return -1, 1
	case TopRight:
		return 1, 1
	case BottomRight:
		return 1, -1
	default:
		return -1, -1
	}
}

// Kind is the deck a playable card belongs to.
type Kind string

const (
	Resource Kind = "RESOURCE"
	Gold     Kind = "GOLD"
	Starter  Kind = "STARTER"
)

// Face selects one of the two sides of a card.
type Face string

const (
	Front Face = "FRONT"
	Back  Face = "BACK"
)

// Flip returns the other face.
func (f Face) Flip() Face {
	if f == Front {
		return Back
	}
	return Front
}

// Valid reports whether f names a side.
func (f Face) Valid() bool { return f == Front || f == Back }

// Card is a playable card. Cards are immutable catalog values; the engine refers to
// them by pointer and never mutates them.
type Card struct {
	ID    int
	Kind  Kind
	Front Side
	Back  Side
}

// Side returns the side shown for face f.
func (c *Card) Side(f Face) Side {
	if f == Back {
		return c.Back
	}
	return c.Front
}

// Kingdom returns the kingdom of the card, taken from its back; starter cards have none.
func (c *Card) Kingdom() Symbol {
	if b, ok := c.Back.(*BackSide); ok {
		return b.Kingdom
	}
	return ""
}
