package card

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestStandardCatalogCounts(t *testing.T) {
	c := Standard()
	if got := len(c.IDs(Resource)); got != 40 {
		t.Fatalf("resource cards = %d, want 40", got)
	}
	if got := len(c.IDs(Gold)); got != 40 {
		t.Fatalf("gold cards = %d, want 40", got)
	}
	if got := len(c.IDs(Starter)); got != 6 {
		t.Fatalf("starter cards = %d, want 6", got)
	}
	if got := len(c.ObjectiveIDs()); got != 16 {
		t.Fatalf("objectives = %d, want 16", got)
	}
	for _, id := range c.IDs(Resource) {
		card, _ := c.Card(id)
		if card.Kingdom() == "" {
			t.Fatalf("resource card %d has no kingdom", id)
		}
	}
	for _, id := range c.IDs(Starter) {
		card, _ := c.Card(id)
		for _, corner := range card.Front.CornerSet() {
			if corner == "" {
				t.Fatalf("starter %d has an unset corner", id)
			}
		}
	}
}

func TestNewCatalogRejectsDuplicates(t *testing.T) {
	side := &FrontSide{Corners: [4]Corner{Empty, Empty, Empty, Empty}}
	_, err := NewCatalog([]*Card{
		{ID: 1, Kind: Resource, Front: side, Back: cardBack(Fungi)},
		{ID: 1, Kind: Gold, Front: side, Back: cardBack(Fungi)},
	}, nil)
	if err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestAnySideRoundTrip(t *testing.T) {
	c := Standard()
	for _, id := range []int{1, 41, 44, 48, 50, 81} {
		card, _ := c.Card(id)
		for _, side := range []Side{card.Front, card.Back} {
			in := AnySide{Side: side}
			data, err := json.Marshal(in)
			if err != nil {
				t.Fatalf("marshal %d: %v", id, err)
			}
			var out AnySide
			if err := json.Unmarshal(data, &out); err != nil {
				t.Fatalf("unmarshal %d: %v", id, err)
			}
			if !reflect.DeepEqual(in, out) {
				t.Fatalf("card %d side %s did not round-trip:\n%s", id, side.SideType(), data)
			}
		}
	}
}

func TestAnySideWireShape(t *testing.T) {
	data, err := json.Marshal(AnySide{Side: &FrontSide{Kingdom: Plant, Corners: [4]Corner{Empty, Hidden, Empty, Empty}, Points: 1}})
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if string(raw["sideType"]) != `"FrontGameCard"` {
		t.Fatalf("sideType = %s", raw["sideType"])
	}
	if _, ok := raw["content"]; !ok {
		t.Fatalf("missing content: %s", data)
	}
}

func TestAnySideUnknownType(t *testing.T) {
	var out AnySide
	err := json.Unmarshal([]byte(`{"sideType":"SilverCard","content":{}}`), &out)
	var shapeErr *UnknownShapeError
	if !errors.As(err, &shapeErr) {
		t.Fatalf("expected UnknownShapeError, got %v", err)
	}
}

func TestAnyObjectiveRoundTrip(t *testing.T) {
	c := Standard()
	for _, id := range c.ObjectiveIDs() {
		o, _ := c.Objective(id)
		in := AnyObjective{Objective: o}
		data, err := json.Marshal(in)
		if err != nil {
			t.Fatal(err)
		}
		var out AnyObjective
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(in, out) {
			t.Fatalf("objective %d did not round-trip: %s", id, data)
		}
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	gold := &ItemGoldSide{GoldSide: GoldSide{Requirements: map[Symbol]int{Fungi: 2}}, Item: Quill}
	clone := gold.Clone().(*ItemGoldSide)
	clone.Requirements[Fungi] = 9
	if gold.Requirements[Fungi] != 2 {
		t.Fatal("clone shares requirements map")
	}

	back := &BackSide{Resources: []Symbol{Animal}}
	bc := back.Clone().(*BackSide)
	bc.Resources[0] = Plant
	if back.Resources[0] != Animal {
		t.Fatal("clone shares resources slice")
	}
}

func TestCornerGeometry(t *testing.T) {
	for _, tc := range []struct {
		corner   CornerIndex
		opposite CornerIndex
		dx, dy   int
	}{
		{TopLeft, BottomRight, -1, 1},
		{TopRight, BottomLeft, 1, 1},
		{BottomRight, TopLeft, 1, -1},
		{BottomLeft, TopRight, -1, -1},
	} {
		if got := tc.corner.Opposite(); got != tc.opposite {
			t.Fatalf("%d.Opposite() = %d, want %d", tc.corner, got, tc.opposite)
		}
		dx, dy := tc.corner.Offset()
		if dx != tc.dx || dy != tc.dy {
			t.Fatalf("%d.Offset() = (%d,%d), want (%d,%d)", tc.corner, dx, dy, tc.dx, tc.dy)
		}
	}
}
