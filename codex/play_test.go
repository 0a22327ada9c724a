package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/gosuda/codex-sync/codex/game"
	"github.com/gosuda/codex-sync/codex/view"
)

// engineActor plays setup moves straight into an engine.
type engineActor struct {
	m     *game.Manager
	game  string
	name  string
	calls int
}

func (a *engineActor) PlaceCard(cardID, x, y int) error {
	a.calls++
	return a.m.PlaceCard(a.game, a.name, cardID, x, y)
}

func (a *engineActor) ChooseColor(c view.Color) error {
	a.calls++
	return a.m.ChoosePlayerColor(a.game, a.name, c)
}

func (a *engineActor) ChooseObjective(id int) error {
	a.calls++
	return a.m.SetPlayerObjective(a.game, a.name, id)
}

func TestAutoSetupReachesPlay(t *testing.T) {
	m := game.NewManager(game.WithSeed(9))
	if err := m.CreateGame("g", "ada", 2); err != nil {
		t.Fatal(err)
	}
	if err := m.JoinGame("g", "bob"); err != nil {
		t.Fatal(err)
	}
	actors := map[string]*engineActor{}
	players := map[string]*player{}
	for _, n := range []string{"ada", "bob"} {
		actors[n] = &engineActor{m: m, game: "g", name: n}
		players[n] = &player{name: n, auto: true, act: actors[n]}
	}

	for i := 0; i < 10; i++ {
		v, err := m.VirtualView("g")
		if err != nil {
			t.Fatal(err)
		}
		if v.GameView.Status != view.StatusSetup {
			break
		}
		for _, n := range []string{"ada", "bob"} {
			fresh, _ := m.VirtualView("g")
			if err := players[n].setup(fresh); err != nil {
				t.Fatalf("%s: %v", n, err)
			}
		}
	}
	v, _ := m.VirtualView("g")
	if v.GameView.Status != view.StatusPlaying {
		t.Fatalf("status = %s", v.GameView.Status)
	}
	for n, a := range actors {
		if a.calls != 3 {
			t.Fatalf("%s made %d setup calls, want 3", n, a.calls)
		}
	}
	ada, _ := v.Player("ada")
	bob, _ := v.Player("bob")
	if ada.Color == bob.Color {
		t.Fatalf("both players chose %s", ada.Color)
	}

	// Nothing left to do once play started.
	if err := players["ada"].setup(v); err != nil || actors["ada"].calls != 3 {
		t.Fatalf("setup after start: %v, %d calls", err, actors["ada"].calls)
	}
}

func TestSetupSendsEachChoiceOnce(t *testing.T) {
	m := game.NewManager(game.WithSeed(9))
	if err := m.CreateGame("g", "ada", 2); err != nil {
		t.Fatal(err)
	}
	if err := m.JoinGame("g", "bob"); err != nil {
		t.Fatal(err)
	}
	a := &engineActor{m: m, game: "g", name: "ada"}
	p := &player{name: "ada", auto: true, act: a}
	v, _ := m.VirtualView("g")
	// The same stale view twice: the second must not resend.
	for i := 0; i < 2; i++ {
		if err := p.setup(v); err != nil {
			t.Fatal(err)
		}
	}
	if a.calls != 1 {
		t.Fatalf("calls = %d", a.calls)
	}
}

func TestDescribe(t *testing.T) {
	m := game.NewManager(game.WithSeed(3))
	if err := m.CreateGame("g", "ada", 2); err != nil {
		t.Fatal(err)
	}
	v, _ := m.VirtualView("g")
	var buf bytes.Buffer
	describe(&buf, "g.json", v)
	out := buf.String()
	for _, want := range []string{`g.json: "g" WAITING_FOR_PLAYERS, 1/2 players`, "ada"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in\n%s", want, out)
		}
	}
}
