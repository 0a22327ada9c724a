package protocol

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/gosuda/codex-sync/codex/card"
	"github.com/gosuda/codex-sync/codex/view"
)

func sampleView() view.VirtualView {
	cat := card.Standard()
	gold, _ := cat.Card(44)
	starter, _ := cat.Card(81)
	obj, _ := cat.Objective(87)
	return view.VirtualView{GameView: view.GameView{
		Name:          "table",
		Status:        view.StatusPlaying,
		MaxPlayers:    2,
		CurrentPlayer: "ada",
		TurnPhase:     view.PhasePlace,
		Players: []view.PlayerView{{
			Name:             "ada",
			Color:            view.Red,
			Position:         3,
			Connected:        true,
			Objective:        &card.AnyObjective{Objective: obj},
			ObjectiveOptions: []card.AnyObjective{{Objective: obj}},
			Hand: view.PlayerHandView{Cards: []view.HandCardView{{
				CardView: view.CardView{ID: gold.ID, Kind: gold.Kind, Front: card.AnySide{Side: gold.Front}, Back: card.AnySide{Side: gold.Back}},
				Face:     card.Front,
			}}},
			Board: view.PlayerBoardView{
				Placements: []view.PlacementView{{CardID: starter.ID, Face: card.Front, Side: card.AnySide{Side: starter.Front}}},
				Symbols:    map[card.Symbol]int{card.Fungi: 1},
			},
		}},
		Board: view.GlobalBoardView{
			ResourceDeckSize: 30,
			GoldDeckSize:     20,
			ResourceDeckTop:  card.Plant,
			GoldDeckTop:      card.Insect,
			CommonObjectives: []card.AnyObjective{{Objective: obj}},
		},
	}}
}

func TestClientRoundTrip(t *testing.T) {
	for _, m := range []ClientMessage{
		GetGames{},
		CreateGame{GameName: "table", PlayerName: "ada", NPlayers: 3},
		DeleteGame{GameName: "table"},
		JoinGame{GameName: "table", PlayerName: "bob"},
		ChoosePlayerColor{Color: view.Green},
		SetPlayerObjective{ObjectiveID: 90},
		PlaceCard{CardID: 12, X: 1, Y: -1},
		DrawCardFromField{CardID: 7},
		DrawCardFromResourceDeck{},
		DrawCardFromGoldDeck{},
		SwitchCardSide{CardID: 12},
		SendChatMessage{Message: ChatMessage{Sender: "ada", Recipient: "bob", Content: "hi", Timestamp: 1700000000000}},
		Disconnect{},
		ClientHeartbeat{},
	} {
		data, err := EncodeClient(m)
		if err != nil {
			t.Fatalf("encode %s: %v", m.Kind(), err)
		}
		got, err := DecodeClient(data)
		if err != nil {
			t.Fatalf("decode %s: %v (%s)", m.Kind(), err, data)
		}
		if !reflect.DeepEqual(got, m) {
			t.Fatalf("round trip %s: got %#v want %#v", m.Kind(), got, m)
		}
	}
}

func TestServerRoundTrip(t *testing.T) {
	for _, m := range []ServerMessage{
		UpdateView{VirtualView: sampleView()},
		GameDeleted{GameName: "table"},
		GameList{Games: []view.GameRecord{{Name: "a", JoinedPlayers: 1, MaxPlayers: 2}}},
		ErrorMessage{Code: CodeGameFull, Message: "game is full"},
		ChatMsg{Message: ChatMessage{Sender: "ada", Content: "gg", Timestamp: 1}},
		ServerHeartbeat{},
	} {
		data, err := EncodeServer(m)
		if err != nil {
			t.Fatalf("encode %s: %v", m.Kind(), err)
		}
		got, err := DecodeServer(data)
		if err != nil {
			t.Fatalf("decode %s: %v (%s)", m.Kind(), err, data)
		}
		if !reflect.DeepEqual(got, m) {
			t.Fatalf("round trip %s:\n%s", m.Kind(), data)
		}
	}
}

func TestEnvelopeShape(t *testing.T) {
	data, err := EncodeClient(JoinGame{GameName: "g", PlayerName: "p"})
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"kind": "JOIN_GAME", "gameName": "g", "playerName": "p"}
	if !reflect.DeepEqual(raw, want) {
		t.Fatalf("got %v want %v", raw, want)
	}

	data, err = EncodeServer(ServerHeartbeat{})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"kind":"HEARTBEAT"}` {
		t.Fatalf("heartbeat = %s", data)
	}
}

func TestDirectionalTables(t *testing.T) {
	// DELETE_GAME decodes to a different type in each direction.
	data := []byte(`{"kind":"DELETE_GAME","gameName":"x"}`)
	cm, err := DecodeClient(data)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := cm.(DeleteGame); !ok {
		t.Fatalf("client decode = %T", cm)
	}
	sm, err := DecodeServer(data)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := sm.(GameDeleted); !ok {
		t.Fatalf("server decode = %T", sm)
	}

	if _, err := DecodeClient([]byte(`{"kind":"UPDATE_VIEW"}`)); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("server-only kind on client table: %v", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	for _, tc := range []struct {
		name    string
		in      string
		unknown bool
	}{
		{"missing kind", `{"gameName":"x"}`, true},
		{"unknown kind", `{"kind":"FLY"}`, true},
		{"not json", `{"kind":`, false},
		{"bad body", `{"kind":"PLACE_CARD","cardId":"seven"}`, false},
		{"bad nested side", `{"kind":"UPDATE_VIEW","gameView":{"players":[{"hand":{"cards":[{"front":{"sideType":"X"}}]}}]}}`, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var err error
			if tc.name == "bad nested side" {
				_, err = DecodeServer([]byte(tc.in))
			} else {
				_, err = DecodeClient([]byte(tc.in))
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("expected DecodeError, got %v", err)
			}
			if got := errors.Is(err, ErrUnknownKind); got != tc.unknown {
				t.Fatalf("errors.Is(ErrUnknownKind) = %v, want %v", got, tc.unknown)
			}
		})
	}
}

func TestDeckKind(t *testing.T) {
	if k, ok := DeckKind(DrawCardFromGoldDeck{}); !ok || k != card.Gold {
		t.Fatalf("gold deck = %v %v", k, ok)
	}
	if k, ok := DeckKind(DrawCardFromResourceDeck{}); !ok || k != card.Resource {
		t.Fatalf("resource deck = %v %v", k, ok)
	}
	if _, ok := DeckKind(GetGames{}); ok {
		t.Fatal("GET_GAMES is not a deck draw")
	}
}
