// Package protocol is the wire codec: every message is a JSON object whose "kind"
// field selects the concrete message type. Client and server kinds live in
// separate tables because some names (GET_GAMES, DELETE_GAME, HEARTBEAT) are
// used in both directions with different payloads.
package protocol

import (
	"github.com/gosuda/codex-sync/codex/card"
	"github.com/gosuda/codex-sync/codex/view"
)

// Kind is the value of the "kind" discriminator.
type Kind string

const (
	KindGetGames             Kind = "GET_GAMES"
	KindCreateGame           Kind = "CREATE_GAME"
	KindDeleteGame           Kind = "DELETE_GAME"
	KindJoinGame             Kind = "JOIN_GAME"
	KindChoosePlayerColor    Kind = "CHOOSE_PLAYER_COLOR"
	KindSetPlayerObjective   Kind = "SET_PLAYER_OBJECTIVE"
	KindPlaceCard            Kind = "PLACE_CARD"
	KindDrawFromField        Kind = "DRAW_CARD_FROM_FIELD"
	KindDrawFromResourceDeck Kind = "DRAW_CARD_FROM_RESOURCE_DECK"
	KindDrawFromGoldDeck     Kind = "DRAW_CARD_FROM_GOLD_DECK"
	KindSwitchCardSide       Kind = "SWITCH_CARD_SIDE"
	KindSendChatMsg          Kind = "SEND_CHAT_MSG"
	KindDisconnect           Kind = "DISCONNECT"
	KindHeartbeat            Kind = "HEARTBEAT"

	KindUpdateView Kind = "UPDATE_VIEW"
	KindErrorMsg   Kind = "ERROR_MSG"
	KindChatMsg    Kind = "CHAT_MSG"
)

// ClientMessage is a message sent from a client to the server.
type ClientMessage interface {
	Kind() Kind
}

// ServerMessage is a message sent from the server to a client.
type ServerMessage interface {
	Kind() Kind
}

// ChatMessage is one chat line. Recipient is empty for messages to the whole game.
type ChatMessage struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient,omitempty"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // unix millis
}

// Private reports whether the message targets a single player.
func (m ChatMessage) Private() bool { return m.Recipient != "" }

// Client to server.

type GetGames struct{}

type CreateGame struct {
	GameName   string `json:"gameName"`
	PlayerName string `json:"playerName"`
	NPlayers   int    `json:"nPlayers"`
}

type DeleteGame struct {
	GameName string `json:"gameName"`
}

type JoinGame struct {
	GameName   string `json:"gameName"`
	PlayerName string `json:"playerName"`
}

type ChoosePlayerColor struct {
	Color view.Color `json:"color"`
}

type SetPlayerObjective struct {
	ObjectiveID int `json:"objectiveId"`
}

// PlaceCard places a hand card on the side the hand currently shows.
type PlaceCard struct {
	CardID int `json:"cardId"`
	X      int `json:"x"`
	Y      int `json:"y"`
}

type DrawCardFromField struct {
	CardID int `json:"cardId"`
}

type DrawCardFromResourceDeck struct{}

type DrawCardFromGoldDeck struct{}

type SwitchCardSide struct {
	CardID int `json:"cardId"`
}

type SendChatMessage struct {
	Message ChatMessage `json:"message"`
}

type Disconnect struct{}

type ClientHeartbeat struct{}

func (GetGames) Kind() Kind                 { return KindGetGames }
func (CreateGame) Kind() Kind               { return KindCreateGame }
func (DeleteGame) Kind() Kind               { return KindDeleteGame }
func (JoinGame) Kind() Kind                 { return KindJoinGame }
func (ChoosePlayerColor) Kind() Kind        { return KindChoosePlayerColor }
func (SetPlayerObjective) Kind() Kind       { return KindSetPlayerObjective }
func (PlaceCard) Kind() Kind                { return KindPlaceCard }
func (DrawCardFromField) Kind() Kind        { return KindDrawFromField }
func (DrawCardFromResourceDeck) Kind() Kind { return KindDrawFromResourceDeck }
func (DrawCardFromGoldDeck) Kind() Kind     { return KindDrawFromGoldDeck }
func (SwitchCardSide) Kind() Kind           { return KindSwitchCardSide }
func (SendChatMessage) Kind() Kind          { return KindSendChatMsg }
func (Disconnect) Kind() Kind               { return KindDisconnect }
func (ClientHeartbeat) Kind() Kind          { return KindHeartbeat }

// DeckKind maps the deck draw messages to the deck they draw from.
func DeckKind(m ClientMessage) (card.Kind, bool) {
	switch m.(type) {
	case DrawCardFromResourceDeck, *DrawCardFromResourceDeck:
		return card.Resource, true
	case DrawCardFromGoldDeck, *DrawCardFromGoldDeck:
		return card.Gold, true
	}
	return "", false
}

// Server to client.

// UpdateView carries a full snapshot of one game.
type UpdateView struct {
	view.VirtualView
}

// GameDeleted tells subscribers that their game no longer exists.
type GameDeleted struct {
	GameName string `json:"gameName"`
}

type GameList struct {
	Games []view.GameRecord `json:"games"`
}

// Error codes carried by ErrorMessage.
const (
	CodeGameNotFound  = "GAME_NOT_FOUND"
	CodeGameExists    = "GAME_EXISTS"
	CodeGameFull      = "GAME_FULL"
	CodeAlreadyJoined = "ALREADY_JOINED"
	CodeNotYourTurn   = "NOT_YOUR_TURN"
	CodeInvalidAction = "INVALID_ACTION"
	CodeNotJoined     = "NOT_JOINED"
)

type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ChatMsg struct {
	Message ChatMessage `json:"message"`
}

type ServerHeartbeat struct{}

func (UpdateView) Kind() Kind      { return KindUpdateView }
func (GameDeleted) Kind() Kind     { return KindDeleteGame }
func (GameList) Kind() Kind        { return KindGetGames }
func (ErrorMessage) Kind() Kind    { return KindErrorMsg }
func (ChatMsg) Kind() Kind         { return KindChatMsg }
func (ServerHeartbeat) Kind() Kind { return KindHeartbeat }
