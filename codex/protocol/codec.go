package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownKind is returned when the kind discriminator is missing or has no
// entry in the decoding table.
var ErrUnknownKind = errors.New("protocol: unknown message kind")

// DecodeError reports a message that could not be decoded. The connection stays
// open; the message is dropped.
type DecodeError struct {
	Kind Kind
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("protocol: decode: %v", e.Err)
	}
	return fmt.Sprintf("protocol: decode %s: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type message interface {
	Kind() Kind
}

type decodeFunc func(data []byte) (message, error)

func as[T message]() decodeFunc {
	return func(data []byte) (message, error) {
		var m T
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	}
}

var clientKinds = map[Kind]decodeFunc{
	KindGetGames:             as[GetGames](),
	KindCreateGame:           as[CreateGame](),
	KindDeleteGame:           as[DeleteGame](),
	KindJoinGame:             as[JoinGame](),
	KindChoosePlayerColor:    as[ChoosePlayerColor](),
	KindSetPlayerObjective:   as[SetPlayerObjective](),
	KindPlaceCard:            as[PlaceCard](),
	KindDrawFromField:        as[DrawCardFromField](),
	KindDrawFromResourceDeck: as[DrawCardFromResourceDeck](),
	KindDrawFromGoldDeck:     as[DrawCardFromGoldDeck](),
	KindSwitchCardSide:       as[SwitchCardSide](),
	KindSendChatMsg:          as[SendChatMessage](),
	KindDisconnect:           as[Disconnect](),
	KindHeartbeat:            as[ClientHeartbeat](),
}

var serverKinds = map[Kind]decodeFunc{
	KindUpdateView: as[UpdateView](),
	KindDeleteGame: as[GameDeleted](),
	KindGetGames:   as[GameList](),
	KindErrorMsg:   as[ErrorMessage](),
	KindChatMsg:    as[ChatMsg](),
	KindHeartbeat:  as[ServerHeartbeat](),
}

// EncodeClient serialises a client message with its kind.
func EncodeClient(m ClientMessage) ([]byte, error) { return encode(m) }

// EncodeServer serialises a server message with its kind.
func EncodeServer(m ServerMessage) ([]byte, error) { return encode(m) }

// DecodeClient parses a client message. Errors are always *DecodeError.
func DecodeClient(data []byte) (ClientMessage, error) { return decode(clientKinds, data) }

// DecodeServer parses a server message. Errors are always *DecodeError.
func DecodeServer(data []byte) (ServerMessage, error) { return decode(serverKinds, data) }

func encode(m message) ([]byte, error) {
	if m == nil {
		return nil, errors.New("protocol: encode nil message")
	}
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", m.Kind(), err)
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("protocol: encode %s: not an object", m.Kind())
	}
	kind, _ := json.Marshal(m.Kind())

	var buf bytes.Buffer
	buf.Grow(len(body) + len(kind) + 10)
	buf.WriteString(`{"kind":`)
	buf.Write(kind)
	if rest := bytes.TrimSpace(body[1:]); len(rest) > 0 && rest[0] != '}' {
		buf.WriteByte(',')
	}
	buf.Write(body[1:])
	return buf.Bytes(), nil
}

func decode(table map[Kind]decodeFunc, data []byte) (message, error) {
	var head struct {
		Kind *Kind `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if head.Kind == nil {
		return nil, &DecodeError{Err: ErrUnknownKind}
	}
	fn, ok := table[*head.Kind]
	if !ok {
		return nil, &DecodeError{Kind: *head.Kind, Err: ErrUnknownKind}
	}
	m, err := fn(data)
	if err != nil {
		return nil, &DecodeError{Kind: *head.Kind, Err: err}
	}
	return m, nil
}
