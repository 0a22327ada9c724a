package registry

import (
	"errors"

	"github.com/gosuda/codex-sync/codex/game"
	"github.com/gosuda/codex-sync/codex/protocol"
)

// ErrNotJoined is returned for game scoped actions that need a bound player.
var ErrNotJoined = errors.New("not joined to a game")

// CodeOf maps an engine or registry error to the code sent in ERROR_MSG.
func CodeOf(err error) string {
	switch {
	case errors.Is(err, game.ErrGameNotFound):
		return protocol.CodeGameNotFound
	case errors.Is(err, game.ErrGameExists):
		return protocol.CodeGameExists
	case errors.Is(err, game.ErrGameFull):
		return protocol.CodeGameFull
	case errors.Is(err, game.ErrAlreadyJoined):
		return protocol.CodeAlreadyJoined
	case errors.Is(err, game.ErrNotYourTurn):
		return protocol.CodeNotYourTurn
	case errors.Is(err, ErrNotJoined):
		return protocol.CodeNotJoined
	}
	return protocol.CodeInvalidAction
}
