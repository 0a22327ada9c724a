package card

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Nested discriminator tables. Adding a shape means adding one entry here.
var (
	sideShapes = map[SideType]func() Side{
		FrontGameCard:               func() Side { return &FrontSide{} },
		FrontGoldGameCard:           func() Side { return &GoldSide{} },
		FrontItemGoldGameCard:       func() Side { return &ItemGoldSide{} },
		FrontPositionalGoldGameCard: func() Side { return &PositionalGoldSide{} },
		BackGameCard:                func() Side { return &BackSide{} },
	}
	objectiveShapes = map[ObjectiveType]func() Objective{
		PositionalObjectiveCard: func() Objective { return &PositionalObjective{} },
		ItemObjectiveCard:       func() Objective { return &ItemObjective{} },
	}
)

// UnknownShapeError is returned when a nested discriminator has no entry in its table.
type UnknownShapeError struct {
	Field string
	Value string
}

func (e *UnknownShapeError) Error() string {
	return fmt.Sprintf("card: unknown %s %q", e.Field, e.Value)
}

var null = []byte("null")

// AnySide carries a Side on the wire as {"sideType": ..., "content": {...}}.
type AnySide struct {
	Side
}

type sideEnvelope struct {
	SideType SideType        `json:"sideType"`
	Content  json.RawMessage `json:"content"`
}

func (a AnySide) MarshalJSON() ([]byte, error) {
	if a.Side == nil {
		return null, nil
	}
	content, err := json.Marshal(a.Side)
	if err != nil {
		return nil, err
	}
	return json.Marshal(sideEnvelope{SideType: a.Side.SideType(), Content: content})
}

func (a *AnySide) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), null) {
		a.Side = nil
		return nil
	}
	var env sideEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	shape, ok := sideShapes[env.SideType]
	if !ok {
		return &UnknownShapeError{Field: "sideType", Value: string(env.SideType)}
	}
	side := shape()
	if len(env.Content) > 0 {
		if err := json.Unmarshal(env.Content, side); err != nil {
			return fmt.Errorf("card: decode %s: %w", env.SideType, err)
		}
	}
	a.Side = side
	return nil
}

// Clone deep-copies the wrapped side.
func (a AnySide) Clone() AnySide {
	if a.Side == nil {
		return AnySide{}
	}
	return AnySide{Side: a.Side.Clone()}
}

// AnyObjective carries an Objective as {"objectiveType": ..., "content": {...}}.
type AnyObjective struct {
	Objective
}

type objectiveEnvelope struct {
	ObjectiveType ObjectiveType   `json:"objectiveType"`
	Content       json.RawMessage `json:"content"`
}

func (a AnyObjective) MarshalJSON() ([]byte, error) {
	if a.Objective == nil {
		return null, nil
	}
	content, err := json.Marshal(a.Objective)
	if err != nil {
		return nil, err
	}
	return json.Marshal(objectiveEnvelope{ObjectiveType: a.Objective.ObjectiveType(), Content: content})
}

func (a *AnyObjective) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), null) {
		a.Objective = nil
		return nil
	}
	var env objectiveEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	shape, ok := objectiveShapes[env.ObjectiveType]
	if !ok {
		return &UnknownShapeError{Field: "objectiveType", Value: string(env.ObjectiveType)}
	}
	obj := shape()
	if len(env.Content) > 0 {
		if err := json.Unmarshal(env.Content, obj); err != nil {
			return fmt.Errorf("card: decode %s: %w", env.ObjectiveType, err)
		}
	}
	a.Objective = obj
	return nil
}

// Clone deep-copies the wrapped objective.
func (a AnyObjective) Clone() AnyObjective {
	if a.Objective == nil {
		return AnyObjective{}
	}
	return AnyObjective{Objective: a.Objective.Clone()}
}
