// Package persist saves game snapshots as UPDATE_VIEW documents and rebuilds
// games from them.
package persist

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/codex-sync/codex/protocol"
	"github.com/gosuda/codex-sync/codex/view"
)

// Engine is what the persister needs from the game engine. *game.Manager
// implements it.
type Engine interface {
	VirtualView(name string) (view.VirtualView, error)
	BeginRestore(name, firstPlayer string, n int) error
	JoinGame(name, player string) error
	RestorePlayer(name string, pv view.PlayerView) error
	RestoreTable(name string, gv view.GameView) error
	DeleteGame(name string) error
}

// RestoreError reports which replay step rejected a snapshot.
type RestoreError struct {
	File string
	Game string
	Step string
	Err  error
}

func (e *RestoreError) Error() string {
	if e.Game == "" {
		return fmt.Sprintf("persist: restore %s: %s: %v", e.File, e.Step, e.Err)
	}
	return fmt.Sprintf("persist: restore %q from %s: %s: %v", e.Game, e.File, e.Step, e.Err)
}

func (e *RestoreError) Unwrap() error { return e.Err }

type Persister struct {
	engine Engine
	store  Store
}

func New(engine Engine, store Store) *Persister {
	return &Persister{engine: engine, store: store}
}

func (p *Persister) Store() Store { return p.store }

// Save stores the current snapshot of a game.
func (p *Persister) Save(game string) error {
	v, err := p.engine.VirtualView(game)
	if err != nil {
		return err
	}
	return p.SaveView(v)
}

// SaveView stores an already built snapshot.
func (p *Persister) SaveView(v view.VirtualView) error {
	data, err := protocol.EncodeServer(protocol.UpdateView{VirtualView: v})
	if err != nil {
		return err
	}
	return p.store.Put(FileName(v.GameView.Name), data)
}

func (p *Persister) Delete(game string) error {
	return p.store.Delete(FileName(game))
}

// Read decodes a stored snapshot without touching the engine.
func (p *Persister) Read(file string) (view.VirtualView, error) {
	data, err := p.store.Get(file)
	if err != nil {
		return view.VirtualView{}, &RestoreError{File: file, Step: "read", Err: err}
	}
	msg, err := protocol.DecodeServer(data)
	if err != nil {
		return view.VirtualView{}, &RestoreError{File: file, Step: "decode", Err: err}
	}
	u, ok := msg.(protocol.UpdateView)
	if !ok {
		return view.VirtualView{}, &RestoreError{File: file, Step: "decode", Err: fmt.Errorf("want %s, got %s", protocol.KindUpdateView, msg.Kind())}
	}
	return u.VirtualView, nil
}

// Load rebuilds the game stored in file and returns its name. Players keep the
// connection flags they were saved with.
func (p *Persister) Load(file string) (string, error) {
	v, err := p.Read(file)
	if err != nil {
		return "", err
	}
	return v.GameView.Name, p.restore(file, v.GameView)
}

// LoadAll rebuilds every stored game with all players disconnected. Snapshots
// that fail to restore are skipped and reported together.
func (p *Persister) LoadAll() ([]string, error) {
	files, err := p.store.List()
	if err != nil {
		return nil, err
	}
	var (
		loaded []string
		errs   []error
	)
	for _, file := range files {
		v, err := p.Read(file)
		if err == nil {
			gv := v.GameView
			for i := range gv.Players {
				gv.Players[i].Connected = false
			}
			err = p.restore(file, gv)
		}
		if err != nil {
			log.Warn().Err(err).Str("file", file).Msg("[persist] skipping snapshot")
			errs = append(errs, err)
			continue
		}
		loaded = append(loaded, v.GameView.Name)
	}
	return loaded, errors.Join(errs...)
}

// restore replays gv into the engine. A game that fails half way is deleted.
func (p *Persister) restore(file string, gv view.GameView) error {
	fail := func(step string, err error) error {
		return &RestoreError{File: file, Game: gv.Name, Step: step, Err: err}
	}
	if len(gv.Players) == 0 {
		return fail("decode", errors.New("snapshot has no players"))
	}
	if err := p.engine.BeginRestore(gv.Name, gv.Players[0].Name, gv.MaxPlayers); err != nil {
		return fail("create", err)
	}
	abort := func(step string, err error) error {
		if derr := p.engine.DeleteGame(gv.Name); derr != nil {
			log.Error().Err(derr).Str("game", gv.Name).Msg("[persist] drop half restored game")
		}
		return fail(step, err)
	}
	for _, pv := range gv.Players[1:] {
		if err := p.engine.JoinGame(gv.Name, pv.Name); err != nil {
			return abort("join", err)
		}
	}
	for _, pv := range gv.Players {
		if err := p.engine.RestorePlayer(gv.Name, pv); err != nil {
			return abort("player", err)
		}
	}
	if err := p.engine.RestoreTable(gv.Name, gv); err != nil {
		return abort("table", err)
	}
	log.Info().Str("game", gv.Name).Str("status", string(gv.Status)).Msg("[persist] game restored")
	return nil
}
