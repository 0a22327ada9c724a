package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/codex-sync/codex/card"
	"github.com/gosuda/codex-sync/codex/client"
	"github.com/gosuda/codex-sync/codex/protocol"
	"github.com/gosuda/codex-sync/codex/view"
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Headless player: create or join a game and log every update",
	RunE:  runPlay,
}

var (
	flagTransport    string
	flagAddr         string
	flagGame         string
	flagPlayer       string
	flagPlayers      int
	flagAutoSetup    bool
	flagCallbackAddr string
)

func init() {
	flags := playCmd.Flags()
	flags.StringVar(&flagTransport, "transport", client.TransportSocket, "socket, rpc or ws")
	flags.StringVar(&flagAddr, "addr", "127.0.0.1:50001", "server address (ws://host:port/ws for ws)")
	flags.StringVar(&flagGame, "game", "", "game name")
	flags.StringVar(&flagPlayer, "player", "", "player name")
	flags.IntVar(&flagPlayers, "players", 0, "create the game for this many players (0 joins instead)")
	flags.BoolVar(&flagAutoSetup, "auto-setup", true, "place the starter, pick a colour and an objective automatically")
	flags.StringVar(&flagCallbackAddr, "callback-addr", "", "local address for rpc deliveries")
	_ = playCmd.MarkFlagRequired("game")
	_ = playCmd.MarkFlagRequired("player")
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, err := client.Dial(dctx, flagTransport, flagAddr, client.DialOptions{
		SendQueue:     cfg.SendQueue,
		MaxFrame:      cfg.MaxFrame,
		ProbeInterval: cfg.SocketProbe,
		CallbackAddr:  flagCallbackAddr,
	})
	cancel()
	if err != nil {
		return err
	}

	p := &player{name: flagPlayer, auto: flagAutoSetup}
	sess := client.New(conn, cfg.Liveness(), client.Handlers{
		OnView: p.onView,
		OnError: func(e protocol.ErrorMessage) {
			log.Warn().Str("code", e.Code).Msg("[client] " + e.Message)
		},
		OnChat: func(m protocol.ChatMessage) {
			log.Info().Str("from", m.Sender).Str("to", m.Recipient).Msg("[client] " + m.Content)
		},
		OnDeleted: func(g string) {
			log.Info().Str("game", g).Msg("[client] game deleted")
		},
	})
	p.act = sess
	sess.Start()

	if flagPlayers > 0 {
		err = sess.CreateGame(flagGame, flagPlayer, flagPlayers)
	} else {
		err = sess.JoinGame(flagGame, flagPlayer)
	}
	if err != nil {
		_ = sess.Close()
		return err
	}

	select {
	case <-sess.Done():
		if err := sess.Err(); err != nil {
			return fmt.Errorf("session: %w", err)
		}
		return errors.New("server closed the connection")
	case <-ctx.Done():
	}
	_ = sess.Disconnect()
	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		_ = sess.Close()
	}
	return nil
}

// setupActor is the part of a session the automatic setup needs.
type setupActor interface {
	PlaceCard(cardID, x, y int) error
	ChooseColor(c view.Color) error
	ChooseObjective(id int) error
}

type player struct {
	name string
	auto bool
	act  setupActor

	mu      sync.Mutex
	pending string
}

func (p *player) onView(v view.VirtualView) {
	gv := v.GameView
	ev := log.Info().Str("game", gv.Name).Str("status", string(gv.Status))
	if gv.CurrentPlayer != "" {
		ev = ev.Str("turn", gv.CurrentPlayer).Str("phase", string(gv.TurnPhase))
	}
	for _, pv := range gv.Players {
		ev = ev.Int(pv.Name, pv.Position)
	}
	if len(gv.Winners) > 0 {
		ev = ev.Strs("winners", gv.Winners)
	}
	ev.Msg("[client] update")

	if p.auto {
		if err := p.setup(v); err != nil {
			log.Warn().Err(err).Msg("[client] setup action")
		}
	}
}

// setup sends the next missing setup choice. A choice is sent once until the
// server's view moves on.
func (p *player) setup(v view.VirtualView) error {
	if v.GameView.Status != view.StatusSetup {
		return nil
	}
	me, ok := v.Player(p.name)
	if !ok {
		return nil
	}

	var (
		key string
		do  func() error
	)
	switch {
	case starterInHand(me) != 0:
		id := starterInHand(me)
		key, do = fmt.Sprintf("starter %d", id), func() error { return p.act.PlaceCard(id, 0, 0) }
	case me.Color == "":
		c, ok := freeColor(v.GameView.Players)
		if !ok {
			return nil
		}
		key, do = "color "+string(c), func() error { return p.act.ChooseColor(c) }
	case me.Objective == nil && len(me.ObjectiveOptions) > 0:
		id := me.ObjectiveOptions[0].ObjectiveID()
		key, do = fmt.Sprintf("objective %d", id), func() error { return p.act.ChooseObjective(id) }
	default:
		return nil
	}

	p.mu.Lock()
	if p.pending == key {
		p.mu.Unlock()
		return nil
	}
	p.pending = key
	p.mu.Unlock()
	return do()
}

func starterInHand(pv *view.PlayerView) int {
	for _, hc := range pv.Hand.Cards {
		if hc.Kind == card.Starter {
			return hc.ID
		}
	}
	return 0
}

func freeColor(players []view.PlayerView) (view.Color, bool) {
	taken := make(map[view.Color]bool, len(players))
	for _, pv := range players {
		taken[pv.Color] = true
	}
	for _, c := range view.Colors {
		if !taken[c] {
			return c, true
		}
	}
	return "", false
}
