package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gosuda/codex-sync/codex/config"
	"github.com/gosuda/codex-sync/codex/persist"
	"github.com/gosuda/codex-sync/codex/view"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [file...]",
	Short: "Summarise stored games (all of them when no file is given)",
	RunE:  runSnapshot,
}

func init() {
	flags := snapshotCmd.Flags()
	flags.StringVar(&cfg.Store, "store", cfg.Store, "snapshot store: dir or pebble")
	flags.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "snapshot directory")
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	if cfg.Store == config.StoreNone {
		return errors.New("snapshot needs a store")
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	files := args
	if len(files) == 0 {
		if files, err = store.List(); err != nil {
			return err
		}
	}
	p := persist.New(nil, store)
	var errs []error
	for _, f := range files {
		v, err := p.Read(f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		describe(cmd.OutOrStdout(), f, v)
	}
	return errors.Join(errs...)
}

func describe(w io.Writer, file string, v view.VirtualView) {
	gv := v.GameView
	fmt.Fprintf(w, "%s: %q %s, %d/%d players\n", file, gv.Name, gv.Status, len(gv.Players), gv.MaxPlayers)
	if gv.CurrentPlayer != "" {
		fmt.Fprintf(w, "  turn: %s (%s), %d turns left\n", gv.CurrentPlayer, gv.TurnPhase, gv.RemainingTurns)
	}
	b := gv.Board
	fmt.Fprintf(w, "  decks: resource %d, gold %d; field %d+%d\n", b.ResourceDeckSize, b.GoldDeckSize, len(b.ResourceField), len(b.GoldField))
	for _, pv := range gv.Players {
		fmt.Fprintf(w, "  %-12s %-6s %3d pts  %d in hand  %d placed\n", pv.Name, pv.Color, pv.Position, len(pv.Hand.Cards), len(pv.Board.Placements))
	}
	if len(gv.Winners) > 0 {
		fmt.Fprintf(w, "  winners: %s\n", strings.Join(gv.Winners, ", "))
	}
}
