package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/codex-sync/codex/config"
)

var rootCmd = &cobra.Command{
	Use:               "codex",
	Short:             "Authoritative table server for the codex card game",
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

// cfg starts from the CODEX_* environment; flags bound to its fields override it.
var cfg, cfgErr = config.Load()

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "zerolog level (trace, debug, info, warn, error)")
	flags.BoolVar(&cfg.LogPretty, "log-pretty", cfg.LogPretty, "human readable console logs")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute codex command")
	}
}

func setupLogging(cmd *cobra.Command, args []string) error {
	if cfgErr != nil {
		return cfgErr
	}
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

func cleanServerURLs(in []string) []string {
	out := make([]string, 0, len(in))
	for _, raw := range in {
		for _, part := range strings.Split(raw, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
