package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"gosuda.org/portal/portal/core/cryptoops"
	"gosuda.org/portal/sdk"

	"github.com/gosuda/codex-sync/codex/config"
	"github.com/gosuda/codex-sync/codex/game"
	"github.com/gosuda/codex-sync/codex/persist"
	"github.com/gosuda/codex-sync/codex/registry"
	"github.com/gosuda/codex-sync/codex/transport"
	"github.com/gosuda/codex-sync/codex/view"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the table server on every enabled transport",
	RunE:  runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.StringVar(&cfg.SocketAddr, "socket-addr", cfg.SocketAddr, "stream socket listen address (empty to disable)")
	flags.StringVar(&cfg.RPCAddr, "rpc-addr", cfg.RPCAddr, "remote-call listen address (empty to disable)")
	flags.IntVar(&cfg.HTTPPort, "port", cfg.HTTPPort, "local HTTP/websocket port (negative to disable)")
	flags.StringVar(&cfg.Store, "store", cfg.Store, "snapshot store: dir, pebble or none")
	flags.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "snapshot directory")
	flags.BoolVar(&cfg.AutoSave, "autosave", cfg.AutoSave, "store every game after each update")
	flags.DurationVar(&cfg.HeartbeatInterval, "heartbeat-interval", cfg.HeartbeatInterval, "heartbeat period")
	flags.DurationVar(&cfg.HeartbeatTimeout, "heartbeat-timeout", cfg.HeartbeatTimeout, "silence before a peer is dropped")
	flags.DurationVar(&cfg.SocketProbe, "socket-probe", cfg.SocketProbe, "idle time before a socket writes a keepalive (0 disables)")
	flags.IntVar(&cfg.SendQueue, "send-queue", cfg.SendQueue, "outbound messages buffered per connection")
	flags.IntVar(&cfg.MaxFrame, "max-frame", cfg.MaxFrame, "largest accepted message in bytes")
	flags.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "deck shuffle seed (0 for random)")
	flags.StringSliceVar(&cfg.RelayServers, "server-url", cfg.RelayServers, "relayserver base URL(s); repeat or comma-separated (from env CODEX_RELAY if set)")
	flags.StringVar(&cfg.RelayName, "name", cfg.RelayName, "backend display name on the relay")
	flags.StringVar(&cfg.RelayCredKey, "cred-key", cfg.RelayCredKey, "optional credential key to use for the relay listener (base64 encoded)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg.RelayServers = cleanServerURLs(cfg.RelayServers)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(cfg)
	if err != nil {
		return err
	}
	defer srv.close()

	if err := srv.listen(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	log.Info().Msg("[codex] shutdown complete")
	return nil
}

// server owns the long lived pieces of one serve process.
type server struct {
	cfg       config.Config
	engine    *game.Manager
	reg       *registry.Registry
	store     persist.Store
	persister *persist.Persister

	listeners []transport.Listener
	httpSrv   *http.Server
	relayLn   net.Listener
	relay     *sdk.RDClient
}

func newServer(c config.Config) (*server, error) {
	var opts []game.Option
	if c.Seed != 0 {
		opts = append(opts, game.WithSeed(c.Seed))
	}
	s := &server{cfg: c, engine: game.NewManager(opts...)}

	store, err := openStore(c)
	if err != nil {
		return nil, err
	}
	regOpts := registry.Options{Liveness: c.Liveness()}
	if store != nil {
		s.store = store
		s.persister = persist.New(s.engine, store)
		loaded, err := s.persister.LoadAll()
		if err != nil {
			log.Warn().Err(err).Msg("[persist] some snapshots were not restored")
		}
		log.Info().Int("games", len(loaded)).Str("store", c.Store).Msg("[persist] snapshots restored")

		if c.AutoSave {
			regOpts.AfterUpdate = s.autosave
		}
		regOpts.OnDelete = s.forget
	}
	s.reg = registry.New(s.engine, regOpts)
	return s, nil
}

func openStore(c config.Config) (persist.Store, error) {
	switch c.Store {
	case config.StoreDir:
		return persist.OpenDir(c.DataDir)
	case config.StorePebble:
		return persist.OpenPebble(c.DataDir)
	case config.StoreNone:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown store %q", c.Store)
}

func (s *server) autosave(gameName string, v view.VirtualView) {
	if err := s.persister.SaveView(v); err != nil {
		log.Warn().Err(err).Str("game", gameName).Msg("[persist] autosave")
	}
}

func (s *server) forget(gameName string) {
	if err := s.persister.Delete(gameName); err != nil && !errors.Is(err, persist.ErrNotFound) {
		log.Warn().Err(err).Str("game", gameName).Msg("[persist] delete snapshot")
	}
}

// listen starts every enabled transport. The returned error covers only
// listeners that failed to bind; serving errors are logged.
func (s *server) listen(ctx context.Context) error {
	if s.cfg.SocketAddr != "" {
		ln, err := transport.ListenSocket(s.cfg.SocketAddr, s.cfg.Socket())
		if err != nil {
			return err
		}
		s.serveTransport(ctx, "socket", ln)
	}
	if s.cfg.RPCAddr != "" {
		ln, err := transport.ListenRPC(s.cfg.RPCAddr, transport.RPCOptions{SendQueue: s.cfg.SendQueue})
		if err != nil {
			return err
		}
		s.serveTransport(ctx, "rpc", ln)
	}

	mux := NewHTTPServer(s.reg, s.engine, transport.NewUpgrader(s.cfg.SendQueue, s.cfg.MaxFrame)).Router()

	if len(s.cfg.RelayServers) > 0 {
		if err := s.listenRelay(); err != nil {
			return err
		}
		go func() {
			if err := http.Serve(s.relayLn, mux); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
				log.Error().Err(err).Msg("[codex] relay http error")
			}
		}()
	} else {
		log.Info().Msg("[codex] relay disabled; running local mode only")
	}

	if s.cfg.HTTPPort >= 0 {
		s.httpSrv = &http.Server{Addr: fmt.Sprintf(":%d", s.cfg.HTTPPort), Handler: mux, ReadHeaderTimeout: 5 * time.Second, IdleTimeout: 60 * time.Second}
		log.Info().Msgf("[codex] serving locally at http://127.0.0.1:%d", s.cfg.HTTPPort)
		go func() {
			if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn().Err(err).Msg("[codex] local http stopped")
			}
		}()
	}
	return nil
}

func (s *server) serveTransport(ctx context.Context, name string, ln transport.Listener) {
	s.listeners = append(s.listeners, ln)
	log.Info().Str("addr", ln.Addr()).Msgf("[codex] %s transport listening", name)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				if ctx.Err() == nil {
					log.Warn().Err(err).Msgf("[codex] %s accept stopped", name)
				}
				return
			}
			s.reg.Accept(c)
		}
	}()
}

func (s *server) listenRelay() error {
	cred := sdk.NewCredential()
	if s.cfg.RelayCredKey != "" {
		key, err := base64.StdEncoding.DecodeString(s.cfg.RelayCredKey)
		if err != nil {
			return fmt.Errorf("decode cred key: %w", err)
		}
		cred2, err := cryptoops.NewCredentialFromPrivateKey(key)
		if err != nil {
			return fmt.Errorf("new credential from private key: %w", err)
		}
		cred = cred2
	}

	c, err := sdk.NewClient(func(rc *sdk.RDClientConfig) {
		rc.BootstrapServers = s.cfg.RelayServers
	})
	if err != nil {
		return fmt.Errorf("new client: %w", err)
	}
	ln, err := c.Listen(cred, s.cfg.RelayName, []string{"http/1.1"})
	if err != nil {
		_ = c.Close()
		return fmt.Errorf("listen: %w", err)
	}
	s.relay, s.relayLn = c, ln
	log.Info().Str("name", s.cfg.RelayName).Msg("[codex] relay listener enabled")
	return nil
}

// close stops accepting, drops every connection and flushes the store.
func (s *server) close() {
	for _, ln := range s.listeners {
		_ = ln.Close()
	}
	if s.relayLn != nil {
		_ = s.relayLn.Close()
	}
	if s.relay != nil {
		_ = s.relay.Close()
	}
	if s.httpSrv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(sctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("[codex] http server shutdown error")
		}
	}
	s.reg.Close()
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Warn().Err(err).Msg("[persist] close store")
		}
	}
}
