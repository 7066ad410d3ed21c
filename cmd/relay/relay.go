// Package relay implements "xoq relay", the self-hosted MoQ broker every
// P2P-unreachable bridge falls back to for one-to-many pub/sub fan-out.
package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/haixuanTao/XoQ/internal/alpn"
	"github.com/haixuanTao/XoQ/internal/config"
	"github.com/haixuanTao/XoQ/internal/identity"
	"github.com/haixuanTao/XoQ/internal/moq"
	"github.com/haixuanTao/XoQ/internal/moqbrowser"
	"github.com/haixuanTao/XoQ/internal/transport"
)

var (
	cfg    config.Relay
	keyDir string
	listen string

	Cmd = &cobra.Command{
		Use:   "relay",
		Short: "Run the self-hosted MoQ broker",
		RunE:  run,
	}
)

func init() {
	Cmd.Flags().StringVar(&listen, "listen", "", "QUIC listen address (default 0.0.0.0:4443)")
	Cmd.Flags().StringVar(&keyDir, "key-dir", "", "key directory")
}

func run(cmd *cobra.Command, args []string) error {
	cfg.Listen = listen
	cfg.KeyDir = config.KeyDir(keyDir)
	cfg.ApplyDefaults()

	logger := log.With().Str("com", "relay").Logger()

	id, err := identity.Load(cfg.KeyDir, "relay")
	if err != nil {
		return err
	}
	tlsConf, err := transport.SelfSignedTLSConfig(id, []string{alpn.P2P, alpn.CameraH264, alpn.CameraAV1, alpn.AudioPCM})
	if err != nil {
		return err
	}

	ep, err := transport.Listen(cfg.Listen, tlsConf, cfg.Quic)
	if err != nil {
		return err
	}
	defer ep.Close()

	if err := identity.WriteMachineDescriptor(cfg.KeyDir, identity.MachineDescriptor{
		NodeID: id.NodeID(),
		Services: []identity.ServiceEndpoint{
			{ALPN: alpn.P2P, Addr: cfg.Listen},
		},
	}); err != nil {
		logger.Warn().Err(err).Msg("failed to write machine descriptor")
	}

	r := moq.NewRelay(logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			conn, err := ep.Accept(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			go func() {
				if err := r.Serve(ctx, conn); err != nil && ctx.Err() == nil {
					logger.Debug().Err(err).Msg("relay connection ended")
				}
			}()
		}
	})

	// The WebSocket fallback serves only the Announce round-trip a
	// browser-class carrier needs (testable scenario S6): a WebSocketCarrier
	// exposes one logical byte stream per connection, not transport.Conn's
	// multi-stream QUIC model, so Subscribe (which needs to open a fresh
	// uni-stream per delivered group) isn't reachable over it yet.
	if cfg.WebSocket != "" {
		g.Go(func() error { return serveWebSocket(ctx, cfg.WebSocket, r, logger) })
	}

	logger.Info().Str("listen", cfg.Listen).Str("node_id", id.NodeID()).Msg("relay listening")
	return g.Wait()
}

// serveWebSocket answers the browser-compatibility fallback: every upgraded
// connection gets exactly one Announce round-trip served against the
// relay's registry, then the connection closes.
func serveWebSocket(ctx context.Context, addr string, r *moq.Relay, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		carrier, err := moqbrowser.UpgradeWebSocketCarrier(w, req)
		if err != nil {
			logger.Debug().Err(err).Msg("websocket upgrade failed")
			return
		}
		stream, err := carrier.OpenStream(req.Context())
		if err != nil {
			carrier.Close()
			return
		}
		if err := r.ServeAnnounceStream(req.Context(), stream); err != nil {
			logger.Debug().Err(err).Msg("carrier announce round-trip failed")
		}
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("websocket_listen", addr).Msg("websocket fallback listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
