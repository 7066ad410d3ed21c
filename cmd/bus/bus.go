// Package bus implements "xoq bus-server" and "xoq bus-client", exposing
// one or more SocketCAN interfaces as remote pub/sub broadcast paths.
package bus

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/haixuanTao/XoQ/internal/alpn"
	"github.com/haixuanTao/XoQ/internal/bridge"
	"github.com/haixuanTao/XoQ/internal/canbridge"
	"github.com/haixuanTao/XoQ/internal/config"
	"github.com/haixuanTao/XoQ/internal/identity"
	"github.com/haixuanTao/XoQ/internal/transport"
)

var (
	serverCfg  config.CAN
	ifaceFlags []string
	listen     string
	keyDir     string
	restartMS  int

	ServerCmd = &cobra.Command{
		Use:   "bus-server",
		Short: "Publish one or more SocketCAN interfaces over the network",
		RunE:  runServer,
	}
)

func init() {
	ServerCmd.Flags().StringSliceVar(&ifaceFlags, "iface", nil, "CAN interface, optionally suffixed :fd (e.g. can0:fd); repeatable")
	ServerCmd.Flags().StringVar(&listen, "listen", "", "QUIC listen address for the first interface (default 0.0.0.0:4434); subsequent interfaces use consecutive ports")
	ServerCmd.Flags().StringVar(&keyDir, "key-dir", "", "key directory")
	ServerCmd.Flags().IntVar(&restartMS, "restart-ms", 0, "bus-off auto-restart interval in milliseconds (default 100)")
	ServerCmd.MarkFlagRequired("iface")
}

func parseIface(spec string) config.CANInterface {
	name, fd, found := strings.Cut(spec, ":")
	if found && fd == "fd" {
		return config.CANInterface{Name: name, FD: true}
	}
	return config.CANInterface{Name: spec}
}

func runServer(cmd *cobra.Command, args []string) error {
	serverCfg.Listen = listen
	serverCfg.KeyDir = config.KeyDir(keyDir)
	serverCfg.RestartMS = restartMS
	for _, f := range ifaceFlags {
		serverCfg.Interfaces = append(serverCfg.Interfaces, parseIface(f))
	}
	serverCfg.ApplyDefaults()

	logger := log.With().Str("com", "bus-server").Logger()

	id, err := identity.Load(serverCfg.KeyDir, "bus-server")
	if err != nil {
		return err
	}
	tlsConf, err := transport.SelfSignedTLSConfig(id, []string{alpn.P2P})
	if err != nil {
		return err
	}

	host, portStr, err := net.SplitHostPort(serverCfg.Listen)
	if err != nil {
		return fmt.Errorf("parse listen address %s: %w", serverCfg.Listen, err)
	}
	basePort, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("parse listen port %s: %w", portStr, err)
	}

	services := make([]identity.ServiceEndpoint, 0, len(serverCfg.Interfaces))
	for i := range serverCfg.Interfaces {
		services = append(services, identity.ServiceEndpoint{
			ALPN: alpn.P2P,
			Addr: net.JoinHostPort(host, strconv.Itoa(basePort+i)),
		})
	}
	if err := identity.WriteMachineDescriptor(serverCfg.KeyDir, identity.MachineDescriptor{
		NodeID: id.NodeID(), Services: services,
	}); err != nil {
		logger.Warn().Err(err).Msg("failed to write machine descriptor")
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	for i, ifc := range serverCfg.Interfaces {
		ifc := ifc
		addr := net.JoinHostPort(host, strconv.Itoa(basePort+i))
		g.Go(func() error { return serveInterface(ctx, ifc, addr, tlsConf, serverCfg, logger) })
	}

	logger.Info().Int("interfaces", len(serverCfg.Interfaces)).Str("base_addr", serverCfg.Listen).Msg("bus server listening")
	return g.Wait()
}

func serveInterface(ctx context.Context, ifc config.CANInterface, addr string, tlsConf *tls.Config, cfg config.CAN, logger zerolog.Logger) error {
	ep, err := transport.Listen(addr, tlsConf, cfg.Quic)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	defer ep.Close()

	path := "/" + ifc.Name
	handle := bridge.NewHandle(canbridge.Open(ifc.Name, ifc.FD, cfg.RestartMS), bridge.DefaultBackoff)
	srv := canbridge.NewServer(path, handle, logger)

	logger.Info().Str("iface", ifc.Name).Bool("fd", ifc.FD).Str("listen", addr).Msg("bus interface listening")
	return srv.Serve(ctx, ep)
}

var (
	clientAddr   string
	clientPath   string
	clientKeyDir string

	ClientCmd = &cobra.Command{
		Use:   "bus-client",
		Short: "Monitor CAN frames published by a remote bus server",
		RunE:  runClient,
	}
)

func init() {
	ClientCmd.Flags().StringVar(&clientAddr, "addr", "", "server QUIC address (required)")
	ClientCmd.Flags().StringVar(&clientPath, "path", "", "broadcast path on the server, e.g. /can0 (required)")
	ClientCmd.Flags().StringVar(&clientKeyDir, "key-dir", "", "key directory")
	ClientCmd.MarkFlagRequired("addr")
	ClientCmd.MarkFlagRequired("path")
}

func runClient(cmd *cobra.Command, args []string) error {
	logger := log.With().Str("com", "bus-client").Logger()
	keyDir := config.KeyDir(clientKeyDir)

	id, err := identity.Load(keyDir, "bus-client")
	if err != nil {
		return err
	}
	tlsConf, err := transport.SelfSignedTLSConfig(id, []string{alpn.P2P})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	var qcfg config.Quic
	qcfg.ApplyDefaults()

	conn, err := transport.Dial(ctx, clientAddr, tlsConf, qcfg)
	if err != nil {
		return fmt.Errorf("dial %s: %w", clientAddr, err)
	}

	client := bridge.NewClient(clientPath, logger)
	session, err := client.Connect(ctx, conn)
	if err != nil {
		return fmt.Errorf("connect session: %w", err)
	}
	defer session.Close()

	for group := range session.FromDevice.Groups() {
		for _, f := range group.Frames {
			frame, err := canbridge.DecodeFrame(f.Data)
			if err != nil {
				logger.Warn().Err(err).Msg("malformed frame")
				continue
			}
			fmt.Printf("id=%03X ext=%v fd=%v brs=%v len=%d data=% X\n",
				frame.ID, frame.Extended, frame.FD, frame.BRS, len(frame.Data), frame.Data)
		}
	}
	return ctx.Err()
}
