// Package serial implements "xoq serial-server", "xoq serial-client", and
// "xoq serial-list", exposing a local serial port as a remote byte stream.
package serial

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/haixuanTao/XoQ/internal/alpn"
	"github.com/haixuanTao/XoQ/internal/bridge"
	"github.com/haixuanTao/XoQ/internal/config"
	"github.com/haixuanTao/XoQ/internal/identity"
	"github.com/haixuanTao/XoQ/internal/serialbridge"
	"github.com/haixuanTao/XoQ/internal/transport"
)

var (
	serverCfg config.Serial
	path      string
	baudRate  int
	listen    string
	keyDir    string

	ServerCmd = &cobra.Command{
		Use:   "serial-server",
		Short: "Publish a local serial port over the network",
		RunE:  runServer,
	}
)

func init() {
	ServerCmd.Flags().StringVar(&path, "path", "", "serial device path (required)")
	ServerCmd.Flags().IntVar(&baudRate, "baud", 0, "baud rate (default 115200)")
	ServerCmd.Flags().StringVar(&listen, "listen", "", "QUIC listen address (default 0.0.0.0:4433)")
	ServerCmd.Flags().StringVar(&keyDir, "key-dir", "", "key directory")
	ServerCmd.MarkFlagRequired("path")
}

func runServer(cmd *cobra.Command, args []string) error {
	serverCfg.Path = path
	serverCfg.BaudRate = baudRate
	serverCfg.Listen = listen
	serverCfg.KeyDir = config.KeyDir(keyDir)
	serverCfg.ApplyDefaults()

	logger := log.With().Str("com", "serial-server").Logger()

	id, err := identity.Load(serverCfg.KeyDir, "serial-server")
	if err != nil {
		return err
	}
	tlsConf, err := transport.SelfSignedTLSConfig(id, []string{alpn.P2P})
	if err != nil {
		return err
	}
	ep, err := transport.Listen(serverCfg.Listen, tlsConf, serverCfg.Quic)
	if err != nil {
		return err
	}
	defer ep.Close()

	if err := identity.WriteMachineDescriptor(serverCfg.KeyDir, identity.MachineDescriptor{
		NodeID:   id.NodeID(),
		Services: []identity.ServiceEndpoint{{ALPN: alpn.P2P, Addr: serverCfg.Listen}},
	}); err != nil {
		logger.Warn().Err(err).Msg("failed to write machine descriptor")
	}

	handle := bridge.NewHandle(serialbridge.Open(serverCfg.Path, serverCfg.BaudRate), bridge.DefaultBackoff)
	srv := bridge.NewServer(serverCfg.Path, handle, logger)

	logger.Info().Str("path", serverCfg.Path).Str("listen", serverCfg.Listen).Msg("serial server listening")
	return srv.Serve(cmd.Context(), ep)
}

var (
	clientAddr   string
	clientPath   string
	clientKeyDir string

	ClientCmd = &cobra.Command{
		Use:   "serial-client",
		Short: "Attach to a remote serial port, piping stdin/stdout",
		RunE:  runClient,
	}
)

func init() {
	ClientCmd.Flags().StringVar(&clientAddr, "addr", "", "server QUIC address (required)")
	ClientCmd.Flags().StringVar(&clientPath, "path", "", "broadcast path on the server (required)")
	ClientCmd.Flags().StringVar(&clientKeyDir, "key-dir", "", "key directory")
	ClientCmd.MarkFlagRequired("addr")
	ClientCmd.MarkFlagRequired("path")
}

func runClient(cmd *cobra.Command, args []string) error {
	logger := log.With().Str("com", "serial-client").Logger()
	keyDir := config.KeyDir(clientKeyDir)

	id, err := identity.Load(keyDir, "serial-client")
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

	stream := session.Stream(ctx)

	errCh := make(chan error, 2)
	go func() {
		_, err := io.Copy(stream, bufio.NewReader(os.Stdin))
		errCh <- err
	}()
	go func() {
		_, err := io.Copy(os.Stdout, stream)
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

var (
	ListCmd = &cobra.Command{
		Use:   "serial-list",
		Short: "List available local serial ports",
		RunE:  runList,
	}
)

func runList(cmd *cobra.Command, args []string) error {
	ports, err := serialbridge.ListPorts()
	if err != nil {
		return err
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	return nil
}
