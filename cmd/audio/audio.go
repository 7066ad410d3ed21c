// Package audio implements "xoq audio-server", "xoq audio-client", and
// "xoq audio-list", publishing duplex PCM audio between peers.
//
// Platform audio capture/playback (the cpal-equivalent collaborator) is an
// external SDK this build does not bind; NewCapturer, NewPlayer, and
// NewEndpointLister are the injection points a platform-specific build
// overrides with real implementations.
package audio

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/haixuanTao/XoQ/internal/alpn"
	"github.com/haixuanTao/XoQ/internal/audiobridge"
	"github.com/haixuanTao/XoQ/internal/bridge"
	"github.com/haixuanTao/XoQ/internal/config"
	"github.com/haixuanTao/XoQ/internal/identity"
	"github.com/haixuanTao/XoQ/internal/transport"
	"github.com/haixuanTao/XoQ/internal/xoqerrors"
)

// NewCapturer opens device for PCM capture. Overridden by a
// platform-specific build's init(); the default always fails.
var NewCapturer = func(device string, sampleRate uint32, channels uint16) (audiobridge.Capturer, error) {
	return nil, xoqerrors.Config("audio capturer", fmt.Errorf("no platform capturer wired for device %q", device))
}

// NewPlayer opens device for PCM playback. Overridden the same way.
var NewPlayer = func(device string, sampleRate uint32, channels uint16) (audiobridge.Player, error) {
	return nil, xoqerrors.Config("audio player", fmt.Errorf("no platform player wired for device %q", device))
}

// NewEndpointLister enumerates platform audio endpoints. Overridden the
// same way; the default reports none.
var NewEndpointLister = func() audiobridge.EndpointLister {
	return func() ([]string, error) { return nil, nil }
}

var (
	serverCfg    config.Audio
	inputDevice  string
	outputDevice string
	listen       string
	keyDir       string
	sampleRate   uint32
	channels     uint16

	ServerCmd = &cobra.Command{
		Use:   "audio-server",
		Short: "Publish duplex PCM audio over the network",
		RunE:  runServer,
	}
)

func init() {
	ServerCmd.Flags().StringVar(&inputDevice, "input-device", "", "capture device identifier")
	ServerCmd.Flags().StringVar(&outputDevice, "output-device", "", "playback device identifier")
	ServerCmd.Flags().StringVar(&listen, "listen", "", "QUIC listen address (default 0.0.0.0:4436)")
	ServerCmd.Flags().StringVar(&keyDir, "key-dir", "", "key directory")
	ServerCmd.Flags().Uint32Var(&sampleRate, "sample-rate", 0, "sample rate in Hz (default 48000)")
	ServerCmd.Flags().Uint16Var(&channels, "channels", 0, "channel count (default 1)")
}

func runServer(cmd *cobra.Command, args []string) error {
	serverCfg.InputDevice = inputDevice
	serverCfg.OutputDevice = outputDevice
	serverCfg.Listen = listen
	serverCfg.KeyDir = config.KeyDir(keyDir)
	serverCfg.SampleRate = sampleRate
	serverCfg.Channels = channels
	serverCfg.ApplyDefaults()

	logger := log.With().Str("com", "audio-server").Logger()

	capturer, err := NewCapturer(serverCfg.InputDevice, serverCfg.SampleRate, serverCfg.Channels)
	if err != nil {
		return err
	}
	player, err := NewPlayer(serverCfg.OutputDevice, serverCfg.SampleRate, serverCfg.Channels)
	if err != nil {
		return err
	}

	id, err := identity.Load(serverCfg.KeyDir, "audio-server")
	if err != nil {
		return err
	}
	tlsConf, err := transport.SelfSignedTLSConfig(id, []string{alpn.AudioPCM})
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
		Services: []identity.ServiceEndpoint{{ALPN: alpn.AudioPCM, Addr: serverCfg.Listen}},
	}); err != nil {
		logger.Warn().Err(err).Msg("failed to write machine descriptor")
	}

	handle := bridge.NewHandle(audiobridge.Open(serverCfg.InputDevice, capturer, player), bridge.DefaultBackoff)
	srv := bridge.NewServer("/audio", handle, logger)

	logger.Info().Str("input", serverCfg.InputDevice).Str("output", serverCfg.OutputDevice).
		Str("listen", serverCfg.Listen).Msg("audio server listening")
	return srv.Serve(cmd.Context(), ep)
}

var (
	clientAddr   string
	clientKeyDir string

	ClientCmd = &cobra.Command{
		Use:   "audio-client",
		Short: "Exchange duplex PCM audio with a remote audio server",
		RunE:  runClient,
	}
)

func init() {
	ClientCmd.Flags().StringVar(&clientAddr, "addr", "", "server QUIC address (required)")
	ClientCmd.Flags().StringVar(&clientKeyDir, "key-dir", "", "key directory")
	ClientCmd.MarkFlagRequired("addr")
}

func runClient(cmd *cobra.Command, args []string) error {
	logger := log.With().Str("com", "audio-client").Logger()
	keyDir := config.KeyDir(clientKeyDir)

	id, err := identity.Load(keyDir, "audio-client")
	if err != nil {
		return err
	}
	tlsConf, err := transport.SelfSignedTLSConfig(id, []string{alpn.AudioPCM})
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

	client := bridge.NewClient("/audio", logger)
	session, err := client.Connect(ctx, conn)
	if err != nil {
		return fmt.Errorf("connect session: %w", err)
	}
	defer session.Close()

	stream := session.Stream(ctx)

	// Without a wired local capturer/player (see NewCapturer/NewPlayer),
	// this client only drains the remote device's PCM frames to stdout;
	// a platform build wires a real Player in place of os.Stdout.
	_, err = io.Copy(os.Stdout, stream)
	return err
}

var (
	ListCmd = &cobra.Command{
		Use:   "audio-list",
		Short: "List available local audio input/output devices",
		RunE:  runList,
	}
)

func runList(cmd *cobra.Command, args []string) error {
	lister := NewEndpointLister()
	inputs, err := audiobridge.ListInputs(lister)
	if err != nil {
		return err
	}
	outputs, err := audiobridge.ListOutputs(lister)
	if err != nil {
		return err
	}
	fmt.Println("inputs:")
	for _, in := range inputs {
		fmt.Println(" ", in)
	}
	fmt.Println("outputs:")
	for _, out := range outputs {
		fmt.Println(" ", out)
	}
	return nil
}
