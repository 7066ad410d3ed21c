// Package camera implements "xoq camera-server" and "xoq camera-client",
// publishing an encoded CMAF video track from a local camera.
//
// Platform capture (V4L2/AVFoundation) and hardware encoding
// (VideoToolbox/NVENC) are external SDKs this build does not bind; NewCapturer
// and NewEncoderFactory are the injection points a platform-specific build
// overrides with real implementations.
package camera

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/haixuanTao/XoQ/internal/alpn"
	"github.com/haixuanTao/XoQ/internal/camerabridge"
	"github.com/haixuanTao/XoQ/internal/config"
	"github.com/haixuanTao/XoQ/internal/identity"
	"github.com/haixuanTao/XoQ/internal/moq"
	"github.com/haixuanTao/XoQ/internal/transport"
	"github.com/haixuanTao/XoQ/internal/xoqerrors"
)

// NewCapturer opens device for capture. Overridden by a platform-specific
// build's init(); the default always fails.
var NewCapturer = func(device string, width, height, fps int) (camerabridge.Capturer, error) {
	return nil, xoqerrors.Config("camera capturer", fmt.Errorf("no platform capturer wired for device %q", device))
}

// NewEncoderFactory returns a codec encoder factory for the configured
// bitrate. Overridden by a platform-specific build's init(); the default
// always fails.
var NewEncoderFactory = func(bitrateKbps int) camerabridge.EncoderFactory {
	return func(codec camerabridge.Codec) (camerabridge.FrameEncoder, error) {
		return nil, xoqerrors.Config("camera encoder", fmt.Errorf("no platform encoder wired for codec %q", codec))
	}
}

var (
	serverCfg config.Camera
	device    string
	listen    string
	keyDir    string
	bitrate   int
	width     int
	height    int
	fps       int

	ServerCmd = &cobra.Command{
		Use:   "camera-server",
		Short: "Publish a local camera as an encoded CMAF track",
		RunE:  runServer,
	}
)

func init() {
	ServerCmd.Flags().StringVar(&device, "device", "", "capture device identifier (required)")
	ServerCmd.Flags().StringVar(&listen, "listen", "", "QUIC listen address (default 0.0.0.0:4435)")
	ServerCmd.Flags().StringVar(&keyDir, "key-dir", "", "key directory")
	ServerCmd.Flags().IntVar(&bitrate, "bitrate-kbps", 0, "target bitrate in kbps (default 4000)")
	ServerCmd.Flags().IntVar(&width, "width", 0, "capture width (default 1280)")
	ServerCmd.Flags().IntVar(&height, "height", 0, "capture height (default 720)")
	ServerCmd.Flags().IntVar(&fps, "fps", 0, "capture frame rate (default 30)")
	ServerCmd.MarkFlagRequired("device")
}

func runServer(cmd *cobra.Command, args []string) error {
	serverCfg.Device = device
	serverCfg.Listen = listen
	serverCfg.KeyDir = config.KeyDir(keyDir)
	serverCfg.BitrateKbps = bitrate
	serverCfg.Width = width
	serverCfg.Height = height
	serverCfg.FPS = fps
	serverCfg.ApplyDefaults()

	logger := log.With().Str("com", "camera-server").Logger()

	capture, err := NewCapturer(serverCfg.Device, serverCfg.Width, serverCfg.Height, serverCfg.FPS)
	if err != nil {
		return err
	}
	encoder, err := camerabridge.NewFallbackEncoder(NewEncoderFactory(serverCfg.BitrateKbps), alpnCodecPreference)
	if err != nil {
		return err
	}

	id, err := identity.Load(serverCfg.KeyDir, "camera-server")
	if err != nil {
		return err
	}
	tlsConf, err := transport.SelfSignedTLSConfig(id, []string{alpn.CameraH264, alpn.CameraAV1})
	if err != nil {
		return err
	}
	ep, err := transport.Listen(serverCfg.Listen, tlsConf, serverCfg.Quic)
	if err != nil {
		return err
	}
	defer ep.Close()

	if err := identity.WriteMachineDescriptor(serverCfg.KeyDir, identity.MachineDescriptor{
		NodeID: id.NodeID(),
		Services: []identity.ServiceEndpoint{
			{ALPN: alpn.CameraH264, Addr: serverCfg.Listen},
			{ALPN: alpn.CameraAV1, Addr: serverCfg.Listen},
		},
	}); err != nil {
		logger.Warn().Err(err).Msg("failed to write machine descriptor")
	}

	srv := camerabridge.NewServer("/camera", capture, encoder, serverCfg.Width, serverCfg.Height, logger)

	logger.Info().Str("device", serverCfg.Device).Str("listen", serverCfg.Listen).Msg("camera server listening")
	return srv.Serve(cmd.Context(), ep)
}

var alpnCodecPreference = []camerabridge.Codec{camerabridge.CodecH264, camerabridge.CodecAV1}

var (
	clientAddr   string
	clientOut    string
	clientKeyDir string

	ClientCmd = &cobra.Command{
		Use:   "camera-client",
		Short: "Subscribe to a remote camera track and write the CMAF stream out",
		RunE:  runClient,
	}
)

func init() {
	ClientCmd.Flags().StringVar(&clientAddr, "addr", "", "server QUIC address (required)")
	ClientCmd.Flags().StringVar(&clientOut, "out", "-", "output file path, - for stdout")
	ClientCmd.Flags().StringVar(&clientKeyDir, "key-dir", "", "key directory")
	ClientCmd.MarkFlagRequired("addr")
}

func runClient(cmd *cobra.Command, args []string) error {
	logger := log.With().Str("com", "camera-client").Logger()
	keyDir := config.KeyDir(clientKeyDir)

	id, err := identity.Load(keyDir, "camera-client")
	if err != nil {
		return err
	}
	tlsConf, err := transport.SelfSignedTLSConfig(id, []string{alpn.CameraH264, alpn.CameraAV1})
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

	sub := moq.NewSubscriber(conn, logger)
	go func() {
		if err := sub.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Debug().Err(err).Msg("inbound group dispatch ended")
		}
	}()

	subscription, err := sub.Subscribe(ctx, "/camera", "video", 0)
	if err != nil {
		return fmt.Errorf("subscribe video track: %w", err)
	}
	defer subscription.Close()

	var out io.Writer = os.Stdout
	if clientOut != "-" {
		f, err := os.Create(clientOut)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	for group := range subscription.Groups() {
		for _, f := range group.Frames {
			if _, err := out.Write(f.Data); err != nil {
				return err
			}
		}
	}
	return ctx.Err()
}
