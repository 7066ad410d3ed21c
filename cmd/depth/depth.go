// Package depth implements "xoq depth-server", publishing color, depth, and
// camera-intrinsics metadata tracks from a depth sensor.
//
// Platform capture (e.g. RealSense) and hardware encoding are external SDKs
// this build does not bind; NewColorCapturer, NewDepthCapturer, and
// NewEncoderFactory are the injection points a platform-specific build
// overrides with real implementations.
package depth

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/haixuanTao/XoQ/internal/alpn"
	"github.com/haixuanTao/XoQ/internal/camerabridge"
	"github.com/haixuanTao/XoQ/internal/config"
	"github.com/haixuanTao/XoQ/internal/depthbridge"
	"github.com/haixuanTao/XoQ/internal/identity"
	"github.com/haixuanTao/XoQ/internal/transport"
	"github.com/haixuanTao/XoQ/internal/xoqerrors"
)

// NewColorCapturer opens the sensor's color stream. Overridden by a
// platform-specific build's init(); the default always fails.
var NewColorCapturer = func(device string, width, height, fps int) (camerabridge.Capturer, error) {
	return nil, xoqerrors.Config("depth color capturer", fmt.Errorf("no platform capturer wired for device %q", device))
}

// NewDepthCapturer opens the sensor's depth stream, yielding raw 16-bit
// depth-as-luma buffers. Overridden the same way as NewColorCapturer.
var NewDepthCapturer = func(device string, width, height, fps int) (camerabridge.Capturer, error) {
	return nil, xoqerrors.Config("depth capturer", fmt.Errorf("no platform capturer wired for device %q", device))
}

// NewEncoderFactory returns encoder factories for the color and depth
// tracks respectively. Overridden the same way as NewColorCapturer.
var NewEncoderFactory = func(bitrateKbps int) (color camerabridge.EncoderFactory, depthEnc camerabridge.FrameEncoder, err error) {
	return nil, nil, xoqerrors.Config("depth encoder", fmt.Errorf("no platform encoder wired"))
}

var (
	serverCfg config.Depth
	device    string
	listen    string
	keyDir    string
	bitrate   int
	width     int
	height    int
	fps       int
	calFrames int

	ServerCmd = &cobra.Command{
		Use:   "depth-server",
		Short: "Publish color, depth, and metadata tracks from a depth sensor",
		RunE:  runServer,
	}
)

var colorCodecPreference = []camerabridge.Codec{camerabridge.CodecH264, camerabridge.CodecAV1}

func init() {
	ServerCmd.Flags().StringVar(&device, "device", "", "sensor device identifier (required)")
	ServerCmd.Flags().StringVar(&listen, "listen", "", "QUIC listen address (default 0.0.0.0:4435)")
	ServerCmd.Flags().StringVar(&keyDir, "key-dir", "", "key directory")
	ServerCmd.Flags().IntVar(&bitrate, "bitrate-kbps", 0, "target bitrate in kbps (default 4000)")
	ServerCmd.Flags().IntVar(&width, "width", 0, "capture width (default 1280)")
	ServerCmd.Flags().IntVar(&height, "height", 0, "capture height (default 720)")
	ServerCmd.Flags().IntVar(&fps, "fps", 0, "capture frame rate (default 30)")
	ServerCmd.Flags().IntVar(&calFrames, "calibration-frames", 0, "depth auto-calibration read-ahead frame count (default 30)")
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
	serverCfg.CalibrationFrames = calFrames
	serverCfg.ApplyDefaults()

	logger := log.With().Str("com", "depth-server").Logger()

	colorCapture, err := NewColorCapturer(serverCfg.Device, serverCfg.Width, serverCfg.Height, serverCfg.FPS)
	if err != nil {
		return err
	}
	depthCapture, err := NewDepthCapturer(serverCfg.Device, serverCfg.Width, serverCfg.Height, serverCfg.FPS)
	if err != nil {
		return err
	}
	colorEncoderFactory, depthEncoder, err := NewEncoderFactory(serverCfg.BitrateKbps)
	if err != nil {
		return err
	}
	colorEncoder, err := camerabridge.NewFallbackEncoder(colorEncoderFactory, colorCodecPreference)
	if err != nil {
		return err
	}

	calibration, err := calibrate(cmd.Context(), depthCapture, serverCfg.CalibrationFrames)
	if err != nil {
		return err
	}
	calibration = applyOverrides(calibration, serverCfg)

	id, err := identity.Load(serverCfg.KeyDir, "depth-server")
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

	srv := depthbridge.NewServer("/depth", colorCapture, colorEncoder, depthCapture, depthEncoder,
		calibration, serverCfg.Width, serverCfg.Height, logger)

	logger.Info().Str("device", serverCfg.Device).Str("listen", serverCfg.Listen).Msg("depth server listening")
	return srv.Serve(cmd.Context(), ep)
}

// calibrate reads ahead n depth frames, converting each PixelBuffer's raw
// bytes to a 16-bit luma sample, and derives a linear luma-to-millimeter
// mapping from their observed min/max.
func calibrate(ctx context.Context, capture camerabridge.Capturer, n int) (depthbridge.Calibration, error) {
	frames := make([][]uint16, 0, n)
	for i := 0; i < n; i++ {
		buf, err := capture.Capture(ctx)
		if err != nil {
			return depthbridge.Calibration{}, fmt.Errorf("calibration capture: %w", err)
		}
		data := buf.Data()
		luma := make([]uint16, len(data)/2)
		for j := range luma {
			luma[j] = uint16(data[2*j]) | uint16(data[2*j+1])<<8
		}
		buf.Release()
		frames = append(frames, luma)
	}
	return depthbridge.Calibrate(frames), nil
}

func applyOverrides(computed depthbridge.Calibration, cfg config.Depth) depthbridge.Calibration {
	if cfg.MinDepthMMOverride == 0 && cfg.MaxDepthMMOverride == 0 {
		return computed
	}
	override := computed
	if cfg.MinDepthMMOverride != 0 {
		override.MinDepthMM = float64(cfg.MinDepthMMOverride)
	}
	if cfg.MaxDepthMMOverride != 0 {
		override.MaxDepthMM = float64(cfg.MaxDepthMMOverride)
	}
	return depthbridge.OverrideCalibration(computed, &override)
}
