package depthbridge

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/haixuanTao/XoQ/internal/camerabridge"
	"github.com/haixuanTao/XoQ/internal/cmaf"
	"github.com/haixuanTao/XoQ/internal/moq"
	"github.com/haixuanTao/XoQ/internal/transport"
)

// depthAV1Profile/Level/Tier are the profile, level and tier written into the
// depth track's av1C box. They are fixed values, not read from the depth
// encoder's Sequence Header, so av1C matches the stream only when the
// encoder uses the same profile, level and tier.
const (
	depthAV1Profile = 0
	depthAV1Level   = 0
	depthAV1Tier    = 0
)

// Server specializes camerabridge for a depth sensor: it publishes color
// (video), depth, and metadata tracks independently under one broadcast
// path, each with its own keyframe cadence.
type Server struct {
	Path         string
	ColorCapture camerabridge.Capturer
	ColorEncoder *camerabridge.FallbackEncoder
	DepthCapture camerabridge.Capturer
	DepthEncoder camerabridge.FrameEncoder
	Calibration  Calibration
	Width        int
	Height       int
	Logger       zerolog.Logger
}

// NewServer returns a depth bridge server for path.
func NewServer(path string, colorCapture camerabridge.Capturer, colorEncoder *camerabridge.FallbackEncoder,
	depthCapture camerabridge.Capturer, depthEncoder camerabridge.FrameEncoder,
	calibration Calibration, width, height int, logger zerolog.Logger) *Server {
	return &Server{
		Path:         path,
		ColorCapture: colorCapture,
		ColorEncoder: colorEncoder,
		DepthCapture: depthCapture,
		DepthEncoder: depthEncoder,
		Calibration:  calibration,
		Width:        width,
		Height:       height,
		Logger:       logger.With().Str("com", "depthbridge").Str("path", path).Logger(),
	}
}

// Serve publishes video, depth, and metadata tracks and answers control
// traffic on every connection accepted from ln.
func (s *Server) Serve(ctx context.Context, ln *transport.Endpoint) error {
	pub := moq.NewPublisher(s.Path, s.Logger)
	videoTrack := pub.Track("video")
	depthTrack := pub.Track("depth")
	metaTrack := pub.Track("metadata")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.colorPump(ctx, videoTrack) })
	g.Go(func() error { return s.depthPump(ctx, depthTrack, metaTrack) })
	g.Go(func() error {
		for {
			conn, err := ln.Accept(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			go func() {
				if err := pub.ServeControl(ctx, conn); err != nil && ctx.Err() == nil {
					s.Logger.Debug().Err(err).Msg("control loop ended")
				}
			}()
		}
	})
	return g.Wait()
}

func (s *Server) colorPump(ctx context.Context, track *moq.PublishedTrack) error {
	muxer := cmaf.NewH264Muxer(cmaf.Config{Width: uint32(s.Width), Height: uint32(s.Height), Timescale: 90000, TrackID: 1})
	return pumpVideo(ctx, track, s.ColorCapture, func(buf camerabridge.PixelBuffer) (camerabridge.EncodedUnit, error) {
		return s.ColorEncoder.Encode(ctx, buf)
	}, muxer.AddFrame, muxer.Flush, muxer.InitSegment)
}

func (s *Server) depthPump(ctx context.Context, depthTrack, metaTrack *moq.PublishedTrack) error {
	muxer := cmaf.NewAV1Muxer(cmaf.Config{Width: uint32(s.Width), Height: uint32(s.Height), Timescale: 90000, TrackID: 2},
		depthAV1Profile, depthAV1Level, depthAV1Tier, true)

	keyframePending := false
	addFrame := func(data []byte, duration uint32) error {
		if cmaf.ParseAV1Frame(data).IsKeyframe {
			keyframePending = true
		}
		muxer.AddFrame(data, duration)
		return nil
	}

	wrapFlush := func() []byte {
		frag := muxer.Flush()
		if frag == nil || !keyframePending {
			return frag
		}
		keyframePending = false
		meta, err := EncodeMetadata(Metadata{
			FX: 0, FY: 0, PPX: 0, PPY: 0,
			Width: s.Width, Height: s.Height,
			DepthScale: (s.Calibration.MaxDepthMM - s.Calibration.MinDepthMM) / 1023.0,
		})
		if err == nil {
			_ = metaTrack.Publish(ctx, moq.Group{Frames: []moq.Frame{{Data: meta}}})
		}
		return frag
	}

	return pumpVideo(ctx, depthTrack, s.DepthCapture, func(buf camerabridge.PixelBuffer) (camerabridge.EncodedUnit, error) {
		return s.DepthEncoder.Encode(ctx, buf)
	}, addFrame, wrapFlush, muxer.InitSegment)
}

// pumpVideo is the capture/encode/mux/send loop shared by the color and
// depth tracks; only the encoder, muxer hooks, and calibration-aware
// metadata differ between them.
func pumpVideo(
	ctx context.Context,
	track *moq.PublishedTrack,
	capture camerabridge.Capturer,
	encode func(camerabridge.PixelBuffer) (camerabridge.EncodedUnit, error),
	addFrame func([]byte, uint32) error,
	flush func() []byte,
	initSegment func() []byte,
) error {
	var seq uint64
	sentInitOnce := false

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if track.SubscriberCount() == 0 {
			select {
			case <-time.After(camerabridge.NoSubscriberPoll):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		buf, err := capture.Capture(ctx)
		if err != nil {
			return err
		}
		unit, err := encode(buf)
		buf.Release()
		if err != nil {
			continue
		}

		needsInit := unit.Keyframe || !sentInitOnce
		if err := addFrame(unit.Data, 3000); err != nil {
			continue
		}

		frag := flush()
		if frag == nil {
			continue
		}

		payload := camerabridge.WallClockTimestamp(time.Now())
		if needsInit {
			if init := initSegment(); init != nil {
				payload = append(payload, init...)
				sentInitOnce = true
			}
		}
		payload = append(payload, frag...)

		group := moq.Group{Sequence: seq, Frames: []moq.Frame{{Data: payload}}}
		seq++
		_ = track.Publish(ctx, group)
	}
}
