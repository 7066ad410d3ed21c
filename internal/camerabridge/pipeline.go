package camerabridge

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/haixuanTao/XoQ/internal/cmaf"
	"github.com/haixuanTao/XoQ/internal/moq"
	"github.com/haixuanTao/XoQ/internal/transport"
)

// NoSubscriberPoll paces the capture pump's idle check so it doesn't spin
// the CPU waiting for the first subscriber to attach. Shared with
// depthbridge, whose pumpVideo has the identical idle shape.
const NoSubscriberPoll = 50 * time.Millisecond

// Server captures, encodes, muxes and publishes one camera's color track
// under path. Unlike bridge.Server, capture has no from_device/to_device
// symmetry: there's no meaningful stream of commands flowing back to a
// camera, so this owns its own connection-serving loop rather than reusing
// bridge.Server.
type Server struct {
	Path    string
	Capture Capturer
	Encoder *FallbackEncoder
	Width   int
	Height  int
	Logger  zerolog.Logger
}

func NewServer(path string, capture Capturer, encoder *FallbackEncoder, width, height int, logger zerolog.Logger) *Server {
	return &Server{
		Path:    path,
		Capture: capture,
		Encoder: encoder,
		Width:   width,
		Height:  height,
		Logger:  logger.With().Str("com", "camerabridge").Str("path", path).Logger(),
	}
}

// Serve captures and publishes frames on the video track and answers
// control traffic on every connection accepted from ln.
func (s *Server) Serve(ctx context.Context, ln *transport.Endpoint) error {
	pub := moq.NewPublisher(s.Path, s.Logger)
	track := pub.Track("video")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.capturePump(ctx, track) })
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

func (s *Server) capturePump(ctx context.Context, track *moq.PublishedTrack) error {
	muxer := cmaf.NewH264Muxer(cmaf.Config{Width: uint32(s.Width), Height: uint32(s.Height), Timescale: 90000, TrackID: 1})
	var seq uint64
	sentInitOnce := false

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if track.SubscriberCount() == 0 {
			select {
			case <-time.After(NoSubscriberPoll):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		buf, err := s.Capture.Capture(ctx)
		if err != nil {
			return err
		}
		unit, err := s.Encoder.Encode(ctx, buf)
		buf.Release()
		if err != nil {
			s.Logger.Debug().Err(err).Msg("encode failed")
			continue
		}

		needsInit := unit.Keyframe || !sentInitOnce
		if err := muxer.AddFrame(unit.Data, 3000); err != nil {
			s.Logger.Debug().Err(err).Msg("mux failed")
			continue
		}

		frag := muxer.Flush()
		if frag == nil {
			continue
		}

		payload := WallClockTimestamp(time.Now())
		if needsInit {
			if init := muxer.InitSegment(); init != nil {
				payload = append(payload, init...)
				sentInitOnce = true
			}
		}
		payload = append(payload, frag...)

		group := moq.Group{Sequence: seq, Frames: []moq.Frame{{Data: payload}}}
		seq++
		if err := track.Publish(ctx, group); err != nil {
			s.Logger.Debug().Err(err).Msg("publish video frame failed")
		}
	}
}
