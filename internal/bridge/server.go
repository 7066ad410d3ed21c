package bridge

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/haixuanTao/XoQ/internal/moq"
	"github.com/haixuanTao/XoQ/internal/transport"
)

// Track names every bridge publishes or subscribes to on its broadcast
// path: device readings flow out on FromDevice, commands flow in on
// ToDevice.
const (
	TrackFromDevice = "from_device"
	TrackToDevice   = "to_device"
)

// maxBatchDrain bounds how many queued device buffers pumpFromDevice packs
// into a single published group, trimming network-write count under load
// without reordering or dropping anything: the buffers still arrive as
// frames in FIFO order within the group.
const maxBatchDrain = 8

// Server fans one Handle out to however many peer connections attach to a
// broadcast path: every connection shares the same FromDevice publisher, so
// a frame read off the device reaches every attached subscriber, and each
// connection that publishes ToDevice gets its own subscription feeding
// InboundToDevice.
type Server struct {
	Path   string
	Handle *Handle
	Logger zerolog.Logger
}

// NewServer returns a bridge server for path backed by handle.
func NewServer(path string, handle *Handle, logger zerolog.Logger) *Server {
	return &Server{
		Path:   path,
		Handle: handle,
		Logger: logger.With().Str("com", "bridge").Str("path", path).Logger(),
	}
}

// Serve runs the device handle and accepts connections from ln until ctx is
// canceled or the listener fails. One Publisher and one pumpFromDevice
// goroutine are shared across every accepted connection so a device frame
// fans out to all attached subscribers instead of being claimed by whichever
// connection's goroutine happens to receive it off the channel.
func (s *Server) Serve(ctx context.Context, ln *transport.Endpoint) error {
	pub := moq.NewPublisher(s.Path, s.Logger)
	fromDevice := pub.Track(TrackFromDevice)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Handle.Run(ctx) })
	g.Go(func() error { return s.pumpFromDevice(ctx, fromDevice) })

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return g.Wait()
			}
			return fmt.Errorf("accept connection: %w", err)
		}
		g.Go(func() error {
			if err := s.serveConn(ctx, pub, conn); err != nil {
				s.Logger.Debug().Err(err).Msg("connection ended")
			}
			return nil
		})
	}
}

func (s *Server) serveConn(ctx context.Context, pub *moq.Publisher, conn *transport.Conn) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pub.ServeControl(ctx, conn) })
	g.Go(func() error { return s.pumpToDevice(ctx, conn) })
	return g.Wait()
}

func (s *Server) pumpFromDevice(ctx context.Context, track *moq.PublishedTrack) error {
	var seq uint64
	for {
		select {
		case data, ok := <-s.Handle.DeviceToOutbound:
			if !ok {
				return nil
			}
			frames := []moq.Frame{{Data: data}}
			frames = drainPending(s.Handle.DeviceToOutbound, frames, maxBatchDrain)

			group := moq.Group{Sequence: seq, Frames: frames}
			seq++
			if err := track.Publish(ctx, group); err != nil {
				s.Logger.Debug().Err(err).Msg("publish device frame failed")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// drainPending greedily appends whatever is already queued on ch, up to max
// frames total, without blocking: it stops the instant ch has nothing ready.
func drainPending(ch <-chan []byte, frames []moq.Frame, max int) []moq.Frame {
	for len(frames) < max {
		select {
		case data, ok := <-ch:
			if !ok {
				return frames
			}
			frames = append(frames, moq.Frame{Data: data})
		default:
			return frames
		}
	}
	return frames
}

func (s *Server) pumpToDevice(ctx context.Context, conn *transport.Conn) error {
	sub := moq.NewSubscriber(conn, s.Logger)
	go func() {
		if err := sub.Run(ctx); err != nil && ctx.Err() == nil {
			s.Logger.Debug().Err(err).Msg("inbound group dispatch ended")
		}
	}()

	subscription, err := sub.Subscribe(ctx, s.Path, TrackToDevice, 0)
	if err != nil {
		// The peer may be read-only (no commands to send); that's not fatal
		// for this connection's from-device direction.
		s.Logger.Debug().Err(err).Msg("peer does not publish to_device")
		<-ctx.Done()
		return ctx.Err()
	}
	defer subscription.Close()

	for group := range subscription.Groups() {
		for _, f := range group.Frames {
			select {
			case s.Handle.InboundToDevice <- f.Data:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}
