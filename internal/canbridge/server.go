package canbridge

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/haixuanTao/XoQ/internal/bridge"
	"github.com/haixuanTao/XoQ/internal/moq"
	"github.com/haixuanTao/XoQ/internal/transport"
)

// batchInterval is the tick at which frames pulled off the bus are grouped
// into a single MoQ group, so a monitoring subscriber sees coherent batches
// of bus traffic instead of one 6-byte-plus-payload object per CAN frame.
const batchInterval = 10 * time.Millisecond

// Server fans one CAN interface Handle out to attached peer connections,
// batching outbound frames on batchInterval and serializing inbound writes
// back onto the bus through the handle's single write loop. Every connection
// shares the same from_device publisher, so a batch fans out to all attached
// subscribers instead of being claimed by one connection's goroutine.
type Server struct {
	Path   string
	Handle *bridge.Handle
	Logger zerolog.Logger
}

// NewServer returns a CAN bridge server for path backed by handle.
func NewServer(path string, handle *bridge.Handle, logger zerolog.Logger) *Server {
	return &Server{
		Path:   path,
		Handle: handle,
		Logger: logger.With().Str("com", "canbridge").Str("path", path).Logger(),
	}
}

// Serve runs the interface handle and accepts connections from ln until ctx
// is canceled or the listener fails. One Publisher and one pumpFromBus
// goroutine are shared across every accepted connection.
func (s *Server) Serve(ctx context.Context, ln *transport.Endpoint) error {
	pub := moq.NewPublisher(s.Path, s.Logger)
	fromDevice := pub.Track(bridge.TrackFromDevice)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Handle.Run(ctx) })
	g.Go(func() error { return s.pumpFromBus(ctx, fromDevice) })

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
	g.Go(func() error { return s.pumpToBus(ctx, conn) })
	return g.Wait()
}

// pumpFromBus drains Handle.DeviceToOutbound on a fixed tick, packing
// whatever arrived since the last tick into a single group so bus chatter
// doesn't open one QUIC stream per frame.
func (s *Server) pumpFromBus(ctx context.Context, track *moq.PublishedTrack) error {
	ticker := time.NewTicker(batchInterval)
	defer ticker.Stop()

	var pending []moq.Frame
	var seq uint64

	flush := func() {
		if len(pending) == 0 {
			return
		}
		group := moq.Group{Sequence: seq, Frames: pending}
		seq++
		pending = nil
		if err := track.Publish(ctx, group); err != nil {
			s.Logger.Debug().Err(err).Msg("publish bus batch failed")
		}
	}

	for {
		select {
		case data, ok := <-s.Handle.DeviceToOutbound:
			if !ok {
				flush()
				return nil
			}
			pending = append(pending, moq.Frame{Data: data})
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Server) pumpToBus(ctx context.Context, conn *transport.Conn) error {
	sub := moq.NewSubscriber(conn, s.Logger)
	go func() {
		if err := sub.Run(ctx); err != nil && ctx.Err() == nil {
			s.Logger.Debug().Err(err).Msg("inbound group dispatch ended")
		}
	}()

	subscription, err := sub.Subscribe(ctx, s.Path, bridge.TrackToDevice, 0)
	if err != nil {
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
