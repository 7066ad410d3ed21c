package bridge

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/haixuanTao/XoQ/internal/moq"
	"github.com/haixuanTao/XoQ/internal/transport"
)

// Client is the dial side of a bridge connection: the mirror image of
// Server's serveConn, publishing commands on ToDevice and subscribing to
// readings on FromDevice over the same connection.
type Client struct {
	Path   string
	Logger zerolog.Logger
}

// NewClient returns a bridge client for path.
func NewClient(path string, logger zerolog.Logger) *Client {
	return &Client{Path: path, Logger: logger.With().Str("com", "bridge-client").Str("path", path).Logger()}
}

// Session holds the live track handles a connected client uses to exchange
// data with the remote device.
type Session struct {
	ToDevice   *moq.PublishedTrack
	FromDevice *moq.Subscription
}

// Stream adapts the session into a single duplex byte stream, the shape the
// serial bridge needs.
func (s *Session) Stream(ctx context.Context) *moq.MoqStream {
	return moq.NewMoqStream(ctx, s.ToDevice, s.FromDevice)
}

// Close ends the subscription side of the session.
func (s *Session) Close() error {
	return s.FromDevice.Close()
}

// Connect performs both directions of the handshake over conn: it serves
// the remote side's subscribe requests for ToDevice, and subscribes to the
// remote side's FromDevice publication.
func (c *Client) Connect(ctx context.Context, conn *transport.Conn) (*Session, error) {
	pub := moq.NewPublisher(c.Path, c.Logger)
	toDevice := pub.Track(TrackToDevice)
	go func() {
		if err := pub.ServeControl(ctx, conn); err != nil && ctx.Err() == nil {
			c.Logger.Debug().Err(err).Msg("outbound control loop ended")
		}
	}()

	sub := moq.NewSubscriber(conn, c.Logger)
	go func() {
		if err := sub.Run(ctx); err != nil && ctx.Err() == nil {
			c.Logger.Debug().Err(err).Msg("inbound group dispatch ended")
		}
	}()

	fromDevice, err := sub.Subscribe(ctx, c.Path, TrackFromDevice, 0)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s/%s: %w", c.Path, TrackFromDevice, err)
	}

	return &Session{ToDevice: toDevice, FromDevice: fromDevice}, nil
}
