package moq

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/quic-go/quic-go"
	"github.com/rs/zerolog"

	"github.com/haixuanTao/XoQ/internal/transport"
)

// wellKnownTrackNames lists every track name a bridge in this system ever
// publishes. There is no TRACK_STATUS-style discovery message in this
// engine's control protocol, so the relay's ingest side subscribes to each
// candidate name and silently lets the ones the origin doesn't publish fail
// their subscribe handshake.
var wellKnownTrackNames = []string{"data", "video", "depth", "metadata", "audio", "from_device", "to_device"}

// Relay is a self-hosted rendezvous point: any connection may publish one or
// more broadcast paths, and any connection may subscribe to a path published
// by any other connection on the relay, including one on a different
// physical network than the subscriber (the point of relay mode in the
// first place).
type Relay struct {
	mu       sync.Mutex
	hubs     map[string]*Publisher
	registry *Registry
	logger   zerolog.Logger
}

// NewRelay returns an empty relay.
func NewRelay(logger zerolog.Logger) *Relay {
	return &Relay{
		hubs:     make(map[string]*Publisher),
		registry: NewRegistry(logger),
		logger:   logger.With().Str("com", "relay").Logger(),
	}
}

func (r *Relay) hub(path string) *Publisher {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hubs[path]
	if !ok {
		h = NewPublisher(path, r.logger)
		r.hubs[path] = h
		r.registry.Announce(path)
	}
	return h
}

// Serve handles one accepted connection for its lifetime: it ingests
// whatever the peer publishes into the relay's hubs, and concurrently
// answers the peer's own announce/subscribe requests against every hub the
// relay knows about. Serve returns once the connection fails or ctx ends.
func (r *Relay) Serve(ctx context.Context, conn *transport.Conn) error {
	sub := NewSubscriber(conn, r.logger)
	go func() {
		if err := sub.Run(ctx); err != nil {
			r.logger.Debug().Err(err).Msg("ingest dispatch loop ended")
		}
	}()
	go r.ingest(ctx, sub)

	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return err
		}
		go r.handleDownstreamStream(ctx, conn, stream)
	}
}

func (r *Relay) ingest(ctx context.Context, sub *Subscriber) {
	resp, err := sub.Announce(ctx, "")
	if err != nil {
		return
	}
	for _, path := range resp.Paths {
		hub := r.hub(path)
		for _, track := range wellKnownTrackNames {
			go r.ingestTrack(ctx, sub, hub, path, track)
		}
	}
}

func (r *Relay) ingestTrack(ctx context.Context, sub *Subscriber, hub *Publisher, path, track string) {
	subscription, err := sub.Subscribe(ctx, path, track, 0)
	if err != nil {
		return
	}
	defer subscription.Close()

	dest := hub.Track(track)
	for group := range subscription.Groups() {
		_ = dest.Publish(ctx, group)
	}
}

func (r *Relay) handleDownstreamStream(ctx context.Context, conn *transport.Conn, stream *quic.Stream) {
	if _, err := ServerHandshake(stream, SupportedVersions); err != nil {
		r.logger.Debug().Err(err).Msg("downstream handshake failed")
		stream.Close()
		return
	}

	body, err := ReadFrameBytes(stream)
	if err != nil {
		stream.Close()
		return
	}
	msgType, _, err := DecodeVarint(body)
	if err != nil {
		stream.Close()
		return
	}

	switch msgType {
	case MsgAnnounce:
		defer stream.Close()
		r.replyAnnounce(stream, body)
	case MsgSubscribe:
		req, err := DecodeSubscribeRequest(body)
		if err != nil {
			stream.Close()
			return
		}
		r.hub(req.BroadcastPath).HandleSubscribe(ctx, conn, stream, req)
	default:
		stream.Close()
	}
}

func (r *Relay) replyAnnounce(w io.Writer, body []byte) {
	req, err := DecodeAnnounceRequest(body)
	if err != nil {
		return
	}
	_ = WriteFrameBytes(w, AnnounceResponse{Paths: r.registry.List(req.Prefix)}.Encode())
}

// ServeAnnounceStream performs the control handshake on rw and answers
// exactly one Announce request against the relay's registry, then closes rw.
// Unlike Serve, it needs only a duplex byte stream, not a *transport.Conn:
// that's all a browser-class carrier without native QUIC stream
// multiplexing (moqbrowser.WebSocketCarrier) can offer. Subscribe still
// needs Serve's multi-stream transport.Conn to deliver groups, so a
// carrier-served peer can discover broadcast paths but not yet subscribe to
// their groups.
func (r *Relay) ServeAnnounceStream(ctx context.Context, rw io.ReadWriteCloser) error {
	defer rw.Close()
	if _, err := ServerHandshake(rw, SupportedVersions); err != nil {
		return fmt.Errorf("carrier handshake: %w", err)
	}
	body, err := ReadFrameBytes(rw)
	if err != nil {
		return fmt.Errorf("read control message: %w", err)
	}
	msgType, _, err := DecodeVarint(body)
	if err != nil {
		return err
	}
	if msgType != MsgAnnounce {
		return fmt.Errorf("moq: expected MsgAnnounce over carrier stream, got %d", msgType)
	}
	r.replyAnnounce(rw, body)
	return nil
}
