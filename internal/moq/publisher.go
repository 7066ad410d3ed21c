package moq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/quic-go/quic-go"
	"github.com/rs/zerolog"

	"github.com/haixuanTao/XoQ/internal/transport"
)

// Publisher serves one broadcast path: it answers discovery (Announce) and
// subscription (Subscribe) requests arriving on control streams, and fans
// out published groups to every subscriber currently attached to a track.
type Publisher struct {
	path   string
	logger zerolog.Logger

	mu     sync.Mutex
	tracks map[string]*PublishedTrack
}

// NewPublisher returns a publisher for path. Use Track to obtain the handle
// a bridge writes groups to, and ServeControl per accepted connection to
// answer discovery/subscribe traffic.
func NewPublisher(path string, logger zerolog.Logger) *Publisher {
	return &Publisher{
		path:   path,
		logger: logger.With().Str("com", "publisher").Str("path", path).Logger(),
		tracks: make(map[string]*PublishedTrack),
	}
}

// Track returns the named track, creating it on first use.
func (p *Publisher) Track(name string) *PublishedTrack {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tracks[name]
	if !ok {
		t = &PublishedTrack{
			name:   name,
			path:   p.path,
			logger: p.logger.With().Str("track", name).Logger(),
			subs:   make(map[uint64]*subscriberHandle),
		}
		p.tracks[name] = t
	}
	return t
}

// ServeControl handles one peer's control traffic for the lifetime of conn:
// the version handshake, repeated Announce queries, and Subscribe requests.
// It returns when accepting the next control stream fails: conn closed or
// ctx canceled.
func (p *Publisher) ServeControl(ctx context.Context, conn *transport.Conn) error {
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return err
		}
		go p.handleControlStream(ctx, conn, stream)
	}
}

func (p *Publisher) handleControlStream(ctx context.Context, conn *transport.Conn, stream *quic.Stream) {
	defer stream.Close()

	if _, err := ServerHandshake(stream, SupportedVersions); err != nil {
		p.logger.Warn().Err(err).Msg("control stream handshake failed")
		return
	}

	body, err := ReadFrameBytes(stream)
	if err != nil {
		return
	}
	msgType, _, err := DecodeVarint(body)
	if err != nil {
		p.logger.Warn().Err(err).Msg("malformed control message")
		return
	}

	switch msgType {
	case MsgAnnounce:
		req, err := DecodeAnnounceRequest(body)
		if err != nil {
			p.logger.Warn().Err(err).Msg("malformed announce request")
			return
		}
		if !hasPrefix(p.path, req.Prefix) {
			_ = WriteFrameBytes(stream, AnnounceResponse{}.Encode())
			return
		}
		if err := WriteFrameBytes(stream, AnnounceResponse{Paths: []string{p.path}}.Encode()); err != nil {
			p.logger.Warn().Err(err).Msg("write announce response")
		}
	case MsgSubscribe:
		req, err := DecodeSubscribeRequest(body)
		if err != nil {
			p.logger.Warn().Err(err).Msg("malformed subscribe request")
			return
		}
		p.handleSubscribe(ctx, conn, stream, req)
	default:
		p.logger.Warn().Uint64("msg_type", uint64(msgType)).Msg("unexpected control message")
	}
}

// HandleSubscribe completes a subscribe handshake whose SubscribeRequest has
// already been read from stream, and keeps the subscriber attached until the
// stream or ctx ends. Exported so a relay serving many hubs on one listener
// can dispatch a Subscribe request to the right hub without duplicating the
// attach/detach bookkeeping.
func (p *Publisher) HandleSubscribe(ctx context.Context, conn *transport.Conn, stream *quic.Stream, req SubscribeRequest) {
	p.handleSubscribe(ctx, conn, stream, req)
}

func (p *Publisher) handleSubscribe(ctx context.Context, conn *transport.Conn, stream *quic.Stream, req SubscribeRequest) {
	t := p.Track(req.TrackName)

	if err := WriteFrameBytes(stream, SubscribeOk{SubscribeID: req.SubscribeID}.Encode()); err != nil {
		p.logger.Warn().Err(err).Msg("write subscribe ok")
		return
	}

	t.addSubscriber(req.SubscribeID, &subscriberHandle{conn: conn})
	defer t.removeSubscriber(req.SubscribeID)

	stop := context.AfterFunc(ctx, func() { stream.CancelRead(ResetTrackEnded) })
	defer stop()

	// Block holding the control stream open for the life of the
	// subscription; its closure (by either side) ends the subscription.
	buf := make([]byte, 1)
	for {
		if _, err := stream.Read(buf); err != nil {
			return
		}
	}
	_ = ctx
}

// PublishedTrack is the write side of one named track: bridges call Publish
// to fan a completed group out to every attached subscriber.
type PublishedTrack struct {
	name   string
	path   string
	logger zerolog.Logger

	mu   sync.Mutex
	subs map[uint64]*subscriberHandle
}

type subscriberHandle struct {
	conn *transport.Conn
}

func (t *PublishedTrack) addSubscriber(id uint64, h *subscriberHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs[id] = h
}

func (t *PublishedTrack) removeSubscriber(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subs, id)
}

func (t *PublishedTrack) snapshot() map[uint64]*subscriberHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[uint64]*subscriberHandle, len(t.subs))
	for id, h := range t.subs {
		out[id] = h
	}
	return out
}

// Publish sends group to every subscriber currently attached to the track,
// each on its own fresh unidirectional stream so a failed send to one
// subscriber never corrupts another's view of the group. Subscribers are
// served one after another, so a subscriber whose stream blocks delays the
// send to the subscribers after it.
func (t *PublishedTrack) Publish(ctx context.Context, group Group) error {
	subs := t.snapshot()
	if len(subs) == 0 {
		return errNoSubscribers
	}
	var firstErr error
	for id, h := range subs {
		if err := t.sendGroup(ctx, h.conn, id, group); err != nil {
			t.logger.Debug().Err(err).Uint64("subscribe_id", id).Msg("send group failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (t *PublishedTrack) sendGroup(ctx context.Context, conn *transport.Conn, subscribeID uint64, group Group) error {
	stream, err := conn.OpenUniStream(ctx)
	if err != nil {
		return fmt.Errorf("open group stream: %w", err)
	}
	header := GroupHeader{SubscribeID: subscribeID, GroupSequence: group.Sequence}
	if err := header.WriteTo(stream); err != nil {
		stream.CancelWrite(ResetDeviceError)
		return err
	}
	for _, f := range group.Frames {
		if err := WriteFrameBytes(stream, f.Data); err != nil {
			stream.CancelWrite(ResetDeviceError)
			return err
		}
	}
	return stream.Close()
}

// SubscriberCount reports how many subscribers are currently attached,
// letting a bridge skip encoding work when nobody is watching.
func (t *PublishedTrack) SubscriberCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

var errNoSubscribers = errors.New("moq: no subscribers attached")
