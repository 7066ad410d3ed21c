package moq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/haixuanTao/XoQ/internal/transport"
)

// Subscriber multiplexes one connection's inbound unidirectional group
// streams across however many tracks it has subscribed to, matching each
// arriving GroupHeader.SubscribeID back to the channel that Subscribe
// returned.
type Subscriber struct {
	conn   *transport.Conn
	logger zerolog.Logger

	nextID atomic.Uint64

	mu     sync.Mutex
	routes map[uint64]chan Group
}

// NewSubscriber wraps conn. Run must be started in its own goroutine to
// dispatch inbound groups; Subscribe only registers interest.
func NewSubscriber(conn *transport.Conn, logger zerolog.Logger) *Subscriber {
	return &Subscriber{
		conn:   conn,
		logger: logger.With().Str("com", "subscriber").Logger(),
		routes: make(map[uint64]chan Group),
	}
}

// Run accepts and dispatches inbound group streams until ctx is canceled or
// the connection fails.
func (s *Subscriber) Run(ctx context.Context) error {
	for {
		stream, err := s.conn.AcceptUniStream(ctx)
		if err != nil {
			s.closeAllRoutes()
			return err
		}
		go s.dispatchGroup(stream)
	}
}

func (s *Subscriber) dispatchGroup(stream io.Reader) {
	header, err := ReadGroupHeader(stream)
	if err != nil {
		return
	}

	var frames []Frame
	clean := false
	for {
		data, err := ReadFrameBytes(stream)
		if err != nil {
			clean = errors.Is(err, io.EOF)
			break
		}
		frames = append(frames, Frame{Data: data})
	}
	if !clean {
		// The sender reset or abandoned the stream mid-group (StreamReset or
		// a dropped connection): frames holds a partial group, which must
		// never reach a subscriber as if it were complete.
		s.logger.Debug().Uint64("subscribe_id", header.SubscribeID).
			Uint64("group", header.GroupSequence).Msg("group stream ended without a clean close, dropping partial group")
		return
	}

	s.mu.Lock()
	ch, ok := s.routes[header.SubscribeID]
	s.mu.Unlock()
	if !ok {
		return
	}
	group := Group{Sequence: header.GroupSequence, Frames: frames}
	select {
	case ch <- group:
	default:
		s.logger.Warn().Uint64("subscribe_id", header.SubscribeID).
			Uint64("group", header.GroupSequence).Msg("subscriber channel full, dropping group")
	}
}

// Announce opens a control stream, performs the version handshake, and asks
// for every broadcast path under prefix.
func (s *Subscriber) Announce(ctx context.Context, prefix string) (AnnounceResponse, error) {
	stream, err := s.conn.OpenStream(ctx)
	if err != nil {
		return AnnounceResponse{}, fmt.Errorf("open announce stream: %w", err)
	}
	defer stream.Close()

	if _, err := ClientHandshake(stream, SupportedVersions); err != nil {
		return AnnounceResponse{}, err
	}
	if err := WriteFrameBytes(stream, AnnounceRequest{Prefix: prefix}.Encode()); err != nil {
		return AnnounceResponse{}, err
	}
	body, err := ReadFrameBytes(stream)
	if err != nil {
		return AnnounceResponse{}, err
	}
	return DecodeAnnounceResponse(body)
}

// Subscribe opens a dedicated control stream for one track subscription and
// returns a channel delivering each group as it arrives. The control stream
// is held open for the life of the subscription; Subscription.Close closes it.
func (s *Subscriber) Subscribe(ctx context.Context, path, track string, priorityOffset int32) (*Subscription, error) {
	stream, err := s.conn.OpenStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("open subscribe stream: %w", err)
	}

	if _, err := ClientHandshake(stream, SupportedVersions); err != nil {
		stream.Close()
		return nil, err
	}

	id := s.nextID.Add(1)
	req := SubscribeRequest{SubscribeID: id, BroadcastPath: path, TrackName: track, PriorityOffset: priorityOffset}
	if err := WriteFrameBytes(stream, req.Encode()); err != nil {
		stream.Close()
		return nil, err
	}
	body, err := ReadFrameBytes(stream)
	if err != nil {
		stream.Close()
		return nil, err
	}
	ok, err := DecodeSubscribeOk(body)
	if err != nil {
		stream.Close()
		return nil, err
	}
	if ok.SubscribeID != id {
		stream.Close()
		return nil, fmt.Errorf("moq: subscribe ok id mismatch: want %d, got %d", id, ok.SubscribeID)
	}

	ch := make(chan Group, 4)
	s.mu.Lock()
	s.routes[id] = ch
	s.mu.Unlock()

	return &Subscription{id: id, stream: stream, groups: ch, parent: s}, nil
}

func (s *Subscriber) closeAllRoutes() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.routes {
		close(ch)
		delete(s.routes, id)
	}
}

// FollowBackoff is the fixed delay Follow waits before re-subscribing after
// a track is lost.
const FollowBackoff = 300 * time.Millisecond

// FollowMaxErrors bounds how many consecutive re-subscribe failures Follow
// tolerates before giving up and closing the returned channel.
const FollowMaxErrors = 3

// Follow subscribes to path/track and keeps delivering groups across track
// loss: when the subscription's Groups() channel closes, Follow waits
// FollowBackoff and re-subscribes instead of failing the caller outright,
// switching the returned channel over to the new subscription's groups.
// Groups() closes when Run stops (the connection failed) or the subscription
// is closed; the publisher closing its control stream does not close it.
// Follow tolerates FollowMaxErrors consecutive failed re-subscribe attempts
// and gives up, closing the channel, on the next consecutive failure.
func (s *Subscriber) Follow(ctx context.Context, path, track string, priorityOffset int32) (<-chan Group, error) {
	sub, err := s.Subscribe(ctx, path, track, priorityOffset)
	if err != nil {
		return nil, err
	}

	out := make(chan Group, 4)
	go func() {
		defer close(out)
		current := sub
		errCount := 0
		for {
			for group := range current.Groups() {
				select {
				case out <- group:
				case <-ctx.Done():
					current.Close()
					return
				}
			}
			if ctx.Err() != nil {
				return
			}

			select {
			case <-time.After(FollowBackoff):
			case <-ctx.Done():
				return
			}

			next, err := s.Subscribe(ctx, path, track, priorityOffset)
			if err != nil {
				errCount++
				s.logger.Debug().Str("path", path).Str("track", track).
					Err(err).Int("err_count", errCount).Msg("follow: re-subscribe failed")
				if errCount > FollowMaxErrors {
					s.logger.Warn().Str("path", path).Str("track", track).
						Msg("follow: giving up after repeated re-subscribe failures")
					return
				}
				continue
			}
			errCount = 0
			current = next
		}
	}()
	return out, nil
}

// Subscription is a live track subscription: Groups delivers each arriving
// group in order of arrival (not necessarily sequence order, matching
// out-of-order group delivery over independent streams).
type Subscription struct {
	id     uint64
	stream interface{ Close() error }
	groups chan Group
	parent *Subscriber
}

// Groups returns the channel of arriving groups.
func (sub *Subscription) Groups() <-chan Group {
	return sub.groups
}

// Close ends the subscription: closes the control stream and stops routing
// inbound groups to it.
func (sub *Subscription) Close() error {
	sub.parent.mu.Lock()
	if ch, ok := sub.parent.routes[sub.id]; ok {
		delete(sub.parent.routes, sub.id)
		close(ch)
	}
	sub.parent.mu.Unlock()
	return sub.stream.Close()
}
