package moq

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync/atomic"
)

// MoqStream presents a duplex io.ReadWriteCloser over a pair of tracks, one
// published for sending and one subscribed for receiving, the shape the
// serial bridge needs to tunnel an arbitrary byte stream across two
// independently flowing group sequences. The caller picks the track names;
// bridge.Client uses "to_device" and "from_device", not "c2s" and "s2c".
// Each Write becomes one single-frame group on the send track; Read drains
// frames from groups arriving on the receive track in the order they
// complete, which is FIFO here since the bridge never has more than one
// group for this stream in flight at a time.
type MoqStream struct {
	ctx  context.Context
	send *PublishedTrack
	recv *Subscription
	seq  atomic.Uint64
	pend bytes.Buffer
}

// NewMoqStream builds a duplex stream from an outbound published track and
// an inbound subscription.
func NewMoqStream(ctx context.Context, send *PublishedTrack, recv *Subscription) *MoqStream {
	return &MoqStream{ctx: ctx, send: send, recv: recv}
}

// Write publishes p as a single-frame group.
func (s *MoqStream) Write(p []byte) (int, error) {
	group := Group{Sequence: s.seq.Add(1) - 1, Frames: []Frame{{Data: append([]byte(nil), p...)}}}
	if err := s.send.Publish(s.ctx, group); err != nil {
		return 0, fmt.Errorf("publish stream chunk: %w", err)
	}
	return len(p), nil
}

// Read drains buffered frame data first, then blocks for the next arriving
// group.
func (s *MoqStream) Read(p []byte) (int, error) {
	if s.pend.Len() > 0 {
		return s.pend.Read(p)
	}
	select {
	case group, ok := <-s.recv.Groups():
		if !ok {
			return 0, io.EOF
		}
		for _, f := range group.Frames {
			s.pend.Write(f.Data)
		}
		return s.pend.Read(p)
	case <-s.ctx.Done():
		return 0, s.ctx.Err()
	}
}

// Close ends the receive subscription side of the duplex stream. The send
// side has no connection-level resource to release; its groups simply stop.
func (s *MoqStream) Close() error {
	return s.recv.Close()
}
