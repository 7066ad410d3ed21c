package canbridge

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/haixuanTao/XoQ/internal/bridge"
	"github.com/haixuanTao/XoQ/internal/moq"
)

func TestPumpFromBusBatchesWithinInterval(t *testing.T) {
	h := bridge.NewHandle(func(ctx context.Context) (bridge.Device, error) {
		return nil, context.Canceled
	}, bridge.DefaultBackoff)

	pub := moq.NewPublisher("can0", zerolog.Nop())
	track := pub.Track(bridge.TrackFromDevice)

	s := NewServer("can0", h, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.pumpFromBus(ctx, track) }()

	f1, err := EncodeFrame(Frame{ID: 1, Data: []byte{0x01}})
	require.NoError(t, err)
	f2, err := EncodeFrame(Frame{ID: 2, Data: []byte{0x02}})
	require.NoError(t, err)

	h.DeviceToOutbound <- f1
	h.DeviceToOutbound <- f2

	// No subscribers are attached, so pumpFromBus has nothing to verify its
	// batching against beyond not panicking or blocking past the tick. A
	// full end-to-end batching assertion lives at the bridge integration
	// level once a loopback QUIC connection is available to attach to.
	time.Sleep(3 * batchInterval)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("pumpFromBus did not exit on cancellation")
	}
}
