package bridge

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBackoffPolicyDoublesAndCaps(t *testing.T) {
	b := BackoffPolicy{Initial: 100 * time.Millisecond, Max: 2 * time.Second}
	require.Equal(t, 100*time.Millisecond, b.Next(0))
	require.Equal(t, 200*time.Millisecond, b.Next(1))
	require.Equal(t, 400*time.Millisecond, b.Next(2))
	require.Equal(t, 2*time.Second, b.Next(20))
}

type fakeDevice struct {
	reads   chan []byte
	writes  chan []byte
	readErr error
}

func (d *fakeDevice) ReadFrom(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-d.reads:
		if !ok {
			return nil, errors.New("device closed")
		}
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *fakeDevice) WriteTo(ctx context.Context, data []byte) error {
	select {
	case d.writes <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *fakeDevice) Close() error { return nil }

func TestHandleRunPumpsBothDirections(t *testing.T) {
	dev := &fakeDevice{reads: make(chan []byte, 4), writes: make(chan []byte, 4)}
	var opens atomic.Int32
	open := func(ctx context.Context) (Device, error) {
		opens.Add(1)
		return dev, nil
	}

	h := NewHandle(open, BackoffPolicy{Initial: time.Millisecond, Max: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	require.Eventually(t, func() bool { return h.State() == DeviceOpen }, time.Second, time.Millisecond)

	dev.reads <- []byte("reading")
	select {
	case got := <-h.DeviceToOutbound:
		require.Equal(t, "reading", string(got))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for device-to-outbound frame")
	}

	h.InboundToDevice <- []byte("command")
	select {
	case got := <-dev.writes:
		require.Equal(t, "command", string(got))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for inbound-to-device write")
	}

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	require.Equal(t, int32(1), opens.Load())
}

func TestHandleRunReopensAfterError(t *testing.T) {
	attempt := atomic.Int32{}
	open := func(ctx context.Context) (Device, error) {
		n := attempt.Add(1)
		if n == 1 {
			return nil, errors.New("first open fails")
		}
		return &fakeDevice{reads: make(chan []byte), writes: make(chan []byte)}, nil
	}

	h := NewHandle(open, BackoffPolicy{Initial: time.Millisecond, Max: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	require.Eventually(t, func() bool { return h.State() == DeviceOpen }, time.Second, time.Millisecond)
	require.GreaterOrEqual(t, attempt.Load(), int32(2))

	cancel()
	<-done
}
