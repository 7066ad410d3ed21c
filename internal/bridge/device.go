// Package bridge provides the device-to-network plumbing shared by every
// hardware bridge: a bounded-channel handle to the physical device, a
// reconnect-with-backoff state machine around opening it, and a server loop
// fanning one device out to however many peer connections are attached.
package bridge

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// DeviceState mirrors the lifecycle every hardware bridge's device handle
// goes through.
type DeviceState int32

const (
	DeviceClosed DeviceState = iota
	DeviceOpen
	DeviceErrored
)

func (s DeviceState) String() string {
	switch s {
	case DeviceClosed:
		return "closed"
	case DeviceOpen:
		return "open"
	case DeviceErrored:
		return "errored"
	default:
		return fmt.Sprintf("DeviceState(%d)", int(s))
	}
}

// Device is the minimal capability a hardware bridge needs from its
// underlying physical device: read a unit of data in, write a unit out,
// release the handle.
type Device interface {
	ReadFrom(ctx context.Context) ([]byte, error)
	WriteTo(ctx context.Context, data []byte) error
	Close() error
}

// Opener opens a fresh Device, invoked again on every reconnect attempt.
type Opener func(ctx context.Context) (Device, error)

// BackoffPolicy controls reopen pacing after a device error: it starts at
// Initial, doubles on each consecutive failure, and caps at Max.
type BackoffPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

// DefaultBackoff matches the reconnect pacing every bridge uses: a quick
// first retry, capped well short of annoying a human watching logs.
var DefaultBackoff = BackoffPolicy{Initial: 100 * time.Millisecond, Max: 2 * time.Second}

// Next returns the backoff duration for the given number of consecutive
// failures (0-indexed: Next(0) is the delay before the first retry).
func (b BackoffPolicy) Next(consecutiveFailures int) time.Duration {
	d := b.Initial
	for i := 0; i < consecutiveFailures; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	return d
}

// Handle owns the reconnect loop around a Device and the two bounded
// channels that decouple it from the network fan-in/fan-out goroutines:
// InboundToDevice (depth 1, applying backpressure so a slow device throttles
// writers instead of buffering unboundedly) and DeviceToOutbound (depth 16,
// giving the device a short runway to get frames to the network side before
// the read pump starts dropping the oldest queued frame to make room for
// the newest one, rather than blocking the device read).
type Handle struct {
	open    Opener
	backoff BackoffPolicy

	state atomic.Int32

	InboundToDevice  chan []byte
	DeviceToOutbound chan []byte
}

// NewHandle constructs a device handle. Run must be started in its own
// goroutine to actually open the device and begin pumping data.
func NewHandle(open Opener, backoff BackoffPolicy) *Handle {
	return &Handle{
		open:             open,
		backoff:          backoff,
		InboundToDevice:  make(chan []byte, 1),
		DeviceToOutbound: make(chan []byte, 16),
	}
}

// State returns the handle's current lifecycle state.
func (h *Handle) State() DeviceState {
	return DeviceState(h.state.Load())
}

// Run opens the device, pumps data in both directions, and reopens with
// exponential backoff whenever the device errors, until ctx is canceled.
func (h *Handle) Run(ctx context.Context) error {
	consecutiveFailures := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		dev, err := h.open(ctx)
		if err != nil {
			h.state.Store(int32(DeviceErrored))
			consecutiveFailures++
			if !h.sleep(ctx, h.backoff.Next(consecutiveFailures-1)) {
				return ctx.Err()
			}
			continue
		}

		h.state.Store(int32(DeviceOpen))
		consecutiveFailures = 0

		err = h.pump(ctx, dev)
		_ = dev.Close()

		if ctx.Err() != nil {
			h.state.Store(int32(DeviceClosed))
			return ctx.Err()
		}

		h.state.Store(int32(DeviceErrored))
		consecutiveFailures++
		if !h.sleep(ctx, h.backoff.Next(consecutiveFailures-1)) {
			return ctx.Err()
		}
	}
}

func (h *Handle) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// pump runs the device's read and write loops concurrently until either
// fails or ctx ends, and returns that error.
func (h *Handle) pump(ctx context.Context, dev Device) error {
	errc := make(chan error, 2)

	go func() {
		for {
			data, err := dev.ReadFrom(ctx)
			if err != nil {
				errc <- err
				return
			}
			select {
			case h.DeviceToOutbound <- data:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			default:
				// Outbound is full: a slow or stalled network side must
				// never make the device read loop block, so the oldest
				// queued frame is dropped to make room for the newest one.
				select {
				case <-h.DeviceToOutbound:
				default:
				}
				select {
				case h.DeviceToOutbound <- data:
				default:
				}
			}
		}
	}()

	go func() {
		for {
			select {
			case data := <-h.InboundToDevice:
				if err := dev.WriteTo(ctx, data); err != nil {
					errc <- err
					return
				}
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()

	return <-errc
}
