package audiobridge

import (
	"context"
	"fmt"

	"github.com/haixuanTao/XoQ/internal/bridge"
	"github.com/haixuanTao/XoQ/internal/xoqerrors"
)

// Capturer is the platform-specific microphone input this package bridges.
// Its implementation (cpal, PortAudio, or a platform-native API) is an
// external collaborator: only this interface and the negotiation/framing
// logic around it are built here.
type Capturer interface {
	Capture(ctx context.Context) (Frame, error)
	Close() error
}

// Player is the platform-specific speaker output this package bridges.
type Player interface {
	Play(ctx context.Context, f Frame) error
	Close() error
}

// duplexDevice adapts a Capturer/Player pair to bridge.Device: captured
// frames flow out as DeviceToOutbound, frames arriving on InboundToDevice
// get played back. The two directions are independent; one failing closes
// the whole device so the owning Handle reopens both together.
type duplexDevice struct {
	name string
	cap  Capturer
	play Player
}

// Open pairs a capturer and player into one bridge.Device under name, used
// only in error messages.
func Open(name string, cap Capturer, play Player) bridge.Opener {
	return func(ctx context.Context) (bridge.Device, error) {
		return &duplexDevice{name: name, cap: cap, play: play}, nil
	}
}

func (d *duplexDevice) ReadFrom(ctx context.Context) ([]byte, error) {
	f, err := d.cap.Capture(ctx)
	if err != nil {
		return nil, xoqerrors.Device(d.name, fmt.Errorf("capture: %w", err))
	}
	return EncodeFrame(f), nil
}

func (d *duplexDevice) WriteTo(ctx context.Context, data []byte) error {
	f, err := DecodeFrame(data)
	if err != nil {
		return xoqerrors.Device(d.name, fmt.Errorf("decode inbound frame: %w", err))
	}
	if err := d.play.Play(ctx, f); err != nil {
		return xoqerrors.Device(d.name, fmt.Errorf("play: %w", err))
	}
	return nil
}

func (d *duplexDevice) Close() error {
	err1 := d.cap.Close()
	err2 := d.play.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// ListInputs and ListOutputs enumerate platform audio endpoints for the
// "xoq audio-list" sugar command. Enumeration itself lives behind the same
// platform audio SDK as Capturer/Player and is supplied by the caller's
// chosen backend; this package only defines the shape callers fill in.
type EndpointLister func() ([]string, error)

func ListInputs(lister EndpointLister) ([]string, error) {
	names, err := lister()
	if err != nil {
		return nil, fmt.Errorf("list audio inputs: %w", err)
	}
	return names, nil
}

func ListOutputs(lister EndpointLister) ([]string, error) {
	names, err := lister()
	if err != nil {
		return nil, fmt.Errorf("list audio outputs: %w", err)
	}
	return names, nil
}
