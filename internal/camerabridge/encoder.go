// Package camerabridge captures frames from a local color camera, encodes
// them with a hardware (or software-fallback) encoder, muxes the result
// into CMAF, and publishes video over MoQ. Capture and encoding are
// external collaborators (V4L2/AVFoundation, VideoToolbox/NVENC): this
// package defines the interfaces they satisfy and owns the negotiation,
// fallback, and send-pipeline logic around them.
package camerabridge

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/haixuanTao/XoQ/internal/xoqerrors"
)

// PixelFormat is negotiated at capture start; the encoder chosen must
// accept whatever the capturer emits.
type PixelFormat int

const (
	PixelFormatNV12 PixelFormat = iota
	PixelFormatI420
	PixelFormatBGRA
)

// PixelBuffer is a reference-counted handle to one captured frame. Release
// must be called exactly once, by whichever stage (encoder or, on drop,
// the capturer itself) finishes with it last.
type PixelBuffer interface {
	Data() []byte
	Format() PixelFormat
	Width() int
	Height() int
	Release()
}

// Capturer is the platform camera capture API this package bridges.
type Capturer interface {
	Capture(ctx context.Context) (PixelBuffer, error)
	Close() error
}

// Codec identifies an encoder's output bitstream, matching the ALPN
// preference list negotiation codecs fall back through.
type Codec string

const (
	CodecH264 Codec = "h264"
	CodecAV1  Codec = "av1"
)

// EncodedUnit is one encoder output: NAL units for H.264, OBUs for AV1, as
// raw bytes the muxer turns into MP4 sample boundaries.
type EncodedUnit struct {
	Data       []byte
	Keyframe   bool
	DurationTS uint32
}

// FrameEncoder is the hardware (or software-fallback) encoder abstraction:
// VideoToolbox, NVENC, or a software AV1 encoder when neither is
// available. Implementations are external collaborators; Encode is called
// once per captured frame.
type FrameEncoder interface {
	Codec() Codec
	Encode(ctx context.Context, buf PixelBuffer) (EncodedUnit, error)
	Close() error
}

// EncoderFactory constructs a FrameEncoder for codec, used by the fallback
// ladder to reinit or switch codecs without the caller needing to know the
// concrete encoder types.
type EncoderFactory func(codec Codec) (FrameEncoder, error)

// maxConsecutiveEncoderErrors is the "3 consecutive frames fail" threshold
// before the fallback ladder reinitializes, then falls back to the next
// codec, then gives up.
const maxConsecutiveEncoderErrors = 3

// FallbackEncoder wraps a FrameEncoder with the reinit/fallback/drop ladder:
// log and retry on a transient failure, reinitialize the same codec after
// maxConsecutiveEncoderErrors, and fall back to the next codec in
// preference if reinitialization itself fails.
type FallbackEncoder struct {
	factory     EncoderFactory
	preference  []Codec
	prefIndex   int
	current     FrameEncoder
	consecutive int
}

// NewFallbackEncoder starts with the first codec in preference.
func NewFallbackEncoder(factory EncoderFactory, preference []Codec) (*FallbackEncoder, error) {
	if len(preference) == 0 {
		return nil, xoqerrors.Config("camerabridge", errNoCodecPreference)
	}
	enc, err := factory(preference[0])
	if err != nil {
		return nil, err
	}
	return &FallbackEncoder{factory: factory, preference: preference, current: enc}, nil
}

var errNoCodecPreference = errors.New("no codec preference configured")

// Encode runs the active encoder, climbing the fallback ladder on
// persistent failure: after maxConsecutiveEncoderErrors, it reinitializes
// and retries once; if that retry also fails, it advances to the next
// codec in preference and retries once more. Failures before the threshold
// is reached are returned to the caller as they happen; at the threshold the
// caller only sees an error once every rung of the ladder has been tried for
// this frame, and a returned error past the last codec means the subscriber
// should be dropped.
func (f *FallbackEncoder) Encode(ctx context.Context, buf PixelBuffer) (EncodedUnit, error) {
	unit, err := f.current.Encode(ctx, buf)
	if err == nil {
		f.consecutive = 0
		return unit, nil
	}

	f.consecutive++
	wrapped := xoqerrors.Encoder(string(f.current.Codec()), err, f.consecutive)
	if f.consecutive < maxConsecutiveEncoderErrors {
		return EncodedUnit{}, wrapped
	}

	if reinitErr := f.reinitCurrent(); reinitErr == nil {
		if unit, err := f.current.Encode(ctx, buf); err == nil {
			f.consecutive = 0
			return unit, nil
		}
	}

	if advErr := f.advanceCodec(); advErr != nil {
		return EncodedUnit{}, advErr
	}
	if unit, err := f.current.Encode(ctx, buf); err == nil {
		f.consecutive = 0
		return unit, nil
	}
	return EncodedUnit{}, wrapped
}

func (f *FallbackEncoder) reinitCurrent() error {
	codec := f.current.Codec()
	_ = f.current.Close()
	enc, err := f.factory(codec)
	if err != nil {
		return err
	}
	f.current = enc
	return nil
}

func (f *FallbackEncoder) advanceCodec() error {
	_ = f.current.Close()
	f.prefIndex++
	if f.prefIndex >= len(f.preference) {
		return xoqerrors.Encoder("none", errAllCodecsExhausted, f.consecutive)
	}
	enc, err := f.factory(f.preference[f.prefIndex])
	if err != nil {
		return err
	}
	f.current = enc
	return nil
}

// Codec reports the currently active codec.
func (f *FallbackEncoder) Codec() Codec { return f.current.Codec() }

func (f *FallbackEncoder) Close() error { return f.current.Close() }

var errAllCodecsExhausted = errors.New("every codec in the ALPN preference list failed")

// WallClockTimestamp returns the 8-byte little-endian millisecond timestamp
// prepended to every sent video frame, matching every other multi-byte field
// in the wire formats (see audiobridge/wire.go's binary.LittleEndian use).
func WallClockTimestamp(t time.Time) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, uint64(t.UnixMilli()))
	return out
}
