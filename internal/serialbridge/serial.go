// Package serialbridge exposes a local serial port as a from_device/to_device
// pair of bridge tracks: every chunk read off the port becomes one frame
// published on from_device, and every frame arriving on to_device is written
// back to the port verbatim. There is no message framing of its own — the
// wire carries whatever byte stream the serial protocol on the other end
// expects, matching xoq/p2p/0's role as a generic byte/frame carrier.
package serialbridge

import (
	"context"
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/haixuanTao/XoQ/internal/bridge"
)

// readChunkSize bounds a single ReadFrom call so one group never grows large
// enough to stall delivery behind a slow subscriber.
//
// Each ReadFrom result becomes one frame, and bridge.Server packs up to
// maxBatchDrain (8) already-queued frames into one MoQ group, which QUIC
// sends on its own stream. A naive implementation that read one byte at a
// time would open up to one QUIC stream per byte: the STREAM frame header (stream ID, offset,
// length) costs more than most single-byte payloads, and the receiver pays
// a stream-open allocation for each one. Batching reads into up to
// readChunkSize bytes per group keeps the ratio of framing overhead to
// payload sane on a busy line without adding artificial latency, since the
// port read itself already blocks until data or the timeout is available.
const readChunkSize = 4096

// portDevice adapts a go.bug.st/serial Port to the bridge.Device interface.
type portDevice struct {
	port serial.Port
}

// Open opens path at baudRate and returns a bridge.Opener for it, retried by
// the owning Handle on failure.
func Open(path string, baudRate int) bridge.Opener {
	return func(ctx context.Context) (bridge.Device, error) {
		mode := &serial.Mode{BaudRate: baudRate}
		port, err := serial.Open(path, mode)
		if err != nil {
			return nil, fmt.Errorf("open serial port %s: %w", path, err)
		}
		// A short read timeout keeps ReadFrom responsive to context
		// cancellation instead of blocking indefinitely on an idle line.
		if err := port.SetReadTimeout(200 * time.Millisecond); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout: %w", err)
		}
		return &portDevice{port: port}, nil
	}
}

func (d *portDevice) ReadFrom(ctx context.Context) ([]byte, error) {
	buf := make([]byte, readChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := d.port.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("read serial port: %w", err)
		}
		if n == 0 {
			// Read timeout elapsed with nothing available; loop so ctx
			// cancellation is observed promptly.
			continue
		}
		return append([]byte(nil), buf[:n]...), nil
	}
}

func (d *portDevice) WriteTo(ctx context.Context, data []byte) error {
	_, err := d.port.Write(data)
	if err != nil {
		return fmt.Errorf("write serial port: %w", err)
	}
	return nil
}

func (d *portDevice) Close() error {
	return d.port.Close()
}

// ListPorts enumerates serial ports visible to the OS, for the
// "serial-list" CLI sugar command.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}
