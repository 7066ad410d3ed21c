package canbridge

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"

	"github.com/haixuanTao/XoQ/internal/bridge"
)

// classicFrameSize and fdFrameSize are sizeof(struct can_frame) and
// sizeof(struct canfd_frame): an 8-byte header (id, len, flags/pad) followed
// by an 8- or 64-byte data area. Reading into a buffer sized for FD frames
// and inspecting the kernel's returned length is how CAN_RAW_FD_FRAMES
// sockets tell classic and FD frames apart.
const (
	classicFrameSize = 16
	fdFrameSize      = 72
	frameHeaderSize  = 8

	canfdBRS = 0x01
	canfdESI = 0x02
)

type socketDevice struct {
	fd     int
	fdMode bool
}

// Open brings iface up (restarting it out of bus-off with restartMS) and
// binds a raw CAN_RAW socket to it. fd enables CAN FD frame reception.
func Open(iface string, fd bool, restartMS int) bridge.Opener {
	return func(ctx context.Context) (bridge.Device, error) {
		if err := bringUp(iface, restartMS); err != nil {
			return nil, err
		}
		if err := waitForLinkUp(ctx, iface, 20*time.Millisecond); err != nil {
			return nil, fmt.Errorf("wait for %s to come up: %w", iface, err)
		}

		sock, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
		if err != nil {
			return nil, fmt.Errorf("open CAN socket: %w", err)
		}

		ifi, err := net.InterfaceByName(iface)
		if err != nil {
			unix.Close(sock)
			return nil, fmt.Errorf("lookup interface %s: %w", iface, err)
		}

		if fd {
			if err := unix.SetsockoptInt(sock, unix.SOL_CAN_RAW, unix.CAN_RAW_FD_FRAMES, 1); err != nil {
				unix.Close(sock)
				return nil, fmt.Errorf("enable CAN FD frames: %w", err)
			}
		}

		addr := &unix.SockaddrCAN{Ifindex: ifi.Index}
		if err := unix.Bind(sock, addr); err != nil {
			unix.Close(sock)
			return nil, fmt.Errorf("bind CAN socket to %s: %w", iface, err)
		}

		return &socketDevice{fd: sock, fdMode: fd}, nil
	}
}

// bringUp restarts a bus-off interface with the given restart-ms and brings
// it up. The first command is best-effort: restart-ms can only be set while
// the interface is down and some drivers reject setting it twice.
func bringUp(iface string, restartMS int) error {
	_ = exec.Command("ip", "link", "set", iface, "type", "can", "restart-ms", fmt.Sprint(restartMS)).Run()
	if err := exec.Command("ip", "link", "set", iface, "up").Run(); err != nil {
		return fmt.Errorf("bring up %s: %w", iface, err)
	}
	return nil
}

func (d *socketDevice) ReadFrom(ctx context.Context) ([]byte, error) {
	raw := make([]byte, fdFrameSize)
	n, err := unix.Read(d.fd, raw)
	if err != nil {
		return nil, fmt.Errorf("read CAN socket: %w", err)
	}
	if n < classicFrameSize {
		return nil, fmt.Errorf("short CAN frame: %d bytes", n)
	}

	rawID := binary.LittleEndian.Uint32(raw[0:4])
	if rawID&unix.CAN_ERR_FLAG != 0 {
		return nil, fmt.Errorf("CAN bus error frame: id=0x%08x", rawID)
	}

	extended := rawID&unix.CAN_EFF_FLAG != 0
	id := rawID & unix.CAN_SFF_MASK
	if extended {
		id = rawID & unix.CAN_EFF_MASK
	}

	length := int(raw[4])
	frame := Frame{ID: id, Extended: extended, Data: append([]byte(nil), raw[frameHeaderSize:frameHeaderSize+length]...)}

	if n >= fdFrameSize {
		flags := raw[5]
		frame.FD = true
		frame.BRS = flags&canfdBRS != 0
		frame.ESI = flags&canfdESI != 0
	}

	return EncodeFrame(frame)
}

func (d *socketDevice) WriteTo(ctx context.Context, data []byte) error {
	f, err := DecodeFrame(data)
	if err != nil {
		return fmt.Errorf("decode outgoing CAN frame: %w", err)
	}
	if f.FD && !d.fdMode {
		return fmt.Errorf("CAN FD frame on classic-only socket")
	}

	rawID := f.ID & unix.CAN_SFF_MASK
	if f.Extended {
		rawID = (f.ID & unix.CAN_EFF_MASK) | unix.CAN_EFF_FLAG
	}

	size := classicFrameSize
	if f.FD {
		size = fdFrameSize
	}
	raw := make([]byte, size)
	binary.LittleEndian.PutUint32(raw[0:4], rawID)
	raw[4] = byte(len(f.Data))
	if f.FD {
		var flags byte
		if f.BRS {
			flags |= canfdBRS
		}
		if f.ESI {
			flags |= canfdESI
		}
		raw[5] = flags
	}
	copy(raw[frameHeaderSize:], f.Data)

	if _, err := unix.Write(d.fd, raw); err != nil {
		return fmt.Errorf("write CAN socket: %w", err)
	}
	return nil
}

func (d *socketDevice) Close() error {
	return unix.Close(d.fd)
}

// waitForLinkUp polls iface until it reports the IFF_UP flag or ctx expires,
// letting a caller avoid racing the kernel's own interface bring-up after a
// bus-off restart.
func waitForLinkUp(ctx context.Context, iface string, poll time.Duration) error {
	for {
		ifi, err := net.InterfaceByName(iface)
		if err == nil && ifi.Flags&net.FlagUp != 0 {
			return nil
		}
		select {
		case <-time.After(poll):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
