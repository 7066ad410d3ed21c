package moq

import (
	"fmt"
	"io"
)

// SupportedVersions lists every version this build of the engine can speak,
// preference order first.
var SupportedVersions = []uint64{CurrentVersion}

// ClientHandshake writes a ClientSetup offering versions and reads back the
// server's ServerSetup, returning the negotiated version.
func ClientHandshake(stream io.ReadWriter, versions []uint64) (uint64, error) {
	if err := (ClientSetup{Versions: versions}).WriteTo(stream); err != nil {
		return 0, fmt.Errorf("write ClientSetup: %w", err)
	}
	setup, err := ReadServerSetup(stream)
	if err != nil {
		return 0, fmt.Errorf("read ServerSetup: %w", err)
	}
	ok := false
	for _, v := range versions {
		if v == setup.Version {
			ok = true
			break
		}
	}
	if !ok {
		return 0, fmt.Errorf("%w: server selected %d, not in %v", ErrUnsupportedVersion, setup.Version, versions)
	}
	return setup.Version, nil
}

// ServerHandshake reads a ClientSetup, negotiates a version against
// supported, and writes back a ServerSetup. It returns ErrUnsupportedVersion
// without writing anything if no common version exists, leaving the caller
// to close the stream/connection.
func ServerHandshake(stream io.ReadWriter, supported []uint64) (uint64, error) {
	setup, err := ReadClientSetup(stream)
	if err != nil {
		return 0, fmt.Errorf("read ClientSetup: %w", err)
	}
	version, err := NegotiateVersion(setup.Versions, supported)
	if err != nil {
		return 0, err
	}
	if err := (ServerSetup{Version: version}).WriteTo(stream); err != nil {
		return 0, fmt.Errorf("write ServerSetup: %w", err)
	}
	return version, nil
}
