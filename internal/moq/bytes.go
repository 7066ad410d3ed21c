package moq

import (
	"fmt"
	"io"
)

// maxMessageBytes bounds any single length-prefixed read to guard against a
// malformed peer claiming an enormous length
const maxMessageBytes = 16 << 20

// AppendBytes appends a varint-length-prefixed byte string to buf.
func AppendBytes(buf []byte, b []byte) []byte {
	buf, _ = AppendVarint(buf, uint64(len(b)))
	return append(buf, b...)
}

// AppendString appends a varint-length-prefixed UTF-8 string to buf.
func AppendString(buf []byte, s string) []byte {
	return AppendBytes(buf, []byte(s))
}

// ReadBytes reads a varint-length-prefixed byte string from r.
func ReadBytes(r io.Reader) ([]byte, error) {
	n, err := ReadVarint(r)
	if err != nil {
		return nil, err
	}
	if n > maxMessageBytes {
		return nil, fmt.Errorf("length-prefixed value too large: %d bytes", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadString reads a varint-length-prefixed UTF-8 string from r.
func ReadString(r io.Reader) (string, error) {
	b, err := ReadBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
