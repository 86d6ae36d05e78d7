package primitives

import (
	"encoding/binary"
	"fmt"
)

// AppendU16LE appends v as a 2-byte little-endian value to dst.
func AppendU16LE(dst []byte, v uint16) []byte {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	return append(dst, buf[:]...)
}

// AppendU32LE appends v as a 4-byte little-endian value to dst.
func AppendU32LE(dst []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(dst, buf[:]...)
}

// AppendU64LE appends v as an 8-byte little-endian value to dst.
func AppendU64LE(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}

// AppendVarint encodes n as a CompactSize-style varint and appends it to dst:
// values below 0xfd are a single byte; 0xfd/0xfe/0xff prefix a 16/32/64-bit
// little-endian value. Used for length-prefixing variable fields in the
// canonical block/transaction preimages.
func AppendVarint(dst []byte, n uint64) []byte {
	switch {
	case n < 0xfd:
		return append(dst, byte(n))
	case n <= 0xffff:
		dst = append(dst, 0xfd)
		return AppendU16LE(dst, uint16(n))
	case n <= 0xffff_ffff:
		dst = append(dst, 0xfe)
		return AppendU32LE(dst, uint32(n))
	default:
		dst = append(dst, 0xff)
		return AppendU64LE(dst, n)
	}
}

// Cursor is a forward-only reader over a byte slice used by the parse
// side of the canonical codec. Every read is bounds-checked.
type Cursor struct {
	b   []byte
	pos int
}

func NewCursor(b []byte) *Cursor { return &Cursor{b: b} }

func (c *Cursor) Remaining() int {
	if c.pos >= len(c.b) {
		return 0
	}
	return len(c.b) - c.pos
}

func (c *Cursor) ReadExact(n int) ([]byte, error) {
	if n < 0 || c.Remaining() < n {
		return nil, fmt.Errorf("primitives: truncated read (want %d, have %d)", n, c.Remaining())
	}
	start := c.pos
	c.pos += n
	return c.b[start:c.pos], nil
}

func (c *Cursor) ReadU8() (byte, error) {
	b, err := c.ReadExact(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Cursor) ReadU16LE() (uint16, error) {
	b, err := c.ReadExact(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *Cursor) ReadU32LE() (uint32, error) {
	b, err := c.ReadExact(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *Cursor) ReadU64LE() (uint64, error) {
	b, err := c.ReadExact(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (c *Cursor) ReadHash() (Hash, error) {
	b, err := c.ReadExact(32)
	if err != nil {
		return Hash{}, err
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// ReadVarint decodes one AppendVarint-encoded value from the cursor,
// rejecting non-minimal encodings the same way the teacher's
// CompactSize reader did (a 0xfd prefix must encode a value >= 0xfd, etc).
func (c *Cursor) ReadVarint() (uint64, error) {
	tag, err := c.ReadU8()
	if err != nil {
		return 0, err
	}
	switch {
	case tag < 0xfd:
		return uint64(tag), nil
	case tag == 0xfd:
		v, err := c.ReadU16LE()
		if err != nil {
			return 0, err
		}
		if v < 0xfd {
			return 0, fmt.Errorf("primitives: non-minimal varint (0xfd)")
		}
		return uint64(v), nil
	case tag == 0xfe:
		v, err := c.ReadU32LE()
		if err != nil {
			return 0, err
		}
		if v <= 0xffff {
			return 0, fmt.Errorf("primitives: non-minimal varint (0xfe)")
		}
		return uint64(v), nil
	default:
		v, err := c.ReadU64LE()
		if err != nil {
			return 0, err
		}
		if v <= 0xffff_ffff {
			return 0, fmt.Errorf("primitives: non-minimal varint (0xff)")
		}
		return v, nil
	}
}
