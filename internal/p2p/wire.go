// Package p2p is the peer-to-peer message set of spec.md §6: a fixed
// envelope (magic, kind, length, checksum) wrapping one of the
// GetBlocks/Blocks/NewTransaction/ModelAnnounce/InferenceRequest/
// InferenceResponse/TrainingJobAnnounce/GradientSubmission/WeightSync
// payloads, framed length-prefixed over a stream connection.
//
// Grounded on node/p2p_runtime.go's envelope shape (4-byte network
// magic, a checksum over the payload, explicit read/write deadlines)
// adapted from its 12-byte ASCII command name to a single kind byte
// and from ad hoc binary.LittleEndian payload layouts to this module's
// primitives.Cursor/AppendVarint canonical codec, matching how every
// other wire/preimage encoding in this module is built.
package p2p

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"lattice.dev/node/internal/nodeerrors"
	"lattice.dev/node/internal/primitives"
)

const (
	envelopeHeaderSize = 4 + 1 + 4 + 4 // magic | kind | payload_len | checksum
	// MaxPayloadBytes bounds a single frame, matching the teacher's
	// relay payload cap to stop a malicious peer from claiming an
	// unbounded length prefix.
	MaxPayloadBytes = 32 << 20
)

func networkMagic(network string) [4]byte {
	h := primitives.Keccak256([]byte("lattice-p2p/" + network))
	var out [4]byte
	copy(out[:], h[:4])
	return out
}

func checksum(payload []byte) [4]byte {
	h := primitives.SHA3_256(payload)
	var out [4]byte
	copy(out[:], h[:4])
	return out
}

// Frame is one envelope's worth of wire data: a message Kind and its
// encoded payload.
type Frame struct {
	Kind    Kind
	Payload []byte
}

// Session is a length-prefixed framed connection over net.Conn, with
// read/write deadlines applied per spec.md §4.11's "every suspending
// operation accepts a cancellation signal" (deadlines are this
// package's cancellation mechanism for blocking I/O).
type Session struct {
	conn          net.Conn
	reader        *bufio.Reader
	writer        *bufio.Writer
	magic         [4]byte
	readDeadline  time.Duration
	writeDeadline time.Duration
}

func NewSession(conn net.Conn, network string, readDeadline, writeDeadline time.Duration) *Session {
	if readDeadline <= 0 {
		readDeadline = 15 * time.Second
	}
	if writeDeadline <= 0 {
		writeDeadline = 15 * time.Second
	}
	return &Session{
		conn:          conn,
		reader:        bufio.NewReader(conn),
		writer:        bufio.NewWriter(conn),
		magic:         networkMagic(network),
		readDeadline:  readDeadline,
		writeDeadline: writeDeadline,
	}
}

// WriteFrame writes one message's envelope and payload to the peer.
func (s *Session) WriteFrame(f Frame) error {
	if len(f.Payload) > MaxPayloadBytes {
		return nodeerrors.Invalid("P2P_PAYLOAD_TOO_LARGE", fmt.Sprintf("payload %d bytes exceeds cap", len(f.Payload)))
	}
	if s.writeDeadline > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeDeadline)); err != nil {
			return err
		}
	}
	header := make([]byte, envelopeHeaderSize)
	copy(header[0:4], s.magic[:])
	header[4] = byte(f.Kind)
	binary.LittleEndian.PutUint32(header[5:9], uint32(len(f.Payload)))
	sum := checksum(f.Payload)
	copy(header[9:13], sum[:])

	if _, err := s.writer.Write(header); err != nil {
		return err
	}
	if len(f.Payload) > 0 {
		if _, err := s.writer.Write(f.Payload); err != nil {
			return err
		}
	}
	return s.writer.Flush()
}

// ReadFrame reads one envelope. An unrecognized Kind is returned with
// ok=false and no error, per spec.md §6's "unknown message kinds are
// ignored, not fatal" — the caller is expected to skip it and keep
// reading rather than tear down the connection.
func (s *Session) ReadFrame() (frame Frame, ok bool, err error) {
	if s.readDeadline > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.readDeadline)); err != nil {
			return Frame{}, false, err
		}
	}
	header := make([]byte, envelopeHeaderSize)
	if _, err := io.ReadFull(s.reader, header); err != nil {
		return Frame{}, false, err
	}
	var gotMagic [4]byte
	copy(gotMagic[:], header[0:4])
	if gotMagic != s.magic {
		return Frame{}, false, nodeerrors.Invalid("P2P_BAD_MAGIC", "envelope magic does not match network")
	}
	kind := Kind(header[4])
	payloadLen := binary.LittleEndian.Uint32(header[5:9])
	if payloadLen > MaxPayloadBytes {
		return Frame{}, false, nodeerrors.Invalid("P2P_PAYLOAD_TOO_LARGE", fmt.Sprintf("declared payload %d bytes exceeds cap", payloadLen))
	}
	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(s.reader, payload); err != nil {
			return Frame{}, false, err
		}
	}
	var gotSum [4]byte
	copy(gotSum[:], header[9:13])
	if gotSum != checksum(payload) {
		return Frame{}, false, nodeerrors.Integrity("P2P_BAD_CHECKSUM", "envelope checksum mismatch")
	}
	if !kind.Known() {
		return Frame{Kind: kind, Payload: payload}, false, nil
	}
	return Frame{Kind: kind, Payload: payload}, true, nil
}

func (s *Session) Close() error { return s.conn.Close() }
