// Package segment implements the wire codec for the transport's protocol
// data unit: a 12-byte header (sequence number, ack number, flags,
// reserved byte, checksum) followed by 0-32756 bytes of payload. See
// spec.md S4.1 and S6.
package segment

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the fixed 12-byte header length.
	HeaderSize = 12
	// MaxPayload is the largest payload a single segment may carry, chosen
	// so header+payload never exceeds MaxDatagram.
	MaxPayload = 32756
	// MaxDatagram is the receive buffer ceiling: one UDP datagram never
	// needs more than this many bytes to hold a full segment.
	MaxDatagram = HeaderSize + MaxPayload
)

// ErrMalformedSegment is returned by Decode when the input is shorter than
// the 12-byte header.
var ErrMalformedSegment = errors.New("segment: malformed, shorter than 12-byte header")

// ErrPayloadTooLarge is returned by Encode when the payload exceeds
// MaxPayload.
var ErrPayloadTooLarge = fmt.Errorf("segment: payload exceeds %d bytes", MaxPayload)

// Segment is the in-memory representation of one protocol data unit.
type Segment struct {
	SeqNum  uint32
	AckNum  uint32
	Flags   Flags
	Payload []byte
}

// Encode packs seg into a freshly-allocated 12-byte header + payload
// buffer in network byte order, computing the checksum with the checksum
// field treated as zero then writing it in place.
func Encode(seg Segment) ([]byte, error) {
	if len(seg.Payload) > MaxPayload {
		return nil, ErrPayloadTooLarge
	}
	buf := make([]byte, HeaderSize+len(seg.Payload))
	putHeader(buf[:HeaderSize], seg)
	copy(buf[HeaderSize:], seg.Payload)

	var hdr [HeaderSize]byte
	copy(hdr[:], buf[:HeaderSize])
	crc := encodeChecksum(hdr, seg.Payload)
	binary.BigEndian.PutUint16(buf[8:10], crc)
	return buf, nil
}

// Decode splits buf into a Segment and reports whether the stored checksum
// validates. It returns ErrMalformedSegment if buf is shorter than the
// 12-byte header; a short buffer is never dispatched (spec.md S7).
func Decode(buf []byte) (Segment, bool, error) {
	if len(buf) < HeaderSize {
		return Segment{}, false, ErrMalformedSegment
	}
	var hdr [HeaderSize]byte
	copy(hdr[:], buf[:HeaderSize])
	storedChecksum := binary.BigEndian.Uint16(buf[8:10])
	hdr[8], hdr[9] = 0, 0 // checksum field is treated as zero when verifying, same as when it was computed.

	payload := make([]byte, len(buf)-HeaderSize)
	copy(payload, buf[HeaderSize:])
	ok := verifyChecksum(hdr, payload, storedChecksum)

	seg := Segment{
		SeqNum:  binary.BigEndian.Uint32(buf[0:4]),
		AckNum:  binary.BigEndian.Uint32(buf[4:8]),
		Flags:   Flags(buf[10]).Mask(),
		Payload: payload,
	}
	return seg, ok, nil
}

// putHeader writes seg's fixed fields into a 12-byte buffer with the
// checksum field left zero; the caller fills bytes [8:10] with the real
// checksum afterward.
func putHeader(buf []byte, seg Segment) {
	binary.BigEndian.PutUint32(buf[0:4], seg.SeqNum)
	binary.BigEndian.PutUint32(buf[4:8], seg.AckNum)
	binary.BigEndian.PutUint16(buf[8:10], 0)
	buf[10] = byte(seg.Flags.Mask())
	buf[11] = 0 // reserved, zero on send.
}

func (seg Segment) String() string {
	return fmt.Sprintf("SEQ=%d ACK=%d %s len=%d", seg.SeqNum, seg.AckNum, seg.Flags, len(seg.Payload))
}

//
// Convenience constructors, per spec.md S4.1.
//

// Syn builds a bare SYN opening segment with the given initial sequence
// number.
func Syn(seq uint32) Segment {
	return Segment{SeqNum: seq, Flags: FlagSYN}
}

// Ack builds a bare ACK segment carrying ackNum.
func Ack(ackNum uint32) Segment {
	return Segment{AckNum: ackNum, Flags: FlagACK}
}

// SynAck builds the second handshake message.
func SynAck(seq, ackNum uint32) Segment {
	return Segment{SeqNum: seq, AckNum: ackNum, Flags: FlagSYN | FlagACK}
}

// Fin builds a bare FIN teardown-initiation segment.
func Fin() Segment {
	return Segment{Flags: FlagFIN}
}

// FinAck builds the FIN|ACK teardown-acknowledgment segment.
func FinAck() Segment {
	return Segment{Flags: FlagFIN | FlagACK}
}

// Data builds a plain (no-flags) data segment.
func Data(seq uint32, payload []byte) Segment {
	return Segment{SeqNum: seq, Payload: payload}
}

// Metadata encodes meta as a UTF-8 JSON object and wraps it in a data
// segment, used as the first segment of a transfer (spec.md S4.5).
func Metadata(seq uint32, meta map[string]string) (Segment, error) {
	b, err := json.Marshal(meta)
	if err != nil {
		return Segment{}, err
	}
	if len(b) > MaxPayload {
		return Segment{}, ErrPayloadTooLarge
	}
	return Data(seq, b), nil
}
