// Package wire implements the framed TCP protocol spoken between the
// table coordinator and its sensors. Every frame is a fixed header plus
// a message-specific payload; requests and replies are matched by the
// header's request id.
package wire

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
)

const (
	magic      uint32 = 0x57495245 // "WIRE"
	headerSize        = 20

	// MaxPayload bounds a single frame. Nothing the sensors send comes
	// close; a larger declared length means a corrupt or hostile peer.
	MaxPayload = 64 * 1024
)

// Flag bits for the header Flags byte.
const (
	FlagChecksum uint8 = 0x01
)

// Version is the protocol version implemented by this package.
const Version uint8 = 1

// MsgType enumerates the frame types exchanged between the coordinator
// and the sensors.
type MsgType uint8

const (
	MsgRegister MsgType = iota
	MsgRegisterAck
	MsgPulse
	MsgPulseAck
	MsgRackSnapshot
	MsgBoardMove
	MsgAck
	MsgAssignMatch
	MsgConfirmMove
	MsgBoardStateRequest
	MsgBoardState
)

// Header is the fixed portion of every frame. A zero RequestID marks a
// notification; any other value ties a request to its reply.
type Header struct {
	Version    uint8
	Type       MsgType
	Flags      uint8
	Reserved   uint8
	RequestID  uint32
	PayloadLen uint32
	Checksum   uint32
}

var (
	ErrInvalidMagic     = errors.New("wire: invalid magic")
	ErrUnsupportedVer   = errors.New("wire: unsupported version")
	ErrShortPayload     = errors.New("wire: payload shorter than declared length")
	ErrOversizePayload  = errors.New("wire: declared payload length too large")
	ErrChecksumMismatch = errors.New("wire: checksum mismatch")
)

// WriteFrame serialises the header and payload to w. The payload slice
// is written as-is; callers retain ownership of the buffer.
func WriteFrame(w io.Writer, hdr Header, payload []byte) error {
	hdr.PayloadLen = uint32(len(payload))

	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:], magic)
	buf[4] = hdr.Version
	buf[5] = byte(hdr.Type)
	buf[6] = hdr.Flags
	buf[7] = hdr.Reserved
	binary.LittleEndian.PutUint32(buf[8:12], hdr.RequestID)
	binary.LittleEndian.PutUint32(buf[12:16], hdr.PayloadLen)

	checksum := hdr.Checksum
	if hdr.Flags&FlagChecksum != 0 {
		crc := crc32.NewIEEE()
		_, _ = crc.Write(buf[4:16])
		if len(payload) > 0 {
			_, _ = crc.Write(payload)
		}
		checksum = crc.Sum32()
	}
	binary.LittleEndian.PutUint32(buf[16:20], checksum)

	if _, err := w.Write(buf); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one frame from r. The returned payload is a freshly
// allocated slice sized to the declared payload length.
func ReadFrame(r io.Reader) (Header, []byte, error) {
	var hdr Header
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return hdr, nil, err
	}

	if binary.LittleEndian.Uint32(buf[0:4]) != magic {
		return hdr, nil, ErrInvalidMagic
	}

	hdr.Version = buf[4]
	hdr.Type = MsgType(buf[5])
	hdr.Flags = buf[6]
	hdr.Reserved = buf[7]
	hdr.RequestID = binary.LittleEndian.Uint32(buf[8:12])
	hdr.PayloadLen = binary.LittleEndian.Uint32(buf[12:16])
	hdr.Checksum = binary.LittleEndian.Uint32(buf[16:20])

	if hdr.Version != Version {
		return hdr, nil, ErrUnsupportedVer
	}
	if hdr.PayloadLen > MaxPayload {
		return hdr, nil, ErrOversizePayload
	}

	payload := make([]byte, hdr.PayloadLen)
	if hdr.PayloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return hdr, nil, ErrShortPayload
			}
			return hdr, nil, err
		}
	}

	if hdr.Flags&FlagChecksum != 0 {
		crc := crc32.NewIEEE()
		_, _ = crc.Write(buf[4:16])
		if len(payload) > 0 {
			_, _ = crc.Write(payload)
		}
		if crc.Sum32() != hdr.Checksum {
			return hdr, nil, ErrChecksumMismatch
		}
	}

	return hdr, payload, nil
}
