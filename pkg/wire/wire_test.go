package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	header := Header{
		Version:   Version,
		Type:      MsgRackSnapshot,
		Flags:     FlagChecksum,
		RequestID: 42,
	}
	payload, err := EncodeRackSnapshot(RackSnapshot{Tiles: "RATES?V"})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	buf := &bytes.Buffer{}
	if err := WriteFrame(buf, header, payload); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	gotHeader, gotPayload, err := ReadFrame(buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if gotHeader.Type != header.Type || gotHeader.RequestID != header.RequestID {
		t.Fatalf("header mismatch: %+v vs %+v", gotHeader, header)
	}
	if !bytes.Equal(gotPayload, payload) {
		t.Fatalf("payload mismatch: %q vs %q", gotPayload, payload)
	}
}

func TestNotificationFrameHasZeroRequestID(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := WriteFrame(buf, Header{Version: Version, Type: MsgPulse}, nil); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	hdr, payload, err := ReadFrame(buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if hdr.RequestID != 0 {
		t.Fatalf("expected request id 0, got %d", hdr.RequestID)
	}
	if len(payload) != 0 {
		t.Fatalf("expected empty payload, got %d bytes", len(payload))
	}
}

func TestReadFrameInvalidMagic(t *testing.T) {
	data := make([]byte, headerSize)
	if _, _, err := ReadFrame(bytes.NewReader(data)); !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestReadFrameUnsupportedVersion(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := WriteFrame(buf, Header{Version: Version, Type: MsgPulse}, nil); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	data := buf.Bytes()
	data[4] = Version + 1

	if _, _, err := ReadFrame(bytes.NewReader(data)); !errors.Is(err, ErrUnsupportedVer) {
		t.Fatalf("expected unsupported version, got %v", err)
	}
}

func TestReadFrameChecksumMismatch(t *testing.T) {
	header := Header{Version: Version, Type: MsgRackSnapshot, Flags: FlagChecksum}
	payload, _ := EncodeRackSnapshot(RackSnapshot{Tiles: "ABC"})
	buf := &bytes.Buffer{}
	if err := WriteFrame(buf, header, payload); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xFF // flip a payload byte

	if _, _, err := ReadFrame(bytes.NewReader(raw)); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected checksum mismatch, got %v", err)
	}
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	payload, _ := EncodeRackSnapshot(RackSnapshot{Tiles: "ABCDEFG"})
	buf := &bytes.Buffer{}
	if err := WriteFrame(buf, Header{Version: Version, Type: MsgRackSnapshot}, payload); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	truncated := buf.Bytes()[:headerSize+2]
	if _, _, err := ReadFrame(bytes.NewReader(truncated)); !errors.Is(err, ErrShortPayload) {
		t.Fatalf("expected short payload error, got %v", err)
	}
}

func TestReadFrameRejectsOversizeLength(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := WriteFrame(buf, Header{Version: Version, Type: MsgBoardMove}, nil); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	data := buf.Bytes()
	// Declare a payload far beyond the cap without supplying one.
	data[12] = 0xFF
	data[13] = 0xFF
	data[14] = 0xFF
	data[15] = 0x01

	if _, _, err := ReadFrame(bytes.NewReader(data)); !errors.Is(err, ErrOversizePayload) {
		t.Fatalf("expected oversize payload error, got %v", err)
	}
}
