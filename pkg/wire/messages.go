package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	errStringTooLong = errors.New("wire: string exceeds 64KB limit")
	errPayloadShort  = errors.New("wire: payload too short")
	errExtraBytes    = errors.New("wire: payload has trailing data")
)

// BoardDim is the table's square grid dimension. Placements outside it
// never reach the resolvers.
const BoardDim = 15

// SensorType identifies the hardware variant announcing itself.
type SensorType uint8

const (
	SensorBoard SensorType = iota
	SensorRack
)

func (s SensorType) String() string {
	switch s {
	case SensorBoard:
		return "board"
	case SensorRack:
		return "rack"
	}
	return fmt.Sprintf("sensor(%d)", uint8(s))
}

// Feed names the data stream a sensor serves within a match.
type Feed uint8

const (
	FeedNone Feed = iota
	FeedBoard
	FeedPlayer1
	FeedPlayer2
)

func (f Feed) String() string {
	switch f {
	case FeedNone:
		return "none"
	case FeedBoard:
		return "board"
	case FeedPlayer1:
		return "player1"
	case FeedPlayer2:
		return "player2"
	}
	return fmt.Sprintf("feed(%d)", uint8(f))
}

// Register announces a sensor to the coordinator.
type Register struct {
	Mac        uint64
	SensorType SensorType
}

// RegisterAck answers a registration with the feed the sensor should
// resume serving, or FeedNone for a freshly pooled sensor.
type RegisterAck struct {
	Feed Feed
}

// Ack is the generic boolean reply to a request.
type Ack struct {
	OK bool
}

// RackSnapshot carries a rack reader's full current observation. Tiles
// is the letter run as read, '?' for blanks.
type RackSnapshot struct {
	Tiles string
}

// Placement is one observed tile on the grid. Letter is 'A'..'Z' or '?'.
type Placement struct {
	Letter byte
	Row    uint8
	Col    uint8
}

// BoardMove carries the camera's accumulated delta of new tiles.
type BoardMove struct {
	Placements []Placement
}

// AssignMatch binds a pooled sensor to a match and a feed.
type AssignMatch struct {
	MatchID string
	Feed    Feed
}

// ConfirmMove pushes a committed move back to the board sensor.
type ConfirmMove struct {
	Placements []Placement
}

// BoardState is the board sensor's full current view, one string per row.
type BoardState struct {
	Rows []string
}

func encodeString(buf *bytes.Buffer, value string) error {
	if len(value) > 0xFFFF {
		return errStringTooLong
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(len(value))); err != nil {
		return err
	}
	if len(value) > 0 {
		if _, err := buf.WriteString(value); err != nil {
			return err
		}
	}
	return nil
}

func decodeString(b []byte) (string, []byte, error) {
	if len(b) < 2 {
		return "", nil, errPayloadShort
	}
	length := binary.LittleEndian.Uint16(b[:2])
	b = b[2:]
	if uint16(len(b)) < length {
		return "", nil, errPayloadShort
	}
	return string(b[:length]), b[length:], nil
}

// validatePlacements checks placements and canonicalizes their letters
// in place. Lowercase letters upcase rather than fail, the same
// treatment rack snapshots get when they are parsed into tiles.
func validatePlacements(ps []Placement) error {
	seen := make(map[[2]uint8]bool, len(ps))
	for i := range ps {
		p := &ps[i]
		if p.Letter >= 'a' && p.Letter <= 'z' {
			p.Letter -= 'a' - 'A'
		}
		if p.Letter != '?' && (p.Letter < 'A' || p.Letter > 'Z') {
			return fmt.Errorf("wire: invalid placement letter %q", p.Letter)
		}
		if p.Row >= BoardDim || p.Col >= BoardDim {
			return fmt.Errorf("wire: placement (%d,%d) outside the board", p.Row, p.Col)
		}
		key := [2]uint8{p.Row, p.Col}
		if seen[key] {
			return fmt.Errorf("wire: duplicate placement at (%d,%d)", p.Row, p.Col)
		}
		seen[key] = true
	}
	return nil
}

func encodePlacements(buf *bytes.Buffer, ps []Placement) error {
	if err := validatePlacements(ps); err != nil {
		return err
	}
	if len(ps) > 0xFFFF {
		return errStringTooLong
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(len(ps))); err != nil {
		return err
	}
	for _, p := range ps {
		buf.WriteByte(p.Letter)
		buf.WriteByte(p.Row)
		buf.WriteByte(p.Col)
	}
	return nil
}

func decodePlacements(b []byte) ([]Placement, []byte, error) {
	if len(b) < 2 {
		return nil, nil, errPayloadShort
	}
	count := binary.LittleEndian.Uint16(b[:2])
	b = b[2:]
	if len(b) < int(count)*3 {
		return nil, nil, errPayloadShort
	}
	ps := make([]Placement, count)
	for i := 0; i < int(count); i++ {
		ps[i] = Placement{Letter: b[i*3], Row: b[i*3+1], Col: b[i*3+2]}
	}
	if err := validatePlacements(ps); err != nil {
		return nil, nil, err
	}
	return ps, b[int(count)*3:], nil
}

func EncodeRegister(r Register) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 9))
	if err := binary.Write(buf, binary.LittleEndian, r.Mac); err != nil {
		return nil, err
	}
	buf.WriteByte(byte(r.SensorType))
	return buf.Bytes(), nil
}

func DecodeRegister(b []byte) (Register, error) {
	var r Register
	if len(b) < 9 {
		return r, errPayloadShort
	}
	r.Mac = binary.LittleEndian.Uint64(b[:8])
	r.SensorType = SensorType(b[8])
	if r.SensorType > SensorRack {
		return r, fmt.Errorf("wire: unknown sensor type %d", b[8])
	}
	return r, nil
}

func EncodeRegisterAck(a RegisterAck) ([]byte, error) {
	return []byte{byte(a.Feed)}, nil
}

func DecodeRegisterAck(b []byte) (RegisterAck, error) {
	var a RegisterAck
	if len(b) < 1 {
		return a, errPayloadShort
	}
	a.Feed = Feed(b[0])
	if a.Feed > FeedPlayer2 {
		return a, fmt.Errorf("wire: unknown feed %d", b[0])
	}
	return a, nil
}

func EncodeAck(a Ack) ([]byte, error) {
	if a.OK {
		return []byte{1}, nil
	}
	return []byte{0}, nil
}

func DecodeAck(b []byte) (Ack, error) {
	var a Ack
	if len(b) < 1 {
		return a, errPayloadShort
	}
	a.OK = b[0] != 0
	return a, nil
}

func EncodeRackSnapshot(s RackSnapshot) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 2+len(s.Tiles)))
	if err := encodeString(buf, s.Tiles); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeRackSnapshot(b []byte) (RackSnapshot, error) {
	var s RackSnapshot
	tiles, rest, err := decodeString(b)
	if err != nil {
		return s, err
	}
	if len(rest) != 0 {
		return s, errExtraBytes
	}
	s.Tiles = tiles
	return s, nil
}

func EncodeBoardMove(m BoardMove) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 2+3*len(m.Placements)))
	if err := encodePlacements(buf, m.Placements); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeBoardMove(b []byte) (BoardMove, error) {
	var m BoardMove
	ps, rest, err := decodePlacements(b)
	if err != nil {
		return m, err
	}
	if len(rest) != 0 {
		return m, errExtraBytes
	}
	m.Placements = ps
	return m, nil
}

func EncodeAssignMatch(a AssignMatch) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 3+len(a.MatchID)))
	if err := encodeString(buf, a.MatchID); err != nil {
		return nil, err
	}
	buf.WriteByte(byte(a.Feed))
	return buf.Bytes(), nil
}

func DecodeAssignMatch(b []byte) (AssignMatch, error) {
	var a AssignMatch
	id, rest, err := decodeString(b)
	if err != nil {
		return a, err
	}
	if len(rest) < 1 {
		return a, errPayloadShort
	}
	a.MatchID = id
	a.Feed = Feed(rest[0])
	if a.Feed == FeedNone || a.Feed > FeedPlayer2 {
		return a, fmt.Errorf("wire: assignment to feed %d", rest[0])
	}
	return a, nil
}

func EncodeConfirmMove(c ConfirmMove) ([]byte, error) {
	return EncodeBoardMove(BoardMove(c))
}

func DecodeConfirmMove(b []byte) (ConfirmMove, error) {
	m, err := DecodeBoardMove(b)
	return ConfirmMove(m), err
}

func EncodeBoardState(s BoardState) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if len(s.Rows) > 0xFFFF {
		return nil, errStringTooLong
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(len(s.Rows))); err != nil {
		return nil, err
	}
	for _, row := range s.Rows {
		if err := encodeString(buf, row); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func DecodeBoardState(b []byte) (BoardState, error) {
	var s BoardState
	if len(b) < 2 {
		return s, errPayloadShort
	}
	count := binary.LittleEndian.Uint16(b[:2])
	b = b[2:]
	s.Rows = make([]string, count)
	for i := 0; i < int(count); i++ {
		row, rest, err := decodeString(b)
		if err != nil {
			return s, err
		}
		s.Rows[i] = row
		b = rest
	}
	if len(b) != 0 {
		return s, errExtraBytes
	}
	return s, nil
}
