package main

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/decred/slog"

	"github.com/wordwire/wordwire/pkg/wire"
)

// sensorEvent is one server-initiated action surfaced to the UI.
type sensorEvent struct {
	kind       string // "assigned", "confirm", "state_request", "disconnect"
	matchID    string
	feed       wire.Feed
	placements []wire.Placement
	err        error
}

type reply struct {
	hdr     wire.Header
	payload []byte
}

// sensorConn emulates one table sensor over the coordinator's wire
// protocol. Server-initiated RPCs are answered inline by the read loop
// and mirrored to the events channel for display.
type sensorConn struct {
	conn net.Conn
	mac  uint64
	st   wire.SensorType
	log  slog.Logger

	writeMu sync.Mutex
	callMu  sync.Mutex
	reqID   uint32
	replies chan reply
	events  chan sensorEvent

	mu    sync.Mutex
	board [wire.BoardDim][wire.BoardDim]byte
}

// dialSensor connects and starts the read loop. Registration is a
// separate step so the UI can show the outcome.
func dialSensor(addr string, mac uint64, st wire.SensorType, log slog.Logger) (*sensorConn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	sc := &sensorConn{
		conn:    conn,
		mac:     mac,
		st:      st,
		log:     log,
		replies: make(chan reply, 4),
		events:  make(chan sensorEvent, 16),
	}
	for r := range sc.board {
		for c := range sc.board[r] {
			sc.board[r][c] = '.'
		}
	}
	go sc.readLoop()
	return sc, nil
}

func (sc *sensorConn) close() {
	sc.conn.Close()
}

func (sc *sensorConn) write(msgType wire.MsgType, reqID uint32, payload []byte) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	sc.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return wire.WriteFrame(sc.conn, wire.Header{
		Version:   wire.Version,
		Type:      msgType,
		Flags:     wire.FlagChecksum,
		RequestID: reqID,
	}, payload)
}

// call sends one request and waits for the routed reply. Calls are
// serialised so the pulse ticker and the UI never race for a reply.
func (sc *sensorConn) call(msgType wire.MsgType, payload []byte) (reply, error) {
	sc.callMu.Lock()
	defer sc.callMu.Unlock()

	id := atomic.AddUint32(&sc.reqID, 1)
	if err := sc.write(msgType, id, payload); err != nil {
		return reply{}, err
	}
	select {
	case r := <-sc.replies:
		if r.hdr.RequestID != id {
			return reply{}, fmt.Errorf("reply id %d does not match request %d", r.hdr.RequestID, id)
		}
		return r, nil
	case <-time.After(5 * time.Second):
		return reply{}, fmt.Errorf("no reply to %d within 5s", msgType)
	}
}

func (sc *sensorConn) register() (wire.Feed, error) {
	payload, err := wire.EncodeRegister(wire.Register{Mac: sc.mac, SensorType: sc.st})
	if err != nil {
		return wire.FeedNone, err
	}
	r, err := sc.call(wire.MsgRegister, payload)
	if err != nil {
		return wire.FeedNone, err
	}
	ack, err := wire.DecodeRegisterAck(r.payload)
	if err != nil {
		return wire.FeedNone, err
	}
	return ack.Feed, nil
}

func (sc *sensorConn) pulse() error {
	_, err := sc.call(wire.MsgPulse, nil)
	return err
}

func (sc *sensorConn) sendRack(tiles string) (bool, error) {
	payload, err := wire.EncodeRackSnapshot(wire.RackSnapshot{Tiles: tiles})
	if err != nil {
		return false, err
	}
	r, err := sc.call(wire.MsgRackSnapshot, payload)
	if err != nil {
		return false, err
	}
	ack, err := wire.DecodeAck(r.payload)
	if err != nil {
		return false, err
	}
	return ack.OK, nil
}

func (sc *sensorConn) sendMove(ps []wire.Placement) (bool, error) {
	payload, err := wire.EncodeBoardMove(wire.BoardMove{Placements: ps})
	if err != nil {
		return false, err
	}
	r, err := sc.call(wire.MsgBoardMove, payload)
	if err != nil {
		return false, err
	}
	ack, err := wire.DecodeAck(r.payload)
	if err != nil {
		return false, err
	}
	if ack.OK {
		sc.apply(ps)
	}
	return ack.OK, nil
}

func (sc *sensorConn) apply(ps []wire.Placement) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	for _, p := range ps {
		if p.Row < wire.BoardDim && p.Col < wire.BoardDim {
			sc.board[p.Row][p.Col] = p.Letter
		}
	}
}

func (sc *sensorConn) rows() []string {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	rows := make([]string, wire.BoardDim)
	for r := range sc.board {
		rows[r] = string(sc.board[r][:])
	}
	return rows
}

func (sc *sensorConn) readLoop() {
	for {
		hdr, payload, err := wire.ReadFrame(sc.conn)
		if err != nil {
			sc.events <- sensorEvent{kind: "disconnect", err: err}
			return
		}

		switch hdr.Type {
		case wire.MsgAssignMatch:
			a, err := wire.DecodeAssignMatch(payload)
			if err != nil {
				sc.log.Errorf("Bad assign frame: %v", err)
				continue
			}
			ackPayload, _ := wire.EncodeAck(wire.Ack{OK: true})
			if err := sc.write(wire.MsgAck, hdr.RequestID, ackPayload); err != nil {
				sc.log.Errorf("Unable to ack assignment: %v", err)
			}
			sc.events <- sensorEvent{kind: "assigned", matchID: a.MatchID, feed: a.Feed}

		case wire.MsgConfirmMove:
			c, err := wire.DecodeConfirmMove(payload)
			if err != nil {
				sc.log.Errorf("Bad confirm frame: %v", err)
				continue
			}
			sc.apply(c.Placements)
			ackPayload, _ := wire.EncodeAck(wire.Ack{OK: true})
			if err := sc.write(wire.MsgAck, hdr.RequestID, ackPayload); err != nil {
				sc.log.Errorf("Unable to ack confirmation: %v", err)
			}
			sc.events <- sensorEvent{kind: "confirm", placements: c.Placements}

		case wire.MsgBoardStateRequest:
			statePayload, err := wire.EncodeBoardState(wire.BoardState{Rows: sc.rows()})
			if err != nil {
				sc.log.Errorf("Unable to encode board state: %v", err)
				continue
			}
			if err := sc.write(wire.MsgBoardState, hdr.RequestID, statePayload); err != nil {
				sc.log.Errorf("Unable to send board state: %v", err)
			}
			sc.events <- sensorEvent{kind: "state_request"}

		default:
			// A reply to one of our own requests.
			select {
			case sc.replies <- reply{hdr: hdr, payload: payload}:
			default:
				sc.log.Warnf("Dropping unexpected reply type %d", hdr.Type)
			}
		}
	}
}
