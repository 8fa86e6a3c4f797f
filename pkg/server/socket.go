package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/decred/slog"

	"github.com/wordwire/wordwire/pkg/wire"
)

// SessionTimings bundles the timing knobs of a sensor session. Tests
// inject millisecond values; production uses the defaults.
type SessionTimings struct {
	// ReadInterval is the read deadline of one reader loop iteration.
	ReadInterval time.Duration
	// HeartbeatTick is how often the watcher checks the last pulse.
	HeartbeatTick time.Duration
	// HeartbeatExpiry is the silence after which a sensor is declared
	// dead.
	HeartbeatExpiry time.Duration
	// WriteTimeout bounds a single outbound frame write.
	WriteTimeout time.Duration
}

// DefaultSessionTimings returns the production timings: sensors pulse
// every 2 s and are declared dead after 5 s of silence.
func DefaultSessionTimings() SessionTimings {
	return SessionTimings{
		ReadInterval:    time.Second,
		HeartbeatTick:   2500 * time.Millisecond,
		HeartbeatExpiry: 5 * time.Second,
		WriteTimeout:    5 * time.Second,
	}
}

// SessionOwner receives a session's registration and data traffic. The
// sensor pool implements it.
type SessionOwner interface {
	// RegisterSensor decides the fate of a freshly identified sensor.
	// A non-nil error rejects it: the session acks the returned feed
	// and hangs up.
	RegisterSensor(s *SensorSession) (wire.Feed, error)
	// RackSnapshot routes one rack reading; the return value becomes
	// the ack.
	RackSnapshot(s *SensorSession, tiles string) bool
	// BoardMove routes one board camera reading; the return value
	// becomes the ack.
	BoardMove(s *SensorSession, placements []wire.Placement) bool
}

// ErrSessionClosed is returned by calls against a hung-up session.
var ErrSessionClosed = errors.New("sensor session closed")

// outFrame is one queued outbound frame. closeAfter hangs up once the
// frame is flushed, so rejection acks reach the peer.
type outFrame struct {
	typ        wire.MsgType
	requestID  uint32
	payload    []byte
	closeAfter bool
}

// sessionReply carries an RPC reply frame back to its waiting caller.
type sessionReply struct {
	typ     wire.MsgType
	payload []byte
}

// SensorSession is one sensor's connection. A reader goroutine decodes
// inbound frames, a writer goroutine serializes outbound ones, and a
// watcher enforces the pulse heartbeat. Server-to-sensor RPCs ride the
// same frame stream, matched to their replies by request id.
type SensorSession struct {
	conn    net.Conn
	log     slog.Logger
	owner   SessionOwner
	timings SessionTimings

	writeCh   chan outFrame
	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mtx        sync.Mutex
	registered bool
	mac        uint64
	sensorType wire.SensorType
	matchID    string
	feed       wire.Feed
	lastPulse  time.Time
	nextReqID  uint32
	pending    map[uint32]chan sessionReply
}

// NewSensorSession wraps an accepted connection. Serve must be called
// to start the session.
func NewSensorSession(conn net.Conn, owner SessionOwner, log slog.Logger, timings SessionTimings) *SensorSession {
	if log == nil {
		log = slog.Disabled
	}
	return &SensorSession{
		conn:      conn,
		log:       log,
		owner:     owner,
		timings:   timings,
		writeCh:   make(chan outFrame, 16),
		quit:      make(chan struct{}),
		lastPulse: time.Now(),
		pending:   make(map[uint32]chan sessionReply),
	}
}

// Serve runs the session until the peer hangs up, the heartbeat
// expires, or ctx is canceled. It returns once all session goroutines
// have stopped.
func (s *SensorSession) Serve(ctx context.Context) {
	s.wg.Add(2)
	go s.writeLoop()
	go s.heartbeatLoop()

	s.readLoop(ctx)

	s.Close()
	s.wg.Wait()
}

// Close hangs up the session. Safe to call from any goroutine, any
// number of times.
func (s *SensorSession) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
		s.conn.Close()
	})
}

// IsConnected reports whether the session is still live.
func (s *SensorSession) IsConnected() bool {
	select {
	case <-s.quit:
		return false
	default:
		return true
	}
}

// Registered reports whether the sensor has identified itself.
func (s *SensorSession) Registered() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.registered
}

// Mac returns the sensor's hardware address, zero before registration.
func (s *SensorSession) Mac() uint64 {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.mac
}

// SensorType returns the capability the sensor registered with.
func (s *SensorSession) SensorType() wire.SensorType {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.sensorType
}

// Assignment returns the match and data feed the sensor serves. The
// feed is FeedNone while the sensor waits in the pool.
func (s *SensorSession) Assignment() (string, wire.Feed) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.matchID, s.feed
}

// setAssignment binds the session to a match feed. The pool calls it
// on assignment and reconnection; clearing uses an empty match id.
func (s *SensorSession) setAssignment(matchID string, feed wire.Feed) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.matchID = matchID
	s.feed = feed
}

// LastPulse returns the time of the most recent heartbeat.
func (s *SensorSession) LastPulse() time.Time {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.lastPulse
}

// RemoteAddr names the peer for log lines.
func (s *SensorSession) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

// readLoop decodes inbound frames until the connection dies. The short
// read deadline keeps the loop responsive to ctx and Close without a
// dedicated watcher goroutine.
func (s *SensorSession) readLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil || !s.IsConnected() {
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(s.timings.ReadInterval))
		hdr, payload, err := wire.ReadFrame(s.conn)
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			if s.IsConnected() {
				s.log.Debugf("Sensor %s read ended: %v", s.RemoteAddr(), err)
			}
			return
		}
		if err := s.dispatch(hdr, payload); err != nil {
			s.log.Warnf("Dropping sensor %s: %v", s.RemoteAddr(), err)
			return
		}
	}
}

// dispatch routes one inbound frame. A non-nil error kills the
// connection.
func (s *SensorSession) dispatch(hdr wire.Header, payload []byte) error {
	switch hdr.Type {
	case wire.MsgRegister:
		return s.handleRegister(hdr, payload)

	case wire.MsgPulse:
		s.mtx.Lock()
		s.lastPulse = time.Now()
		s.mtx.Unlock()
		return s.send(outFrame{typ: wire.MsgPulseAck, requestID: hdr.RequestID})

	case wire.MsgRackSnapshot:
		snap, err := wire.DecodeRackSnapshot(payload)
		if err != nil {
			return fmt.Errorf("bad rack snapshot: %w", err)
		}
		ok := s.owner.RackSnapshot(s, snap.Tiles)
		return s.sendAck(hdr.RequestID, ok)

	case wire.MsgBoardMove:
		mv, err := wire.DecodeBoardMove(payload)
		if err != nil {
			return fmt.Errorf("bad board move: %w", err)
		}
		ok := s.owner.BoardMove(s, mv.Placements)
		return s.sendAck(hdr.RequestID, ok)

	case wire.MsgAck, wire.MsgBoardState:
		s.deliverReply(hdr, payload)
		return nil

	default:
		return fmt.Errorf("unexpected frame type %d", hdr.Type)
	}
}

// handleRegister identifies the sensor and asks the owner what to do
// with it.
func (s *SensorSession) handleRegister(hdr wire.Header, payload []byte) error {
	reg, err := wire.DecodeRegister(payload)
	if err != nil {
		return fmt.Errorf("bad register: %w", err)
	}

	s.mtx.Lock()
	if s.registered {
		s.mtx.Unlock()
		return fmt.Errorf("sensor %x registered twice", reg.Mac)
	}
	s.registered = true
	s.mac = reg.Mac
	s.sensorType = reg.SensorType
	s.mtx.Unlock()

	feed, regErr := s.owner.RegisterSensor(s)
	ack, err := wire.EncodeRegisterAck(wire.RegisterAck{Feed: feed})
	if err != nil {
		return err
	}
	if regErr != nil {
		s.log.Warnf("Rejecting sensor %x (%s) from %s: %v",
			reg.Mac, reg.SensorType, s.RemoteAddr(), regErr)
		return s.send(outFrame{
			typ:        wire.MsgRegisterAck,
			requestID:  hdr.RequestID,
			payload:    ack,
			closeAfter: true,
		})
	}
	s.log.Infof("Sensor %x (%s) registered from %s, feed %s",
		reg.Mac, reg.SensorType, s.RemoteAddr(), feed)
	return s.send(outFrame{typ: wire.MsgRegisterAck, requestID: hdr.RequestID, payload: ack})
}

// deliverReply hands an RPC reply to its waiting caller. Replies that
// outlived their call are dropped.
func (s *SensorSession) deliverReply(hdr wire.Header, payload []byte) {
	s.mtx.Lock()
	ch, ok := s.pending[hdr.RequestID]
	if ok {
		delete(s.pending, hdr.RequestID)
	}
	s.mtx.Unlock()

	if !ok {
		s.log.Debugf("Unmatched reply id %d from %s", hdr.RequestID, s.RemoteAddr())
		return
	}
	ch <- sessionReply{typ: hdr.Type, payload: payload}
}

func (s *SensorSession) sendAck(requestID uint32, ok bool) error {
	payload, err := wire.EncodeAck(wire.Ack{OK: ok})
	if err != nil {
		return err
	}
	return s.send(outFrame{typ: wire.MsgAck, requestID: requestID, payload: payload})
}

// send queues one outbound frame for the writer goroutine.
func (s *SensorSession) send(f outFrame) error {
	select {
	case s.writeCh <- f:
		return nil
	case <-s.quit:
		return ErrSessionClosed
	}
}

// writeLoop owns all writes to the connection.
func (s *SensorSession) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case f := <-s.writeCh:
			hdr := wire.Header{
				Version:   wire.Version,
				Type:      f.typ,
				Flags:     wire.FlagChecksum,
				RequestID: f.requestID,
			}
			if s.timings.WriteTimeout > 0 {
				s.conn.SetWriteDeadline(time.Now().Add(s.timings.WriteTimeout))
			}
			if err := wire.WriteFrame(s.conn, hdr, f.payload); err != nil {
				if s.IsConnected() {
					s.log.Debugf("Sensor %s write failed: %v", s.RemoteAddr(), err)
				}
				s.Close()
				return
			}
			if f.closeAfter {
				s.Close()
				return
			}
		case <-s.quit:
			return
		}
	}
}

// heartbeatLoop closes the session when the sensor stops pulsing.
func (s *SensorSession) heartbeatLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.timings.HeartbeatTick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if silence := time.Since(s.LastPulse()); silence > s.timings.HeartbeatExpiry {
				s.log.Warnf("Sensor %x at %s missed its heartbeat (%v silent), disconnecting",
					s.Mac(), s.RemoteAddr(), silence.Round(time.Millisecond))
				s.Close()
				return
			}
		case <-s.quit:
			return
		}
	}
}

// call sends one request frame and waits for its reply.
func (s *SensorSession) call(ctx context.Context, typ wire.MsgType, payload []byte) (wire.MsgType, []byte, error) {
	s.mtx.Lock()
	s.nextReqID++
	if s.nextReqID == 0 {
		s.nextReqID = 1
	}
	id := s.nextReqID
	ch := make(chan sessionReply, 1)
	s.pending[id] = ch
	s.mtx.Unlock()

	defer func() {
		s.mtx.Lock()
		delete(s.pending, id)
		s.mtx.Unlock()
	}()

	if err := s.send(outFrame{typ: typ, requestID: id, payload: payload}); err != nil {
		return 0, nil, err
	}

	select {
	case rep := <-ch:
		return rep.typ, rep.payload, nil
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	case <-s.quit:
		return 0, nil, ErrSessionClosed
	}
}

// callAck runs a call whose reply must be a positive Ack.
func (s *SensorSession) callAck(ctx context.Context, typ wire.MsgType, payload []byte) error {
	repTyp, repPayload, err := s.call(ctx, typ, payload)
	if err != nil {
		return err
	}
	if repTyp != wire.MsgAck {
		return fmt.Errorf("sensor answered %d, wanted ack", repTyp)
	}
	ack, err := wire.DecodeAck(repPayload)
	if err != nil {
		return err
	}
	if !ack.OK {
		return fmt.Errorf("sensor refused the request")
	}
	return nil
}

// AssignMatch tells the sensor which match and feed it now serves. On
// a positive ack the assignment is recorded on the session.
func (s *SensorSession) AssignMatch(ctx context.Context, matchID string, feed wire.Feed) error {
	payload, err := wire.EncodeAssignMatch(wire.AssignMatch{MatchID: matchID, Feed: feed})
	if err != nil {
		return err
	}
	if err := s.callAck(ctx, wire.MsgAssignMatch, payload); err != nil {
		return fmt.Errorf("assigning sensor %x to match %s: %w", s.Mac(), matchID, err)
	}
	s.setAssignment(matchID, feed)
	return nil
}

// ConfirmMove pushes a committed move down to the board sensor.
func (s *SensorSession) ConfirmMove(ctx context.Context, placements []wire.Placement) error {
	payload, err := wire.EncodeConfirmMove(wire.ConfirmMove{Placements: placements})
	if err != nil {
		return err
	}
	return s.callAck(ctx, wire.MsgConfirmMove, payload)
}

// FullBoardState asks the board sensor for its ground-truth view.
func (s *SensorSession) FullBoardState(ctx context.Context) ([]string, error) {
	repTyp, repPayload, err := s.call(ctx, wire.MsgBoardStateRequest, nil)
	if err != nil {
		return nil, err
	}
	if repTyp != wire.MsgBoardState {
		return nil, fmt.Errorf("sensor answered %d, wanted board state", repTyp)
	}
	state, err := wire.DecodeBoardState(repPayload)
	if err != nil {
		return nil, err
	}
	return state.Rows, nil
}
