// This file contains end-to-end tests that spin up a full coordinator
// backed by a real SQLite journal. The tests drive realistic match
// flows with minimal mocking: the sensors are emulated over real TCP
// connections and the control surface is exercised over real HTTP.
//
// To keep the tests self-contained and independent they **must** be
// executed with `go test ./...` and **should not** depend on external
// resources.

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vctt94/bisonbotkit/logging"

	"github.com/wordwire/wordwire/pkg/scrabble"
	"github.com/wordwire/wordwire/pkg/server"
	"github.com/wordwire/wordwire/pkg/wire"
)

// testEnv holds the runtime components that make up a fully functional
// coordinator backed by a *real* SQLite journal. Each E2E test
// spins-up its own env so tests are completely isolated.
type testEnv struct {
	t       *testing.T
	srv     *server.Server
	httpURL string
	cancel  context.CancelFunc
	done    chan error
}

// createTestLogBackend creates a LogBackend for testing
func createTestLogBackend() *logging.LogBackend {
	logBackend, err := logging.NewLogBackend(logging.LogConfig{
		LogFile:        "",      // Empty for testing - will use stdout
		DebugLevel:     "debug", // Set to debug to see detailed logging
		MaxLogFiles:    1,
		MaxBufferLines: 100,
	})
	if err != nil {
		// Fallback to a minimal LogBackend if creation fails
		return &logging.LogBackend{}
	}
	return logBackend
}

// newTestEnv creates, starts and returns a ready-to-use environment.
func newTestEnv(t *testing.T, words []string) *testEnv {
	t.Helper()

	tmpDir := t.TempDir()
	journal, err := server.NewJournal(filepath.Join(tmpDir, "journal.sqlite"))
	require.NoError(t, err)

	srv := server.NewServer(server.Config{
		TCPAddr:    "127.0.0.1:0",
		HTTPAddr:   "127.0.0.1:0",
		LogBackend: createTestLogBackend(),
		Journal:    journal,
		Dictionary: scrabble.NewDictionary(words),
		Timings: server.SessionTimings{
			ReadInterval:    50 * time.Millisecond,
			HeartbeatTick:   50 * time.Millisecond,
			HeartbeatExpiry: time.Minute,
			WriteTimeout:    5 * time.Second,
		},
	})
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	env := &testEnv{
		t:       t,
		srv:     srv,
		httpURL: "http://" + srv.HTTPAddr().String(),
		cancel:  cancel,
		done:    done,
	}
	t.Cleanup(env.Close)
	return env
}

// Close gracefully shuts down the coordinator.
func (e *testEnv) Close() {
	e.cancel()
	select {
	case err := <-e.done:
		assert.NoError(e.t, err, "coordinator shut down cleanly")
	case <-time.After(5 * time.Second):
		e.t.Error("coordinator did not shut down within 5s")
	}
}

// get issues a control request and decodes its envelope into body,
// returning the error string of an error envelope.
func (e *testEnv) get(t *testing.T, path string, body interface{}) string {
	t.Helper()
	resp, err := http.Get(e.httpURL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "control surface always answers 200")
	return decodeEnvelope(t, resp.Body, body)
}

func (e *testEnv) post(t *testing.T, path string, reqBody interface{}, body interface{}) string {
	t.Helper()
	buf, err := json.Marshal(reqBody)
	require.NoError(t, err)
	resp, err := http.Post(e.httpURL+path, "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decodeEnvelope(t, resp.Body, body)
}

func decodeEnvelope(t *testing.T, r io.Reader, body interface{}) string {
	t.Helper()
	var envelope struct {
		Body  json.RawMessage `json:"body"`
		Error string          `json:"error"`
	}
	require.NoError(t, json.NewDecoder(r).Decode(&envelope))
	if envelope.Error != "" {
		return envelope.Error
	}
	if body != nil {
		require.NoError(t, json.Unmarshal(envelope.Body, body))
	}
	return ""
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// ---------- Emulated sensor over real TCP ---------- //

type frameReply struct {
	hdr     wire.Header
	payload []byte
}

// fakeSensor drives one sensor connection. Its read loop answers
// coordinator-initiated RPCs and routes replies to pending calls.
type fakeSensor struct {
	t    *testing.T
	conn net.Conn
	mac  uint64
	st   wire.SensorType

	writeMu sync.Mutex
	callMu  sync.Mutex
	reqID   uint32
	replies chan frameReply

	mu        sync.Mutex
	matchID   string
	feed      wire.Feed
	board     [wire.BoardDim][wire.BoardDim]byte
	confirmed int
}

func dialSensor(t *testing.T, addr string, mac uint64, st wire.SensorType) *fakeSensor {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	fs := &fakeSensor{
		t:       t,
		conn:    conn,
		mac:     mac,
		st:      st,
		replies: make(chan frameReply, 4),
	}
	for r := range fs.board {
		for c := range fs.board[r] {
			fs.board[r][c] = '.'
		}
	}
	go fs.readLoop()
	t.Cleanup(func() { conn.Close() })
	return fs
}

func (fs *fakeSensor) write(msgType wire.MsgType, reqID uint32, payload []byte) error {
	fs.writeMu.Lock()
	defer fs.writeMu.Unlock()
	fs.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return wire.WriteFrame(fs.conn, wire.Header{
		Version:   wire.Version,
		Type:      msgType,
		Flags:     wire.FlagChecksum,
		RequestID: reqID,
	}, payload)
}

func (fs *fakeSensor) call(msgType wire.MsgType, payload []byte) (frameReply, error) {
	fs.callMu.Lock()
	defer fs.callMu.Unlock()

	id := atomic.AddUint32(&fs.reqID, 1)
	if err := fs.write(msgType, id, payload); err != nil {
		return frameReply{}, err
	}
	select {
	case r := <-fs.replies:
		if r.hdr.RequestID != id {
			return frameReply{}, fmt.Errorf("reply id %d for request %d", r.hdr.RequestID, id)
		}
		return r, nil
	case <-time.After(5 * time.Second):
		return frameReply{}, fmt.Errorf("no reply to message type %d", msgType)
	}
}

func (fs *fakeSensor) register() (wire.Feed, error) {
	payload, err := wire.EncodeRegister(wire.Register{Mac: fs.mac, SensorType: fs.st})
	if err != nil {
		return wire.FeedNone, err
	}
	r, err := fs.call(wire.MsgRegister, payload)
	if err != nil {
		return wire.FeedNone, err
	}
	ack, err := wire.DecodeRegisterAck(r.payload)
	if err != nil {
		return wire.FeedNone, err
	}
	return ack.Feed, nil
}

func (fs *fakeSensor) sendRack(tiles string) bool {
	payload, err := wire.EncodeRackSnapshot(wire.RackSnapshot{Tiles: tiles})
	require.NoError(fs.t, err)
	r, err := fs.call(wire.MsgRackSnapshot, payload)
	require.NoError(fs.t, err)
	ack, err := wire.DecodeAck(r.payload)
	require.NoError(fs.t, err)
	return ack.OK
}

func (fs *fakeSensor) sendMove(ps []wire.Placement) bool {
	payload, err := wire.EncodeBoardMove(wire.BoardMove{Placements: ps})
	require.NoError(fs.t, err)
	r, err := fs.call(wire.MsgBoardMove, payload)
	require.NoError(fs.t, err)
	ack, err := wire.DecodeAck(r.payload)
	require.NoError(fs.t, err)
	if ack.OK {
		fs.apply(ps)
	}
	return ack.OK
}

func (fs *fakeSensor) apply(ps []wire.Placement) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, p := range ps {
		if p.Row < wire.BoardDim && p.Col < wire.BoardDim {
			fs.board[p.Row][p.Col] = p.Letter
		}
	}
}

func (fs *fakeSensor) assignedFeed() wire.Feed {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.feed
}

func (fs *fakeSensor) confirmCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.confirmed
}

func (fs *fakeSensor) readLoop() {
	for {
		hdr, payload, err := wire.ReadFrame(fs.conn)
		if err != nil {
			return
		}

		switch hdr.Type {
		case wire.MsgAssignMatch:
			a, err := wire.DecodeAssignMatch(payload)
			if err != nil {
				continue
			}
			fs.mu.Lock()
			fs.matchID, fs.feed = a.MatchID, a.Feed
			fs.mu.Unlock()
			ackPayload, _ := wire.EncodeAck(wire.Ack{OK: true})
			fs.write(wire.MsgAck, hdr.RequestID, ackPayload)

		case wire.MsgConfirmMove:
			c, err := wire.DecodeConfirmMove(payload)
			if err != nil {
				continue
			}
			fs.apply(c.Placements)
			fs.mu.Lock()
			fs.confirmed++
			fs.mu.Unlock()
			ackPayload, _ := wire.EncodeAck(wire.Ack{OK: true})
			fs.write(wire.MsgAck, hdr.RequestID, ackPayload)

		case wire.MsgBoardStateRequest:
			fs.mu.Lock()
			rows := make([]string, wire.BoardDim)
			for r := range fs.board {
				rows[r] = string(fs.board[r][:])
			}
			fs.mu.Unlock()
			statePayload, err := wire.EncodeBoardState(wire.BoardState{Rows: rows})
			if err != nil {
				continue
			}
			fs.write(wire.MsgBoardState, hdr.RequestID, statePayload)

		default:
			select {
			case fs.replies <- frameReply{hdr: hdr, payload: payload}:
			default:
			}
		}
	}
}

// drawRack streams growing snapshots the way a rack reader reports a
// player drawing tiles one at a time.
func drawRack(t *testing.T, fs *fakeSensor, rack string) {
	t.Helper()
	require.True(t, fs.sendRack(""))
	for i := 1; i <= len(rack); i++ {
		require.True(t, fs.sendRack(rack[:i]), "growing snapshot %s", rack[:i])
	}
}

func rowPlacements(letters string, row, startCol int) []wire.Placement {
	ps := make([]wire.Placement, len(letters))
	for i := range letters {
		ps[i] = wire.Placement{Letter: letters[i], Row: uint8(row), Col: uint8(startCol + i)}
	}
	return ps
}

// ---------- Tests ---------- //

// TestFullMatch plays a short match end to end: setup over three live
// sensors, an opening play with a blank, a failed challenge, a pass,
// and the audit trail left behind.
func TestFullMatch(t *testing.T) {
	env := newTestEnv(t, []string{"rates"})
	tcpAddr := env.srv.TCPAddr().String()

	board := dialSensor(t, tcpAddr, 0xB0, wire.SensorBoard)
	rack1 := dialSensor(t, tcpAddr, 0xA1, wire.SensorRack)
	rack2 := dialSensor(t, tcpAddr, 0xA2, wire.SensorRack)
	for _, fs := range []*fakeSensor{board, rack1, rack2} {
		feed, err := fs.register()
		require.NoError(t, err)
		require.Equal(t, wire.FeedNone, feed, "fresh sensors join the pool unassigned")
	}

	// Setup hands the trio out and creates the match.
	var setup struct {
		MatchID string `json:"match_id"`
	}
	errMsg := env.get(t, "/setup?p1=ada&p2=grace", &setup)
	require.Empty(t, errMsg)
	require.NotEmpty(t, setup.MatchID)
	waitFor(t, func() bool { return board.assignedFeed() == wire.FeedBoard }, "board assignment")

	p1, p2 := rack1, rack2
	if rack2.assignedFeed() == wire.FeedPlayer1 {
		p1, p2 = rack2, rack1
	}
	waitFor(t, func() bool { return p2.assignedFeed() == wire.FeedPlayer2 }, "rack assignments")

	// Both players draw their opening seven.
	drawRack(t, p1, "RATES?V")
	drawRack(t, p2, "BDFEEYO")

	// Player 1 spells RATE? through the center star, keeping S and V.
	require.True(t, p1.sendRack("SV"))
	require.True(t, board.sendMove(rowPlacements("RATE?", 7, 7)))

	var turn struct {
		Score  int `json:"score"`
		Blanks int `json:"blanks"`
	}
	errMsg = env.get(t, "/end-turn?match_id="+setup.MatchID+"&turn_number=0&player_time=32000", &turn)
	require.Empty(t, errMsg)
	assert.Equal(t, 8, turn.Score)
	assert.Equal(t, 1, turn.Blanks)
	waitFor(t, func() bool { return board.confirmCount() == 1 }, "committed move pushed to the board sensor")

	// The blank is declared an S; the played word becomes challengeable
	// as RATES.
	errMsg = env.post(t, "/blanks?match_id="+setup.MatchID+"&turn_number=0", []string{"S"}, nil)
	require.Empty(t, errMsg)

	var words struct {
		Words []string `json:"words"`
	}
	errMsg = env.get(t, "/challengeable-words?match_id="+setup.MatchID+"&turn_number=0", &words)
	require.Empty(t, errMsg)
	assert.Equal(t, []string{"RATES"}, words.Words)

	// RATES is in the dictionary, so the challenge fails and costs the
	// challenger five points per word.
	var challenge struct {
		Successful        bool `json:"successful"`
		ChallengerPenalty int  `json:"challenger_penalty"`
	}
	errMsg = env.get(t, "/challenge?match_id="+setup.MatchID+"&turn_number=0&words=RATES", &challenge)
	require.Empty(t, errMsg)
	assert.False(t, challenge.Successful)
	assert.Equal(t, 5, challenge.ChallengerPenalty)

	// Player 1 draws back to seven while player 2 thinks; player 2 then
	// changes nothing at all: a pass. The camera still reports an empty
	// delta to stay fresh.
	for _, snap := range []string{"SVL", "SVLM", "SVLMN", "SVLMNO", "SVLMNOP"} {
		require.True(t, p1.sendRack(snap))
	}
	require.True(t, p2.sendRack("BDFEEYO"))
	require.True(t, board.sendMove(nil))
	errMsg = env.get(t, "/end-turn?match_id="+setup.MatchID+"&turn_number=1&player_time=2000", &turn)
	require.Empty(t, errMsg)
	assert.Equal(t, 0, turn.Score)

	// Turn 2: player 1 swaps four tiles back, an exchange. Player 2's
	// reader re-reports an unchanged rack so its snapshot stays fresh.
	require.True(t, p1.sendRack("SVL"))
	require.True(t, p2.sendRack("BDFEEYO"))
	require.True(t, board.sendMove(nil))
	errMsg = env.get(t, "/end-turn?match_id="+setup.MatchID+"&turn_number=2&player_time=9000", &turn)
	require.Empty(t, errMsg)
	assert.Equal(t, 0, turn.Score)

	// Turn 3: player 1 refills, player 2 passes again.
	for _, snap := range []string{"SVLA", "SVLAB", "SVLABC", "SVLABCD"} {
		require.True(t, p1.sendRack(snap))
	}
	require.True(t, p2.sendRack("BDFEEYO"))
	require.True(t, board.sendMove(nil))
	errMsg = env.get(t, "/end-turn?match_id="+setup.MatchID+"&turn_number=3&player_time=1000", &turn)
	require.Empty(t, errMsg)

	// The resolved board and the camera's own view agree on the word.
	var boardView struct {
		TurnNumber int      `json:"turn_number"`
		Rows       []string `json:"rows"`
		CameraRows []string `json:"camera_rows"`
	}
	errMsg = env.get(t, "/board?match_id="+setup.MatchID+"&camera=1", &boardView)
	require.Empty(t, errMsg)
	assert.Equal(t, 4, boardView.TurnNumber)
	require.Len(t, boardView.Rows, 15)
	assert.Contains(t, boardView.Rows[7], "RATEs", "assigned blanks render lowercase")
	require.Len(t, boardView.CameraRows, 15)
	assert.Contains(t, boardView.CameraRows[7], "RATE?", "the camera never learns the blank's letter")

	// The journal has the whole story.
	var history struct {
		Matches []struct {
			ID      string `json:"id"`
			Player1 string `json:"player1"`
			Player2 string `json:"player2"`
			Turns   int    `json:"turns"`
		} `json:"matches"`
	}
	errMsg = env.get(t, "/history", &history)
	require.Empty(t, errMsg)
	require.Len(t, history.Matches, 1)
	assert.Equal(t, setup.MatchID, history.Matches[0].ID)
	assert.Equal(t, "ada", history.Matches[0].Player1)
	assert.Equal(t, "grace", history.Matches[0].Player2)

	var turnLog struct {
		Turns []struct {
			TurnNumber int    `json:"turn_number"`
			Kind       string `json:"kind"`
			Score      int    `json:"score"`
		} `json:"turns"`
	}
	waitFor(t, func() bool {
		turnLog.Turns = nil
		if env.get(t, "/history?match_id="+setup.MatchID, &turnLog) != "" {
			return false
		}
		return len(turnLog.Turns) == 4
	}, "all four turns to reach the journal")
	assert.Equal(t, "play", turnLog.Turns[0].Kind)
	assert.Equal(t, 8, turnLog.Turns[0].Score)
	assert.Equal(t, "pass", turnLog.Turns[1].Kind)
	assert.Equal(t, "exchange", turnLog.Turns[2].Kind)
	assert.Equal(t, "pass", turnLog.Turns[3].Kind)

	// A walk-away: forcing the release frees the trio, and the table can
	// immediately host a fresh match on the same sensors.
	errMsg = env.get(t, "/release?match_id="+setup.MatchID+"&force=1", nil)
	require.Empty(t, errMsg)

	var rematch struct {
		MatchID string `json:"match_id"`
	}
	errMsg = env.get(t, "/setup?p1=bob&p2=eve", &rematch)
	require.Empty(t, errMsg)
	assert.NotEmpty(t, rematch.MatchID)
	assert.NotEqual(t, setup.MatchID, rematch.MatchID)
}

// TestSetupWithoutSensors covers the empty-table failure mode: setup
// must fail cleanly and leave nothing behind.
func TestSetupWithoutSensors(t *testing.T) {
	env := newTestEnv(t, nil)

	errMsg := env.get(t, "/setup?p1=ada&p2=grace", nil)
	assert.Contains(t, errMsg, "insufficient")

	var history struct {
		Matches []json.RawMessage `json:"matches"`
	}
	errMsg = env.get(t, "/history", &history)
	require.Empty(t, errMsg)
	assert.Empty(t, history.Matches)
}
