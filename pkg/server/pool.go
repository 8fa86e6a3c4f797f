package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/decred/slog"
	"golang.org/x/sync/errgroup"

	"github.com/wordwire/wordwire/pkg/match"
	"github.com/wordwire/wordwire/pkg/scrabble"
	"github.com/wordwire/wordwire/pkg/wire"
)

// assignment records which match feed a known mac serves.
type assignment struct {
	matchID string
	feed    wire.Feed
}

// matchSensors is the sensor trio serving one match.
type matchSensors struct {
	board   *SensorSession
	player1 *SensorSession
	player2 *SensorSession
}

func (t *matchSensors) forFeed(feed wire.Feed) *SensorSession {
	switch feed {
	case wire.FeedBoard:
		return t.board
	case wire.FeedPlayer1:
		return t.player1
	case wire.FeedPlayer2:
		return t.player2
	}
	return nil
}

func (t *matchSensors) setForFeed(feed wire.Feed, s *SensorSession) {
	switch feed {
	case wire.FeedBoard:
		t.board = s
	case wire.FeedPlayer1:
		t.player1 = s
	case wire.FeedPlayer2:
		t.player2 = s
	}
}

func (t *matchSensors) all() []*SensorSession {
	return []*SensorSession{t.board, t.player1, t.player2}
}

// roleForFeed maps a wire data feed to its match seat.
func roleForFeed(feed wire.Feed) match.SensorRole {
	switch feed {
	case wire.FeedPlayer1:
		return match.RolePlayer1
	case wire.FeedPlayer2:
		return match.RolePlayer2
	default:
		return match.RoleBoard
	}
}

// feedCompatible reports whether a sensor of type st can serve feed.
func feedCompatible(st wire.SensorType, feed wire.Feed) bool {
	if feed == wire.FeedBoard {
		return st == wire.SensorBoard
	}
	return st == wire.SensorRack
}

// PoolConfig assembles a sensor pool.
type PoolConfig struct {
	Log      slog.Logger
	MatchLog slog.Logger
	Store    *match.Store
	Metrics  *Metrics
	Events   *EventProcessor

	// LetterSet overrides the tile distribution of new matches; nil
	// means standard English.
	LetterSet *scrabble.LetterSet

	AssignAttempts  int
	AssignTimeout   time.Duration
	ConfirmAttempts int
	ConfirmTimeout  time.Duration
	QueryTimeout    time.Duration
}

// SensorPool tracks every registered sensor: pooled ones waiting for a
// match, and assigned ones serving one. It owns match creation and the
// server-to-sensor RPC retry policies. Store must be set; everything
// else has defaults.
type SensorPool struct {
	log slog.Logger
	cfg PoolConfig

	mtx       sync.RWMutex
	available map[wire.SensorType]map[uint64]*SensorSession
	assigned  map[uint64]assignment
	active    map[string]*matchSensors
}

// NewSensorPool creates an empty pool.
func NewSensorPool(cfg PoolConfig) *SensorPool {
	if cfg.Log == nil {
		cfg.Log = slog.Disabled
	}
	if cfg.MatchLog == nil {
		cfg.MatchLog = cfg.Log
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics()
	}
	if cfg.AssignAttempts <= 0 {
		cfg.AssignAttempts = 5
	}
	if cfg.AssignTimeout <= 0 {
		cfg.AssignTimeout = 1500 * time.Millisecond
	}
	if cfg.ConfirmAttempts <= 0 {
		cfg.ConfirmAttempts = 5
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = time.Second
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 5 * time.Second
	}
	return &SensorPool{
		log: cfg.Log,
		cfg: cfg,
		available: map[wire.SensorType]map[uint64]*SensorSession{
			wire.SensorBoard: {},
			wire.SensorRack:  {},
		},
		assigned: make(map[uint64]assignment),
		active:   make(map[string]*matchSensors),
	}
}

func (p *SensorPool) publish(matchID string, payload EventPayload) {
	if p.cfg.Events == nil {
		return
	}
	p.cfg.Events.PublishEvent(NewMatchEvent(matchID, payload))
}

func (p *SensorPool) updateGaugesLocked() {
	p.cfg.Metrics.SetSensorsAvailable("board", len(p.available[wire.SensorBoard]))
	p.cfg.Metrics.SetSensorsAvailable("rack", len(p.available[wire.SensorRack]))
	p.cfg.Metrics.SetMatchesLive(len(p.active))
}

// RegisterSensor decides what a freshly identified sensor becomes. A
// mac with a live assignment may reconnect into its old seat if its
// capability still fits; an unknown mac is pooled; anything else is
// rejected and the connection dropped.
func (p *SensorPool) RegisterSensor(s *SensorSession) (wire.Feed, error) {
	mac, st := s.Mac(), s.SensorType()

	p.mtx.Lock()
	defer p.mtx.Unlock()

	if a, ok := p.assigned[mac]; ok {
		if !feedCompatible(st, a.feed) {
			return wire.FeedNone, fmt.Errorf("sensor %x serves %s of match %s but reconnected as a %s sensor",
				mac, a.feed, a.matchID, st)
		}
		trio := p.active[a.matchID]
		if trio == nil {
			return wire.FeedNone, fmt.Errorf("sensor %x is assigned to unknown match %s", mac, a.matchID)
		}
		prior := trio.forFeed(a.feed)
		if prior != nil && prior.IsConnected() {
			return wire.FeedNone, fmt.Errorf("sensor %x is already connected and serving match %s", mac, a.matchID)
		}
		trio.setForFeed(a.feed, s)
		s.setAssignment(a.matchID, a.feed)
		p.log.Infof("Sensor %x reconnected as %s of match %s", mac, a.feed, a.matchID)
		p.cfg.Metrics.RecordReconnect()
		p.publish(a.matchID, SensorReconnectedPayload{Mac: mac, Role: a.feed.String()})
		return a.feed, nil
	}

	for _, byMac := range p.available {
		if _, ok := byMac[mac]; ok {
			return wire.FeedNone, fmt.Errorf("sensor %x is already pooled", mac)
		}
	}

	p.available[st][mac] = s
	p.updateGaugesLocked()
	p.publish("", SensorRegisteredPayload{Mac: mac, SensorType: st.String()})
	return wire.FeedNone, nil
}

// OnDisconnect reconciles the pool with a dead session. Pooled sensors
// are dropped; assigned ones keep their seat so the reconnect path can
// revive them.
func (p *SensorPool) OnDisconnect(s *SensorSession) {
	if !s.Registered() {
		p.log.Debugf("Unregistered sensor at %s disconnected", s.RemoteAddr())
		return
	}
	mac, st := s.Mac(), s.SensorType()

	p.mtx.Lock()
	defer p.mtx.Unlock()

	if cur, ok := p.available[st][mac]; ok && cur == s {
		delete(p.available[st], mac)
		p.updateGaugesLocked()
		p.log.Infof("Pooled sensor %x (%s) disconnected, dropped", mac, st)
		p.publish("", SensorLostPayload{Mac: mac, SensorType: st.String()})
		return
	}
	if a, ok := p.assigned[mac]; ok {
		// Keep the assignment: the reconnect path owns revival.
		p.log.Warnf("Assigned sensor %x (%s of match %s) disconnected, awaiting reconnect",
			mac, a.feed, a.matchID)
		p.publish(a.matchID, SensorLostPayload{Mac: mac, SensorType: st.String(), Assigned: true})
		return
	}
	p.log.Debugf("Sensor %x disconnected while untracked", mac)
}

// popTrio consumes one board and two rack sensors from the pool.
func (p *SensorPool) popTrio() (board, rack1, rack2 *SensorSession, err error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	boards := p.available[wire.SensorBoard]
	racks := p.available[wire.SensorRack]
	if len(boards) < 1 {
		return nil, nil, nil, fmt.Errorf("insufficient available boards: have %d, need 1", len(boards))
	}
	if len(racks) < 2 {
		return nil, nil, nil, fmt.Errorf("insufficient available racks: have %d, need 2", len(racks))
	}
	for mac, s := range boards {
		board = s
		delete(boards, mac)
		break
	}
	for mac, s := range racks {
		if rack1 == nil {
			rack1 = s
		} else {
			rack2 = s
		}
		delete(racks, mac)
		if rack2 != nil {
			break
		}
	}
	p.updateGaugesLocked()
	return board, rack1, rack2, nil
}

// assignTrio fans the assignment RPCs out to all three sensors in
// parallel under one aggregate timeout.
func (p *SensorPool) assignTrio(ctx context.Context, matchID string, trio *matchSensors) error {
	gctx, cancel := context.WithTimeout(ctx, p.cfg.AssignTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(gctx)
	for _, a := range []struct {
		sess *SensorSession
		feed wire.Feed
	}{
		{trio.board, wire.FeedBoard},
		{trio.player1, wire.FeedPlayer1},
		{trio.player2, wire.FeedPlayer2},
	} {
		a := a
		g.Go(func() error { return a.sess.AssignMatch(gctx, matchID, a.feed) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, s := range trio.all() {
		if !s.IsConnected() {
			return fmt.Errorf("sensor %x disconnected during assignment", s.Mac())
		}
	}
	return nil
}

// AssignMatch claims a sensor trio for a new match and creates its
// state in the store. Sensors popped for a failed attempt are not
// returned to the pool: a half-delivered assignment leaves them in an
// unknown state, and their reconnect handshake re-pools them cleanly.
func (p *SensorPool) AssignMatch(ctx context.Context, matchID string, players [2]string) error {
	for attempt := 1; attempt <= p.cfg.AssignAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		board, rack1, rack2, err := p.popTrio()
		if err != nil {
			return err
		}
		trio := &matchSensors{board: board, player1: rack1, player2: rack2}

		if err := p.assignTrio(ctx, matchID, trio); err != nil {
			p.log.Warnf("Assign attempt %d/%d for match %s failed: %v",
				attempt, p.cfg.AssignAttempts, matchID, err)
			p.cfg.Metrics.RecordRPCRetry("assign_match")
			continue
		}

		if _, err := p.cfg.Store.CreateMatch(match.MatchConfig{
			ID:        matchID,
			Players:   players,
			Log:       p.cfg.MatchLog,
			Confirmer: p,
			LetterSet: p.cfg.LetterSet,
		}); err != nil {
			return err
		}

		p.mtx.Lock()
		p.assigned[board.Mac()] = assignment{matchID: matchID, feed: wire.FeedBoard}
		p.assigned[rack1.Mac()] = assignment{matchID: matchID, feed: wire.FeedPlayer1}
		p.assigned[rack2.Mac()] = assignment{matchID: matchID, feed: wire.FeedPlayer2}
		p.active[matchID] = trio
		p.updateGaugesLocked()
		p.mtx.Unlock()

		p.log.Infof("Match %s assigned: board %x, racks %x and %x",
			matchID, board.Mac(), rack1.Mac(), rack2.Mac())
		p.publish(matchID, MatchCreatedPayload{
			Players:  players,
			BoardMac: board.Mac(),
			RackMacs: [2]uint64{rack1.Mac(), rack2.Mac()},
		})
		return nil
	}
	return fmt.Errorf("no sensor trio accepted match %s after %d attempts",
		matchID, p.cfg.AssignAttempts)
}

// boardSession returns the current board sensor of a match.
func (p *SensorPool) boardSession(matchID string) *SensorSession {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	trio := p.active[matchID]
	if trio == nil {
		return nil
	}
	return trio.board
}

// ConfirmMove pushes a committed move to the match's board sensor,
// retrying on timeouts and aborting on disconnect.
func (p *SensorPool) ConfirmMove(ctx context.Context, matchID string, mv *scrabble.Move) error {
	board := p.boardSession(matchID)
	if board == nil {
		return fmt.Errorf("match %s has no board sensor", matchID)
	}

	placements := movePlacements(mv)
	start := time.Now()
	for attempt := 1; attempt <= p.cfg.ConfirmAttempts; attempt++ {
		if !board.IsConnected() {
			return fmt.Errorf("board sensor %x disconnected, aborting move confirmation", board.Mac())
		}
		cctx, cancel := context.WithTimeout(ctx, p.cfg.ConfirmTimeout)
		err := board.ConfirmMove(cctx, placements)
		cancel()
		if err == nil {
			p.cfg.Metrics.ObserveConfirmMove(time.Since(start).Seconds())
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.log.Warnf("Confirm-move attempt %d/%d for match %s failed: %v",
			attempt, p.cfg.ConfirmAttempts, matchID, err)
		p.cfg.Metrics.RecordRPCRetry("confirm_move")
	}
	return fmt.Errorf("board sensor did not confirm the move after %d attempts", p.cfg.ConfirmAttempts)
}

// FullBoardState queries the match's board sensor for its ground-truth
// view of the table.
func (p *SensorPool) FullBoardState(ctx context.Context, matchID string) ([]string, error) {
	board := p.boardSession(matchID)
	if board == nil {
		return nil, fmt.Errorf("match %s has no board sensor", matchID)
	}
	qctx, cancel := context.WithTimeout(ctx, p.cfg.QueryTimeout)
	defer cancel()
	return board.FullBoardState(qctx)
}

// ReleaseMatch tears an ended match down: its sensors drop their
// assignments and the connected ones rejoin the pool.
func (p *SensorPool) ReleaseMatch(matchID string) error {
	ms, ok := p.cfg.Store.Get(matchID)
	if !ok {
		return fmt.Errorf("unknown match id %q", matchID)
	}
	if !ms.Ended() {
		return fmt.Errorf("match %s is still in progress", matchID)
	}

	p.mtx.Lock()
	trio := p.active[matchID]
	delete(p.active, matchID)
	if trio != nil {
		for _, s := range trio.all() {
			if s == nil {
				continue
			}
			delete(p.assigned, s.Mac())
			s.setAssignment("", wire.FeedNone)
			if s.IsConnected() {
				p.available[s.SensorType()][s.Mac()] = s
			}
		}
	}
	p.updateGaugesLocked()
	p.mtx.Unlock()

	p.cfg.Store.Remove(matchID)
	p.log.Infof("Match %s released, its sensors returned to the pool", matchID)
	return nil
}

// RackSnapshot routes one rack reading to its match. The return value
// becomes the sensor's ack.
func (p *SensorPool) RackSnapshot(s *SensorSession, tiles string) bool {
	matchID, feed := s.Assignment()
	if matchID == "" {
		p.log.Warnf("Sensor %x sent a rack snapshot while unassigned", s.Mac())
		return false
	}
	ms, ok := p.cfg.Store.Get(matchID)
	if !ok {
		p.log.Errorf("Sensor %x is assigned to unknown match %s", s.Mac(), matchID)
		return false
	}
	hist, err := match.ParseRack(tiles)
	if err != nil {
		p.log.Warnf("Sensor %x sent an unparseable rack %q: %v", s.Mac(), tiles, err)
		p.cfg.Metrics.RecordSnapshot("rack", false)
		return false
	}
	accepted := ms.ProcessRackDelta(roleForFeed(feed), hist)
	p.cfg.Metrics.RecordSnapshot("rack", accepted)
	return accepted
}

// BoardMove routes one board camera reading to its match.
func (p *SensorPool) BoardMove(s *SensorSession, placements []wire.Placement) bool {
	matchID, feed := s.Assignment()
	if matchID == "" {
		p.log.Warnf("Sensor %x sent a board move while unassigned", s.Mac())
		return false
	}
	if feed != wire.FeedBoard {
		p.log.Warnf("Sensor %x sent a board move while serving %s", s.Mac(), feed)
		return false
	}
	ms, ok := p.cfg.Store.Get(matchID)
	if !ok {
		p.log.Errorf("Sensor %x is assigned to unknown match %s", s.Mac(), matchID)
		return false
	}
	delta, err := placementsToDelta(placements)
	if err != nil {
		p.log.Warnf("Sensor %x sent an unparseable board move: %v", s.Mac(), err)
		p.cfg.Metrics.RecordSnapshot("board", false)
		return false
	}
	accepted := ms.ProcessBoardDelta(delta)
	p.cfg.Metrics.RecordSnapshot("board", accepted)
	return accepted
}

// movePlacements renders a committed move for the wire. Blanks travel
// as '?' since the physical tile has no letter for the camera to see.
func movePlacements(mv *scrabble.Move) []wire.Placement {
	ps := mv.Placements()
	out := make([]wire.Placement, len(ps))
	for i, pl := range ps {
		letter := byte(scrabble.Blank)
		if !pl.Tile.IsBlank() {
			letter = byte(pl.Tile.Letter())
		}
		out[i] = wire.Placement{Letter: letter, Row: uint8(pl.Pos.Row), Col: uint8(pl.Pos.Col)}
	}
	return out
}

// placementsToDelta converts validated wire placements into a board
// delta for the resolvers.
func placementsToDelta(ps []wire.Placement) (match.BoardDelta, error) {
	d := make(match.BoardDelta, len(ps))
	for _, pl := range ps {
		tile, err := scrabble.NewTile(rune(pl.Letter))
		if err != nil {
			return nil, err
		}
		d[scrabble.Pos{Row: int(pl.Row), Col: int(pl.Col)}] = tile
	}
	return d, nil
}
