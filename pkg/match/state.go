// Package match implements the coordination core of a sensor-driven
// Scrabble table: the shared tile bag, the noise-tolerant delta
// resolvers for rack readers and the board camera, and the per-match
// state that fuses their streams into committed turns.
package match

import (
	"context"
	"fmt"
	"sync"

	"github.com/decred/slog"

	"github.com/wordwire/wordwire/pkg/scrabble"
)

// SensorRole identifies which seat of a match a sensor observes.
type SensorRole int

const (
	RoleBoard SensorRole = iota
	RolePlayer1
	RolePlayer2
)

// Opposite returns the seat drawing while this one plays. The board is
// its own opposite.
func (r SensorRole) Opposite() SensorRole {
	switch r {
	case RolePlayer1:
		return RolePlayer2
	case RolePlayer2:
		return RolePlayer1
	default:
		return RoleBoard
	}
}

func (r SensorRole) String() string {
	switch r {
	case RoleBoard:
		return "board"
	case RolePlayer1:
		return "player1"
	case RolePlayer2:
		return "player2"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// TurnKind is the classification EndTurn assigns to a committed turn.
type TurnKind int

const (
	TurnPlay TurnKind = iota
	TurnExchange
	TurnPass
)

func (k TurnKind) String() string {
	switch k {
	case TurnPlay:
		return "play"
	case TurnExchange:
		return "exchange"
	case TurnPass:
		return "pass"
	default:
		return fmt.Sprintf("turn(%d)", int(k))
	}
}

// PlayerInfo carries the per-player bookkeeping surfaced to the control
// plane.
type PlayerInfo struct {
	Name              string `json:"name"`
	CumulativeScore   int    `json:"cumulative_score"`
	AccumulatedTimeMs int64  `json:"accumulated_time_ms"`
}

// EndOfTurnInfo summarizes a committed turn. EndGameBonus is present
// only on the turn that ends the game.
type EndOfTurnInfo struct {
	Score        int `json:"score"`
	UnsetBlanks  int `json:"blanks"`
	EndGameBonus int `json:"end_game_bonus,omitempty"`

	Kind       TurnKind       `json:"-"`
	TurnNumber int            `json:"-"`
	PlayedBy   SensorRole     `json:"-"`
	Move       *scrabble.Move `json:"-"`
}

// MoveConfirmer pushes a committed move back to the match's board
// sensor. The connection pool implements it.
type MoveConfirmer interface {
	ConfirmMove(ctx context.Context, matchID string, mv *scrabble.Move) error
}

// MatchConfig assembles a new match.
type MatchConfig struct {
	ID        string
	Players   [2]string
	Log       slog.Logger
	Confirmer MoveConfirmer

	// LetterSet overrides the tile distribution; nil means standard
	// English.
	LetterSet *scrabble.LetterSet
}

// MatchState coordinates one match. It owns the board, the bag and the
// three resolvers, routes sensor deltas to them, and commits turns when
// the control plane signals end-of-turn. All methods are safe for
// concurrent use.
type MatchState struct {
	mtx       sync.Mutex
	id        string
	log       slog.Logger
	confirmer MoveConfirmer

	bag           *TileBag
	board         *scrabble.Board
	boardResolver *BoardDeltaResolver
	racks         map[SensorRole]*RackDeltaResolver
	players       map[SensorRole]*PlayerInfo
	turnN         int
	ended         bool
}

// NewMatchState builds the state for a fresh match: an empty board, a
// full bag, and all three resolvers in their starting phase.
func NewMatchState(cfg MatchConfig) *MatchState {
	if cfg.Log == nil {
		cfg.Log = slog.Disabled
	}
	bag := NewTileBag()
	if cfg.LetterSet != nil {
		bag = NewTileBagFromSet(cfg.LetterSet)
	}
	board := scrabble.NewBoard()
	return &MatchState{
		id:            cfg.ID,
		log:           cfg.Log,
		confirmer:     cfg.Confirmer,
		bag:           bag,
		board:         board,
		boardResolver: NewBoardDeltaResolver(board, cfg.Log),
		racks: map[SensorRole]*RackDeltaResolver{
			RolePlayer1: NewRackDeltaResolver(bag, cfg.Log),
			RolePlayer2: NewRackDeltaResolver(bag, cfg.Log),
		},
		players: map[SensorRole]*PlayerInfo{
			RolePlayer1: {Name: cfg.Players[0]},
			RolePlayer2: {Name: cfg.Players[1]},
		},
	}
}

// ID returns the match id.
func (m *MatchState) ID() string {
	return m.id
}

// TurnNumber returns the number of committed turns.
func (m *MatchState) TurnNumber() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.turnN
}

// Ended reports whether a turn has closed out the game.
func (m *MatchState) Ended() bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.ended
}

// Players returns a copy of both players' bookkeeping, player 1 first.
func (m *MatchState) Players() [2]PlayerInfo {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return [2]PlayerInfo{*m.players[RolePlayer1], *m.players[RolePlayer2]}
}

// BagCount returns the number of tiles left in the bag.
func (m *MatchState) BagCount() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.bag.TileCount()
}

// BoardRows renders the board one raw row per string, for the board
// sensor's full-state query and the spectator feed.
func (m *MatchState) BoardRows() []string {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.board.Rows()
}

// playingRole derives whose turn it is from the turn counter: player 1
// plays the even turns.
func (m *MatchState) playingRole() SensorRole {
	if m.turnN%2 == 0 {
		return RolePlayer1
	}
	return RolePlayer2
}

// ProcessRackDelta routes one rack reading to the resolver for role.
//
// Player 1 fills their first rack before any turn boundary exists, so
// the moment that rack reaches a full seven tiles during turn zero the
// draw is committed implicitly and the resolver flips to playing while
// the turn counter stays at zero.
func (m *MatchState) ProcessRackDelta(role SensorRole, snapshot TileHistogram) bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	resolver, ok := m.racks[role]
	if !ok {
		m.log.Warnf("Dropping rack delta for non-rack role %s", role)
		return false
	}
	accepted := resolver.ProcessDelta(snapshot)

	if m.turnN == 0 && role == RolePlayer1 && resolver.Drawing() &&
		resolver.TileCount() == scrabble.RackSize {
		m.log.Infof("Player 1 finished drawing tiles at the start of the game")
		if err := resolver.EndTurn(); err != nil {
			m.log.Errorf("Player 1's initial rack %s failed to commit: %v", resolver.CurrentRack(), err)
		} else {
			m.log.Infof("Confirmed player 1's initial rack %s", resolver.CurrentRack())
		}
	}

	return accepted
}

// ProcessBoardDelta routes one board-camera reading to the board
// resolver.
func (m *MatchState) ProcessBoardDelta(d BoardDelta) bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.boardResolver.ProcessDelta(d)
}

// EndTurn commits the turn in progress: it settles all three resolvers,
// classifies the turn as a play, an exchange or a pass, and advances
// the turn counter. playerTimeMs is the playing player's clock reading
// as reported by the control plane.
func (m *MatchState) EndTurn(ctx context.Context, playerTimeMs int64) (*EndOfTurnInfo, error) {
	info, err := m.commitTurn(playerTimeMs)
	if err != nil {
		return nil, err
	}

	// The confirm push waits on an ack carried by the board sensor's
	// connection, whose reader also delivers snapshots into
	// ProcessBoardDelta. Holding the match lock across the push would
	// wedge that reader behind it and time every ack out, so the push
	// happens after the commit has released the lock.
	if info.Move != nil && m.confirmer != nil {
		if err := m.confirmer.ConfirmMove(ctx, m.id, info.Move); err != nil {
			m.log.Errorf("Unable to confirm move with the board sensor: %v", err)
		}
	}
	return info, nil
}

// commitTurn settles the resolvers and updates match state under the
// lock. It never talks to sensors.
func (m *MatchState) commitTurn(playerTimeMs int64) (*EndOfTurnInfo, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	playingRole := m.playingRole()
	playing := m.racks[playingRole]
	drawing := m.racks[playingRole.Opposite()]

	if !playing.Playing() {
		return nil, fmt.Errorf("player %s's rack is still drawing, cannot end the turn", playingRole)
	}
	if n := drawing.TileCount(); n > scrabble.RackSize {
		return nil, fmt.Errorf("player %s drew too many tiles (%d): %s",
			playingRole.Opposite(), n, drawing.CurrentRack())
	}

	// Snapshot both deltas before any resolver commits so the
	// classification sees the same pre-commit moment on all streams.
	rackDelta := playing.Delta()
	boardDelta := m.boardResolver.Delta()

	if err := m.boardResolver.EndTurn(); err != nil {
		return nil, fmt.Errorf("resolving board delta: %w", err)
	}
	for _, role := range []SensorRole{RolePlayer1, RolePlayer2} {
		if err := m.racks[role].EndTurn(); err != nil {
			return nil, fmt.Errorf("resolving %s's rack delta: %w", role, err)
		}
	}

	info := &EndOfTurnInfo{TurnNumber: m.turnN, PlayedBy: playingRole}
	fromRack := rackDelta.Total()
	switch {
	case fromRack > 0 && len(boardDelta) == 0:
		info.Kind = TurnExchange
		m.log.Infof("Player %s exchanged tiles %s", playingRole, rackDelta)
	case fromRack == 0 && len(boardDelta) == 0:
		info.Kind = TurnPass
		m.log.Infof("Player %s passed", playingRole)
	default:
		if hist := boardDelta.Histogram(); !hist.Equal(rackDelta) {
			return nil, fmt.Errorf("tiles leaving the rack %s do not match tiles placed on the board %s",
				rackDelta, hist)
		}
		mv, err := m.boardResolver.deltaToMove(boardDelta)
		if err != nil {
			return nil, fmt.Errorf("building committed move: %w", err)
		}
		info.Kind = TurnPlay
		info.Move = mv
		info.UnsetBlanks = mv.UnsetBlankCount()
		m.log.Infof("Player %s played move %s", playingRole, mv)
	}

	info.Score = m.board.Score()
	if info.Kind == TurnPlay {
		m.players[playingRole].CumulativeScore += info.Score
		if m.bag.TileCount() == 0 && playing.TileCount() == 0 {
			bonus := 0
			for tile, count := range drawing.CurrentRack() {
				bonus += tile.Value() * count
			}
			info.EndGameBonus = 2 * bonus
			m.players[playingRole].CumulativeScore += info.EndGameBonus
			m.ended = true
			m.log.Infof("Player %s went out; end-game bonus %d from %s's rack",
				playingRole, info.EndGameBonus, playingRole.Opposite())
		}
	}

	m.players[playingRole].AccumulatedTimeMs = playerTimeMs
	m.turnN++

	m.log.Infof("Board state:\n%s", m.board)
	m.log.Infof("P1 rack state: %s", m.racks[RolePlayer1].CurrentRack())
	m.log.Infof("P2 rack state: %s", m.racks[RolePlayer2].CurrentRack())

	return info, nil
}

// Abandon marks the match ended without a final play, so an aborted
// game can be torn down and its sensors reclaimed.
func (m *MatchState) Abandon() {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if !m.ended {
		m.ended = true
		m.log.Infof("Match %s abandoned at turn %d", m.id, m.turnN)
	}
}

// ChallengeableWords returns the words formed by the previous turn's
// move.
func (m *MatchState) ChallengeableWords() []string {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.board.ChallengeWords()
}

// Challenge resolves a word challenge against the previous turn's move.
// The challenge succeeds when any challenged word is missing from dict;
// a successful challenge takes the move back off the board, and the
// undone points come back off the challenged player's running total.
// The score the undone move had earned is returned alongside.
func (m *MatchState) Challenge(words []string, dict *scrabble.Dictionary) (successful bool, undoneScore int) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	for _, word := range words {
		if !dict.Contains(word) {
			successful = true
			break
		}
	}
	if !successful {
		return false, 0
	}
	undoneScore = m.board.Score()
	m.board.UndoMove()
	challenged := m.playingRole().Opposite()
	m.players[challenged].CumulativeScore -= undoneScore
	m.log.Infof("Challenge succeeded against %v; move by %s worth %d undone",
		words, challenged, undoneScore)
	return true, undoneScore
}

// SetBlanks assigns letters to the unset blanks of the previous turn's
// move.
func (m *MatchState) SetBlanks(letters string) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if !m.board.SetBlanks(letters) {
		return fmt.Errorf("cannot assign %q to the previous move's blanks", letters)
	}
	return nil
}
