package match

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordwire/wordwire/pkg/scrabble"
)

// recordingConfirmer captures the confirm-move callbacks a match makes
// toward its board sensor.
type recordingConfirmer struct {
	moves []*scrabble.Move
	err   error
}

func (c *recordingConfirmer) ConfirmMove(_ context.Context, matchID string, mv *scrabble.Move) error {
	c.moves = append(c.moves, mv)
	return c.err
}

func newTestMatch(t *testing.T) (*MatchState, *recordingConfirmer) {
	t.Helper()
	conf := &recordingConfirmer{}
	ms := NewMatchState(MatchConfig{
		ID:        "TESTmtch",
		Players:   [2]string{"ada", "grace"},
		Confirmer: conf,
	})
	return ms, conf
}

// feedDraw streams growing snapshots of rack to role, one tile at a
// time, the way a rack reader reports a player drawing.
func feedDraw(t *testing.T, ms *MatchState, role SensorRole, rack string) {
	t.Helper()
	require.True(t, ms.ProcessRackDelta(role, TileHistogram{}))
	for i := 1; i <= len(rack); i++ {
		require.True(t, ms.ProcessRackDelta(role, mustRack(t, rack[:i])),
			"growing snapshot %s", rack[:i])
	}
}

func TestInitialDrawCommitsImplicitly(t *testing.T) {
	ms, _ := newTestMatch(t)

	feedDraw(t, ms, RolePlayer1, "ABCDEFG")

	assert.Equal(t, 0, ms.TurnNumber(), "turn counter stays at zero")
	assert.True(t, ms.racks[RolePlayer1].Playing(), "player 1's resolver flipped to playing")
	assert.Equal(t, 93, ms.BagCount(), "the seven drawn tiles left the bag")
}

func TestImplicitCommitFiresOnlyOnce(t *testing.T) {
	ms, _ := newTestMatch(t)
	feedDraw(t, ms, RolePlayer1, "ABCDEFG")

	// The reader keeps streaming the full rack; the committed draw must
	// not re-trigger.
	for i := 0; i < 3; i++ {
		require.True(t, ms.ProcessRackDelta(RolePlayer1, mustRack(t, "ABCDEFG")))
	}
	assert.True(t, ms.racks[RolePlayer1].Playing())
	assert.Equal(t, 93, ms.BagCount())
	assert.Equal(t, 0, ms.TurnNumber())
}

func TestMisdrawToEightHasNoImplicitCommit(t *testing.T) {
	ms, _ := newTestMatch(t)

	// The reader first sees the rack at eight tiles: no implicit
	// commit, and the explicit end of turn reports the desync.
	require.True(t, ms.ProcessRackDelta(RolePlayer1, mustRack(t, "ABCDEFGH")))
	assert.True(t, ms.racks[RolePlayer1].Drawing())
	assert.Equal(t, 100, ms.BagCount())

	_, err := ms.EndTurn(context.Background(), 1000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still drawing")
}

func TestPlayTurn(t *testing.T) {
	ms, conf := newTestMatch(t)
	feedDraw(t, ms, RolePlayer1, "RATES?V")
	// Player 2's opening draw stays uncommitted until the first end of
	// turn picks it up.
	feedDraw(t, ms, RolePlayer2, "BDFEEYO")

	// Player 1 spells RATES through the center, keeping the blank and
	// the V.
	require.True(t, ms.ProcessRackDelta(RolePlayer1, mustRack(t, "?V")))
	board := deltaOf(t, "RATES", rowPositionsAt(7, 7, 5))
	require.True(t, ms.ProcessBoardDelta(board))
	require.True(t, ms.ProcessBoardDelta(board))

	info, err := ms.EndTurn(context.Background(), 32_000)
	require.NoError(t, err)

	assert.Equal(t, TurnPlay, info.Kind)
	// R+A+T+E+S with the S doubled, the whole word doubled by center.
	assert.Equal(t, 12, info.Score)
	assert.Equal(t, 0, info.UnsetBlanks)
	assert.Zero(t, info.EndGameBonus)
	assert.Equal(t, 1, ms.TurnNumber())
	require.Len(t, conf.moves, 1, "board sensor told about the move")

	players := ms.Players()
	assert.Equal(t, 12, players[0].CumulativeScore)
	assert.EqualValues(t, 32_000, players[0].AccumulatedTimeMs)

	// Player 2 plays the odd turns.
	assert.Equal(t, RolePlayer2, ms.playingRole())
}

// streamingConfirmer models the real board sensor, whose confirm ack
// shares a connection with its snapshot stream: the ack cannot be
// delivered unless a concurrent board delta gets through first.
type streamingConfirmer struct {
	ms  *MatchState
	err error
}

func (c *streamingConfirmer) ConfirmMove(context.Context, string, *scrabble.Move) error {
	done := make(chan struct{})
	go func() {
		c.ms.ProcessBoardDelta(BoardDelta{})
		close(done)
	}()
	select {
	case <-done:
		c.err = nil
	case <-time.After(2 * time.Second):
		c.err = errors.New("board reader starved of the match lock")
	}
	return c.err
}

func TestConfirmMoveDoesNotBlockBoardReader(t *testing.T) {
	conf := &streamingConfirmer{}
	ms := NewMatchState(MatchConfig{
		ID:        "TESTmtch",
		Players:   [2]string{"ada", "grace"},
		Confirmer: conf,
	})
	conf.ms = ms

	feedDraw(t, ms, RolePlayer1, "RATES?V")
	feedDraw(t, ms, RolePlayer2, "BDFEEYO")
	require.True(t, ms.ProcessRackDelta(RolePlayer1, mustRack(t, "?V")))
	require.True(t, ms.ProcessBoardDelta(deltaOf(t, "RATES", rowPositionsAt(7, 7, 5))))

	info, err := ms.EndTurn(context.Background(), 10_000)
	require.NoError(t, err)
	assert.Equal(t, TurnPlay, info.Kind)
	require.NoError(t, conf.err, "confirm push must not hold the lock the reader needs")
}

func TestExchangeTurn(t *testing.T) {
	ms, conf := newTestMatch(t)
	feedDraw(t, ms, RolePlayer1, "RATES?V")
	feedDraw(t, ms, RolePlayer2, "BDFEEYO")

	// Two tiles go back to the pouch; nothing reaches the board. The
	// camera still reports an empty delta to stay fresh.
	require.True(t, ms.ProcessRackDelta(RolePlayer1, mustRack(t, "RATES")))
	require.True(t, ms.ProcessBoardDelta(BoardDelta{}))

	info, err := ms.EndTurn(context.Background(), 15_000)
	require.NoError(t, err)

	assert.Equal(t, TurnExchange, info.Kind)
	assert.Equal(t, 0, info.Score, "no move on the board yet")
	assert.Equal(t, 1, ms.TurnNumber())
	assert.Empty(t, conf.moves, "nothing to confirm on an exchange")
}

func TestPassTurn(t *testing.T) {
	ms, conf := newTestMatch(t)
	feedDraw(t, ms, RolePlayer1, "RATES?V")
	feedDraw(t, ms, RolePlayer2, "BDFEEYO")

	require.True(t, ms.ProcessRackDelta(RolePlayer1, mustRack(t, "RATES?V")))
	require.True(t, ms.ProcessBoardDelta(BoardDelta{}))

	info, err := ms.EndTurn(context.Background(), 8_000)
	require.NoError(t, err)

	assert.Equal(t, TurnPass, info.Kind)
	assert.Equal(t, 1, ms.TurnNumber())
	assert.Empty(t, conf.moves)
}

func TestMismatchedDeltasRejected(t *testing.T) {
	ms, _ := newTestMatch(t)
	feedDraw(t, ms, RolePlayer1, "RATES?V")
	feedDraw(t, ms, RolePlayer2, "BDFEEYO")

	// The rack lost R-A-T-E-S but the camera saw V-A-T-E-S.
	require.True(t, ms.ProcessRackDelta(RolePlayer1, mustRack(t, "?V")))
	require.True(t, ms.ProcessBoardDelta(deltaOf(t, "VATES", rowPositionsAt(7, 7, 5))))

	_, err := ms.EndTurn(context.Background(), 10_000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "do not match")
	assert.Equal(t, 0, ms.TurnNumber(), "turn does not advance")
}

func TestEndTurnRejectsOversizeDrawingRack(t *testing.T) {
	ms, _ := newTestMatch(t)
	feedDraw(t, ms, RolePlayer1, "RATES?V")

	// Player 2 misdraws to eight tiles. The snapshots are observed,
	// and the end of turn is where it surfaces.
	feedDraw(t, ms, RolePlayer2, "BDFEEYOO")
	bagBefore := ms.BagCount()

	_, err := ms.EndTurn(context.Background(), 5_000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many tiles")
	assert.Equal(t, bagBefore, ms.BagCount(), "nothing committed")
	assert.Equal(t, 0, ms.TurnNumber())
}

func TestEndGameBonusAwarded(t *testing.T) {
	ms, conf := newTestMatch(t)

	// A drained end game in miniature. Draws empty the bag greedily, so
	// the bag is stocked for one short opening draw at a time: player 1
	// takes all of CAT, then player 2 takes all of BD, and nothing is
	// left to draw after the play.
	ms.bag.Empty()
	require.True(t, ms.bag.Add(mustRack(t, "CAT")))
	require.True(t, ms.ProcessRackDelta(RolePlayer1, mustRack(t, "CAT")))
	require.NoError(t, ms.racks[RolePlayer1].EndTurn(), "player 1's opening draw")

	require.True(t, ms.bag.Add(mustRack(t, "BD")))
	require.True(t, ms.ProcessRackDelta(RolePlayer2, mustRack(t, "BD")))

	// Player 1 goes out with CAT through the center.
	require.True(t, ms.ProcessRackDelta(RolePlayer1, TileHistogram{}))
	require.True(t, ms.ProcessBoardDelta(deltaOf(t, "CAT", rowPositionsAt(7, 7, 3))))

	info, err := ms.EndTurn(context.Background(), 60_000)
	require.NoError(t, err)

	assert.Equal(t, TurnPlay, info.Kind)
	// C3+A1+T1 doubled by the center star.
	assert.Equal(t, 10, info.Score)
	// Twice the stranded B and D: 2 * (3 + 2).
	assert.Equal(t, 10, info.EndGameBonus)
	assert.True(t, ms.Ended())
	require.Len(t, conf.moves, 1)

	players := ms.Players()
	assert.Equal(t, 20, players[0].CumulativeScore, "score plus bonus")
}

func TestEndOfTurnInfoOmitsZeroBonus(t *testing.T) {
	plain, err := json.Marshal(&EndOfTurnInfo{Score: 12, UnsetBlanks: 1})
	require.NoError(t, err)
	assert.NotContains(t, string(plain), "end_game_bonus")

	withBonus, err := json.Marshal(&EndOfTurnInfo{Score: 12, EndGameBonus: 10})
	require.NoError(t, err)
	assert.Contains(t, string(withBonus), `"end_game_bonus":10`)
}

func TestBlankPlayAndAssignment(t *testing.T) {
	ms, _ := newTestMatch(t)
	feedDraw(t, ms, RolePlayer1, "RATE?QV")
	feedDraw(t, ms, RolePlayer2, "BDFEEYO")

	// RATE? spells RATES with the blank standing in for the S.
	require.True(t, ms.ProcessRackDelta(RolePlayer1, mustRack(t, "QV")))
	delta := deltaOf(t, "RATE", rowPositionsAt(7, 7, 4))
	delta[scrabble.Pos{Row: 7, Col: 11}] = scrabble.MustTile('?')
	require.True(t, ms.ProcessBoardDelta(delta))

	info, err := ms.EndTurn(context.Background(), 20_000)
	require.NoError(t, err)
	assert.Equal(t, TurnPlay, info.Kind)
	assert.Equal(t, 1, info.UnsetBlanks)
	// The blank scores zero even on its double-letter square.
	assert.Equal(t, 8, info.Score)

	// Before assignment the word still shows the bare blank.
	assert.Equal(t, []string{"RATE?"}, ms.ChallengeableWords())

	require.NoError(t, ms.SetBlanks("s"))
	assert.Equal(t, []string{"RATES"}, ms.ChallengeableWords())
	assert.Error(t, ms.SetBlanks("x"), "no unset blanks remain")
}

func TestChallenge(t *testing.T) {
	ms, _ := newTestMatch(t)
	feedDraw(t, ms, RolePlayer1, "RATES?V")
	feedDraw(t, ms, RolePlayer2, "BDFEEYO")

	require.True(t, ms.ProcessRackDelta(RolePlayer1, mustRack(t, "?V")))
	require.True(t, ms.ProcessBoardDelta(deltaOf(t, "RATES", rowPositionsAt(7, 7, 5))))
	_, err := ms.EndTurn(context.Background(), 10_000)
	require.NoError(t, err)

	dict := scrabble.NewDictionary([]string{"RATES", "IT"})

	t.Run("all words valid", func(t *testing.T) {
		ok, undone := ms.Challenge([]string{"RATES"}, dict)
		assert.False(t, ok)
		assert.Zero(t, undone)
		assert.Equal(t, []string{"RATES"}, ms.ChallengeableWords(), "move stays on the board")
	})

	t.Run("invalid word undoes the move", func(t *testing.T) {
		ok, undone := ms.Challenge([]string{"RATES", "ASDFQG"}, dict)
		assert.True(t, ok)
		assert.Equal(t, 12, undone)
		assert.Empty(t, ms.ChallengeableWords(), "move came off the board")
		assert.Zero(t, ms.Players()[0].CumulativeScore, "undone points came back off the total")
	})
}
