package match

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/decred/slog"

	"github.com/wordwire/wordwire/pkg/scrabble"
)

// BoardDelta maps board positions to the tiles newly seen there.
type BoardDelta map[scrabble.Pos]scrabble.Tile

// Equal compares two deltas position by position. Tiles match by
// identity, so an assigned blank still matches a plain blank reading.
func (d BoardDelta) Equal(other BoardDelta) bool {
	if len(d) != len(other) {
		return false
	}
	for pos, tile := range d {
		got, ok := other[pos]
		if !ok || got.Canonical() != tile.Canonical() {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (d BoardDelta) Clone() BoardDelta {
	out := make(BoardDelta, len(d))
	for pos, tile := range d {
		out[pos] = tile
	}
	return out
}

// Histogram counts the delta's tiles by identity, folding assigned
// blanks back to plain blanks.
func (d BoardDelta) Histogram() TileHistogram {
	h := make(TileHistogram, len(d))
	for _, tile := range d {
		h[tile.Canonical()]++
	}
	return h
}

// String renders the delta in row-major order for logs.
func (d BoardDelta) String() string {
	positions := make([]scrabble.Pos, 0, len(d))
	for pos := range d {
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].Row != positions[j].Row {
			return positions[i].Row < positions[j].Row
		}
		return positions[i].Col < positions[j].Col
	})
	var sb strings.Builder
	sb.WriteByte('{')
	for i, pos := range positions {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %s", pos, d[pos])
	}
	sb.WriteByte('}')
	return sb.String()
}

// BoardDeltaResolver fuses noisy board-camera readings into the move a
// turn commits. Readings repeat tiles the camera already confirmed, so
// the resolver trims known positions and validates what remains as a
// prospective move.
type BoardDeltaResolver struct {
	board *scrabble.Board
	log   slog.Logger

	delta      BoardDelta
	confidence int
	lastUpdate time.Time

	maxAge  time.Duration
	minConf int
}

// NewBoardDeltaResolver builds a resolver over board.
func NewBoardDeltaResolver(board *scrabble.Board, log slog.Logger) *BoardDeltaResolver {
	return &BoardDeltaResolver{
		board:   board,
		log:     log,
		delta:   make(BoardDelta),
		maxAge:  MaxSnapshotAge,
		minConf: MinConfidence,
	}
}

// ProcessDelta ingests one full board reading. Positions the board
// already holds are trimmed when the reading agrees with them; a
// disagreement rejects the whole reading. What remains must shape a
// valid move, except that an empty remainder is always accepted so a
// pass or exchange keeps the resolver fresh.
func (r *BoardDeltaResolver) ProcessDelta(d BoardDelta) bool {
	trimmed := make(BoardDelta, len(d))
	for pos, tile := range d {
		existing, ok := r.board.GetTile(pos)
		if !ok {
			trimmed[pos] = tile
			continue
		}
		if existing.Canonical() != tile.Canonical() {
			r.log.Warnf("Rejecting board delta %s: tile %s at %s contradicts the board's %s", d, tile, pos, existing)
			return false
		}
	}
	if len(trimmed) > scrabble.RackSize {
		r.log.Warnf("Rejecting board delta %s: %d new tiles is more than one rack can place", d, len(trimmed))
		return false
	}
	if len(trimmed) > 0 {
		mv, err := r.deltaToMove(trimmed)
		if err != nil {
			r.log.Warnf("Rejecting board delta %s: %v", d, err)
			return false
		}
		if !mv.IsValid() {
			r.log.Warnf("Rejecting board delta %s: placements do not form a playable move", d)
			return false
		}
	}
	if trimmed.Equal(r.delta) {
		r.confidence++
	}
	r.delta = trimmed
	r.lastUpdate = time.Now()
	return true
}

// EndTurn commits the accumulated placements to the board. An empty
// delta commits nothing, which is how pass and exchange turns resolve.
// The delta resets only after a successful commit.
func (r *BoardDeltaResolver) EndTurn() error {
	if age := time.Since(r.lastUpdate); age > r.maxAge {
		return fmt.Errorf("board delta is stale: %v old with a %v limit", age.Round(time.Millisecond), r.maxAge)
	}
	if r.confidence < r.minConf {
		r.log.Warnf("Committing board delta %s with low confidence %d", r.delta, r.confidence)
	}
	if len(r.delta) > 0 {
		mv, err := r.deltaToMove(r.delta)
		if err != nil {
			return fmt.Errorf("building move from board delta %s: %w", r.delta, err)
		}
		if !r.board.ApplyMove(mv) {
			return fmt.Errorf("board rejected move built from delta %s", r.delta)
		}
	}
	r.delta = make(BoardDelta)
	r.confidence = 0
	return nil
}

// Delta returns a copy of the placements accumulated this turn.
func (r *BoardDeltaResolver) Delta() BoardDelta {
	return r.delta.Clone()
}

func (r *BoardDeltaResolver) deltaToMove(d BoardDelta) (*scrabble.Move, error) {
	tiles := make([]scrabble.Tile, 0, len(d))
	positions := make([]scrabble.Pos, 0, len(d))
	for pos, tile := range d {
		tiles = append(tiles, tile)
		positions = append(positions, pos)
	}
	return scrabble.NewMove(tiles, positions, r.board)
}
