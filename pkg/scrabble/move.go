package scrabble

import (
	"fmt"
	"sort"
	"strings"
)

// RackSize is the number of tiles a player holds on a full rack.
const RackSize = 7

// Placement is one tile dropped on one square.
type Placement struct {
	Tile Tile
	Pos  Pos
}

// Move is an ordered set of placements evaluated against a specific board.
// Validity is geometric: a single row or column, contiguous once existing
// tiles are counted, anchored to the center star on an empty board and to
// existing tiles afterwards. Word validity is the dictionary's business,
// settled through challenges.
type Move struct {
	placements []Placement
	board      *Board
}

// NewMove pairs tiles with positions against the given board. The two
// slices must have equal nonzero length.
func NewMove(tiles []Tile, positions []Pos, board *Board) (*Move, error) {
	if len(tiles) != len(positions) {
		return nil, fmt.Errorf("move has %d tiles but %d positions", len(tiles), len(positions))
	}
	if len(tiles) == 0 {
		return nil, fmt.Errorf("move is empty")
	}
	placements := make([]Placement, len(tiles))
	for i := range tiles {
		placements[i] = Placement{Tile: tiles[i], Pos: positions[i]}
	}
	sort.Slice(placements, func(i, j int) bool {
		if placements[i].Pos.Row != placements[j].Pos.Row {
			return placements[i].Pos.Row < placements[j].Pos.Row
		}
		return placements[i].Pos.Col < placements[j].Pos.Col
	})
	return &Move{placements: placements, board: board}, nil
}

// Placements returns the move's placements in row-major order.
func (m *Move) Placements() []Placement {
	out := make([]Placement, len(m.placements))
	copy(out, m.placements)
	return out
}

// UnsetBlankCount returns how many placed blanks still need a letter.
func (m *Move) UnsetBlankCount() int {
	n := 0
	for _, p := range m.placements {
		if p.Tile.IsBlank() && !p.Tile.Assigned() {
			n++
		}
	}
	return n
}

// IsValid checks the move's geometry against the board it was built for.
func (m *Move) IsValid() bool {
	return m.check() == nil
}

func (m *Move) check() error {
	if len(m.placements) == 0 {
		return fmt.Errorf("empty move")
	}
	if len(m.placements) > RackSize {
		return fmt.Errorf("move places %d tiles, more than a full rack", len(m.placements))
	}

	seen := make(map[Pos]bool, len(m.placements))
	sameRow, sameCol := true, true
	first := m.placements[0].Pos
	for _, p := range m.placements {
		if !p.Pos.OnBoard() {
			return fmt.Errorf("position %s off board", p.Pos)
		}
		if seen[p.Pos] {
			return fmt.Errorf("position %s repeated", p.Pos)
		}
		seen[p.Pos] = true
		if m.board.occupied(p.Pos) {
			return fmt.Errorf("position %s already holds a tile", p.Pos)
		}
		if p.Pos.Row != first.Row {
			sameRow = false
		}
		if p.Pos.Col != first.Col {
			sameCol = false
		}
	}
	if !sameRow && !sameCol {
		return fmt.Errorf("placements are not in a single row or column")
	}

	// Walk the span between the extreme placements. Every square must be
	// covered by either a new placement or an existing tile.
	lo, hi := m.span(sameRow)
	touchesExisting := false
	for i := lo; i <= hi; i++ {
		pos := m.linePos(sameRow, i)
		if seen[pos] {
			continue
		}
		if !m.board.occupied(pos) {
			return fmt.Errorf("gap at %s", pos)
		}
		touchesExisting = true
	}

	if m.board.Empty() {
		if !seen[Center] {
			return fmt.Errorf("first move must cover the center star")
		}
		return nil
	}
	if touchesExisting {
		return nil
	}
	for pos := range seen {
		if m.board.hasNeighbor(pos) {
			return nil
		}
	}
	return fmt.Errorf("move does not connect to any existing tile")
}

// span returns the minimum and maximum coordinate along the move's line.
func (m *Move) span(sameRow bool) (int, int) {
	lo, hi := -1, -1
	for _, p := range m.placements {
		c := p.Pos.Col
		if !sameRow {
			c = p.Pos.Row
		}
		if lo == -1 || c < lo {
			lo = c
		}
		if c > hi {
			hi = c
		}
	}
	return lo, hi
}

func (m *Move) linePos(sameRow bool, i int) Pos {
	if sameRow {
		return Pos{Row: m.placements[0].Pos.Row, Col: i}
	}
	return Pos{Row: i, Col: m.placements[0].Pos.Col}
}

// horizontal reports whether the move reads left to right. A single
// placement counts as horizontal unless only its column forms a run.
func (m *Move) horizontal() bool {
	if len(m.placements) > 1 {
		return m.placements[0].Pos.Row == m.placements[1].Pos.Row &&
			m.placements[0].Pos.Col != m.placements[1].Pos.Col
	}
	p := m.placements[0].Pos
	left := m.board.occupied(Pos{p.Row, p.Col - 1}) || m.board.occupied(Pos{p.Row, p.Col + 1})
	up := m.board.occupied(Pos{p.Row - 1, p.Col}) || m.board.occupied(Pos{p.Row + 1, p.Col})
	return left || !up
}

func (m *Move) String() string {
	parts := make([]string, len(m.placements))
	for i, p := range m.placements {
		parts[i] = fmt.Sprintf("%s@%s", p.Tile, p.Pos)
	}
	return strings.Join(parts, " ")
}
