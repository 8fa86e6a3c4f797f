package scrabble

import (
	"strings"
)

// BoardSize is the side length of the square board.
const BoardSize = 15

// Center is the star square a first move must cover.
var Center = Pos{Row: 7, Col: 7}

type premium uint8

const (
	premiumNone premium = iota
	premiumDoubleLetter
	premiumTripleLetter
	premiumDoubleWord
	premiumTripleWord
)

// premiums maps each special square to its multiplier. The table is built
// from the upper-left quadrant of the standard layout mirrored across both
// axes.
var premiums = map[Pos]premium{}

func init() {
	quadrant := []struct {
		pos Pos
		p   premium
	}{
		{Pos{0, 0}, premiumTripleWord},
		{Pos{0, 7}, premiumTripleWord},
		{Pos{7, 0}, premiumTripleWord},
		{Pos{1, 1}, premiumDoubleWord},
		{Pos{2, 2}, premiumDoubleWord},
		{Pos{3, 3}, premiumDoubleWord},
		{Pos{4, 4}, premiumDoubleWord},
		{Pos{7, 7}, premiumDoubleWord},
		{Pos{1, 5}, premiumTripleLetter},
		{Pos{5, 1}, premiumTripleLetter},
		{Pos{5, 5}, premiumTripleLetter},
		{Pos{0, 3}, premiumDoubleLetter},
		{Pos{2, 6}, premiumDoubleLetter},
		{Pos{3, 0}, premiumDoubleLetter},
		{Pos{3, 7}, premiumDoubleLetter},
		{Pos{6, 2}, premiumDoubleLetter},
		{Pos{6, 6}, premiumDoubleLetter},
		{Pos{7, 3}, premiumDoubleLetter},
	}
	last := BoardSize - 1
	for _, q := range quadrant {
		mirrors := []Pos{
			q.pos,
			{q.pos.Row, last - q.pos.Col},
			{last - q.pos.Row, q.pos.Col},
			{last - q.pos.Row, last - q.pos.Col},
		}
		for _, pos := range mirrors {
			premiums[pos] = q.p
		}
	}
}

// appliedMove is one committed move kept for undo, challenge-word
// extraction and blank assignment.
type appliedMove struct {
	placements []Placement
	words      [][]Pos
	score      int
}

// Board is the 15x15 playing surface. It tracks committed moves so the
// last one can be undone, its words challenged and its blanks assigned.
// Callers serialize access; the board itself holds no lock.
type Board struct {
	cells     [BoardSize][BoardSize]*Tile
	history   []appliedMove
	nOccupied int
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{}
}

// GetTile returns the tile at pos, if any.
func (b *Board) GetTile(pos Pos) (Tile, bool) {
	if !pos.OnBoard() || b.cells[pos.Row][pos.Col] == nil {
		return Tile{}, false
	}
	return *b.cells[pos.Row][pos.Col], true
}

// Empty reports whether no tile has been committed yet.
func (b *Board) Empty() bool {
	return b.nOccupied == 0
}

func (b *Board) occupied(pos Pos) bool {
	return pos.OnBoard() && b.cells[pos.Row][pos.Col] != nil
}

func (b *Board) hasNeighbor(pos Pos) bool {
	neighbors := []Pos{
		{pos.Row - 1, pos.Col}, {pos.Row + 1, pos.Col},
		{pos.Row, pos.Col - 1}, {pos.Row, pos.Col + 1},
	}
	for _, n := range neighbors {
		if b.occupied(n) {
			return true
		}
	}
	return false
}

// ApplyMove commits a valid move: places its tiles, scores it and records
// it as the newest history entry. Returns false without mutation when the
// move does not fit the board.
func (b *Board) ApplyMove(m *Move) bool {
	if m == nil || m.board != b || m.check() != nil {
		return false
	}

	horiz := m.horizontal()
	for _, p := range m.placements {
		t := p.Tile
		b.cells[p.Pos.Row][p.Pos.Col] = &t
		b.nOccupied++
	}

	newSquares := make(map[Pos]bool, len(m.placements))
	for _, p := range m.placements {
		newSquares[p.Pos] = true
	}

	var words [][]Pos
	score := 0

	main := b.runThrough(m.placements[0].Pos, horiz)
	if len(main) >= 2 {
		words = append(words, main)
		score += b.scoreWord(main, newSquares)
	}
	for _, p := range m.placements {
		cross := b.runThrough(p.Pos, !horiz)
		if len(cross) >= 2 {
			words = append(words, cross)
			score += b.scoreWord(cross, newSquares)
		}
	}
	if len(words) == 0 {
		// Lone first tile: no run of two formed, score the square itself.
		score = b.scoreWord([]Pos{m.placements[0].Pos}, newSquares)
	}
	if len(m.placements) == RackSize {
		score += 50
	}

	b.history = append(b.history, appliedMove{
		placements: m.Placements(),
		words:      words,
		score:      score,
	})
	return true
}

// runThrough returns the maximal occupied run through pos along the given
// axis, in board order.
func (b *Board) runThrough(pos Pos, horiz bool) []Pos {
	step := func(p Pos, d int) Pos {
		if horiz {
			return Pos{p.Row, p.Col + d}
		}
		return Pos{p.Row + d, p.Col}
	}
	start := pos
	for b.occupied(step(start, -1)) {
		start = step(start, -1)
	}
	var run []Pos
	for p := start; b.occupied(p); p = step(p, 1) {
		run = append(run, p)
	}
	return run
}

func (b *Board) scoreWord(word []Pos, newSquares map[Pos]bool) int {
	sum := 0
	mult := 1
	for _, pos := range word {
		t := b.cells[pos.Row][pos.Col]
		v := t.Value()
		if newSquares[pos] {
			switch premiums[pos] {
			case premiumDoubleLetter:
				v *= 2
			case premiumTripleLetter:
				v *= 3
			case premiumDoubleWord:
				mult *= 2
			case premiumTripleWord:
				mult *= 3
			}
		}
		sum += v
	}
	return sum * mult
}

// UndoMove removes the most recently applied move from the board. It is a
// no-op on a board with no history.
func (b *Board) UndoMove() {
	if len(b.history) == 0 {
		return
	}
	last := b.history[len(b.history)-1]
	b.history = b.history[:len(b.history)-1]
	for _, p := range last.placements {
		b.cells[p.Pos.Row][p.Pos.Col] = nil
		b.nOccupied--
	}
}

// Score returns the points earned by the most recently applied move.
func (b *Board) Score() int {
	if len(b.history) == 0 {
		return 0
	}
	return b.history[len(b.history)-1].score
}

// ChallengeWords returns the words formed by the most recently applied
// move, rendered from the current cells so blank assignments show through.
func (b *Board) ChallengeWords() []string {
	if len(b.history) == 0 {
		return nil
	}
	last := b.history[len(b.history)-1]
	words := make([]string, 0, len(last.words))
	for _, run := range last.words {
		var sb strings.Builder
		for _, pos := range run {
			sb.WriteRune(b.cells[pos.Row][pos.Col].Letter())
		}
		words = append(words, sb.String())
	}
	return words
}

// SetBlanks assigns letters, in placement order, to the unset blanks of
// the most recently applied move. The letter count must match the number
// of unset blanks exactly; on any mismatch nothing is assigned.
func (b *Board) SetBlanks(letters string) bool {
	if len(b.history) == 0 {
		return false
	}
	last := &b.history[len(b.history)-1]

	runes := []rune(letters)
	unset := 0
	for _, p := range last.placements {
		if p.Tile.IsBlank() && !p.Tile.Assigned() {
			unset++
		}
	}
	if unset != len(runes) {
		return false
	}
	for _, r := range runes {
		if _, err := (Tile{blank: true}).WithLetter(r); err != nil {
			return false
		}
	}

	next := 0
	for i := range last.placements {
		p := &last.placements[i]
		if !p.Tile.IsBlank() || p.Tile.Assigned() {
			continue
		}
		assigned, _ := p.Tile.WithLetter(runes[next])
		next++
		p.Tile = assigned
		cell := assigned
		b.cells[p.Pos.Row][p.Pos.Col] = &cell
	}
	return true
}

// String renders the board for logs, one row per line. Empty squares are
// dots; assigned blanks render lowercase.
func (b *Board) String() string {
	var sb strings.Builder
	for row := 0; row < BoardSize; row++ {
		for col := 0; col < BoardSize; col++ {
			if col > 0 {
				sb.WriteByte(' ')
			}
			if t := b.cells[row][col]; t != nil {
				sb.WriteString(t.String())
			} else {
				sb.WriteByte('.')
			}
		}
		if row < BoardSize-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// Rows returns the board as fifteen strings of raw square characters,
// dots for empty squares. The sensor protocol ships full board state in
// this shape.
func (b *Board) Rows() []string {
	rows := make([]string, BoardSize)
	for row := 0; row < BoardSize; row++ {
		var sb strings.Builder
		for col := 0; col < BoardSize; col++ {
			if t := b.cells[row][col]; t != nil {
				sb.WriteString(t.String())
			} else {
				sb.WriteByte('.')
			}
		}
		rows[row] = sb.String()
	}
	return rows
}
