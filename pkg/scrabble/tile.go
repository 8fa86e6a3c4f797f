package scrabble

import (
	"fmt"
	"unicode"
)

// Blank is the face of a blank tile before a letter is assigned to it.
const Blank = '?'

// englishValues holds the point value of each letter in the standard
// English tile set. Blanks are worth zero.
var englishValues = map[rune]int{
	'A': 1, 'B': 3, 'C': 3, 'D': 2, 'E': 1, 'F': 4, 'G': 2, 'H': 4,
	'I': 1, 'J': 8, 'K': 5, 'L': 1, 'M': 3, 'N': 1, 'O': 1, 'P': 3,
	'Q': 10, 'R': 1, 'S': 1, 'T': 1, 'U': 1, 'V': 4, 'W': 4, 'X': 8,
	'Y': 4, 'Z': 10,
}

// activeValues is the letter value table in effect for the process. It
// defaults to the English set and may be replaced once at startup via
// UseLetterSet, before any match is created.
var activeValues = englishValues

// Tile is a single physical tile: a letter A-Z, or a blank. A blank keeps
// its identity after a letter is assigned to it; two blanks are equal no
// matter what letters they were later assigned.
type Tile struct {
	letter rune
	blank  bool
}

// NewTile builds a tile from a letter reading. Input is case-insensitive;
// '?' produces an unassigned blank. Anything else is rejected.
func NewTile(r rune) (Tile, error) {
	if r == Blank {
		return Tile{blank: true}, nil
	}
	u := unicode.ToUpper(r)
	if u < 'A' || u > 'Z' {
		return Tile{}, fmt.Errorf("invalid tile character %q", r)
	}
	return Tile{letter: u}, nil
}

// MustTile is NewTile for compile-time-known letters.
func MustTile(r rune) Tile {
	t, err := NewTile(r)
	if err != nil {
		panic(err)
	}
	return t
}

// Letter returns the letter the tile shows: its own letter, the assigned
// letter for an assigned blank, or '?' for an unassigned blank.
func (t Tile) Letter() rune {
	if t.blank && t.letter == 0 {
		return Blank
	}
	return t.letter
}

// Value returns the tile's point value. Blanks score zero even after a
// letter is assigned.
func (t Tile) Value() int {
	if t.blank {
		return 0
	}
	return activeValues[t.letter]
}

// IsBlank reports whether the tile is a blank.
func (t Tile) IsBlank() bool {
	return t.blank
}

// Assigned reports whether a blank has had a letter assigned. Non-blank
// tiles are always assigned.
func (t Tile) Assigned() bool {
	return !t.blank || t.letter != 0
}

// WithLetter returns a copy of a blank with the given letter assigned.
func (t Tile) WithLetter(r rune) (Tile, error) {
	if !t.blank {
		return Tile{}, fmt.Errorf("tile %q is not a blank", t.letter)
	}
	u := unicode.ToUpper(r)
	if u < 'A' || u > 'Z' {
		return Tile{}, fmt.Errorf("invalid blank assignment %q", r)
	}
	return Tile{letter: u, blank: true}, nil
}

// Canonical strips any blank assignment so tiles can be compared and
// counted the way the sensors see them: blanks equal blanks.
func (t Tile) Canonical() Tile {
	if t.blank {
		return Tile{blank: true}
	}
	return t
}

// String renders the tile for logs: uppercase letters, lowercase for an
// assigned blank, '?' for an unassigned one.
func (t Tile) String() string {
	if t.blank {
		if t.letter == 0 {
			return string(Blank)
		}
		return string(unicode.ToLower(t.letter))
	}
	return string(t.letter)
}

// Pos is a board coordinate, row and column both in [0,14].
type Pos struct {
	Row int
	Col int
}

// OnBoard reports whether the position is inside the 15x15 grid.
func (p Pos) OnBoard() bool {
	return p.Row >= 0 && p.Row < BoardSize && p.Col >= 0 && p.Col < BoardSize
}

func (p Pos) String() string {
	return fmt.Sprintf("(%d,%d)", p.Row, p.Col)
}
