package match

import (
	"github.com/wordwire/wordwire/pkg/scrabble"
)

// TileBag tracks the tiles not yet drawn from the physical bag. It is
// owned by a single match and mutated only while the match lock is
// held, so it carries no locking of its own.
type TileBag struct {
	tiles TileHistogram
}

// NewTileBag fills the bag with the standard English distribution.
func NewTileBag() *TileBag {
	return NewTileBagFromSet(scrabble.EnglishLetterSet())
}

// NewTileBagFromSet fills the bag from an explicit letter set.
func NewTileBagFromSet(ls *scrabble.LetterSet) *TileBag {
	tiles := make(TileHistogram)
	for tile, count := range ls.Counts() {
		tiles[tile] = count
	}
	return &TileBag{tiles: tiles}
}

// IsFeasible reports whether every tile of m is still present in the
// bag in at least the requested count.
func (b *TileBag) IsFeasible(m TileHistogram) bool {
	return b.tiles.Superset(m)
}

// Remove takes the tiles of m out of the bag. It mutates nothing and
// returns false when any tile of m is not available.
func (b *TileBag) Remove(m TileHistogram) bool {
	if !b.IsFeasible(m) {
		return false
	}
	for tile, count := range m {
		if left := b.tiles[tile] - count; left > 0 {
			b.tiles[tile] = left
		} else {
			delete(b.tiles, tile)
		}
	}
	return true
}

// Add returns the tiles of m to the bag. Negative counts are rejected
// without mutation. The starting distribution is not re-checked, so
// tests may pair Add with Empty to shape arbitrary bags.
func (b *TileBag) Add(m TileHistogram) bool {
	for _, count := range m {
		if count < 0 {
			return false
		}
	}
	for tile, count := range m {
		if count > 0 {
			b.tiles[tile] += count
		}
	}
	return true
}

// Empty discards all remaining tiles.
func (b *TileBag) Empty() {
	b.tiles = make(TileHistogram)
}

// TileCount returns the number of tiles left in the bag.
func (b *TileBag) TileCount() int {
	return b.tiles.Total()
}

// Contents returns a copy of the bag's histogram.
func (b *TileBag) Contents() TileHistogram {
	return b.tiles.Clone()
}

// ExpectedOnRack returns the size a rack should reach after drawing,
// given its pre-draw contents: a full rack, or everything that is left
// when the bag runs short.
func (b *TileBag) ExpectedOnRack(rack TileHistogram) int {
	expected := rack.Total() + b.TileCount()
	if expected > scrabble.RackSize {
		return scrabble.RackSize
	}
	return expected
}
