package match

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wordwire/wordwire/pkg/scrabble"
)

// TileHistogram is a multiset of tiles keyed by identity. Blanks are
// counted under the plain blank tile regardless of any assigned letter.
type TileHistogram map[scrabble.Tile]int

// ParseRack builds a histogram from a rack reading such as "AAB?". It
// accepts case-insensitive letters and '?' and rejects anything else.
// An empty string parses to an empty histogram.
func ParseRack(s string) (TileHistogram, error) {
	h := make(TileHistogram, len(s))
	for _, r := range s {
		tile, err := scrabble.NewTile(r)
		if err != nil {
			return nil, fmt.Errorf("parsing rack %q: %w", s, err)
		}
		h[tile.Canonical()]++
	}
	return h, nil
}

// Total returns the number of tiles counted.
func (h TileHistogram) Total() int {
	n := 0
	for _, count := range h {
		n += count
	}
	return n
}

// Clone returns an independent copy.
func (h TileHistogram) Clone() TileHistogram {
	out := make(TileHistogram, len(h))
	for tile, count := range h {
		out[tile] = count
	}
	return out
}

// Equal reports whether both histograms count the same tiles. Entries
// with a zero count are treated as absent.
func (h TileHistogram) Equal(other TileHistogram) bool {
	for tile, count := range h {
		if count != other[tile] {
			return false
		}
	}
	for tile, count := range other {
		if count != h[tile] {
			return false
		}
	}
	return true
}

// Superset reports whether h counts at least as many of every tile as
// other.
func (h TileHistogram) Superset(other TileHistogram) bool {
	for tile, count := range other {
		if h[tile] < count {
			return false
		}
	}
	return true
}

// Minus returns the tiles h holds beyond other. Counts never go
// negative; tiles other over-counts are simply absent from the result.
func (h TileHistogram) Minus(other TileHistogram) TileHistogram {
	out := make(TileHistogram)
	for tile, count := range h {
		if left := count - other[tile]; left > 0 {
			out[tile] = left
		}
	}
	return out
}

// String renders the histogram in a stable letter order with blanks
// last, e.g. {A:2 B:1 ?:1}.
func (h TileHistogram) String() string {
	tiles := make([]scrabble.Tile, 0, len(h))
	for tile := range h {
		tiles = append(tiles, tile)
	}
	sort.Slice(tiles, func(i, j int) bool {
		if tiles[i].IsBlank() != tiles[j].IsBlank() {
			return !tiles[i].IsBlank()
		}
		return tiles[i].Letter() < tiles[j].Letter()
	})
	var sb strings.Builder
	sb.WriteByte('{')
	for i, tile := range tiles {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%s:%d", tile, h[tile])
	}
	sb.WriteByte('}')
	return sb.String()
}
