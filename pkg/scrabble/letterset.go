package scrabble

import (
	"fmt"
	"os"
	"unicode"

	"gopkg.in/yaml.v2"
)

// LetterInfo is the per-letter entry of a letter set.
type LetterInfo struct {
	Count int `yaml:"count"`
	Value int `yaml:"value"`
}

// LetterSet describes a tile inventory: how many of each letter the bag
// starts with and what each letter scores. The standard English set is
// built in; alternative sets load from YAML so non-English tables work.
type LetterSet struct {
	Letters map[string]LetterInfo `yaml:"letters"`
}

// EnglishLetterSet returns the standard 100-tile English distribution.
func EnglishLetterSet() *LetterSet {
	counts := map[rune]int{
		'A': 9, 'B': 2, 'C': 2, 'D': 4, 'E': 12, 'F': 2, 'G': 3, 'H': 2,
		'I': 9, 'J': 1, 'K': 1, 'L': 4, 'M': 2, 'N': 6, 'O': 8, 'P': 2,
		'Q': 1, 'R': 6, 'S': 4, 'T': 6, 'U': 4, 'V': 2, 'W': 2, 'X': 1,
		'Y': 2, 'Z': 1, Blank: 2,
	}
	ls := &LetterSet{Letters: make(map[string]LetterInfo, len(counts))}
	for r, n := range counts {
		ls.Letters[string(r)] = LetterInfo{Count: n, Value: englishValues[r]}
	}
	return ls
}

// LoadLetterSet reads a YAML letter set from disk and validates it.
func LoadLetterSet(path string) (*LetterSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read letter set: %w", err)
	}
	var ls LetterSet
	if err := yaml.Unmarshal(raw, &ls); err != nil {
		return nil, fmt.Errorf("parse letter set: %w", err)
	}
	if err := ls.validate(); err != nil {
		return nil, err
	}
	return &ls, nil
}

func (ls *LetterSet) validate() error {
	if len(ls.Letters) == 0 {
		return fmt.Errorf("letter set is empty")
	}
	for k, info := range ls.Letters {
		if len([]rune(k)) != 1 {
			return fmt.Errorf("letter set key %q is not a single character", k)
		}
		r := []rune(k)[0]
		if r != Blank && (unicode.ToUpper(r) < 'A' || unicode.ToUpper(r) > 'Z') {
			return fmt.Errorf("letter set key %q is not a letter or blank", k)
		}
		if info.Count < 0 {
			return fmt.Errorf("letter %q has negative count %d", k, info.Count)
		}
		if info.Value < 0 {
			return fmt.Errorf("letter %q has negative value %d", k, info.Value)
		}
	}
	return nil
}

// Counts returns the starting tile counts keyed by canonical tile.
func (ls *LetterSet) Counts() map[Tile]int {
	counts := make(map[Tile]int, len(ls.Letters))
	for k, info := range ls.Letters {
		r := []rune(k)[0]
		t, err := NewTile(r)
		if err != nil {
			continue
		}
		counts[t] = info.Count
	}
	return counts
}

// TotalTiles returns the number of tiles in a full bag of this set.
func (ls *LetterSet) TotalTiles() int {
	total := 0
	for _, info := range ls.Letters {
		total += info.Count
	}
	return total
}

// UseLetterSet replaces the process letter value table. Call once at
// startup, before any board or bag exists; values read after that point
// would be inconsistent with tiles already scored.
func UseLetterSet(ls *LetterSet) {
	values := make(map[rune]int, len(ls.Letters))
	for k, info := range ls.Letters {
		r := unicode.ToUpper([]rune(k)[0])
		if r == Blank {
			continue
		}
		values[r] = info.Value
	}
	activeValues = values
}
