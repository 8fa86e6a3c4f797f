package scrabble

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Dictionary is the set of words a challenge is judged against. Lookups
// are case-insensitive.
type Dictionary struct {
	words map[string]struct{}
}

// NewDictionary builds a dictionary from an in-memory word list.
func NewDictionary(words []string) *Dictionary {
	d := &Dictionary{words: make(map[string]struct{}, len(words))}
	for _, w := range words {
		w = strings.ToUpper(strings.TrimSpace(w))
		if w != "" {
			d.words[w] = struct{}{}
		}
	}
	return d
}

// LoadDictionary reads a newline-separated word list, one word per line.
// Blank lines and surrounding whitespace are ignored.
func LoadDictionary(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dictionary: %w", err)
	}
	defer f.Close()

	d := &Dictionary{words: make(map[string]struct{})}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		w := strings.ToUpper(strings.TrimSpace(scanner.Text()))
		if w != "" {
			d.words[w] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	if len(d.words) == 0 {
		return nil, fmt.Errorf("dictionary %s holds no words", path)
	}
	return d, nil
}

// Contains reports whether the word is in the dictionary.
func (d *Dictionary) Contains(word string) bool {
	_, ok := d.words[strings.ToUpper(word)]
	return ok
}

// Size returns the number of words loaded.
func (d *Dictionary) Size() int {
	return len(d.words)
}
