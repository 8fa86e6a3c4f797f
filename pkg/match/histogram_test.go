package match

import (
	"testing"

	"github.com/wordwire/wordwire/pkg/scrabble"
)

func TestParseRack(t *testing.T) {
	h, err := ParseRack("aAb?")
	if err != nil {
		t.Fatalf("ParseRack(aAb?): %v", err)
	}
	if got := h[scrabble.MustTile('A')]; got != 2 {
		t.Errorf("Expected 2 As regardless of case, got %d", got)
	}
	if got := h[scrabble.MustTile('B')]; got != 1 {
		t.Errorf("Expected 1 B, got %d", got)
	}
	if got := h[scrabble.MustTile('?')]; got != 1 {
		t.Errorf("Expected 1 blank, got %d", got)
	}
	if h.Total() != 4 {
		t.Errorf("Expected 4 tiles total, got %d", h.Total())
	}

	if empty, err := ParseRack(""); err != nil || empty.Total() != 0 {
		t.Errorf("Expected an empty rack to parse to an empty histogram, got %v (%v)", empty, err)
	}

	if _, err := ParseRack("AB3"); err == nil {
		t.Error("Expected a digit in a rack reading to be rejected")
	}
}

func TestHistogramSupersetAndMinus(t *testing.T) {
	rack := mustRack(t, "RATES?V")
	kept := mustRack(t, "?V")

	if !rack.Superset(kept) {
		t.Error("Expected RATES?V to be a superset of ?V")
	}
	if kept.Superset(rack) {
		t.Error("Expected ?V not to be a superset of RATES?V")
	}

	played := rack.Minus(kept)
	if !played.Equal(mustRack(t, "RATES")) {
		t.Errorf("Expected RATES?V minus ?V to be RATES, got %s", played)
	}

	// Counts never go negative: over-counted tiles just disappear.
	if diff := kept.Minus(rack); diff.Total() != 0 {
		t.Errorf("Expected ?V minus RATES?V to be empty, got %s", diff)
	}
}

func TestHistogramEqualIgnoresZeroEntries(t *testing.T) {
	a := mustRack(t, "AB")
	b := mustRack(t, "AB")
	b[scrabble.MustTile('C')] = 0

	if !a.Equal(b) {
		t.Error("Expected histograms differing only in zero entries to be equal")
	}
	b[scrabble.MustTile('C')] = 1
	if a.Equal(b) {
		t.Error("Expected histograms with different counts to differ")
	}
}

func TestHistogramString(t *testing.T) {
	h := mustRack(t, "?BAA")
	if got := h.String(); got != "{A:2 B:1 ?:1}" {
		t.Errorf("Expected stable rendering {A:2 B:1 ?:1}, got %s", got)
	}
}
