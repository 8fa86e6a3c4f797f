package match

import (
	"math/rand"
	"strings"
	"testing"
)

func TestGenerateMatchIDShape(t *testing.T) {
	s := NewStore(nil)
	for i := 0; i < 50; i++ {
		id := s.GenerateMatchID()
		if len(id) != matchIDLen {
			t.Fatalf("Expected an id of %d characters, got %q", matchIDLen, id)
		}
		for _, r := range id {
			if !strings.ContainsRune(matchIDAlphabet, r) {
				t.Fatalf("Id %q contains %q, outside the alphabet", id, r)
			}
		}
	}
}

func TestGenerateMatchIDRerollsOnCollision(t *testing.T) {
	// Run the generator once to learn the first id a known seed
	// produces, then occupy that id and rerun with the same seed. The
	// generator must skip over the occupied id.
	s := NewStore(nil)
	s.rng = rand.New(rand.NewSource(42))
	first := s.GenerateMatchID()

	s = NewStore(nil)
	s.rng = rand.New(rand.NewSource(42))
	s.matches[first] = &MatchState{id: first}

	second := s.GenerateMatchID()
	if second == first {
		t.Errorf("Expected a re-roll away from the occupied id %q", first)
	}
	if len(second) != matchIDLen {
		t.Errorf("Expected a full-length re-rolled id, got %q", second)
	}
}

func TestCreateMatchRejectsDuplicateID(t *testing.T) {
	s := NewStore(nil)
	cfg := MatchConfig{ID: "dupdupdu", Players: [2]string{"ada", "grace"}}

	if _, err := s.CreateMatch(cfg); err != nil {
		t.Fatalf("First create failed: %v", err)
	}
	if _, err := s.CreateMatch(cfg); err == nil {
		t.Error("Expected the duplicate id to be rejected")
	}
	if got := s.Len(); got != 1 {
		t.Errorf("Expected 1 live match, got %d", got)
	}
}

func TestStoreGet(t *testing.T) {
	s := NewStore(nil)
	created, err := s.CreateMatch(MatchConfig{ID: "TESTmtch", Players: [2]string{"ada", "grace"}})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, ok := s.Get("TESTmtch")
	if !ok {
		t.Fatal("Expected the match to be found")
	}
	if got != created {
		t.Error("Expected Get to return the created match")
	}

	if _, ok := s.Get("missing0"); ok {
		t.Error("Expected a miss for an unknown id")
	}
}
