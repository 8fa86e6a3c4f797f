package match

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/decred/slog"
)

const (
	matchIDLen      = 8
	matchIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Store is the process-wide registry of live matches.
type Store struct {
	mtx     sync.RWMutex
	log     slog.Logger
	rng     *rand.Rand
	matches map[string]*MatchState
}

// NewStore builds an empty registry.
func NewStore(log slog.Logger) *Store {
	if log == nil {
		log = slog.Disabled
	}
	return &Store{
		log:     log,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		matches: make(map[string]*MatchState),
	}
}

// GenerateMatchID draws a fresh eight-character alphanumeric id,
// re-rolling until it misses every live match.
func (s *Store) GenerateMatchID() string {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	for {
		id := make([]byte, matchIDLen)
		for i := range id {
			id[i] = matchIDAlphabet[s.rng.Intn(len(matchIDAlphabet))]
		}
		if _, taken := s.matches[string(id)]; !taken {
			return string(id)
		}
	}
}

// CreateMatch registers a new match under cfg.ID. A duplicate id is a
// caller bug and comes back as an error without touching the registry.
func (s *Store) CreateMatch(cfg MatchConfig) (*MatchState, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if _, taken := s.matches[cfg.ID]; taken {
		return nil, fmt.Errorf("cannot start a new match with id %s, the id is already taken", cfg.ID)
	}
	ms := NewMatchState(cfg)
	s.matches[cfg.ID] = ms
	s.log.Infof("Created match %s: %s vs %s", cfg.ID, cfg.Players[0], cfg.Players[1])
	return ms, nil
}

// Get looks up a live match by id.
func (s *Store) Get(id string) (*MatchState, bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	ms, ok := s.matches[id]
	return ms, ok
}

// Remove unregisters a match. Unknown ids are ignored.
func (s *Store) Remove(id string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if _, ok := s.matches[id]; !ok {
		return
	}
	delete(s.matches, id)
	s.log.Infof("Removed match %s", id)
}

// Len returns the number of live matches.
func (s *Store) Len() int {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return len(s.matches)
}
