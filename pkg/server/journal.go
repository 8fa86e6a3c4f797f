package server

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/wordwire/wordwire/pkg/server/internal/db"
)

// Journal defines the interface for the match audit trail. It is
// write-only during play; nothing in the coordinator reads it back to
// resurrect live matches.
type Journal interface {
	// RecordMatch inserts a fresh match row, player 1 first.
	RecordMatch(matchID string, players [2]string) error
	// RecordTurn appends one committed turn to the match's log.
	RecordTurn(matchID string, rec db.TurnRecord) error
	// RecordEnd marks the match ended with its final scores.
	RecordEnd(matchID string, scores [2]int) error

	// MatchHistory returns the most recent matches, newest first.
	MatchHistory(limit int) ([]db.MatchRecord, error)
	// TurnLog returns every turn of one match in play order.
	TurnLog(matchID string) ([]db.TurnRecord, error)

	// Close closes the journal.
	Close() error
}

// NewJournal opens the SQLite journal at dbPath, creating the parent
// directory and the schema as needed.
func NewJournal(dbPath string) (Journal, error) {
	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %v", err)
	}

	return db.NewDB(dbPath)
}

// NopJournal discards everything written to it. It backs servers run
// without a journal path.
type NopJournal struct{}

func (NopJournal) RecordMatch(string, [2]string) error { return nil }

func (NopJournal) RecordTurn(string, db.TurnRecord) error { return nil }

func (NopJournal) RecordEnd(string, [2]int) error { return nil }

func (NopJournal) MatchHistory(int) ([]db.MatchRecord, error) { return nil, nil }

func (NopJournal) TurnLog(string) ([]db.TurnRecord, error) { return nil, nil }

func (NopJournal) Close() error { return nil }
