package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// MatchRecord is one row of the match journal.
type MatchRecord struct {
	ID        string    `json:"id"`
	Player1   string    `json:"player1"`
	Player2   string    `json:"player2"`
	Score1    int       `json:"score1"`
	Score2    int       `json:"score2"`
	Ended     bool      `json:"ended"`
	Turns     int       `json:"turns"`
	StartedAt time.Time `json:"started_at"`
}

// TurnRecord is one committed turn of one match. Words are the words
// the turn formed on the board, empty for exchanges and passes.
type TurnRecord struct {
	TurnNumber   int      `json:"turn_number"`
	PlayedBy     string   `json:"played_by"`
	Seat         int      `json:"seat"`
	Kind         string   `json:"kind"`
	Score        int      `json:"score"`
	EndGameBonus int      `json:"end_game_bonus,omitempty"`
	Blanks       int      `json:"blanks,omitempty"`
	Words        []string `json:"words,omitempty"`
	PlayerTimeMs int64    `json:"player_time_ms"`
}

// DB represents the journal database connection
type DB struct {
	*sql.DB
}

// NewDB creates a new journal database connection
func NewDB(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %v", err)
	}

	// Create tables if they don't exist
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db}, nil
}

// createTables creates the necessary database tables
func createTables(db *sql.DB) error {
	// Create matches table
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS matches (
			id TEXT PRIMARY KEY,
			player1 TEXT NOT NULL,
			player2 TEXT NOT NULL,
			score1 INTEGER NOT NULL DEFAULT 0,
			score2 INTEGER NOT NULL DEFAULT 0,
			ended INTEGER NOT NULL DEFAULT 0,
			started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	// Create turns table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			match_id TEXT NOT NULL,
			turn_number INTEGER NOT NULL,
			played_by TEXT NOT NULL,
			seat INTEGER NOT NULL DEFAULT 0,
			kind TEXT NOT NULL,
			score INTEGER NOT NULL DEFAULT 0,
			end_game_bonus INTEGER NOT NULL DEFAULT 0,
			blanks INTEGER NOT NULL DEFAULT 0,
			words TEXT,
			player_time_ms INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (match_id) REFERENCES matches(id)
		)
	`)
	if err != nil {
		return err
	}

	return nil
}

// RecordMatch inserts a fresh match row with zero scores.
func (db *DB) RecordMatch(matchID string, players [2]string) error {
	_, err := db.Exec(`
		INSERT INTO matches (id, player1, player2)
		VALUES (?, ?, ?)
	`, matchID, players[0], players[1])
	if err != nil {
		return fmt.Errorf("failed to record match %s: %v", matchID, err)
	}
	return nil
}

// RecordTurn appends a turn row and folds its score into the playing
// player's running total on the match row.
func (db *DB) RecordTurn(matchID string, rec TurnRecord) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO turns (match_id, turn_number, played_by, seat, kind,
			score, end_game_bonus, blanks, words, player_time_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, matchID, rec.TurnNumber, rec.PlayedBy, rec.Seat, rec.Kind,
		rec.Score, rec.EndGameBonus, rec.Blanks, strings.Join(rec.Words, " "),
		rec.PlayerTimeMs)
	if err != nil {
		return err
	}

	delta1, delta2 := 0, 0
	if rec.Seat == 0 {
		delta1 = rec.Score + rec.EndGameBonus
	} else {
		delta2 = rec.Score + rec.EndGameBonus
	}
	res, err := tx.Exec(`
		UPDATE matches SET score1 = score1 + ?, score2 = score2 + ?
		WHERE id = ?
	`, delta1, delta2, matchID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("match %s not found", matchID)
	}

	return tx.Commit()
}

// RecordEnd marks the match ended and pins its final scores.
func (db *DB) RecordEnd(matchID string, scores [2]int) error {
	res, err := db.Exec(`
		UPDATE matches SET score1 = ?, score2 = ?, ended = 1
		WHERE id = ?
	`, scores[0], scores[1], matchID)
	if err != nil {
		return fmt.Errorf("failed to record end of match %s: %v", matchID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("match %s not found", matchID)
	}
	return nil
}

// MatchHistory returns the most recent matches, newest first. A limit
// of zero or less selects the default page size.
func (db *DB) MatchHistory(limit int) ([]MatchRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT m.id, m.player1, m.player2, m.score1, m.score2, m.ended, m.started_at,
			(SELECT COUNT(*) FROM turns t WHERE t.match_id = m.id)
		FROM matches m
		ORDER BY m.started_at DESC, m.id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query match history: %v", err)
	}
	defer rows.Close()

	var recs []MatchRecord
	for rows.Next() {
		var rec MatchRecord
		err := rows.Scan(&rec.ID, &rec.Player1, &rec.Player2, &rec.Score1,
			&rec.Score2, &rec.Ended, &rec.StartedAt, &rec.Turns)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// TurnLog returns every committed turn of one match in play order.
func (db *DB) TurnLog(matchID string) ([]TurnRecord, error) {
	var one int
	err := db.QueryRow("SELECT 1 FROM matches WHERE id = ?", matchID).Scan(&one)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("match %s not found", matchID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up match %s: %v", matchID, err)
	}

	rows, err := db.Query(`
		SELECT turn_number, played_by, seat, kind, score, end_game_bonus,
			blanks, words, player_time_ms
		FROM turns
		WHERE match_id = ?
		ORDER BY turn_number
	`, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query turn log: %v", err)
	}
	defer rows.Close()

	var recs []TurnRecord
	for rows.Next() {
		var rec TurnRecord
		var words sql.NullString
		err := rows.Scan(&rec.TurnNumber, &rec.PlayedBy, &rec.Seat, &rec.Kind,
			&rec.Score, &rec.EndGameBonus, &rec.Blanks, &words, &rec.PlayerTimeMs)
		if err != nil {
			return nil, err
		}
		if words.Valid && words.String != "" {
			rec.Words = strings.Fields(words.String)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
