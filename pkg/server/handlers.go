package server

import (
	"github.com/decred/slog"

	"github.com/wordwire/wordwire/pkg/server/internal/db"
)

// JournalHandler persists match lifecycle events through the journal.
// It is the journal's sole writer.
type JournalHandler struct {
	journal Journal
	log     slog.Logger
}

// NewJournalHandler creates a new journal handler
func NewJournalHandler(journal Journal, log slog.Logger) *JournalHandler {
	if log == nil {
		log = slog.Disabled
	}
	return &JournalHandler{journal: journal, log: log}
}

// HandleEvent records the events that leave a durable trace
func (jh *JournalHandler) HandleEvent(event *MatchEvent) {
	switch event.Type {
	case EventMatchCreated:
		jh.handleMatchCreated(event)
	case EventTurnCommitted:
		jh.handleTurnCommitted(event)
	case EventChallengeResolved:
		jh.handleChallengeResolved(event)
	case EventMatchEnded:
		jh.handleMatchEnded(event)
	}
}

func (jh *JournalHandler) handleMatchCreated(event *MatchEvent) {
	pl, ok := event.Payload.(MatchCreatedPayload)
	if !ok {
		jh.log.Warnf("match_created without MatchCreatedPayload; skipping (match=%s)", event.MatchID)
		return
	}
	if err := jh.journal.RecordMatch(event.MatchID, pl.Players); err != nil {
		jh.log.Errorf("Unable to journal created match %s: %v", event.MatchID, err)
	}
}

func (jh *JournalHandler) handleTurnCommitted(event *MatchEvent) {
	pl, ok := event.Payload.(TurnCommittedPayload)
	if !ok {
		jh.log.Warnf("turn_committed without TurnCommittedPayload; skipping (match=%s)", event.MatchID)
		return
	}
	rec := db.TurnRecord{
		TurnNumber:   pl.TurnNumber,
		PlayedBy:     pl.PlayedBy,
		Seat:         pl.Seat,
		Kind:         pl.TurnKind,
		Score:        pl.Score,
		EndGameBonus: pl.EndGameBonus,
		Blanks:       pl.UnsetBlanks,
		Words:        pl.Words,
		PlayerTimeMs: pl.PlayerTimeMs,
	}
	if err := jh.journal.RecordTurn(event.MatchID, rec); err != nil {
		jh.log.Errorf("Unable to journal turn %d of match %s: %v", pl.TurnNumber, event.MatchID, err)
	}
}

// handleChallengeResolved compensates the challenged turn's row: the
// undone move's points come back off the match total as a negative-score
// "challenge" entry. Failed challenges leave no durable trace.
func (jh *JournalHandler) handleChallengeResolved(event *MatchEvent) {
	pl, ok := event.Payload.(ChallengeResolvedPayload)
	if !ok {
		jh.log.Warnf("challenge_resolved without ChallengeResolvedPayload; skipping (match=%s)", event.MatchID)
		return
	}
	if !pl.Successful {
		return
	}
	rec := db.TurnRecord{
		TurnNumber: pl.TurnNumber,
		PlayedBy:   pl.ChallengedBy,
		Seat:       pl.Seat,
		Kind:       "challenge",
		Score:      -pl.UndoneScore,
		Words:      pl.Words,
	}
	if err := jh.journal.RecordTurn(event.MatchID, rec); err != nil {
		jh.log.Errorf("Unable to journal challenge against match %s: %v", event.MatchID, err)
	}
}

func (jh *JournalHandler) handleMatchEnded(event *MatchEvent) {
	pl, ok := event.Payload.(MatchEndedPayload)
	if !ok {
		jh.log.Warnf("match_ended without MatchEndedPayload; skipping (match=%s)", event.MatchID)
		return
	}
	if err := jh.journal.RecordEnd(event.MatchID, pl.Scores); err != nil {
		jh.log.Errorf("Unable to journal end of match %s: %v", event.MatchID, err)
	}
}

// ------------------------ Feed Handler ------------------------

// FeedHandler forwards every event to the spectator feed hub.
type FeedHandler struct {
	hub *FeedHub
	log slog.Logger
}

// NewFeedHandler creates a new feed handler
func NewFeedHandler(hub *FeedHub, log slog.Logger) *FeedHandler {
	if log == nil {
		log = slog.Disabled
	}
	return &FeedHandler{hub: hub, log: log}
}

// HandleEvent republishes the event to all watching clients
func (fh *FeedHandler) HandleEvent(event *MatchEvent) {
	fh.hub.Broadcast(FeedEvent{
		ID:        event.ID,
		Type:      string(event.Type),
		MatchID:   event.MatchID,
		Timestamp: event.Timestamp,
		Data:      event.Payload,
	})
}
