package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/decred/slog"
	"github.com/gorilla/mux"

	"github.com/wordwire/wordwire/pkg/match"
	"github.com/wordwire/wordwire/pkg/scrabble"
	"github.com/wordwire/wordwire/pkg/server/internal/db"
)

// The control surface always answers HTTP 200; success and failure are
// told apart by the envelope key. The match UI drives the table through
// these endpoints.

type setupResponse struct {
	MatchID string `json:"match_id"`
}

type wordsResponse struct {
	Words []string `json:"words"`
}

type challengeResponse struct {
	Successful        bool `json:"successful"`
	ChallengerPenalty int  `json:"challenger_penalty"`
	UndoneMoveScore   int  `json:"undone_move_score"`
}

type boardResponse struct {
	MatchID    string              `json:"match_id"`
	TurnNumber int                 `json:"turn_number"`
	Ended      bool                `json:"ended"`
	BagCount   int                 `json:"bag_count"`
	Players    [2]match.PlayerInfo `json:"players"`
	Rows       []string            `json:"rows"`
	CameraRows []string            `json:"camera_rows,omitempty"`
}

type matchListResponse struct {
	Matches []db.MatchRecord `json:"matches"`
}

type turnLogResponse struct {
	MatchID string          `json:"match_id"`
	Turns   []db.TurnRecord `json:"turns"`
}

// WebConfig carries the collaborators of the control adapter.
type WebConfig struct {
	Log        slog.Logger
	Store      *match.Store
	Pool       *SensorPool
	Journal    Journal
	Feed       *FeedHub
	Metrics    *Metrics
	Events     *EventProcessor
	Dictionary *scrabble.Dictionary
}

// WebAdapter translates the HTTP control surface into core calls.
type WebAdapter struct {
	log     slog.Logger
	store   *match.Store
	pool    *SensorPool
	journal Journal
	feed    *FeedHub
	metrics *Metrics
	events  *EventProcessor
	dict    *scrabble.Dictionary
	router  *mux.Router
}

// NewWebAdapter builds the adapter and mounts its routes.
func NewWebAdapter(cfg WebConfig) *WebAdapter {
	if cfg.Log == nil {
		cfg.Log = slog.Disabled
	}
	if cfg.Journal == nil {
		cfg.Journal = NopJournal{}
	}
	wa := &WebAdapter{
		log:     cfg.Log,
		store:   cfg.Store,
		pool:    cfg.Pool,
		journal: cfg.Journal,
		feed:    cfg.Feed,
		metrics: cfg.Metrics,
		events:  cfg.Events,
		dict:    cfg.Dictionary,
		router:  mux.NewRouter(),
	}
	wa.routes()
	return wa
}

func (wa *WebAdapter) routes() {
	wa.router.HandleFunc("/setup", wa.handleSetup).Methods("GET")
	wa.router.HandleFunc("/end-turn", wa.handleEndTurn).Methods("GET")
	wa.router.HandleFunc("/challengeable-words", wa.handleChallengeableWords).Methods("GET")
	wa.router.HandleFunc("/challenge", wa.handleChallenge).Methods("GET")
	wa.router.HandleFunc("/blanks", wa.handleBlanks).Methods("POST")
	wa.router.HandleFunc("/history", wa.handleHistory).Methods("GET")
	wa.router.HandleFunc("/board", wa.handleBoard).Methods("GET")
	wa.router.HandleFunc("/release", wa.handleRelease).Methods("GET")
	if wa.feed != nil {
		wa.router.HandleFunc("/watch", wa.feed.HandleWatch)
	}
	if wa.metrics != nil {
		wa.router.Handle("/metrics", wa.metrics.Handler()).Methods("GET")
	}
}

// ServeHTTP makes the adapter mountable as a plain http.Handler.
func (wa *WebAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wa.router.ServeHTTP(w, r)
}

func (wa *WebAdapter) publish(matchID string, payload EventPayload) {
	if wa.events == nil {
		return
	}
	wa.events.PublishEvent(NewMatchEvent(matchID, payload))
}

func (wa *WebAdapter) writeBody(w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"body": body}); err != nil {
		wa.log.Errorf("Unable to write control response: %v", err)
	}
}

func (wa *WebAdapter) writeError(w http.ResponseWriter, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	wa.log.Warnf("Control request failed: %s", msg)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"error": msg}); err != nil {
		wa.log.Errorf("Unable to write control error: %v", err)
	}
}

// validate resolves the request's match and checks its turn counter.
// Endpoints that act on the previous turn pass turnModifier -1.
func (wa *WebAdapter) validate(r *http.Request, turnModifier int) (*match.MatchState, error) {
	q := r.URL.Query()
	matchID := q.Get("match_id")
	if matchID == "" {
		return nil, errors.New("missing match_id")
	}
	ms, ok := wa.store.Get(matchID)
	if !ok {
		return nil, fmt.Errorf("unknown match id %q", matchID)
	}
	turnStr := q.Get("turn_number")
	if turnStr == "" {
		return nil, errors.New("missing turn_number")
	}
	turnNumber, err := strconv.Atoi(turnStr)
	if err != nil {
		return nil, fmt.Errorf("turn_number %q is not a number", turnStr)
	}
	if turnNumber < 0 {
		return nil, fmt.Errorf("turn_number must not be negative, got %d", turnNumber)
	}
	if want := ms.TurnNumber() + turnModifier; want != turnNumber {
		return nil, fmt.Errorf("turn_number %d does not match the match's turn %d", turnNumber, want)
	}
	return ms, nil
}

func seatOf(role match.SensorRole) int {
	if role == match.RolePlayer2 {
		return 1
	}
	return 0
}

func (wa *WebAdapter) handleSetup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p1, p2 := q.Get("p1"), q.Get("p2")
	if p1 == "" || p2 == "" {
		wa.writeError(w, "both p1 and p2 player names are required")
		return
	}

	matchID := wa.store.GenerateMatchID()
	wa.log.Infof("Setting up match %s: %s vs %s", matchID, p1, p2)
	if err := wa.pool.AssignMatch(r.Context(), matchID, [2]string{p1, p2}); err != nil {
		wa.writeError(w, "%v", err)
		return
	}
	wa.writeBody(w, setupResponse{MatchID: matchID})
}

func (wa *WebAdapter) handleEndTurn(w http.ResponseWriter, r *http.Request) {
	ms, err := wa.validate(r, 0)
	if err != nil {
		wa.writeError(w, "%v", err)
		return
	}
	playerTime, err := strconv.ParseInt(r.URL.Query().Get("player_time"), 10, 64)
	if err != nil {
		wa.writeError(w, "player_time %q is not a number of milliseconds", r.URL.Query().Get("player_time"))
		return
	}

	info, err := ms.EndTurn(r.Context(), playerTime)
	if err != nil {
		wa.writeError(w, "%v", err)
		return
	}

	seat := seatOf(info.PlayedBy)
	players := ms.Players()
	var words []string
	if info.Kind == match.TurnPlay {
		words = ms.ChallengeableWords()
	}
	if wa.metrics != nil {
		wa.metrics.RecordTurn(info.Kind.String())
	}
	wa.publish(ms.ID(), TurnCommittedPayload{
		TurnNumber:   info.TurnNumber,
		PlayedBy:     players[seat].Name,
		Seat:         seat,
		TurnKind:     info.Kind.String(),
		Score:        info.Score,
		EndGameBonus: info.EndGameBonus,
		UnsetBlanks:  info.UnsetBlanks,
		Words:        words,
		PlayerTimeMs: playerTime,
	})
	if ms.Ended() {
		wa.publish(ms.ID(), MatchEndedPayload{
			Players: [2]string{players[0].Name, players[1].Name},
			Scores:  [2]int{players[0].CumulativeScore, players[1].CumulativeScore},
		})
	}

	wa.writeBody(w, info)
}

func (wa *WebAdapter) handleChallengeableWords(w http.ResponseWriter, r *http.Request) {
	ms, err := wa.validate(r, -1)
	if err != nil {
		wa.writeError(w, "%v", err)
		return
	}
	words := ms.ChallengeableWords()
	if len(words) == 0 {
		wa.writeError(w, "no words to challenge in match %s", ms.ID())
		return
	}
	wa.writeBody(w, wordsResponse{Words: words})
}

func (wa *WebAdapter) handleChallenge(w http.ResponseWriter, r *http.Request) {
	ms, err := wa.validate(r, -1)
	if err != nil {
		wa.writeError(w, "%v", err)
		return
	}
	words := r.URL.Query()["words"]
	if len(words) == 0 {
		wa.writeError(w, "missing words to challenge")
		return
	}
	if wa.dict == nil {
		wa.writeError(w, "no dictionary loaded, challenges are unavailable")
		return
	}

	successful, undoneScore := ms.Challenge(words, wa.dict)
	penalty := 5 * len(words)

	challengedTurn := ms.TurnNumber() - 1
	seat := challengedTurn % 2
	wa.publish(ms.ID(), ChallengeResolvedPayload{
		TurnNumber:   challengedTurn,
		ChallengedBy: ms.Players()[seat].Name,
		Seat:         seat,
		Words:        words,
		Successful:   successful,
		UndoneScore:  undoneScore,
		Penalty:      penalty,
	})

	wa.writeBody(w, challengeResponse{
		Successful:        successful,
		ChallengerPenalty: penalty,
		UndoneMoveScore:   undoneScore,
	})
}

func (wa *WebAdapter) handleBlanks(w http.ResponseWriter, r *http.Request) {
	ms, err := wa.validate(r, -1)
	if err != nil {
		wa.writeError(w, "%v", err)
		return
	}
	var letters []string
	if err := json.NewDecoder(r.Body).Decode(&letters); err != nil {
		wa.writeError(w, "request body is not a JSON array of letters: %v", err)
		return
	}
	concat := strings.Join(letters, "")
	if err := ms.SetBlanks(concat); err != nil {
		wa.writeError(w, "%v", err)
		return
	}

	wa.publish(ms.ID(), BlanksSetPayload{
		Letters: concat,
		Words:   ms.ChallengeableWords(),
	})
	wa.writeBody(w, struct{}{})
}

func (wa *WebAdapter) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if matchID := q.Get("match_id"); matchID != "" {
		turns, err := wa.journal.TurnLog(matchID)
		if err != nil {
			wa.writeError(w, "%v", err)
			return
		}
		wa.writeBody(w, turnLogResponse{MatchID: matchID, Turns: turns})
		return
	}

	limit := 0
	if ls := q.Get("limit"); ls != "" {
		n, err := strconv.Atoi(ls)
		if err != nil {
			wa.writeError(w, "limit %q is not a number", ls)
			return
		}
		limit = n
	}
	matches, err := wa.journal.MatchHistory(limit)
	if err != nil {
		wa.writeError(w, "%v", err)
		return
	}
	wa.writeBody(w, matchListResponse{Matches: matches})
}

func (wa *WebAdapter) handleBoard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	matchID := q.Get("match_id")
	if matchID == "" {
		wa.writeError(w, "missing match_id")
		return
	}
	ms, ok := wa.store.Get(matchID)
	if !ok {
		wa.writeError(w, "unknown match id %q", matchID)
		return
	}

	resp := boardResponse{
		MatchID:    matchID,
		TurnNumber: ms.TurnNumber(),
		Ended:      ms.Ended(),
		BagCount:   ms.BagCount(),
		Players:    ms.Players(),
		Rows:       ms.BoardRows(),
	}
	if wa.pool != nil && q.Get("camera") == "1" {
		rows, err := wa.pool.FullBoardState(r.Context(), matchID)
		if err != nil {
			wa.writeError(w, "board sensor query failed: %v", err)
			return
		}
		resp.CameraRows = rows
	}
	wa.writeBody(w, resp)
}

func (wa *WebAdapter) handleRelease(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	matchID := q.Get("match_id")
	if matchID == "" {
		wa.writeError(w, "missing match_id")
		return
	}
	// force=1 abandons a match that never reached its natural end, so
	// the table can be reclaimed after a walk-away.
	if q.Get("force") == "1" {
		if ms, ok := wa.store.Get(matchID); ok {
			ms.Abandon()
		}
	}
	if err := wa.pool.ReleaseMatch(matchID); err != nil {
		wa.writeError(w, "%v", err)
		return
	}
	wa.writeBody(w, struct{}{})
}
