package server

// Each event carries exactly one payload implementing this interface.
// Payloads are JSON-tagged because the spectator feed serializes them
// verbatim.
type EventPayload interface {
	Kind() MatchEventType
}

// ---------- Match lifecycle payloads ----------

type MatchCreatedPayload struct {
	Players  [2]string `json:"players"`
	BoardMac uint64    `json:"board_mac"`
	RackMacs [2]uint64 `json:"rack_macs"`
}

func (MatchCreatedPayload) Kind() MatchEventType { return EventMatchCreated }

type TurnCommittedPayload struct {
	TurnNumber   int      `json:"turn_number"`
	PlayedBy     string   `json:"played_by"`
	Seat         int      `json:"seat"`
	TurnKind     string   `json:"kind"`
	Score        int      `json:"score"`
	EndGameBonus int      `json:"end_game_bonus,omitempty"`
	UnsetBlanks  int      `json:"blanks,omitempty"`
	Words        []string `json:"words,omitempty"`
	PlayerTimeMs int64    `json:"player_time_ms"`
}

func (TurnCommittedPayload) Kind() MatchEventType { return EventTurnCommitted }

type ChallengeResolvedPayload struct {
	TurnNumber   int      `json:"turn_number"`
	ChallengedBy string   `json:"challenged_by"`
	Seat         int      `json:"seat"`
	Words        []string `json:"words"`
	Successful   bool     `json:"successful"`
	UndoneScore  int      `json:"undone_move_score"`
	Penalty      int      `json:"challenger_penalty"`
}

func (ChallengeResolvedPayload) Kind() MatchEventType { return EventChallengeResolved }

type BlanksSetPayload struct {
	Letters string   `json:"letters"`
	Words   []string `json:"words,omitempty"`
}

func (BlanksSetPayload) Kind() MatchEventType { return EventBlanksSet }

type MatchEndedPayload struct {
	Players [2]string `json:"players"`
	Scores  [2]int    `json:"scores"`
}

func (MatchEndedPayload) Kind() MatchEventType { return EventMatchEnded }

// ---------- Sensor lifecycle payloads ----------

type SensorRegisteredPayload struct {
	Mac        uint64 `json:"mac"`
	SensorType string `json:"sensor_type"`
}

func (SensorRegisteredPayload) Kind() MatchEventType { return EventSensorRegistered }

type SensorReconnectedPayload struct {
	Mac  uint64 `json:"mac"`
	Role string `json:"role"`
}

func (SensorReconnectedPayload) Kind() MatchEventType { return EventSensorReconnected }

type SensorLostPayload struct {
	Mac        uint64 `json:"mac"`
	SensorType string `json:"sensor_type"`
	Assigned   bool   `json:"assigned"`
}

func (SensorLostPayload) Kind() MatchEventType { return EventSensorLost }
