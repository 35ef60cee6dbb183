package types

import "encoding/json"

// Push event types carried on room/{code} and user/{id} topics.
const (
	EvtRoomUpdated         = "room_updated"
	EvtScoreUpdated        = "score_updated"
	EvtNavigateToGame      = "navigate_to_game"
	EvtGameFinished        = "game_finished"
	EvtInvitation          = "invitation"
	EvtInvitationDismissed = "invitation_dismissed"
	EvtInvitationFailed    = "invitation_failed"
)

// Event is the push-channel frame. Sequence increases monotonically per
// topic so clients can drop duplicates and detect gaps.
type Event struct {
	Type     string          `json:"type"`
	Sequence uint64          `json:"sequence"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// ClientMessage is what a websocket client sends us.
type ClientMessage struct {
	Type        string `json:"type"` // "submit_answer" | "resync" | "leave"
	GameID      string `json:"game_id,omitempty"`
	QuestionID  string `json:"question_id,omitempty"`
	OptionID    string `json:"option_id,omitempty"`
	TimeSpentMs int    `json:"time_spent_ms,omitempty"`
}

// ServerMessage wraps everything the server writes on a websocket. Exactly
// one of Event, Snapshot or Error is set.
type ServerMessage struct {
	Type     string          `json:"type"` // "event" | "snapshot" | "error"
	Event    *Event          `json:"event,omitempty"`
	Snapshot json.RawMessage `json:"snapshot,omitempty"`
	Error    string          `json:"error,omitempty"`
	Code     string          `json:"code,omitempty"`
}
