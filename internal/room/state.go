package room

import (
	"context"
	"time"

	"github.com/quizarena/quiz-arena-backend/internal/quiz"
)

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

type Team string

const (
	TeamBlue Team = "blue"
	TeamRed  Team = "red"
)

// Player is one member of a room. Entries are created on join, flipped
// offline (not removed) on disconnect, and removed only by an explicit
// leave while the room is still waiting.
type Player struct {
	UserID         string    `json:"user_id"`
	Username       string    `json:"username"`
	Avatar         string    `json:"avatar,omitempty"`
	Team           Team      `json:"team,omitempty"`
	Online         bool      `json:"online"`
	Points         int       `json:"points"`
	Score          int       `json:"score"` // normalized 0-100
	Correct        int       `json:"correct_answers"`
	Rank           int       `json:"rank"`
	PreviousRank   int       `json:"previous_rank"`
	FirstCorrectAt time.Time `json:"-"`
}

// QuestionView is the client-facing slice of the current question. The
// correct option never leaves the server.
type QuestionView struct {
	Index    int           `json:"index"`
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	Options  []quiz.Option `json:"options"`
	Deadline time.Time     `json:"deadline"`
}

// Snapshot is the full client-visible state of a room. It is what joins,
// resyncs and the poll fallback all receive, and what every broadcast
// payload is built from.
type Snapshot struct {
	Code            string        `json:"code"`
	Name            string        `json:"name,omitempty"`
	QuizID          string        `json:"quiz_id"`
	QuizTitle       string        `json:"quiz_title"`
	CreatorID       string        `json:"creator_id"`
	MaxPlayers      int           `json:"max_players"`
	TeamMode        bool          `json:"team_mode"`
	Status          Status        `json:"status"`
	GameID          string        `json:"game_id,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	Players         []Player      `json:"players"`
	TotalQuestions  int           `json:"total_questions"`
	CurrentQuestion *QuestionView `json:"current_question,omitempty"`
}

// AnswerLog is one scored submission, kept in submission order for the
// final archive.
type AnswerLog struct {
	UserID        string    `json:"user_id"`
	QuestionIndex int       `json:"question_index"`
	QuestionID    string    `json:"question_id"`
	OptionID      string    `json:"option_id"`
	IsCorrect     bool      `json:"is_correct"`
	Points        int       `json:"points"`
	TimeSpentMs   int       `json:"time_spent_ms"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// FinalSnapshot is the terminal state handed to the archiver when a game
// finishes.
type FinalSnapshot struct {
	GameID         string      `json:"game_id"`
	RoomCode       string      `json:"room_code"`
	QuizID         string      `json:"quiz_id"`
	QuizTitle      string      `json:"quiz_title"`
	StartedAt      time.Time   `json:"started_at"`
	FinishedAt     time.Time   `json:"finished_at"`
	TotalQuestions int         `json:"total_questions"`
	Players        []Player    `json:"players"`
	Answers        []AnswerLog `json:"answers"`
}

// Archiver persists the final snapshot of a finished game.
type Archiver interface {
	Archive(ctx context.Context, snap FinalSnapshot) error
}

// NopArchiver discards snapshots. Used when no database is configured.
type NopArchiver struct{}

func (NopArchiver) Archive(context.Context, FinalSnapshot) error { return nil }

type answerKey struct {
	userID        string
	questionIndex int
}

// session is the in-flight GameSession owned by the room actor.
type session struct {
	id        string
	startedAt time.Time
	current   int
	total     int
	deadline  time.Time
	answers   map[answerKey]AnswerLog
	log       []AnswerLog
}
