package archive

import "time"

// GameRecord is one finished game. Live play never touches these tables;
// rows are written once when a room finishes and read by whatever serves
// history or the global leaderboard.
type GameRecord struct {
	ID             string    `gorm:"primaryKey;size:36"`
	RoomCode       string    `gorm:"size:8;index;not null"`
	QuizID         string    `gorm:"size:64;index;not null"`
	QuizTitle      string    `gorm:"size:255"`
	TotalQuestions int       `gorm:"not null"`
	StartedAt      time.Time `gorm:"not null"`
	FinishedAt     time.Time `gorm:"not null"`
	CreatedAt      time.Time

	Results []PlayerResult `gorm:"foreignKey:GameID"`
	Answers []AnswerRecord `gorm:"foreignKey:GameID"`
}

type PlayerResult struct {
	ID             uint   `gorm:"primaryKey"`
	GameID         string `gorm:"size:36;index;not null"`
	UserID         string `gorm:"size:64;index;not null"`
	Username       string `gorm:"size:255"`
	Team           string `gorm:"size:16"`
	Points         int    `gorm:"not null"`
	Score          int    `gorm:"not null"` // normalized 0-100
	CorrectAnswers int    `gorm:"not null"`
	Rank           int    `gorm:"not null"`
	CreatedAt      time.Time
}

type AnswerRecord struct {
	ID            uint   `gorm:"primaryKey"`
	GameID        string `gorm:"size:36;index;not null"`
	UserID        string `gorm:"size:64;not null"`
	QuestionIndex int    `gorm:"not null"`
	QuestionID    string `gorm:"size:64;not null"`
	OptionID      string `gorm:"size:64"`
	IsCorrect     bool   `gorm:"not null"`
	Points        int    `gorm:"not null"`
	TimeSpentMs   int    `gorm:"not null"`
	SubmittedAt   time.Time
	CreatedAt     time.Time
}
