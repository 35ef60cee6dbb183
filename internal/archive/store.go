// Package archive persists the terminal snapshot of finished games.
package archive

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/quizarena/quiz-arena-backend/internal/room"
)

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

func Open(dsn string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&GameRecord{}, &PlayerResult{}, &AnswerRecord{}); err != nil {
		return nil, fmt.Errorf("migrate archive tables: %w", err)
	}
	return &Store{db: db, log: log.Named("archive")}, nil
}

// Archive writes one finished game as a single transaction.
func (s *Store) Archive(ctx context.Context, snap room.FinalSnapshot) error {
	rec := buildRecord(snap)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("archive game %s: %w", snap.GameID, err)
	}
	s.log.Info("archived game",
		zap.String("game_id", snap.GameID),
		zap.Int("players", len(rec.Results)))
	return nil
}

func buildRecord(snap room.FinalSnapshot) GameRecord {
	rec := GameRecord{
		ID:             snap.GameID,
		RoomCode:       snap.RoomCode,
		QuizID:         snap.QuizID,
		QuizTitle:      snap.QuizTitle,
		TotalQuestions: snap.TotalQuestions,
		StartedAt:      snap.StartedAt,
		FinishedAt:     snap.FinishedAt,
	}
	for _, p := range snap.Players {
		rec.Results = append(rec.Results, PlayerResult{
			GameID:         snap.GameID,
			UserID:         p.UserID,
			Username:       p.Username,
			Team:           string(p.Team),
			Points:         p.Points,
			Score:          p.Score,
			CorrectAnswers: p.Correct,
			Rank:           p.Rank,
		})
	}
	for _, a := range snap.Answers {
		rec.Answers = append(rec.Answers, AnswerRecord{
			GameID:        snap.GameID,
			UserID:        a.UserID,
			QuestionIndex: a.QuestionIndex,
			QuestionID:    a.QuestionID,
			OptionID:      a.OptionID,
			IsCorrect:     a.IsCorrect,
			Points:        a.Points,
			TimeSpentMs:   a.TimeSpentMs,
			SubmittedAt:   a.SubmittedAt,
		})
	}
	return rec
}
