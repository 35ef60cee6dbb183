// Package quiz defines the read-only view of quiz content the session
// engine consumes. Authoring and storage of quizzes live elsewhere; the
// engine only ever needs a quiz's questions and their correct options.
package quiz

import (
	"context"
	"errors"
)

var ErrQuizNotFound = errors.New("quiz not found")

type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type Question struct {
	ID              string   `json:"id"`
	Text            string   `json:"text"`
	Options         []Option `json:"options"`
	CorrectOptionID string   `json:"-"`
}

type Quiz struct {
	ID        string
	Title     string
	Questions []Question
}

// Provider resolves quiz content by id.
type Provider interface {
	Quiz(ctx context.Context, id string) (Quiz, error)
}

// StaticProvider serves quizzes from a fixed in-memory set. Used for tests
// and for running the engine without a content service.
type StaticProvider struct {
	quizzes map[string]Quiz
}

func NewStaticProvider(quizzes ...Quiz) *StaticProvider {
	m := make(map[string]Quiz, len(quizzes))
	for _, q := range quizzes {
		m[q.ID] = q
	}
	return &StaticProvider{quizzes: m}
}

func (p *StaticProvider) Quiz(_ context.Context, id string) (Quiz, error) {
	q, ok := p.quizzes[id]
	if !ok {
		return Quiz{}, ErrQuizNotFound
	}
	return q, nil
}
