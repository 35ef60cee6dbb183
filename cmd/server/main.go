package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quizarena/quiz-arena-backend/internal/archive"
	"github.com/quizarena/quiz-arena-backend/internal/config"
	"github.com/quizarena/quiz-arena-backend/internal/httpapi"
	"github.com/quizarena/quiz-arena-backend/internal/hub"
	"github.com/quizarena/quiz-arena-backend/internal/invite"
	"github.com/quizarena/quiz-arena-backend/internal/pubsub"
	"github.com/quizarena/quiz-arena-backend/internal/quiz"
	"github.com/quizarena/quiz-arena-backend/internal/room"
	"github.com/quizarena/quiz-arena-backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	var archiver room.Archiver = room.NopArchiver{}
	if cfg.DatabaseURL != "" {
		store, err := archive.Open(cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		archiver = store
	}

	bus := pubsub.NewBus(logger)
	h := hub.NewHub(ctx, hub.Options{
		Quizzes:         quizProvider(),
		Bus:             bus,
		Archiver:        archiver,
		QuestionTimeout: cfg.QuestionTimeout,
		IdleTimeout:     cfg.RoomIdleTimeout,
		Logger:          logger,
	})
	broker := invite.NewBroker(ctx, h, bus, cfg.InviteTTL, logger)

	api := httpapi.New(h, broker, logger)
	wsHandler := ws.New(h, bus, cfg.HeartbeatInterval, logger)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: api.Routes(wsHandler),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// quizProvider wires the engine's content boundary. The real content
// service lives elsewhere; until it is plugged in we serve a fixed sample
// quiz so the engine runs end to end.
func quizProvider() quiz.Provider {
	return quiz.NewStaticProvider(quiz.Quiz{
		ID:    "sample",
		Title: "General Knowledge",
		Questions: []quiz.Question{
			{
				ID:   "q1",
				Text: "Which planet is closest to the sun?",
				Options: []quiz.Option{
					{ID: "a", Text: "Venus"},
					{ID: "b", Text: "Mercury"},
					{ID: "c", Text: "Mars"},
				},
				CorrectOptionID: "b",
			},
			{
				ID:   "q2",
				Text: "What is the capital of Australia?",
				Options: []quiz.Option{
					{ID: "a", Text: "Sydney"},
					{ID: "b", Text: "Melbourne"},
					{ID: "c", Text: "Canberra"},
				},
				CorrectOptionID: "c",
			},
			{
				ID:   "q3",
				Text: "How many sides does a hexagon have?",
				Options: []quiz.Option{
					{ID: "a", Text: "Five"},
					{ID: "b", Text: "Six"},
					{ID: "c", Text: "Seven"},
				},
				CorrectOptionID: "b",
			},
		},
	})
}
