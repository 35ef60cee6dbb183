package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quizarena/quiz-arena-backend/internal/ws"
)

func (a *API) Routes(wsHandler *ws.Handler) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", healthz)

	r.Route("/rooms", func(r chi.Router) {
		r.Post("/", a.createRoom)
		r.Post("/{code}/join", a.joinRoom)
		r.Post("/{code}/leave", a.leaveRoom)
		r.Post("/{code}/start", a.startGame)
		r.Post("/{code}/invite", a.inviteToRoom)
		r.Get("/{code}/state", a.roomState)
	})

	r.Post("/games/{gameID}/answers", a.submitAnswer)
	r.Post("/invitations/{id}/resolve", a.resolveInvitation)

	r.Get("/ws", wsHandler.ServeHTTP)

	return r
}
