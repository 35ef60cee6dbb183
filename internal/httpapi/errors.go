package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/quizarena/quiz-arena-backend/internal/hub"
	"github.com/quizarena/quiz-arena-backend/internal/invite"
	"github.com/quizarena/quiz-arena-backend/internal/quiz"
	"github.com/quizarena/quiz-arena-backend/internal/room"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps domain errors onto HTTP statuses. Conflicts are never
// retried by clients: repeating the request would hit the same conflict.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		return http.StatusNotFound, "room_not_found"
	case errors.Is(err, room.ErrPlayerNotInRoom):
		return http.StatusNotFound, "player_not_in_room"
	case errors.Is(err, invite.ErrInvitationNotFound):
		return http.StatusNotFound, "invitation_not_found"
	case errors.Is(err, quiz.ErrQuizNotFound):
		return http.StatusBadRequest, "quiz_not_found"
	case errors.Is(err, hub.ErrInvalidMaxPlayers):
		return http.StatusBadRequest, "invalid_max_players"
	case errors.Is(err, room.ErrRoomFull):
		return http.StatusConflict, "room_full"
	case errors.Is(err, room.ErrPlayerAlreadyInRoom):
		return http.StatusConflict, "player_already_in_room"
	case errors.Is(err, room.ErrGameAlreadyStarted):
		return http.StatusConflict, "game_already_started"
	case errors.Is(err, room.ErrGameNotStarted):
		return http.StatusConflict, "game_not_started"
	case errors.Is(err, room.ErrInvalidQuestion):
		return http.StatusConflict, "invalid_question"
	case errors.Is(err, room.ErrAnswerAlreadySubmitted):
		return http.StatusConflict, "answer_already_submitted"
	case errors.Is(err, invite.ErrInvitationExpired):
		return http.StatusConflict, "invitation_expired"
	case errors.Is(err, room.ErrUnauthorizedGameAction):
		return http.StatusForbidden, "unauthorized_game_action"
	case errors.Is(err, room.ErrInsufficientPlayers):
		return http.StatusUnprocessableEntity, "insufficient_players"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
