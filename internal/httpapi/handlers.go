// Package httpapi is the REST control plane. Authentication happens
// upstream; handlers trust the X-User-ID header as resolved identity and
// only translate requests into hub/broker messages.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/quizarena/quiz-arena-backend/internal/hub"
	"github.com/quizarena/quiz-arena-backend/internal/invite"
	"github.com/quizarena/quiz-arena-backend/internal/room"
)

const userHeader = "X-User-ID"

type API struct {
	hub    *hub.Hub
	broker *invite.Broker
	log    *zap.Logger
}

func New(h *hub.Hub, b *invite.Broker, log *zap.Logger) *API {
	return &API{hub: h, broker: b, log: log.Named("http")}
}

func userID(r *http.Request) string { return r.Header.Get(userHeader) }

func decode(r *http.Request, into any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(into)
}

type createRoomRequest struct {
	QuizID     string `json:"quiz_id"`
	Name       string `json:"name,omitempty"`
	MaxPlayers int    `json:"max_players"`
	TeamMode   bool   `json:"team_mode"`
	Username   string `json:"username"`
	Avatar     string `json:"avatar,omitempty"`
}

func (a *API) createRoom(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing user identity", Code: "unauthenticated"})
		return
	}
	var req createRoomRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad json", Code: "bad_request"})
		return
	}

	reply := make(chan hub.CreateResult, 1)
	a.hub.Inbox() <- hub.CreateRoom{
		QuizID:     req.QuizID,
		Name:       req.Name,
		MaxPlayers: req.MaxPlayers,
		TeamMode:   req.TeamMode,
		UserID:     uid,
		Username:   req.Username,
		Avatar:     req.Avatar,
		Reply:      reply,
	}
	res := <-reply
	if res.Err != nil {
		writeError(w, res.Err)
		return
	}
	writeJSON(w, http.StatusCreated, res.Snapshot)
}

type joinRequest struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

func (a *API) joinRoom(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing user identity", Code: "unauthenticated"})
		return
	}
	var req joinRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad json", Code: "bad_request"})
		return
	}

	reply := make(chan room.JoinResult, 1)
	a.hub.Inbox() <- hub.JoinRoom{
		Code:     chi.URLParam(r, "code"),
		UserID:   uid,
		Username: req.Username,
		Avatar:   req.Avatar,
		Reply:    reply,
	}
	res := <-reply
	if res.Err != nil {
		writeError(w, res.Err)
		return
	}
	writeJSON(w, http.StatusOK, res.Snapshot)
}

func (a *API) leaveRoom(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	reply := make(chan error, 1)
	a.hub.Inbox() <- hub.LeaveRoom{Code: chi.URLParam(r, "code"), UserID: uid, Reply: reply}
	if err := <-reply; err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Left bool `json:"left"`
	}{Left: true})
}

func (a *API) roomState(w http.ResponseWriter, r *http.Request) {
	reply := make(chan *room.Room, 1)
	a.hub.Inbox() <- hub.GetRoom{Code: chi.URLParam(r, "code"), Reply: reply}
	rm := <-reply
	if rm == nil {
		writeError(w, room.ErrRoomNotFound)
		return
	}
	snapReply := make(chan room.Snapshot, 1)
	rm.Inbox() <- room.GetSnapshot{Reply: snapReply}
	writeJSON(w, http.StatusOK, <-snapReply)
}

func (a *API) startGame(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	reply := make(chan room.StartResult, 1)
	a.hub.Inbox() <- hub.StartGame{Code: chi.URLParam(r, "code"), RequesterID: uid, Reply: reply}
	res := <-reply
	if res.Err != nil {
		writeError(w, res.Err)
		return
	}
	writeJSON(w, http.StatusOK, res.Snapshot)
}

type inviteRequest struct {
	RecipientIDs []string `json:"recipient_ids"`
}

func (a *API) inviteToRoom(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	var req inviteRequest
	if err := decode(r, &req); err != nil || len(req.RecipientIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "recipient_ids required", Code: "bad_request"})
		return
	}

	reply := make(chan error, 1)
	a.broker.Inbox() <- invite.Invite{
		RoomCode:     chi.URLParam(r, "code"),
		SenderID:     uid,
		RecipientIDs: req.RecipientIDs,
		Reply:        reply,
	}
	if err := <-reply; err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, struct {
		Accepted bool `json:"accepted"`
	}{Accepted: true})
}

type resolveRequest struct {
	Accept   bool   `json:"accept"`
	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

func (a *API) resolveInvitation(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	var req resolveRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad json", Code: "bad_request"})
		return
	}

	reply := make(chan invite.ResolveResult, 1)
	a.broker.Inbox() <- invite.Resolve{
		InvitationID: chi.URLParam(r, "id"),
		UserID:       uid,
		Username:     req.Username,
		Avatar:       req.Avatar,
		Accept:       req.Accept,
		Reply:        reply,
	}
	res := <-reply
	if res.Err != nil {
		writeError(w, res.Err)
		return
	}
	if !req.Accept {
		writeJSON(w, http.StatusOK, struct {
			Declined bool `json:"declined"`
		}{Declined: true})
		return
	}
	writeJSON(w, http.StatusOK, res.Snapshot)
}

type submitAnswerRequest struct {
	QuestionID  string `json:"question_id"`
	OptionID    string `json:"option_id"`
	TimeSpentMs int    `json:"time_spent_ms"`
}

func (a *API) submitAnswer(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	var req submitAnswerRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad json", Code: "bad_request"})
		return
	}

	reply := make(chan room.SubmitResult, 1)
	a.hub.Inbox() <- hub.SubmitAnswer{
		GameID:      chi.URLParam(r, "gameID"),
		UserID:      uid,
		QuestionID:  req.QuestionID,
		OptionID:    req.OptionID,
		TimeSpentMs: req.TimeSpentMs,
		Reply:       reply,
	}
	res := <-reply
	if res.Err != nil {
		writeError(w, res.Err)
		return
	}
	writeJSON(w, http.StatusOK, res.Result)
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
