// Package hub owns the code->room map. It is the only structure shared
// across rooms, so it runs as a single goroutine too: room creation,
// lookup and the membership indexes are serialized here, while everything
// that happens inside a room is serialized by that room's own actor.
package hub

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/quizarena/quiz-arena-backend/internal/pubsub"
	"github.com/quizarena/quiz-arena-backend/internal/quiz"
	"github.com/quizarena/quiz-arena-backend/internal/room"
)

var ErrInvalidMaxPlayers = errors.New("max players must be between 2 and 8")

const (
	MinPlayers = 2
	MaxPlayers = 8
)

type HubMsg interface{ isHubMsg() }

type CreateRoom struct {
	QuizID     string
	Name       string
	MaxPlayers int
	TeamMode   bool
	UserID     string
	Username   string
	Avatar     string
	Reply      chan CreateResult
}

type CreateResult struct {
	Snapshot room.Snapshot
	Err      error
}

type JoinRoom struct {
	Code     string
	UserID   string
	Username string
	Avatar   string
	Reply    chan room.JoinResult
}

type LeaveRoom struct {
	Code   string
	UserID string
	Reply  chan error
}

type StartGame struct {
	Code        string
	RequesterID string
	Reply       chan room.StartResult
}

type SubmitAnswer struct {
	GameID      string
	UserID      string
	QuestionID  string
	OptionID    string
	TimeSpentMs int
	Reply       chan room.SubmitResult
}

type GetRoom struct {
	Code  string
	Reply chan *room.Room
}

type SetPresence struct {
	Code   string
	UserID string
	Online bool
}

type Shutdown struct{}

// index maintenance messages sent by room actors via the registry
type releaseUser struct{ userID string }
type bindGame struct{ gameID, code string }
type roomClosed struct{ code string }

func (CreateRoom) isHubMsg()   {}
func (JoinRoom) isHubMsg()     {}
func (LeaveRoom) isHubMsg()    {}
func (StartGame) isHubMsg()    {}
func (SubmitAnswer) isHubMsg() {}
func (GetRoom) isHubMsg()      {}
func (SetPresence) isHubMsg()  {}
func (Shutdown) isHubMsg()     {}
func (releaseUser) isHubMsg()  {}
func (bindGame) isHubMsg()     {}
func (roomClosed) isHubMsg()   {}

type Options struct {
	Quizzes         quiz.Provider
	Bus             *pubsub.Bus
	Archiver        room.Archiver
	QuestionTimeout time.Duration
	IdleTimeout     time.Duration
	Logger          *zap.Logger
}

type Hub struct {
	inbox  chan HubMsg
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger

	rooms map[string]*room.Room
	users map[string]string // userID -> room code, one non-finished room per user
	games map[string]string // gameID -> room code

	quizzes         quiz.Provider
	bus             *pubsub.Bus
	archiver        room.Archiver
	questionTimeout time.Duration
	idleTimeout     time.Duration
}

func NewHub(parent context.Context, opts Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:           make(chan HubMsg, 64),
		ctx:             ctx,
		cancel:          cancel,
		log:             opts.Logger.Named("hub"),
		rooms:           make(map[string]*room.Room),
		users:           make(map[string]string),
		games:           make(map[string]string),
		quizzes:         opts.Quizzes,
		bus:             opts.Bus,
		archiver:        opts.Archiver,
		questionTimeout: opts.QuestionTimeout,
		idleTimeout:     opts.IdleTimeout,
	}
	if h.archiver == nil {
		h.archiver = room.NopArchiver{}
	}
	go h.loop()
	return h
}

// send queues a message without ever blocking the caller; room actors use
// this path, and a room blocking on a full hub inbox while the hub waits
// on that room would deadlock both.
func (h *Hub) send(m HubMsg) {
	select {
	case h.inbox <- m:
	default:
		go func() {
			select {
			case h.inbox <- m:
			case <-h.ctx.Done():
			}
		}()
	}
}

type hubRegistry struct{ h *Hub }

func (r hubRegistry) ReleaseUser(userID string)    { r.h.send(releaseUser{userID: userID}) }
func (r hubRegistry) BindGame(gameID, code string) { r.h.send(bindGame{gameID: gameID, code: code}) }
func (r hubRegistry) RoomClosed(code string)       { r.h.send(roomClosed{code: code}) }

func (h *Hub) registry() room.Registry { return hubRegistry{h: h} }

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				msg.Reply <- h.handleCreate(msg)
			case JoinRoom:
				h.handleJoin(msg)
			case LeaveRoom:
				h.handleLeave(msg)
			case StartGame:
				h.handleStart(msg)
			case SubmitAnswer:
				h.handleSubmit(msg)
			case GetRoom:
				msg.Reply <- h.rooms[msg.Code] // may be nil
			case SetPresence:
				if rm := h.rooms[msg.Code]; rm != nil {
					rm.Inbox() <- room.SetOnline{UserID: msg.UserID, Online: msg.Online}
				}
			case releaseUser:
				delete(h.users, msg.userID)
			case bindGame:
				h.games[msg.gameID] = msg.code
			case roomClosed:
				h.handleRoomClosed(msg.code)
			case Shutdown:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for code, rm := range h.rooms {
		rm.Inbox() <- room.Shutdown{}
		h.bus.DropTopic(pubsub.RoomTopic(code))
	}
	clear(h.rooms)
	clear(h.users)
	clear(h.games)
	h.cancel()
}

func (h *Hub) handleCreate(msg CreateRoom) CreateResult {
	if msg.MaxPlayers < MinPlayers || msg.MaxPlayers > MaxPlayers {
		return CreateResult{Err: ErrInvalidMaxPlayers}
	}
	if _, busy := h.users[msg.UserID]; busy {
		return CreateResult{Err: room.ErrPlayerAlreadyInRoom}
	}

	qz, err := h.quizzes.Quiz(h.ctx, msg.QuizID)
	if err != nil {
		return CreateResult{Err: err}
	}

	code, err := h.newCode()
	if err != nil {
		return CreateResult{Err: err}
	}

	rm := room.New(h.ctx, room.Options{
		Code:            code,
		Name:            msg.Name,
		Quiz:            qz,
		CreatorID:       msg.UserID,
		CreatorName:     msg.Username,
		CreatorAvatar:   msg.Avatar,
		MaxPlayers:      msg.MaxPlayers,
		TeamMode:        msg.TeamMode,
		QuestionTimeout: h.questionTimeout,
		IdleTimeout:     h.idleTimeout,
		Bus:             h.bus,
		Registry:        h.registry(),
		Archiver:        h.archiver,
		Logger:          h.log,
	})
	h.rooms[code] = rm
	h.users[msg.UserID] = code
	h.log.Info("room created",
		zap.String("room", code),
		zap.String("quiz", msg.QuizID),
		zap.String("creator", msg.UserID))

	reply := make(chan room.Snapshot, 1)
	rm.Inbox() <- room.GetSnapshot{Reply: reply}
	return CreateResult{Snapshot: <-reply}
}

func (h *Hub) handleJoin(msg JoinRoom) {
	rm := h.rooms[msg.Code]
	if rm == nil {
		msg.Reply <- room.JoinResult{Err: room.ErrRoomNotFound}
		return
	}
	bound, wasBound := h.users[msg.UserID]
	if wasBound && bound != msg.Code {
		msg.Reply <- room.JoinResult{Err: room.ErrPlayerAlreadyInRoom}
		return
	}

	// Bind before the room actor confirms so a racing second join by the
	// same user is rejected here. The binding is undone only if this join
	// created it: a rejected retry by an existing member must not unbind
	// them.
	h.users[msg.UserID] = msg.Code

	inner := make(chan room.JoinResult, 1)
	rm.Inbox() <- room.Join{UserID: msg.UserID, Username: msg.Username, Avatar: msg.Avatar, Reply: inner}
	go func() {
		res := <-inner
		if res.Err != nil && !wasBound {
			h.inbox <- releaseUser{userID: msg.UserID}
		}
		msg.Reply <- res
	}()
}

func (h *Hub) handleLeave(msg LeaveRoom) {
	rm := h.rooms[msg.Code]
	if rm == nil {
		msg.Reply <- room.ErrRoomNotFound
		return
	}
	rm.Inbox() <- room.Leave{UserID: msg.UserID, Reply: msg.Reply}
}

func (h *Hub) handleStart(msg StartGame) {
	rm := h.rooms[msg.Code]
	if rm == nil {
		msg.Reply <- room.StartResult{Err: room.ErrRoomNotFound}
		return
	}
	rm.Inbox() <- room.Start{RequesterID: msg.RequesterID, Reply: msg.Reply}
}

func (h *Hub) handleSubmit(msg SubmitAnswer) {
	code, ok := h.games[msg.GameID]
	if !ok {
		msg.Reply <- room.SubmitResult{Err: room.ErrGameNotStarted}
		return
	}
	rm := h.rooms[code]
	if rm == nil {
		msg.Reply <- room.SubmitResult{Err: room.ErrGameNotStarted}
		return
	}
	rm.Inbox() <- room.SubmitAnswer{
		GameID:      msg.GameID,
		UserID:      msg.UserID,
		QuestionID:  msg.QuestionID,
		OptionID:    msg.OptionID,
		TimeSpentMs: msg.TimeSpentMs,
		Reply:       msg.Reply,
	}
}

func (h *Hub) handleRoomClosed(code string) {
	rm := h.rooms[code]
	if rm == nil {
		return
	}
	delete(h.rooms, code)
	for userID, bound := range h.users {
		if bound == code {
			delete(h.users, userID)
		}
	}
	for gameID, bound := range h.games {
		if bound == code {
			delete(h.games, gameID)
		}
	}
	h.bus.DropTopic(pubsub.RoomTopic(code))
	rm.Inbox() <- room.Shutdown{}
	h.log.Info("room closed", zap.String("room", code))
}

const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func (h *Hub) newCode() (string, error) {
	for {
		code := make([]byte, 6)
		for i := range code {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
			if err != nil {
				return "", err
			}
			code[i] = codeCharset[n.Int64()]
		}
		if _, taken := h.rooms[string(code)]; !taken {
			return string(code), nil
		}
	}
}
