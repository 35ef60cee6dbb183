package room

import "errors"

var (
	ErrRoomNotFound           = errors.New("room not found")
	ErrRoomFull               = errors.New("room is full")
	ErrPlayerAlreadyInRoom    = errors.New("player already in a room")
	ErrPlayerNotInRoom        = errors.New("player not in room")
	ErrGameNotStarted         = errors.New("game not started")
	ErrGameAlreadyStarted     = errors.New("game already started")
	ErrInvalidQuestion        = errors.New("question is not the current question")
	ErrAnswerAlreadySubmitted = errors.New("answer already submitted for this question")
	ErrUnauthorizedGameAction = errors.New("only the room creator may do that")
	ErrInsufficientPlayers    = errors.New("not enough players to start")
)
