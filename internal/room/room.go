// Package room implements the per-room actor. One goroutine owns all of a
// room's mutable state (membership, the running session, scores, ranks)
// and processes commands from its inbox one at a time, so nothing in here
// needs locks and no two commands for the same room ever interleave.
package room

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quizarena/quiz-arena-backend/internal/game"
	"github.com/quizarena/quiz-arena-backend/internal/pubsub"
	"github.com/quizarena/quiz-arena-backend/internal/quiz"
	"github.com/quizarena/quiz-arena-backend/pkg/types"
)

type Msg interface{ isRoomMsg() }

type Join struct {
	UserID   string
	Username string
	Avatar   string
	Reply    chan JoinResult
}

type JoinResult struct {
	Snapshot Snapshot
	Err      error
}

type Leave struct {
	UserID string
	Reply  chan error
}

// SetOnline tracks push-channel liveness. The websocket layer sends it on
// attach and detach; it never adds or removes members.
type SetOnline struct {
	UserID string
	Online bool
}

type Start struct {
	RequesterID string
	Reply       chan StartResult
}

type StartResult struct {
	GameID   string
	Snapshot Snapshot
	Err      error
}

type SubmitAnswer struct {
	GameID      string
	UserID      string
	QuestionID  string
	OptionID    string
	TimeSpentMs int
	Reply       chan SubmitResult
}

type SubmitResult struct {
	Result game.Result
	Err    error
}

type GetSnapshot struct {
	Reply chan Snapshot
}

type Shutdown struct{}

// internal timer messages; gen guards against stale fires
type questionTimeout struct{ gen int }
type idleTimeout struct{ gen int }

func (Join) isRoomMsg()            {}
func (Leave) isRoomMsg()           {}
func (SetOnline) isRoomMsg()       {}
func (Start) isRoomMsg()           {}
func (SubmitAnswer) isRoomMsg()    {}
func (GetSnapshot) isRoomMsg()     {}
func (Shutdown) isRoomMsg()        {}
func (questionTimeout) isRoomMsg() {}
func (idleTimeout) isRoomMsg()     {}

// Publisher is the slice of the pubsub bus the actor needs.
type Publisher interface {
	Publish(topic, eventType string, payload any)
}

// Registry is how the actor reports membership and lifecycle changes back
// to the hub that owns the code->room map.
type Registry interface {
	ReleaseUser(userID string)
	BindGame(gameID, code string)
	RoomClosed(code string)
}

type Options struct {
	Code            string
	Name            string
	Quiz            quiz.Quiz
	CreatorID       string
	CreatorName     string
	CreatorAvatar   string
	MaxPlayers      int
	TeamMode        bool
	QuestionTimeout time.Duration
	IdleTimeout     time.Duration
	Bus             Publisher
	Registry        Registry
	Archiver        Archiver
	Logger          *zap.Logger
}

type Room struct {
	inbox  chan Msg
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger

	code       string
	name       string
	quiz       quiz.Quiz
	creatorID  string
	maxPlayers int
	teamMode   bool
	status     Status
	createdAt  time.Time
	players    []*Player
	tieToBlue  bool // alternates team assignment on even splits

	session         *session
	questionTimeout time.Duration
	idleTimeout     time.Duration
	timerGen        int
	timer           *time.Timer
	idleGen         int
	idleTimer       *time.Timer

	bus      Publisher
	registry Registry
	archiver Archiver
}

// New spawns the actor with the creator already joined as the first
// player. The caller (the hub) has already resolved the quiz content and
// bound the creator in its user index.
func New(parent context.Context, opts Options) *Room {
	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		inbox:           make(chan Msg, 64),
		ctx:             ctx,
		cancel:          cancel,
		log:             opts.Logger.With(zap.String("room", opts.Code)),
		code:            opts.Code,
		name:            opts.Name,
		quiz:            opts.Quiz,
		creatorID:       opts.CreatorID,
		maxPlayers:      opts.MaxPlayers,
		teamMode:        opts.TeamMode,
		status:          StatusWaiting,
		createdAt:       time.Now(),
		questionTimeout: opts.QuestionTimeout,
		idleTimeout:     opts.IdleTimeout,
		bus:             opts.Bus,
		registry:        opts.Registry,
		archiver:        opts.Archiver,
	}
	r.addPlayer(opts.CreatorID, opts.CreatorName, opts.CreatorAvatar)
	r.armIdleTimer()
	go r.loop()
	return r
}

func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) Code() string { return r.code }

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				msg.Reply <- r.handleJoin(msg)
			case Leave:
				msg.Reply <- r.handleLeave(msg)
			case SetOnline:
				r.handleSetOnline(msg)
			case Start:
				msg.Reply <- r.handleStart(msg)
			case SubmitAnswer:
				msg.Reply <- r.handleSubmit(msg)
			case GetSnapshot:
				msg.Reply <- r.snapshot()
			case questionTimeout:
				r.handleQuestionTimeout(msg)
			case idleTimeout:
				r.handleIdleTimeout(msg)
			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) shutdown() {
	if r.timer != nil {
		r.timer.Stop()
	}
	if r.idleTimer != nil {
		r.idleTimer.Stop()
	}
	r.cancel()
}

func (r *Room) handleJoin(msg Join) JoinResult {
	if r.status != StatusWaiting {
		return JoinResult{Err: ErrGameAlreadyStarted}
	}
	if r.findPlayer(msg.UserID) != nil {
		return JoinResult{Err: ErrPlayerAlreadyInRoom}
	}
	// Single atomic check-and-append: the capacity check and the append
	// happen inside one actor turn, so concurrent joins cannot both pass.
	if len(r.players) == r.maxPlayers {
		return JoinResult{Err: ErrRoomFull}
	}

	r.addPlayer(msg.UserID, msg.Username, msg.Avatar)
	r.broadcast(types.EvtRoomUpdated)
	return JoinResult{Snapshot: r.snapshot()}
}

func (r *Room) addPlayer(userID, username, avatar string) {
	p := &Player{UserID: userID, Username: username, Avatar: avatar}
	if r.teamMode {
		p.Team = r.pickTeam()
	}
	r.players = append(r.players, p)
}

// pickTeam puts the new player on the smaller team, alternating sides when
// the split is even so teams stay balanced as players arrive.
func (r *Room) pickTeam() Team {
	var blue, red int
	for _, p := range r.players {
		switch p.Team {
		case TeamBlue:
			blue++
		case TeamRed:
			red++
		}
	}
	switch {
	case blue < red:
		return TeamBlue
	case red < blue:
		return TeamRed
	default:
		r.tieToBlue = !r.tieToBlue
		if r.tieToBlue {
			return TeamBlue
		}
		return TeamRed
	}
}

func (r *Room) handleLeave(msg Leave) error {
	p := r.findPlayer(msg.UserID)
	if p == nil {
		return ErrPlayerNotInRoom
	}

	switch r.status {
	case StatusWaiting:
		for i, q := range r.players {
			if q.UserID == msg.UserID {
				r.players = append(r.players[:i], r.players[i+1:]...)
				break
			}
		}
		r.registry.ReleaseUser(msg.UserID)
		if len(r.players) == 0 {
			r.close()
			return nil
		}
	case StatusPlaying:
		// Keep the entry so score and rank survive a rejoin.
		p.Online = false
	default:
		return ErrPlayerNotInRoom
	}

	r.broadcast(types.EvtRoomUpdated)
	if r.status == StatusPlaying {
		r.maybeAdvance()
	} else {
		r.maybeArmIdle()
	}
	return nil
}

func (r *Room) handleSetOnline(msg SetOnline) {
	p := r.findPlayer(msg.UserID)
	if p == nil || p.Online == msg.Online {
		return
	}
	p.Online = msg.Online
	r.broadcast(types.EvtRoomUpdated)

	if msg.Online {
		r.disarmIdle()
		return
	}
	if r.status == StatusPlaying {
		r.maybeAdvance()
	} else {
		r.maybeArmIdle()
	}
}

func (r *Room) handleStart(msg Start) StartResult {
	if msg.RequesterID != r.creatorID {
		return StartResult{Err: ErrUnauthorizedGameAction}
	}
	if r.status != StatusWaiting {
		return StartResult{Err: ErrGameAlreadyStarted}
	}
	if len(r.players) < 2 {
		return StartResult{Err: ErrInsufficientPlayers}
	}

	r.session = &session{
		id:        uuid.NewString(),
		startedAt: time.Now(),
		total:     len(r.quiz.Questions),
		answers:   make(map[answerKey]AnswerLog),
	}
	r.status = StatusPlaying
	r.disarmIdle()
	r.registry.BindGame(r.session.id, r.code)
	r.log.Info("game started",
		zap.String("game_id", r.session.id),
		zap.Int("players", len(r.players)),
		zap.Int("questions", r.session.total))

	r.bus.Publish(pubsub.RoomTopic(r.code), types.EvtNavigateToGame, struct {
		GameID string `json:"game_id"`
	}{GameID: r.session.id})

	r.beginQuestion(0)
	return StartResult{GameID: r.session.id, Snapshot: r.snapshot()}
}

func (r *Room) beginQuestion(index int) {
	r.session.current = index
	r.session.deadline = time.Now().Add(r.questionTimeout)

	r.timerGen++
	gen := r.timerGen
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.questionTimeout, func() {
		select {
		case r.inbox <- questionTimeout{gen: gen}:
		case <-r.ctx.Done():
		}
	})

	r.broadcast(types.EvtRoomUpdated)
}

func (r *Room) handleSubmit(msg SubmitAnswer) SubmitResult {
	if r.status != StatusPlaying || r.session == nil || msg.GameID != r.session.id {
		return SubmitResult{Err: ErrGameNotStarted}
	}
	p := r.findPlayer(msg.UserID)
	if p == nil {
		return SubmitResult{Err: ErrPlayerNotInRoom}
	}

	q := r.quiz.Questions[r.session.current]
	if msg.QuestionID != q.ID {
		return SubmitResult{Err: ErrInvalidQuestion}
	}
	key := answerKey{userID: msg.UserID, questionIndex: r.session.current}
	if _, dup := r.session.answers[key]; dup {
		return SubmitResult{Err: ErrAnswerAlreadySubmitted}
	}

	now := time.Now()
	res := game.Score(q, msg.OptionID)
	entry := AnswerLog{
		UserID:        msg.UserID,
		QuestionIndex: r.session.current,
		QuestionID:    q.ID,
		OptionID:      msg.OptionID,
		IsCorrect:     res.IsCorrect,
		Points:        res.Points,
		TimeSpentMs:   msg.TimeSpentMs,
		SubmittedAt:   now,
	}
	r.session.log = append(r.session.log, entry)
	r.session.answers[key] = entry

	p.Points += res.Points
	if res.IsCorrect {
		p.Correct++
		if p.FirstCorrectAt.IsZero() {
			p.FirstCorrectAt = now
		}
	}
	p.Score = game.NormalizedScore(p.Correct, r.session.total)

	r.recomputeRanks()
	r.broadcast(types.EvtScoreUpdated)
	r.maybeAdvance()
	return SubmitResult{Result: res}
}

func (r *Room) recomputeRanks() {
	standings := make([]game.Standing, len(r.players))
	for i, p := range r.players {
		standings[i] = game.Standing{
			UserID:         p.UserID,
			Points:         p.Points,
			FirstCorrectAt: p.FirstCorrectAt,
		}
	}
	ranks := game.Rank(standings)
	for _, p := range r.players {
		if p.Rank != 0 {
			p.PreviousRank = p.Rank
		}
		p.Rank = ranks[p.UserID]
		if p.PreviousRank == 0 {
			p.PreviousRank = p.Rank
		}
	}
}

// maybeAdvance moves to the next question once every online player has
// answered the current one. The question timer covers the rest: offline
// players and stalled clients cost at most one timeout, never the game.
func (r *Room) maybeAdvance() {
	if r.status != StatusPlaying {
		return
	}
	online := 0
	answered := 0
	for _, p := range r.players {
		if !p.Online {
			continue
		}
		online++
		if _, ok := r.session.answers[answerKey{userID: p.UserID, questionIndex: r.session.current}]; ok {
			answered++
		}
	}
	if online > 0 && answered == online {
		r.advance()
	}
}

func (r *Room) handleQuestionTimeout(msg questionTimeout) {
	if msg.gen != r.timerGen || r.status != StatusPlaying {
		return // stale fire from a question already advanced past
	}
	r.advance()
}

func (r *Room) advance() {
	next := r.session.current + 1
	if next >= r.session.total {
		r.finish()
		return
	}
	r.beginQuestion(next)
}

func (r *Room) finish() {
	r.status = StatusFinished
	if r.timer != nil {
		r.timer.Stop()
	}
	r.recomputeRanks()

	final := FinalSnapshot{
		GameID:         r.session.id,
		RoomCode:       r.code,
		QuizID:         r.quiz.ID,
		QuizTitle:      r.quiz.Title,
		StartedAt:      r.session.startedAt,
		FinishedAt:     time.Now(),
		TotalQuestions: r.session.total,
		Players:        r.playerViews(),
		Answers:        append([]AnswerLog(nil), r.session.log...),
	}
	r.bus.Publish(pubsub.RoomTopic(r.code), types.EvtGameFinished, final)
	r.log.Info("game finished", zap.String("game_id", final.GameID))

	archiver, logger := r.archiver, r.log
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := archiver.Archive(ctx, final); err != nil {
			logger.Error("archive final snapshot", zap.Error(err))
		}
	}()

	r.close()
}

// close tears the room down through the hub, which releases members,
// drops the topic and sends Shutdown back.
func (r *Room) close() {
	r.registry.RoomClosed(r.code)
}

func (r *Room) handleIdleTimeout(msg idleTimeout) {
	if msg.gen != r.idleGen || r.status != StatusWaiting {
		return
	}
	if r.onlineCount() > 0 {
		return
	}
	r.log.Info("reaping idle room")
	r.close()
}

func (r *Room) maybeArmIdle() {
	if r.status == StatusWaiting && r.onlineCount() == 0 {
		r.armIdleTimer()
	}
}

func (r *Room) armIdleTimer() {
	if r.idleTimeout <= 0 {
		return
	}
	r.idleGen++
	gen := r.idleGen
	if r.idleTimer != nil {
		r.idleTimer.Stop()
	}
	r.idleTimer = time.AfterFunc(r.idleTimeout, func() {
		select {
		case r.inbox <- idleTimeout{gen: gen}:
		case <-r.ctx.Done():
		}
	})
}

func (r *Room) disarmIdle() {
	r.idleGen++
	if r.idleTimer != nil {
		r.idleTimer.Stop()
	}
}

func (r *Room) onlineCount() int {
	n := 0
	for _, p := range r.players {
		if p.Online {
			n++
		}
	}
	return n
}

func (r *Room) findPlayer(userID string) *Player {
	for _, p := range r.players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

func (r *Room) playerViews() []Player {
	out := make([]Player, len(r.players))
	for i, p := range r.players {
		out[i] = *p
	}
	return out
}

func (r *Room) snapshot() Snapshot {
	s := Snapshot{
		Code:           r.code,
		Name:           r.name,
		QuizID:         r.quiz.ID,
		QuizTitle:      r.quiz.Title,
		CreatorID:      r.creatorID,
		MaxPlayers:     r.maxPlayers,
		TeamMode:       r.teamMode,
		Status:         r.status,
		CreatedAt:      r.createdAt,
		Players:        r.playerViews(),
		TotalQuestions: len(r.quiz.Questions),
	}
	if r.session != nil {
		s.GameID = r.session.id
		if r.status == StatusPlaying {
			q := r.quiz.Questions[r.session.current]
			s.CurrentQuestion = &QuestionView{
				Index:    r.session.current,
				ID:       q.ID,
				Text:     q.Text,
				Options:  q.Options,
				Deadline: r.session.deadline,
			}
		}
	}
	return s
}

func (r *Room) broadcast(eventType string) {
	r.bus.Publish(pubsub.RoomTopic(r.code), eventType, r.snapshot())
}
