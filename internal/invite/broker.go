// Package invite manages time-boxed invitations into rooms. A single
// broker actor owns every pending invitation; re-inviting the same user to
// the same room replaces the pending invitation instead of stacking a
// second one, and an expiry timer clears whatever the recipient ignores.
package invite

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quizarena/quiz-arena-backend/internal/hub"
	"github.com/quizarena/quiz-arena-backend/internal/pubsub"
	"github.com/quizarena/quiz-arena-backend/internal/room"
	"github.com/quizarena/quiz-arena-backend/pkg/types"
)

var (
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrInvitationExpired  = errors.New("invitation expired")
)

// Invitation is the payload pushed to the recipient. ExpiresAt lets the
// client render a countdown without asking the server again.
type Invitation struct {
	ID            string    `json:"id"`
	RoomCode      string    `json:"room_code"`
	SenderID      string    `json:"sender_id"`
	SenderName    string    `json:"sender_name"`
	RecipientID   string    `json:"recipient_id"`
	QuizTitle     string    `json:"quiz_title"`
	QuestionCount int       `json:"question_count"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

type Msg interface{ isBrokerMsg() }

type Invite struct {
	RoomCode     string
	SenderID     string
	RecipientIDs []string
	Reply        chan error
}

type Resolve struct {
	InvitationID string
	UserID       string
	Username     string
	Avatar       string
	Accept       bool
	Reply        chan ResolveResult
}

type ResolveResult struct {
	Snapshot room.Snapshot
	Err      error
}

type Shutdown struct{}

type expired struct{ id string }

func (Invite) isBrokerMsg()   {}
func (Resolve) isBrokerMsg()  {}
func (Shutdown) isBrokerMsg() {}
func (expired) isBrokerMsg()  {}

type pairKey struct{ roomCode, recipientID string }

type entry struct {
	inv   Invitation
	timer *time.Timer
}

type Broker struct {
	inbox  chan Msg
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger

	hub *hub.Hub
	bus room.Publisher
	ttl time.Duration

	active map[pairKey]*entry
	byID   map[string]*entry
}

func NewBroker(parent context.Context, h *hub.Hub, bus room.Publisher, ttl time.Duration, log *zap.Logger) *Broker {
	ctx, cancel := context.WithCancel(parent)
	b := &Broker{
		inbox:  make(chan Msg, 64),
		ctx:    ctx,
		cancel: cancel,
		log:    log.Named("invite"),
		hub:    h,
		bus:    bus,
		ttl:    ttl,
		active: make(map[pairKey]*entry),
		byID:   make(map[string]*entry),
	}
	go b.loop()
	return b
}

func (b *Broker) Inbox() chan<- Msg { return b.inbox }

func (b *Broker) loop() {
	for {
		select {
		case <-b.ctx.Done():
			b.shutdown()
			return

		case m := <-b.inbox:
			switch msg := m.(type) {
			case Invite:
				msg.Reply <- b.handleInvite(msg)
			case Resolve:
				b.handleResolve(msg)
			case expired:
				b.handleExpired(msg.id)
			case Shutdown:
				b.shutdown()
				return
			}
		}
	}
}

func (b *Broker) shutdown() {
	for _, e := range b.byID {
		e.timer.Stop()
	}
	clear(b.active)
	clear(b.byID)
	b.cancel()
}

func (b *Broker) handleInvite(msg Invite) error {
	snap, err := b.roomSnapshot(msg.RoomCode)
	if err != nil {
		return err
	}

	var sender *room.Player
	members := make(map[string]bool, len(snap.Players))
	for i := range snap.Players {
		members[snap.Players[i].UserID] = true
		if snap.Players[i].UserID == msg.SenderID {
			sender = &snap.Players[i]
		}
	}
	if sender == nil {
		return room.ErrPlayerNotInRoom
	}

	now := time.Now()
	for _, recipientID := range msg.RecipientIDs {
		if recipientID == msg.SenderID || members[recipientID] {
			continue
		}
		b.issue(Invitation{
			ID:            uuid.NewString(),
			RoomCode:      msg.RoomCode,
			SenderID:      msg.SenderID,
			SenderName:    sender.Username,
			RecipientID:   recipientID,
			QuizTitle:     snap.QuizTitle,
			QuestionCount: snap.TotalQuestions,
			CreatedAt:     now,
			ExpiresAt:     now.Add(b.ttl),
		})
	}
	return nil
}

// issue replaces any pending invitation for the same (room, recipient)
// pair, then starts the expiry timer and pushes the invitation.
func (b *Broker) issue(inv Invitation) {
	key := pairKey{roomCode: inv.RoomCode, recipientID: inv.RecipientID}
	if prev, ok := b.active[key]; ok {
		prev.timer.Stop()
		delete(b.byID, prev.inv.ID)
	}

	id := inv.ID
	e := &entry{
		inv: inv,
		timer: time.AfterFunc(b.ttl, func() {
			select {
			case b.inbox <- expired{id: id}:
			case <-b.ctx.Done():
			}
		}),
	}
	b.active[key] = e
	b.byID[id] = e

	b.bus.Publish(pubsub.UserTopic(inv.RecipientID), types.EvtInvitation, inv)
	b.bus.Publish(pubsub.RoomTopic(inv.RoomCode), types.EvtInvitation, inv)
	b.log.Info("invitation sent",
		zap.String("room", inv.RoomCode),
		zap.String("recipient", inv.RecipientID))
}

func (b *Broker) handleResolve(msg Resolve) {
	e := b.byID[msg.InvitationID]
	if e == nil || e.inv.RecipientID != msg.UserID {
		msg.Reply <- ResolveResult{Err: ErrInvitationNotFound}
		return
	}

	b.remove(e)

	if time.Now().After(e.inv.ExpiresAt) {
		msg.Reply <- ResolveResult{Err: ErrInvitationExpired}
		return
	}

	if !msg.Accept {
		b.bus.Publish(pubsub.UserTopic(e.inv.RecipientID), types.EvtInvitationDismissed, e.inv)
		msg.Reply <- ResolveResult{}
		return
	}

	inner := make(chan room.JoinResult, 1)
	b.hub.Inbox() <- hub.JoinRoom{
		Code:     e.inv.RoomCode,
		UserID:   msg.UserID,
		Username: msg.Username,
		Avatar:   msg.Avatar,
		Reply:    inner,
	}
	res := <-inner
	if res.Err != nil {
		// The room filled up or started since the invitation went out;
		// tell the recipient instead of silently eating the acceptance.
		b.bus.Publish(pubsub.UserTopic(msg.UserID), types.EvtInvitationFailed, struct {
			InvitationID string `json:"invitation_id"`
			RoomCode     string `json:"room_code"`
			Reason       string `json:"reason"`
		}{InvitationID: e.inv.ID, RoomCode: e.inv.RoomCode, Reason: res.Err.Error()})
		msg.Reply <- ResolveResult{Err: res.Err}
		return
	}
	msg.Reply <- ResolveResult{Snapshot: res.Snapshot}
}

func (b *Broker) handleExpired(id string) {
	e := b.byID[id]
	if e == nil {
		return
	}
	b.remove(e)
	b.bus.Publish(pubsub.UserTopic(e.inv.RecipientID), types.EvtInvitationDismissed, e.inv)
	b.bus.Publish(pubsub.RoomTopic(e.inv.RoomCode), types.EvtInvitationDismissed, e.inv)
}

func (b *Broker) remove(e *entry) {
	e.timer.Stop()
	delete(b.byID, e.inv.ID)
	key := pairKey{roomCode: e.inv.RoomCode, recipientID: e.inv.RecipientID}
	if cur, ok := b.active[key]; ok && cur == e {
		delete(b.active, key)
	}
}

func (b *Broker) roomSnapshot(code string) (room.Snapshot, error) {
	reply := make(chan *room.Room, 1)
	b.hub.Inbox() <- hub.GetRoom{Code: code, Reply: reply}
	rm := <-reply
	if rm == nil {
		return room.Snapshot{}, room.ErrRoomNotFound
	}
	snapReply := make(chan room.Snapshot, 1)
	rm.Inbox() <- room.GetSnapshot{Reply: snapReply}
	return <-snapReply, nil
}
