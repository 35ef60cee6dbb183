package invite

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/quizarena/quiz-arena-backend/internal/hub"
	"github.com/quizarena/quiz-arena-backend/internal/pubsub"
	"github.com/quizarena/quiz-arena-backend/internal/quiz"
	"github.com/quizarena/quiz-arena-backend/internal/room"
	"github.com/quizarena/quiz-arena-backend/pkg/types"
)

type fixture struct {
	hub    *hub.Hub
	broker *Broker
	bus    *pubsub.Bus
}

func newFixture(t *testing.T, ttl time.Duration) fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bus := pubsub.NewBus(zap.NewNop())
	h := hub.NewHub(ctx, hub.Options{
		Quizzes: quiz.NewStaticProvider(quiz.Quiz{
			ID:    "quiz-1",
			Title: "Capitals",
			Questions: []quiz.Question{
				{ID: "q1", Options: []quiz.Option{{ID: "a"}, {ID: "b"}}, CorrectOptionID: "a"},
				{ID: "q2", Options: []quiz.Option{{ID: "a"}, {ID: "b"}}, CorrectOptionID: "b"},
			},
		}),
		Bus:             bus,
		QuestionTimeout: time.Minute,
		Logger:          zap.NewNop(),
	})
	return fixture{hub: h, broker: NewBroker(ctx, h, bus, ttl, zap.NewNop()), bus: bus}
}

func (fx fixture) createRoom(t *testing.T, creator string, maxPlayers int) string {
	t.Helper()
	reply := make(chan hub.CreateResult, 1)
	fx.hub.Inbox() <- hub.CreateRoom{QuizID: "quiz-1", MaxPlayers: maxPlayers, UserID: creator, Username: creator, Reply: reply}
	res := <-reply
	if res.Err != nil {
		t.Fatalf("create room: %v", res.Err)
	}
	return res.Snapshot.Code
}

func (fx fixture) invite(t *testing.T, code, sender string, recipients ...string) error {
	t.Helper()
	reply := make(chan error, 1)
	fx.broker.Inbox() <- Invite{RoomCode: code, SenderID: sender, RecipientIDs: recipients, Reply: reply}
	select {
	case err := <-reply:
		return err
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for invite reply")
		return nil // unreachable
	}
}

func (fx fixture) resolve(t *testing.T, invitationID, userID string, accept bool) ResolveResult {
	t.Helper()
	reply := make(chan ResolveResult, 1)
	fx.broker.Inbox() <- Resolve{InvitationID: invitationID, UserID: userID, Username: userID, Accept: accept, Reply: reply}
	select {
	case res := <-reply:
		return res
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for resolve reply")
		return ResolveResult{} // unreachable
	}
}

func recvTyped(t *testing.T, ch <-chan types.Event, eventType string, within time.Duration) types.Event {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				t.Fatalf("subscription closed while waiting for %s", eventType)
			}
			if evt.Type == eventType {
				return evt
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", eventType)
			return types.Event{} // unreachable
		}
	}
}

func decodeInvitation(t *testing.T, evt types.Event) Invitation {
	t.Helper()
	var inv Invitation
	if err := json.Unmarshal(evt.Payload, &inv); err != nil {
		t.Fatalf("decode invitation: %v", err)
	}
	return inv
}

func TestBroker_SenderMustBeMember(t *testing.T) {
	fx := newFixture(t, time.Minute)
	code := fx.createRoom(t, "creator", 4)

	if err := fx.invite(t, code, "stranger", "friend"); err != room.ErrPlayerNotInRoom {
		t.Fatalf("want ErrPlayerNotInRoom, got %v", err)
	}
	if err := fx.invite(t, "NOPE00", "creator", "friend"); err != room.ErrRoomNotFound {
		t.Fatalf("want ErrRoomNotFound, got %v", err)
	}
}

func TestBroker_InvitationCarriesQuizSummaryAndExpiry(t *testing.T) {
	fx := newFixture(t, time.Minute)
	code := fx.createRoom(t, "creator", 4)
	inbox := fx.bus.Subscribe(pubsub.UserTopic("friend"), "test", 8).C

	if err := fx.invite(t, code, "creator", "friend"); err != nil {
		t.Fatalf("invite: %v", err)
	}

	inv := decodeInvitation(t, recvTyped(t, inbox, types.EvtInvitation, time.Second))
	if inv.QuizTitle != "Capitals" || inv.QuestionCount != 2 {
		t.Fatalf("bad quiz summary: %+v", inv)
	}
	if !inv.ExpiresAt.After(inv.CreatedAt) {
		t.Fatalf("expiry not set: %+v", inv)
	}
}

func TestBroker_ResendReplacesPendingInvitation(t *testing.T) {
	fx := newFixture(t, time.Minute)
	code := fx.createRoom(t, "creator", 4)
	inbox := fx.bus.Subscribe(pubsub.UserTopic("friend"), "test", 8).C

	fx.invite(t, code, "creator", "friend")
	first := decodeInvitation(t, recvTyped(t, inbox, types.EvtInvitation, time.Second))

	fx.invite(t, code, "creator", "friend")
	second := decodeInvitation(t, recvTyped(t, inbox, types.EvtInvitation, time.Second))

	if first.ID == second.ID {
		t.Fatalf("resend should mint a fresh invitation")
	}

	// Only the replacement is live.
	if res := fx.resolve(t, first.ID, "friend", true); res.Err != ErrInvitationNotFound {
		t.Fatalf("stale invitation: want ErrInvitationNotFound, got %v", res.Err)
	}
	if res := fx.resolve(t, second.ID, "friend", false); res.Err != nil {
		t.Fatalf("live invitation: unexpected err %v", res.Err)
	}
}

func TestBroker_ExpiryDismissesAndLeavesRoomUnchanged(t *testing.T) {
	fx := newFixture(t, 40*time.Millisecond)
	code := fx.createRoom(t, "creator", 4)
	inbox := fx.bus.Subscribe(pubsub.UserTopic("friend"), "test", 8).C

	fx.invite(t, code, "creator", "friend")
	inv := decodeInvitation(t, recvTyped(t, inbox, types.EvtInvitation, time.Second))

	dismissed := decodeInvitation(t, recvTyped(t, inbox, types.EvtInvitationDismissed, time.Second))
	if dismissed.ID != inv.ID {
		t.Fatalf("dismissal for wrong invitation")
	}

	if res := fx.resolve(t, inv.ID, "friend", true); res.Err != ErrInvitationNotFound {
		t.Fatalf("expired invitation: want ErrInvitationNotFound, got %v", res.Err)
	}

	reply := make(chan *room.Room, 1)
	fx.hub.Inbox() <- hub.GetRoom{Code: code, Reply: reply}
	rm := <-reply
	snapReply := make(chan room.Snapshot, 1)
	rm.Inbox() <- room.GetSnapshot{Reply: snapReply}
	if snap := <-snapReply; len(snap.Players) != 1 {
		t.Fatalf("membership changed on expiry: %+v", snap.Players)
	}
}

func TestBroker_AcceptJoinsRoom(t *testing.T) {
	fx := newFixture(t, time.Minute)
	code := fx.createRoom(t, "creator", 4)
	inbox := fx.bus.Subscribe(pubsub.UserTopic("friend"), "test", 8).C

	fx.invite(t, code, "creator", "friend")
	inv := decodeInvitation(t, recvTyped(t, inbox, types.EvtInvitation, time.Second))

	res := fx.resolve(t, inv.ID, "friend", true)
	if res.Err != nil {
		t.Fatalf("accept: %v", res.Err)
	}
	if len(res.Snapshot.Players) != 2 {
		t.Fatalf("want 2 players after accept, got %d", len(res.Snapshot.Players))
	}
}

func TestBroker_AcceptIntoFullRoomEmitsFailure(t *testing.T) {
	fx := newFixture(t, time.Minute)
	code := fx.createRoom(t, "creator", 2)
	inbox := fx.bus.Subscribe(pubsub.UserTopic("friend"), "test", 8).C

	fx.invite(t, code, "creator", "friend")
	inv := decodeInvitation(t, recvTyped(t, inbox, types.EvtInvitation, time.Second))

	// Someone else takes the last seat before the acceptance lands.
	joinReply := make(chan room.JoinResult, 1)
	fx.hub.Inbox() <- hub.JoinRoom{Code: code, UserID: "sniper", Username: "sniper", Reply: joinReply}
	if j := <-joinReply; j.Err != nil {
		t.Fatalf("join: %v", j.Err)
	}

	res := fx.resolve(t, inv.ID, "friend", true)
	if res.Err != room.ErrRoomFull {
		t.Fatalf("want ErrRoomFull, got %v", res.Err)
	}
	_ = recvTyped(t, inbox, types.EvtInvitationFailed, time.Second)
}

func TestBroker_ResolveByWrongUser(t *testing.T) {
	fx := newFixture(t, time.Minute)
	code := fx.createRoom(t, "creator", 4)
	inbox := fx.bus.Subscribe(pubsub.UserTopic("friend"), "test", 8).C

	fx.invite(t, code, "creator", "friend")
	inv := decodeInvitation(t, recvTyped(t, inbox, types.EvtInvitation, time.Second))

	if res := fx.resolve(t, inv.ID, "impostor", true); res.Err != ErrInvitationNotFound {
		t.Fatalf("want ErrInvitationNotFound, got %v", res.Err)
	}
}
