package hub

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/quizarena/quiz-arena-backend/internal/pubsub"
	"github.com/quizarena/quiz-arena-backend/internal/quiz"
	"github.com/quizarena/quiz-arena-backend/internal/room"
)

func testProvider() quiz.Provider {
	return quiz.NewStaticProvider(quiz.Quiz{
		ID:    "quiz-1",
		Title: "Capitals",
		Questions: []quiz.Question{
			{ID: "q1", Options: []quiz.Option{{ID: "a"}, {ID: "b"}}, CorrectOptionID: "a"},
		},
	})
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewHub(ctx, Options{
		Quizzes:         testProvider(),
		Bus:             pubsub.NewBus(zap.NewNop()),
		QuestionTimeout: time.Minute,
		Logger:          zap.NewNop(),
	})
}

func create(t *testing.T, h *Hub, userID string) CreateResult {
	t.Helper()
	reply := make(chan CreateResult, 1)
	h.Inbox() <- CreateRoom{QuizID: "quiz-1", MaxPlayers: 4, UserID: userID, Username: userID, Reply: reply}
	select {
	case res := <-reply:
		return res
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for create reply")
		return CreateResult{} // unreachable
	}
}

func joinCode(t *testing.T, h *Hub, code, userID string) room.JoinResult {
	t.Helper()
	reply := make(chan room.JoinResult, 1)
	h.Inbox() <- JoinRoom{Code: code, UserID: userID, Username: userID, Reply: reply}
	select {
	case res := <-reply:
		return res
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for join reply")
		return room.JoinResult{} // unreachable
	}
}

func TestHub_CreateThenGetSameRoom(t *testing.T) {
	h := newTestHub(t)

	res := create(t, h, "creator")
	if res.Err != nil {
		t.Fatalf("create: %v", res.Err)
	}
	if len(res.Snapshot.Code) != 6 {
		t.Fatalf("want 6-char room code, got %q", res.Snapshot.Code)
	}
	if len(res.Snapshot.Players) != 1 || res.Snapshot.Players[0].UserID != "creator" {
		t.Fatalf("creator should be the first member, got %+v", res.Snapshot.Players)
	}

	reply := make(chan *room.Room, 1)
	h.Inbox() <- GetRoom{Code: res.Snapshot.Code, Reply: reply}
	if rm := <-reply; rm == nil || rm.Code() != res.Snapshot.Code {
		t.Fatalf("expected to get back the created room")
	}
}

func TestHub_CreateValidatesMaxPlayers(t *testing.T) {
	h := newTestHub(t)

	for _, n := range []int{0, 1, 9} {
		reply := make(chan CreateResult, 1)
		h.Inbox() <- CreateRoom{QuizID: "quiz-1", MaxPlayers: n, UserID: "u", Reply: reply}
		if res := <-reply; res.Err != ErrInvalidMaxPlayers {
			t.Fatalf("maxPlayers=%d: want ErrInvalidMaxPlayers, got %v", n, res.Err)
		}
	}
}

func TestHub_CreateUnknownQuiz(t *testing.T) {
	h := newTestHub(t)

	reply := make(chan CreateResult, 1)
	h.Inbox() <- CreateRoom{QuizID: "nope", MaxPlayers: 4, UserID: "u", Reply: reply}
	if res := <-reply; res.Err == nil {
		t.Fatalf("want error for unknown quiz")
	}
}

func TestHub_JoinUnknownRoom(t *testing.T) {
	h := newTestHub(t)
	if res := joinCode(t, h, "NOPE00", "u"); res.Err != room.ErrRoomNotFound {
		t.Fatalf("want ErrRoomNotFound, got %v", res.Err)
	}
}

func TestHub_OneNonFinishedRoomPerUser(t *testing.T) {
	h := newTestHub(t)

	first := create(t, h, "creator")
	if first.Err != nil {
		t.Fatalf("create: %v", first.Err)
	}
	other := create(t, h, "other")
	if other.Err != nil {
		t.Fatalf("create: %v", other.Err)
	}

	// Already in their own room, so joining (or creating) another is refused.
	if res := joinCode(t, h, other.Snapshot.Code, "creator"); res.Err != room.ErrPlayerAlreadyInRoom {
		t.Fatalf("want ErrPlayerAlreadyInRoom, got %v", res.Err)
	}
	if res := create(t, h, "creator"); res.Err != room.ErrPlayerAlreadyInRoom {
		t.Fatalf("second create: want ErrPlayerAlreadyInRoom, got %v", res.Err)
	}
}

func TestHub_FailedJoinDoesNotBindUser(t *testing.T) {
	h := newTestHub(t)

	res := create(t, h, "creator")
	reply := make(chan CreateResult, 1)
	h.Inbox() <- CreateRoom{QuizID: "quiz-1", MaxPlayers: 2, UserID: "creator2", Username: "creator2", Reply: reply}
	small := <-reply

	if j := joinCode(t, h, small.Snapshot.Code, "filler"); j.Err != nil {
		t.Fatalf("join: %v", j.Err)
	}
	if j := joinCode(t, h, small.Snapshot.Code, "late"); j.Err != room.ErrRoomFull {
		t.Fatalf("want ErrRoomFull, got %v", j.Err)
	}

	// The rejected user must be free to join elsewhere once the hub has
	// processed the release.
	deadline := time.Now().Add(time.Second)
	for {
		if j := joinCode(t, h, res.Snapshot.Code, "late"); j.Err == nil {
			return
		} else if j.Err != room.ErrPlayerAlreadyInRoom {
			t.Fatalf("unexpected err: %v", j.Err)
		}
		if time.Now().After(deadline) {
			t.Fatalf("user never released after failed join")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_DuplicateJoinKeepsUserBound(t *testing.T) {
	h := newTestHub(t)

	first := create(t, h, "creator")
	other := create(t, h, "other")

	if j := joinCode(t, h, first.Snapshot.Code, "p2"); j.Err != nil {
		t.Fatalf("join: %v", j.Err)
	}
	if j := joinCode(t, h, first.Snapshot.Code, "p2"); j.Err != room.ErrPlayerAlreadyInRoom {
		t.Fatalf("retry: want ErrPlayerAlreadyInRoom, got %v", j.Err)
	}

	// The rejected retry must not unbind p2: any release lands
	// asynchronously, so keep checking that a second room stays refused.
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if j := joinCode(t, h, other.Snapshot.Code, "p2"); j.Err != room.ErrPlayerAlreadyInRoom {
			t.Fatalf("second room join after retry: want ErrPlayerAlreadyInRoom, got %v", j.Err)
		}
		if res := create(t, h, "p2"); res.Err != room.ErrPlayerAlreadyInRoom {
			t.Fatalf("create after retry: want ErrPlayerAlreadyInRoom, got %v", res.Err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_SubmitForUnknownGame(t *testing.T) {
	h := newTestHub(t)

	reply := make(chan room.SubmitResult, 1)
	h.Inbox() <- SubmitAnswer{GameID: "missing", UserID: "u", QuestionID: "q1", Reply: reply}
	if res := <-reply; res.Err != room.ErrGameNotStarted {
		t.Fatalf("want ErrGameNotStarted, got %v", res.Err)
	}
}

func TestHub_StartBindsGameForSubmissions(t *testing.T) {
	h := newTestHub(t)

	res := create(t, h, "creator")
	joinCode(t, h, res.Snapshot.Code, "p2")

	startReply := make(chan room.StartResult, 1)
	h.Inbox() <- StartGame{Code: res.Snapshot.Code, RequesterID: "creator", Reply: startReply}
	started := <-startReply
	if started.Err != nil {
		t.Fatalf("start: %v", started.Err)
	}

	// The game binding lands via the registry; poll briefly.
	deadline := time.Now().Add(time.Second)
	for {
		reply := make(chan room.SubmitResult, 1)
		h.Inbox() <- SubmitAnswer{GameID: started.GameID, UserID: "p2", QuestionID: "q1", OptionID: "a", Reply: reply}
		sub := <-reply
		if sub.Err == nil {
			if !sub.Result.IsCorrect {
				t.Fatalf("expected correct answer")
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("submit never routed: %v", sub.Err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_RoomClosedFreesMembers(t *testing.T) {
	h := newTestHub(t)

	res := create(t, h, "creator")
	leaveReply := make(chan error, 1)
	h.Inbox() <- LeaveRoom{Code: res.Snapshot.Code, UserID: "creator", Reply: leaveReply}
	if err := <-leaveReply; err != nil {
		t.Fatalf("leave: %v", err)
	}

	// Last member left, room closes, creator can open a new one.
	deadline := time.Now().Add(time.Second)
	for {
		if again := create(t, h, "creator"); again.Err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("creator never freed after room closed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
