// Package ws attaches clients to the push channel. Each connection
// subscribes to its room topic and the user's personal topic, relays
// events as they are published, and keeps the room's view of presence
// honest: attach marks the player online, a dead connection marks them
// offline. A client that reconnects gets a full snapshot first, so it
// never needs the events it missed.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/quizarena/quiz-arena-backend/internal/hub"
	"github.com/quizarena/quiz-arena-backend/internal/pubsub"
	"github.com/quizarena/quiz-arena-backend/internal/room"
	"github.com/quizarena/quiz-arena-backend/pkg/types"
)

const (
	writeTimeout = 3 * time.Second
	eventBuffer  = 32
)

type Handler struct {
	hub       *hub.Hub
	bus       *pubsub.Bus
	heartbeat time.Duration
	log       *zap.Logger
}

func New(h *hub.Hub, bus *pubsub.Bus, heartbeat time.Duration, log *zap.Logger) *Handler {
	return &Handler{hub: h, bus: bus, heartbeat: heartbeat, log: log.Named("ws")}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		userID = r.URL.Query().Get("user")
	}
	if code == "" || userID == "" {
		http.Error(w, "missing code or user", http.StatusBadRequest)
		return
	}

	reply := make(chan *room.Room, 1)
	h.hub.Inbox() <- hub.GetRoom{Code: code, Reply: reply}
	rm := <-reply
	if rm == nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	log := h.log.With(zap.String("room", code), zap.String("user", userID))

	// Subscribing under the userID means a reconnect supersedes the old
	// connection: the bus closes the stale subscription and the stale
	// goroutines below notice and bow out.
	roomSub := h.bus.Subscribe(pubsub.RoomTopic(code), userID, eventBuffer)
	userSub := h.bus.Subscribe(pubsub.UserTopic(userID), userID, eventBuffer)

	h.hub.Inbox() <- hub.SetPresence{Code: code, UserID: userID, Online: true}

	connCtx, cancel := context.WithCancel(r.Context())
	defer cancel()

	defer func() {
		// Unsubscribing by token is a no-op once a newer connection has
		// replaced these subscriptions; the presence flip belongs to the
		// replacement in that case too. The user-topic subscription is
		// detached here even when the room topic is already gone (room
		// torn down), so it never outlives its reader.
		active := h.bus.Unsubscribe(roomSub)
		h.bus.Unsubscribe(userSub)
		if active {
			h.hub.Inbox() <- hub.SetPresence{Code: code, UserID: userID, Online: false}
		}
	}()

	if err := h.writeSnapshot(connCtx, conn, rm); err != nil {
		return
	}

	go h.writeLoop(connCtx, cancel, conn, roomSub.C, userSub.C)

	h.readLoop(connCtx, conn, rm, code, userID, log)
}

func (h *Handler) writeSnapshot(ctx context.Context, conn *websocket.Conn, rm *room.Room) error {
	reply := make(chan room.Snapshot, 1)
	rm.Inbox() <- room.GetSnapshot{Reply: reply}
	snap := <-reply

	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return h.write(ctx, conn, types.ServerMessage{Type: "snapshot", Snapshot: raw})
}

func (h *Handler) write(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, payload)
}

// writeLoop relays bus events and pings the client at the heartbeat
// interval. The ping is the liveness check: a client that stops answering
// fails the ping, and the cancel tears the read loop down with it. Either
// subscription closing means a newer connection for the same user replaced
// this one, or the room was torn down; both end the connection.
func (h *Handler) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn,
	roomCh, userCh <-chan types.Event) {

	defer cancel()
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case evt, ok := <-roomCh:
			if !ok {
				return
			}
			if h.write(ctx, conn, types.ServerMessage{Type: "event", Event: &evt}) != nil {
				return
			}

		case evt, ok := <-userCh:
			if !ok {
				return
			}
			if h.write(ctx, conn, types.ServerMessage{Type: "event", Event: &evt}) != nil {
				return
			}

		case <-ticker.C:
			pctx, pcancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				return
			}
		}
	}
}

// readLoop blocks on the connection until the client sends a command or
// the connection dies. There is no read deadline: a quiet client is still
// alive as long as it keeps answering the write loop's pings.
func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, rm *room.Room, code, userID string, log *zap.Logger) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				log.Debug("read loop ended", zap.Error(err))
			}
			return
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			_ = h.write(ctx, conn, types.ServerMessage{Type: "error", Error: "bad json", Code: "bad_request"})
			continue
		}

		switch cm.Type {
		case "submit_answer":
			reply := make(chan room.SubmitResult, 1)
			h.hub.Inbox() <- hub.SubmitAnswer{
				GameID:      cm.GameID,
				UserID:      userID,
				QuestionID:  cm.QuestionID,
				OptionID:    cm.OptionID,
				TimeSpentMs: cm.TimeSpentMs,
				Reply:       reply,
			}
			if res := <-reply; res.Err != nil {
				_ = h.write(ctx, conn, types.ServerMessage{Type: "error", Error: res.Err.Error(), Code: "rejected"})
			}

		case "resync":
			if err := h.writeSnapshot(ctx, conn, rm); err != nil {
				return
			}

		case "leave":
			reply := make(chan error, 1)
			h.hub.Inbox() <- hub.LeaveRoom{Code: code, UserID: userID, Reply: reply}
			<-reply
			return

		default:
			_ = h.write(ctx, conn, types.ServerMessage{Type: "error", Error: "unknown type", Code: "bad_request"})
		}
	}
}
