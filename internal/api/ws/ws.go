// Package ws implements the streaming channel from spec.md §6: one
// logical socket per client, JSON commands in, JSON events out. Built on
// gorilla/websocket (declared in the teacher's pack but never wired by the
// teacher itself); the read/write pump split and JSON envelope style
// follow the common gorilla/websocket idiom used across the example
// corpus's HTTP services.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coursereg/registrar/internal/eventbus"
	"github.com/coursereg/registrar/internal/orchestrator"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type inboundCommand struct {
	Type      string `json:"type"`
	StudentID string `json:"studentId"`
	CourseID  string `json:"courseId"`
}

type outboundEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Handler serves the /stream endpoint: upgrades to a websocket, then
// relays course/personal subscriptions through the event bus.
type Handler struct {
	bus  *eventbus.Bus
	orch *orchestrator.Orchestrator
}

func New(bus *eventbus.Bus, orch *orchestrator.Orchestrator) *Handler {
	return &Handler{bus: bus, orch: orch}
}

// client is the per-connection state: which course topics it is
// subscribed to, and (once authenticated) its personal topic.
type client struct {
	conn      *websocket.Conn
	bus       *eventbus.Bus
	orch      *orchestrator.Orchestrator
	send      chan outboundEvent
	subs      map[string]*eventbus.Subscription // courseId -> subscription
	personal  *eventbus.Subscription
	studentID string
}

func (h *Handler) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws: upgrade failed")
		return
	}

	cl := &client{
		conn: conn,
		bus:  h.bus,
		orch: h.orch,
		send: make(chan outboundEvent, 32),
		subs: make(map[string]*eventbus.Subscription),
	}
	defer cl.close()

	go cl.writePump()
	cl.send <- outboundEvent{Type: "connected"}

	cl.readPump(c.Request.Context())
}

func (cl *client) readPump(ctx context.Context) {
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		cl.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := cl.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd inboundCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			continue
		}
		switch cmd.Type {
		case "authenticate":
			cl.studentID = cmd.StudentID
			cl.personal = cl.bus.SubscribeStudent(cmd.StudentID)
			go cl.relay(cl.personal, "personal:update")
			cl.send <- outboundEvent{Type: "authenticated"}
		case "subscribe:course":
			cl.subscribeCourse(ctx, cmd.CourseID)
		case "unsubscribe:course":
			if sub, ok := cl.subs[cmd.CourseID]; ok {
				sub.Cancel()
				delete(cl.subs, cmd.CourseID)
			}
		}
	}
}

// subscribeCourse subscribes the client to a course topic, acks the
// subscription, and sends the initial classroom snapshot before relaying
// any course:update so the client always has a base to apply updates onto
// (spec.md's S6 scenario). Split out of readPump's switch so it can be
// exercised without a live websocket connection.
func (cl *client) subscribeCourse(ctx context.Context, courseID string) {
	if _, ok := cl.subs[courseID]; ok {
		return
	}
	sub := cl.bus.SubscribeCourse(courseID)
	cl.subs[courseID] = sub
	cl.send <- outboundEvent{Type: "subscribed:course", Payload: gin.H{"courseId": courseID}}

	if snapshot, err := cl.orch.GetClassroomState(ctx, courseID); err == nil {
		cl.send <- outboundEvent{Type: "course:classroomState", Payload: snapshot}
	} else {
		log.Warn().Err(err).Str("course_id", courseID).Msg("ws: failed to load classroom snapshot")
	}

	go cl.relay(sub, "course:update")
}

// relay forwards envelopes from one subscription's channel onto the
// client's shared send channel until the subscription is cancelled.
func (cl *client) relay(sub *eventbus.Subscription, eventType string) {
	for env := range sub.C {
		if env.Type == eventbus.Disconnect {
			return
		}
		cl.send <- outboundEvent{Type: eventType, Payload: env}
	}
}

func (cl *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (cl *client) close() {
	for _, sub := range cl.subs {
		sub.Cancel()
	}
	if cl.personal != nil {
		cl.personal.Cancel()
	}
	cl.conn.Close()
}
