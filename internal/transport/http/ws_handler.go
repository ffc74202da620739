package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"quiz-host/internal/app"
	"quiz-host/internal/domain"

	"github.com/gorilla/websocket"
)

// WSHandler serves the quiz command protocol over websockets.
type WSHandler struct {
	registry *app.Registry
	hub      *Hub
	upgrader websocket.Upgrader
	now      func() time.Time
	verbose  bool
}

func NewWSHandler(registry *app.Registry, hub *Hub, verbose bool) *WSHandler {
	return &WSHandler{
		registry: registry,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		now:     time.Now,
		verbose: verbose,
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type createAdminPayload struct {
	Username string `json:"username"`
}

type createRoomPayload struct {
	RoomName string `json:"roomName"`
	AdminID  string `json:"adminId"`
}

type roomPayload struct {
	RoomID string `json:"roomId"`
}

type addProblemPayload struct {
	RoomID    string   `json:"roomId"`
	Title     string   `json:"title"`
	Options   []string `json:"options"`
	Answer    int      `json:"answer"`
	Countdown int      `json:"countdown"`
}

type joinRoomPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

type rejoinRoomPayload struct {
	RoomID        string `json:"roomId"`
	ParticipantID string `json:"participantId"`
}

type submitAnswerPayload struct {
	RoomID    string `json:"roomId"`
	ProblemID string `json:"problemId"`
	Answer    int    `json:"answer"`
}

type revealPayload struct {
	RoomID       string  `json:"roomId"`
	DelaySeconds float64 `json:"delaySeconds"`
}

type successPayload struct {
	Action string `json:"action"`
	Result any    `json:"result,omitempty"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// ServeWS upgrades the request and runs the connection until the peer goes away.
// adminId in the query identifies the admin; authentication happens upstream.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}

	c := newClient(conn, r.URL.Query().Get("adminId"))
	h.hub.metrics.ConnectionOpened()
	go c.writePump()

	defer func() {
		h.leave(c)
		h.hub.detach(c)
		c.close()
		h.hub.metrics.ConnectionClosed()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := r.Context()
	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws read error: %v", err)
			}
			return
		}
		received := h.now()
		if err := h.dispatch(ctx, c, msg, received); err != nil {
			h.logf("ws %s failed: %v", msg.Type, err)
			h.hub.reply(c, "error", errorPayload{Error: errorMessage(err)})
		}
	}
}

func (h *WSHandler) dispatch(ctx context.Context, c *client, msg inboundMessage, received time.Time) error {
	switch msg.Type {
	case "createAdmin":
		var p createAdminPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		admin, err := h.registry.CreateAdmin(ctx, p.Username)
		if err != nil {
			return err
		}
		c.adminID = admin.ID
		h.hub.reply(c, "success", successPayload{Action: msg.Type, Result: admin})

	case "createRoom":
		var p createRoomPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		if p.AdminID == "" {
			p.AdminID = c.adminID
		}
		rec, err := h.registry.CreateRoom(ctx, p.RoomName, p.AdminID)
		if err != nil {
			return err
		}
		c.adminID = p.AdminID
		h.attachAdmin(c, rec.ID)
		view, err := h.registry.Room(rec.ID)
		if err != nil {
			return err
		}
		h.hub.reply(c, "room", view)
		h.logf("room %s created by %s", rec.ID, rec.AdminID)

	case "openRoom":
		var p roomPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		view, err := h.registry.OpenRoom(ctx, p.RoomID, c.adminID)
		if err != nil {
			return err
		}
		h.attachAdmin(c, p.RoomID)
		h.hub.reply(c, "room", view)

	case "addProblem":
		var p addProblemPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		problem, err := h.registry.AddProblem(ctx, p.RoomID, c.adminID, domain.Problem{
			Title:     p.Title,
			Options:   p.Options,
			Answer:    p.Answer,
			Countdown: p.Countdown,
		})
		if err != nil {
			return err
		}
		h.hub.reply(c, "success", successPayload{Action: msg.Type, Result: problem})

	case "joinRoom":
		var p joinRoomPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		h.leave(c)
		// attach first so the roster broadcast of this join reaches the new participant
		h.hub.attach(c, p.RoomID, roleParticipant)
		res, err := h.registry.Join(ctx, p.RoomID, p.Username)
		if err != nil {
			h.hub.detach(c)
			return err
		}
		c.participantID = res.ParticipantID
		h.hub.reply(c, "joined", res)
		h.logf("%q joined room %s", p.Username, p.RoomID)

	case "rejoinRoom":
		var p rejoinRoomPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		if p.ParticipantID != c.participantID {
			h.leave(c)
		}
		h.hub.attach(c, p.RoomID, roleParticipant)
		res, err := h.registry.Rejoin(ctx, p.RoomID, p.ParticipantID)
		if err != nil {
			h.hub.detach(c)
			return err
		}
		c.participantID = res.ParticipantID
		h.hub.reply(c, "joined", res)
		if ann, err := h.registry.Current(p.RoomID); err == nil {
			h.hub.reply(c, domain.EventProblem, domain.ProblemPayload{
				Problem: ann.Problem.Public(p.RoomID),
				Status:  ann.Status,
			})
		}

	case "startQuiz":
		roomID, err := h.adminRoom(c, msg.Payload)
		if err != nil {
			return err
		}
		countdown, err := h.registry.Start(ctx, roomID)
		if err != nil {
			return err
		}
		h.hub.reply(c, "success", successPayload{Action: msg.Type, Result: map[string]int{"countdown": countdown}})

	case "advanceProblem":
		roomID, err := h.adminRoom(c, msg.Payload)
		if err != nil {
			return err
		}
		if _, err := h.registry.Advance(ctx, roomID); err != nil {
			return err
		}

	case "submitAnswer":
		var p submitAnswerPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		if c.participantID == "" || c.role != roleParticipant {
			return domain.ErrParticipantNotFound
		}
		if p.RoomID != "" && p.RoomID != c.roomID {
			return domain.ErrForbidden
		}
		res, err := h.registry.Submit(ctx, c.roomID, c.participantID, p.ProblemID, p.Answer, received)
		if err != nil {
			return err
		}
		h.hub.reply(c, "answerResult", res)

	case "revealLeaderboard":
		var p revealPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		if err := h.registry.Authorize(p.RoomID, c.adminID); err != nil {
			return err
		}
		delay := time.Duration(p.DelaySeconds * float64(time.Second))
		if err := h.registry.ScheduleLeaderboardReveal(p.RoomID, delay); err != nil {
			return err
		}
		h.hub.reply(c, "success", successPayload{Action: msg.Type})

	case "endQuiz":
		roomID, err := h.adminRoom(c, msg.Payload)
		if err != nil {
			return err
		}
		lb, err := h.registry.End(ctx, roomID)
		if err != nil {
			return err
		}
		h.hub.reply(c, "resultAdmin", lb)

	default:
		return fmt.Errorf("%w: unsupported message type %q", domain.ErrInvalidInput, msg.Type)
	}
	return nil
}

// adminRoom decodes a {roomId} payload and checks the connection owns that room.
func (h *WSHandler) adminRoom(c *client, raw json.RawMessage) (string, error) {
	var p roomPayload
	if err := decode(raw, &p); err != nil {
		return "", err
	}
	if err := h.registry.Authorize(p.RoomID, c.adminID); err != nil {
		return "", err
	}
	return p.RoomID, nil
}

func (h *WSHandler) attachAdmin(c *client, roomID string) {
	h.leave(c)
	h.hub.attach(c, roomID, roleAdmin)
}

// leave marks the connection's participant as disconnected, if it has one.
func (h *WSHandler) leave(c *client) {
	if c.participantID == "" {
		return
	}
	if err := h.registry.Disconnect(c.roomID, c.participantID); err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
		log.Printf("disconnect %s from room %s: %v", c.participantID, c.roomID, err)
	}
	c.participantID = ""
}

func (h *WSHandler) logf(format string, args ...any) {
	if h.verbose {
		log.Printf(format, args...)
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", domain.ErrInvalidInput)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// errorMessage hides storage and unexpected failures from clients.
func errorMessage(err error) string {
	switch domain.KindOf(err) {
	case domain.KindPersistence:
		return "storage is unavailable, please retry"
	case domain.KindInternal:
		return "internal error"
	default:
		return err.Error()
	}
}
