package app

import (
	"context"
	"time"

	"quiz-host/internal/domain"
)

// RoomStore holds the live rooms of this process (in-memory, Redis-marked, etc).
type RoomStore interface {
	// Add registers room and reports false if its id is already taken.
	Add(room *Room) bool
	Get(roomID string) (*Room, bool)
	Delete(roomID string)
	// Touch refreshes liveness bookkeeping after a state change.
	Touch(roomID string)
	Range(fn func(room *Room) bool)
}

// ProblemRepository loads quiz problem sets (from cache/backing store).
type ProblemRepository interface {
	GetProblems(ctx context.Context, quizID string) ([]domain.Problem, error)
	Invalidate(ctx context.Context, quizID string)
}

// Catalog is the durable store of admins, rooms and problems defined ahead of a session.
type Catalog interface {
	CreateAdmin(ctx context.Context, username string) (domain.Admin, error)
	FindRoom(ctx context.Context, name, adminID string) (domain.RoomRecord, error)
	GetRoom(ctx context.Context, roomID string) (domain.RoomRecord, error)
	CreateRoom(ctx context.Context, room domain.RoomRecord) error
	AddProblem(ctx context.Context, quizID string, problem domain.Problem) (domain.Problem, error)
	LoadProblems(ctx context.Context, quizID string) ([]domain.Problem, error)
}

// Broadcaster delivers named events to the connections grouped under a room.
// Implementations must not block: the registry calls it while holding a room lock.
type Broadcaster interface {
	Broadcast(roomID string, audience domain.Audience, event string, payload any)
}

// EventSink receives room lifecycle events for other services.
type EventSink interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

// Metrics observes registry activity.
type Metrics interface {
	RoomOpened()
	RoomClosed()
	ParticipantJoined()
	ProblemPresented()
	AnswerRecorded(outcome string)
}

// Answer outcomes reported to Metrics.
const (
	OutcomeCorrect   = "correct"
	OutcomeWrong     = "wrong"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
)

// Lifecycle event types published to the EventSink.
const (
	EventRoomCreated  = "room.created"
	EventQuizStarted  = "quiz.started"
	EventQuizFinished = "quiz.finished"
)

// Timer is a pending deferred callback.
type Timer interface {
	Stop() bool
}

type noopEvents struct{}

func (noopEvents) Publish(context.Context, string, any) error { return nil }

type noopMetrics struct{}

func (noopMetrics) RoomOpened()           {}
func (noopMetrics) RoomClosed()           {}
func (noopMetrics) ParticipantJoined()    {}
func (noopMetrics) ProblemPresented()     {}
func (noopMetrics) AnswerRecorded(string) {}

func afterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
