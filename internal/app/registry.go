package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	mrand "math/rand"
	"strconv"
	"strings"
	"time"

	"quiz-host/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	roomIDLength = 15
	avatarCount  = 7
)

// Registry owns the live rooms and applies every room command.
type Registry struct {
	rooms    RoomStore
	problems ProblemRepository
	catalog  Catalog
	out      Broadcaster

	events      EventSink
	metrics     Metrics
	log         *log.Logger
	now         func() time.Time
	afterFunc   func(time.Duration, func()) Timer
	idleTimeout time.Duration
}

// Option customizes a Registry.
type Option func(*Registry)

// WithClock replaces time.Now, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithAfterFunc replaces time.AfterFunc for the leaderboard reveal timer.
func WithAfterFunc(fn func(time.Duration, func()) Timer) Option {
	return func(r *Registry) { r.afterFunc = fn }
}

func WithLogger(l *log.Logger) Option {
	return func(r *Registry) { r.log = l }
}

func WithEvents(sink EventSink) Option {
	return func(r *Registry) { r.events = sink }
}

func WithMetrics(m Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithIdleTimeout sets how long an idle or finished room is kept before the reaper drops it.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) { r.idleTimeout = d }
}

func NewRegistry(rooms RoomStore, problems ProblemRepository, catalog Catalog, out Broadcaster, opts ...Option) *Registry {
	r := &Registry{
		rooms:       rooms,
		problems:    problems,
		catalog:     catalog,
		out:         out,
		events:      noopEvents{},
		metrics:     noopMetrics{},
		log:         log.Default(),
		now:         time.Now,
		afterFunc:   afterFunc,
		idleTimeout: 30 * time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateAdmin registers a new admin in the catalog.
func (r *Registry) CreateAdmin(ctx context.Context, username string) (domain.Admin, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.Admin{}, domain.ErrInvalidInput
	}
	admin, err := r.catalog.CreateAdmin(ctx, username)
	if err != nil {
		return domain.Admin{}, storageErr("create admin", err)
	}
	return admin, nil
}

// CreateRoom persists a room and its quiz skeleton, then registers it live in waiting state.
func (r *Registry) CreateRoom(ctx context.Context, name, adminID string) (domain.RoomRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" || adminID == "" {
		return domain.RoomRecord{}, domain.ErrInvalidInput
	}

	_, err := r.catalog.FindRoom(ctx, name, adminID)
	switch {
	case err == nil:
		return domain.RoomRecord{}, domain.ErrRoomExists
	case !errors.Is(err, domain.ErrRoomNotFound):
		return domain.RoomRecord{}, storageErr("find room", err)
	}

	rec := domain.RoomRecord{
		ID:        r.newRoomID(),
		Name:      name,
		AdminID:   adminID,
		QuizID:    uuid.NewString(),
		CreatedAt: r.now(),
	}
	if err := r.catalog.CreateRoom(ctx, rec); err != nil {
		return domain.RoomRecord{}, storageErr("create room", err)
	}
	if !r.rooms.Add(NewRoom(rec)) {
		return domain.RoomRecord{}, domain.ErrRoomExists
	}

	r.metrics.RoomOpened()
	r.publish(ctx, EventRoomCreated, rec)
	r.log.Printf("room %s (%q) created by admin %s", rec.ID, rec.Name, rec.AdminID)
	return rec, nil
}

// OpenRoom attaches an admin to a room, registering it from the catalog when it is not
// live in this process (e.g. after a restart).
func (r *Registry) OpenRoom(ctx context.Context, roomID, adminID string) (domain.RoomView, error) {
	room, ok := r.rooms.Get(roomID)
	if !ok {
		rec, err := r.catalog.GetRoom(ctx, roomID)
		if err != nil {
			return domain.RoomView{}, storageErr("get room", err)
		}
		if rec.AdminID != adminID {
			return domain.RoomView{}, domain.ErrForbidden
		}
		room = NewRoom(rec)
		room.activeAt = r.now()
		if r.rooms.Add(room) {
			r.metrics.RoomOpened()
		} else if room, ok = r.rooms.Get(roomID); !ok {
			return domain.RoomView{}, domain.ErrRoomNotFound
		}
	}
	if room.AdminID() != adminID {
		return domain.RoomView{}, domain.ErrForbidden
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	room.activeAt = r.now()
	return room.viewLocked(), nil
}

// Authorize checks that adminID owns the room.
func (r *Registry) Authorize(roomID, adminID string) error {
	room, ok := r.rooms.Get(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	if adminID == "" || room.AdminID() != adminID {
		return domain.ErrForbidden
	}
	return nil
}

// AddProblem stores a new problem for the room's quiz. A session that already loaded its
// problem set keeps that snapshot.
func (r *Registry) AddProblem(ctx context.Context, roomID, adminID string, problem domain.Problem) (domain.Problem, error) {
	if err := r.Authorize(roomID, adminID); err != nil {
		return domain.Problem{}, err
	}
	if err := problem.Validate(); err != nil {
		return domain.Problem{}, err
	}
	room, ok := r.rooms.Get(roomID)
	if !ok {
		return domain.Problem{}, domain.ErrRoomNotFound
	}

	stored, err := r.catalog.AddProblem(ctx, room.QuizID(), problem)
	if err != nil {
		return domain.Problem{}, storageErr("add problem", err)
	}
	r.problems.Invalidate(ctx, room.QuizID())

	room.mu.Lock()
	room.activeAt = r.now()
	room.mu.Unlock()
	return stored, nil
}

// Join adds a participant to a waiting room and broadcasts the new roster.
func (r *Registry) Join(_ context.Context, roomID, name string) (domain.JoinResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.JoinResult{}, domain.ErrInvalidInput
	}
	room, ok := r.rooms.Get(roomID)
	if !ok {
		return domain.JoinResult{}, domain.ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.reaped {
		return domain.JoinResult{}, domain.ErrRoomNotFound
	}
	if room.nameTakenLocked(name) {
		return domain.JoinResult{}, domain.ErrNameTaken
	}
	if room.session.status != domain.StatusWaiting {
		return domain.JoinResult{}, domain.ErrRoomClosed
	}

	p := &domain.Participant{
		ID:       uuid.NewString(),
		Name:     name,
		Points:   decimal.Zero,
		Avatar:   strconv.Itoa(mrand.Intn(avatarCount) + 1),
		JoinedAt: r.now(),
		Active:   true,
	}
	room.addLocked(p)
	room.activeAt = p.JoinedAt
	r.broadcastRosterLocked(room)
	r.metrics.ParticipantJoined()
	return room.joinResultLocked(p), nil
}

// Rejoin reactivates a participant that lost its connection. Allowed in any status since
// the participant already holds a place on the leaderboard.
func (r *Registry) Rejoin(_ context.Context, roomID, participantID string) (domain.JoinResult, error) {
	room, ok := r.rooms.Get(roomID)
	if !ok {
		return domain.JoinResult{}, domain.ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.reaped {
		return domain.JoinResult{}, domain.ErrRoomNotFound
	}
	p, ok := room.byID[participantID]
	if !ok {
		return domain.JoinResult{}, domain.ErrParticipantNotFound
	}
	room.activeAt = r.now()
	if !p.Active {
		p.Active = true
		r.broadcastRosterLocked(room)
	}
	return room.joinResultLocked(p), nil
}

// Disconnect marks a participant inactive. The participant keeps its points and place.
func (r *Registry) Disconnect(roomID, participantID string) error {
	room, ok := r.rooms.Get(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	p, ok := room.byID[participantID]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	room.activeAt = r.now()
	if p.Active {
		p.Active = false
		r.broadcastRosterLocked(room)
	}
	return nil
}

// Submit scores an answer against the room's live problem. Wrong and repeated answers are
// not errors; submissions for a problem that is no longer live are rejected.
func (r *Registry) Submit(_ context.Context, roomID, participantID, problemID string, choice int, submitTime time.Time) (domain.AnswerResult, error) {
	room, ok := r.rooms.Get(roomID)
	if !ok {
		r.log.Printf("submit: room %s not found", roomID)
		return domain.AnswerResult{}, domain.ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if !room.session.isActive(problemID) {
		r.metrics.AnswerRecorded(OutcomeRejected)
		return domain.AnswerResult{}, domain.ErrProblemNotActive
	}
	p, ok := room.byID[participantID]
	if !ok {
		r.log.Printf("submit: participant %s not found in room %s", participantID, roomID)
		r.metrics.AnswerRecorded(OutcomeRejected)
		return domain.AnswerResult{}, domain.ErrParticipantNotFound
	}

	awarded, correct, duplicate, err := room.session.answer(participantID, problemID, choice, submitTime)
	if err != nil {
		r.metrics.AnswerRecorded(OutcomeRejected)
		return domain.AnswerResult{}, err
	}
	p.Points = p.Points.Add(awarded)
	room.activeAt = r.now()

	switch {
	case duplicate:
		r.metrics.AnswerRecorded(OutcomeDuplicate)
	case correct:
		r.metrics.AnswerRecorded(OutcomeCorrect)
	default:
		r.metrics.AnswerRecorded(OutcomeWrong)
	}
	return domain.AnswerResult{
		ProblemID: problemID,
		Correct:   correct,
		Duplicate: duplicate,
		Awarded:   awarded.InexactFloat64(),
		Total:     p.Points.InexactFloat64(),
	}, nil
}

// Start begins play, loading the problem set on first use. It returns the first
// problem's countdown; the first problem is shown by Advance.
func (r *Registry) Start(ctx context.Context, roomID string) (int, error) {
	room, ok := r.rooms.Get(roomID)
	if !ok {
		return 0, domain.ErrRoomNotFound
	}

	room.mu.Lock()
	status, needs := room.session.status, room.session.needsProblems()
	room.mu.Unlock()
	if status != domain.StatusWaiting {
		return 0, domain.ErrInvalidTransition
	}

	var problems []domain.Problem
	if needs {
		var err error
		problems, err = r.problems.GetProblems(ctx, room.QuizID())
		if err != nil {
			return 0, storageErr("load problems", err)
		}
	}

	room.mu.Lock()
	countdown, err := room.session.start(problems)
	count := len(room.session.problems)
	if err == nil {
		room.activeAt = r.now()
	}
	room.mu.Unlock()
	if err != nil {
		return 0, err
	}

	r.rooms.Touch(roomID)
	r.publish(ctx, EventQuizStarted, map[string]any{"roomId": roomID, "problems": count})
	return countdown, nil
}

// Advance presents the next problem, stamping its start time right before announcing it.
func (r *Registry) Advance(_ context.Context, roomID string) (domain.ProblemAnnouncement, error) {
	room, ok := r.rooms.Get(roomID)
	if !ok {
		return domain.ProblemAnnouncement{}, domain.ErrRoomNotFound
	}

	room.mu.Lock()
	ann, err := room.session.advance(r.now())
	if err != nil {
		room.mu.Unlock()
		return domain.ProblemAnnouncement{}, err
	}
	room.cancelRevealLocked()
	room.activeAt = r.now()

	r.out.Broadcast(roomID, domain.AudienceRoom, domain.EventProblem, domain.ProblemPayload{
		Problem: ann.Problem.Public(roomID),
		Status:  ann.Status,
	})
	r.out.Broadcast(roomID, domain.AudienceAdmins, domain.EventAdminProblem, domain.AdminProblemPayload{
		Problem: ann.Problem,
		Index:   ann.Index,
		Status:  ann.Status,
	})
	room.mu.Unlock()

	r.metrics.ProblemPresented()
	r.rooms.Touch(roomID)
	return ann, nil
}

// End finishes the quiz and broadcasts the final leaderboard. Repeating it is harmless.
func (r *Registry) End(ctx context.Context, roomID string) (domain.Leaderboard, error) {
	room, ok := r.rooms.Get(roomID)
	if !ok {
		return domain.Leaderboard{}, domain.ErrRoomNotFound
	}

	room.mu.Lock()
	first := room.session.status != domain.StatusFinished
	if err := room.session.end(); err != nil {
		room.mu.Unlock()
		return domain.Leaderboard{}, err
	}
	now := r.now()
	if first {
		room.finishedAt = now
	}
	room.cancelRevealLocked()
	lb := room.leaderboardLocked(now)
	r.out.Broadcast(roomID, domain.AudienceRoom, domain.EventEnd, domain.EndPayload{
		Status:      lb.Status,
		Leaderboard: lb.Entries,
	})
	room.mu.Unlock()

	if first {
		r.rooms.Touch(roomID)
		r.publish(ctx, EventQuizFinished, lb)
	}
	return lb, nil
}

// ScheduleLeaderboardReveal broadcasts intermediate standings after delay. A newer
// schedule, the next problem or the end of the quiz cancels it.
func (r *Registry) ScheduleLeaderboardReveal(roomID string, delay time.Duration) error {
	if delay < 0 {
		return domain.ErrInvalidInput
	}
	room, ok := r.rooms.Get(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	switch room.session.status {
	case domain.StatusStarted, domain.StatusOngoing:
	default:
		return domain.ErrInvalidTransition
	}
	room.cancelRevealLocked()
	room.activeAt = r.now()
	gen := room.revealGen
	room.reveal = r.afterFunc(delay, func() { r.revealLeaderboard(room, gen) })
	return nil
}

func (r *Registry) revealLeaderboard(room *Room, gen uint64) {
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.revealGen != gen {
		return
	}
	room.reveal = nil
	lb := room.leaderboardLocked(r.now())
	r.out.Broadcast(room.ID(), domain.AudienceRoom, domain.EventLeaderboard, domain.LeaderboardPayload{
		Leaderboard: lb.Entries,
		Status:      domain.LeaderboardStatus,
	})
}

// Current returns the problem that is live right now.
func (r *Registry) Current(roomID string) (domain.ProblemAnnouncement, error) {
	room, ok := r.rooms.Get(roomID)
	if !ok {
		return domain.ProblemAnnouncement{}, domain.ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	p, ok := room.session.active()
	if !ok {
		return domain.ProblemAnnouncement{}, domain.ErrProblemNotActive
	}
	return domain.ProblemAnnouncement{
		Problem:   p,
		Index:     room.session.current - 1,
		Countdown: p.Countdown,
		Status:    room.session.status,
	}, nil
}

// Room returns a snapshot of a live room.
func (r *Registry) Room(roomID string) (domain.RoomView, error) {
	room, ok := r.rooms.Get(roomID)
	if !ok {
		return domain.RoomView{}, domain.ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return room.viewLocked(), nil
}

// Leaderboard returns the current standings.
func (r *Registry) Leaderboard(roomID string) (domain.Leaderboard, error) {
	room, ok := r.rooms.Get(roomID)
	if !ok {
		return domain.Leaderboard{}, domain.ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return room.leaderboardLocked(r.now()), nil
}

// Sweep drops finished rooms nobody is connected to, and rooms that stayed idle past
// the idle timeout. Reaped rooms can be opened again from the catalog.
func (r *Registry) Sweep(now time.Time) int {
	var stale []*Room
	r.rooms.Range(func(room *Room) bool {
		if room.reapable(now, r.idleTimeout) {
			stale = append(stale, room)
		}
		return true
	})

	reaped := 0
	for _, room := range stale {
		room.mu.Lock()
		// a join may have landed since the scan
		if !room.reapableLocked(now, r.idleTimeout) {
			room.mu.Unlock()
			continue
		}
		room.reaped = true
		room.cancelRevealLocked()
		status := room.session.status
		room.mu.Unlock()

		r.rooms.Delete(room.ID())
		r.metrics.RoomClosed()
		r.log.Printf("room %s reaped (%s)", room.ID(), status)
		reaped++
	}
	return reaped
}

// RunReaper sweeps periodically until ctx is done.
func (r *Registry) RunReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.now())
		}
	}
}

func (r *Registry) broadcastRosterLocked(room *Room) {
	r.out.Broadcast(room.ID(), domain.AudienceRoom, domain.EventParticipants, domain.ParticipantsPayload{
		Participants: room.rosterLocked(),
	})
}

// publish is fire-and-forget: a failing sink never rolls back room state.
func (r *Registry) publish(ctx context.Context, eventType string, payload any) {
	if err := r.events.Publish(ctx, eventType, payload); err != nil {
		r.log.Printf("publish %s: %v", eventType, err)
	}
}

// newRoomID returns a random alphanumeric id not used by a live room.
func (r *Registry) newRoomID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	buf := make([]byte, roomIDLength)
	for {
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, roomIDLength)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)
		if _, exists := r.rooms.Get(id); !exists {
			return id
		}
	}
}

// storageErr keeps classified catalog errors as they are and marks the rest as
// persistence failures.
func storageErr(op string, err error) error {
	if domain.KindOf(err) != domain.KindInternal {
		return err
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrPersistence, op, err)
}
