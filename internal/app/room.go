package app

import (
	"sort"
	"sync"
	"time"

	"quiz-host/internal/domain"
)

// Room is one live quiz: roster, session and the pending leaderboard reveal.
// Every field below mu is guarded by it.
type Room struct {
	id        string
	name      string
	adminID   string
	quizID    string
	createdAt time.Time

	mu           sync.Mutex
	session      *quizSession
	participants []*domain.Participant
	byID         map[string]*domain.Participant
	finishedAt   time.Time
	activeAt     time.Time
	reaped       bool
	reveal       Timer
	revealGen    uint64
}

// NewRoom builds an empty waiting room for a catalog record.
func NewRoom(rec domain.RoomRecord) *Room {
	return &Room{
		id:        rec.ID,
		name:      rec.Name,
		adminID:   rec.AdminID,
		quizID:    rec.QuizID,
		createdAt: rec.CreatedAt,
		activeAt:  rec.CreatedAt,
		session:   newQuizSession(),
		byID:      make(map[string]*domain.Participant),
	}
}

func (r *Room) ID() string      { return r.id }
func (r *Room) Name() string    { return r.name }
func (r *Room) AdminID() string { return r.adminID }
func (r *Room) QuizID() string  { return r.quizID }

// Status reports the current lifecycle state.
func (r *Room) Status() domain.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.status
}

func (r *Room) nameTakenLocked(name string) bool {
	for _, p := range r.participants {
		if p.Name == name {
			return true
		}
	}
	return false
}

func (r *Room) addLocked(p *domain.Participant) {
	r.participants = append(r.participants, p)
	r.byID[p.ID] = p
}

func (r *Room) rosterLocked() []domain.ParticipantView {
	out := make([]domain.ParticipantView, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, domain.ParticipantView{
			ID:     p.ID,
			Name:   p.Name,
			Points: p.Points.InexactFloat64(),
			Avatar: p.Avatar,
			Active: p.Active,
		})
	}
	return out
}

// leaderboardLocked ranks by points, keeping join order among equal scores.
func (r *Room) leaderboardLocked(now time.Time) domain.Leaderboard {
	ranked := make([]*domain.Participant, len(r.participants))
	copy(ranked, r.participants)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Points.GreaterThan(ranked[j].Points)
	})

	entries := make([]domain.LeaderboardEntry, 0, len(ranked))
	for _, p := range ranked {
		entries = append(entries, domain.LeaderboardEntry{
			ParticipantID: p.ID,
			Name:          p.Name,
			Avatar:        p.Avatar,
			Points:        p.Points.InexactFloat64(),
		})
	}
	return domain.Leaderboard{
		RoomID:    r.id,
		Status:    r.session.status,
		Entries:   entries,
		UpdatedAt: now,
	}
}

func (r *Room) viewLocked() domain.RoomView {
	return domain.RoomView{
		ID:           r.id,
		Name:         r.name,
		Status:       r.session.status,
		Participants: r.rosterLocked(),
		Problems:     len(r.session.problems),
	}
}

func (r *Room) joinResultLocked(p *domain.Participant) domain.JoinResult {
	return domain.JoinResult{
		ParticipantID: p.ID,
		RoomID:        r.id,
		Avatar:        p.Avatar,
		Status:        r.session.status,
		Problems:      r.session.publicProblems(r.id),
	}
}

// cancelRevealLocked stops a pending reveal and invalidates one that already fired
// but is still waiting for the lock.
func (r *Room) cancelRevealLocked() {
	if r.reveal != nil {
		r.reveal.Stop()
		r.reveal = nil
	}
	r.revealGen++
}

func (r *Room) reapable(now time.Time, idle time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reapableLocked(now, idle)
}

// reapableLocked reports whether the room can be dropped. A finished room goes once
// nobody is connected or it has been finished for longer than idle. Any other room
// goes when nobody is connected and nothing happened in it for longer than idle.
func (r *Room) reapableLocked(now time.Time, idle time.Duration) bool {
	if r.reaped {
		return false
	}
	if r.session.status == domain.StatusFinished {
		if idle > 0 && now.Sub(r.finishedAt) > idle {
			return true
		}
		return !r.anyActiveLocked()
	}
	return idle > 0 && !r.anyActiveLocked() && now.Sub(r.activeAt) > idle
}

func (r *Room) anyActiveLocked() bool {
	for _, p := range r.participants {
		if p.Active {
			return true
		}
	}
	return false
}
