package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a room. It only moves forward.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusStarted  Status = "started"
	StatusOngoing  Status = "ongoing"
	StatusFinished Status = "finished"
)

// LeaderboardStatus labels an intermediate standings broadcast.
const LeaderboardStatus = "leaderboard"

// Participant is a joined user, tracked for the lifetime of the room.
type Participant struct {
	ID       string
	Name     string
	Points   decimal.Decimal
	Avatar   string
	JoinedAt time.Time
	Active   bool
}

// ParticipantView is the roster entry broadcast to the room.
type ParticipantView struct {
	ID     string  `json:"id"`
	Name   string  `json:"username"`
	Points float64 `json:"points"`
	Avatar string  `json:"image"`
	Active bool    `json:"active"`
}

// Problem is one multiple-choice question with a time limit in seconds.
type Problem struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Options   []string `json:"options"`
	Answer    int      `json:"answer"`
	Countdown int      `json:"countdown"`
}

// PublicProblem is the participant view of a problem, without the answer key.
type PublicProblem struct {
	ID        string   `json:"id"`
	RoomID    string   `json:"roomId"`
	Title     string   `json:"title"`
	Options   []string `json:"options"`
	Countdown int      `json:"countdown"`
}

// Public strips the answer key.
func (p Problem) Public(roomID string) PublicProblem {
	return PublicProblem{
		ID:        p.ID,
		RoomID:    roomID,
		Title:     p.Title,
		Options:   append([]string(nil), p.Options...),
		Countdown: p.Countdown,
	}
}

// Validate checks a problem definition before it is stored.
func (p Problem) Validate() error {
	switch {
	case p.Title == "":
		return ErrInvalidProblem
	case len(p.Options) < 2:
		return ErrInvalidProblem
	case p.Answer < 0 || p.Answer >= len(p.Options):
		return ErrInvalidProblem
	case p.Countdown <= 0:
		return ErrInvalidProblem
	}
	return nil
}

// Admin is a quiz owner registered in the catalog.
type Admin struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// RoomRecord is the durable catalog row for a room and its quiz.
type RoomRecord struct {
	ID        string    `json:"roomId"`
	Name      string    `json:"name"`
	AdminID   string    `json:"adminId"`
	QuizID    string    `json:"quizId"`
	CreatedAt time.Time `json:"createdAt"`
}

// RoomView summarizes a live room for its admin.
type RoomView struct {
	ID           string            `json:"roomId"`
	Name         string            `json:"name"`
	Status       Status            `json:"status"`
	Participants []ParticipantView `json:"participants"`
	Problems     int               `json:"noOfProblems"`
}

// LeaderboardEntry is a ranked participant.
type LeaderboardEntry struct {
	ParticipantID string  `json:"id"`
	Name          string  `json:"username"`
	Avatar        string  `json:"image"`
	Points        float64 `json:"points"`
}

// Leaderboard is the ranked standings of a room.
type Leaderboard struct {
	RoomID    string             `json:"roomId"`
	Status    Status             `json:"status"`
	Entries   []LeaderboardEntry `json:"leaderboard"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// JoinResult is returned to a participant that joined or rejoined a room.
type JoinResult struct {
	ParticipantID string          `json:"id"`
	RoomID        string          `json:"roomId"`
	Avatar        string          `json:"image"`
	Status        Status          `json:"status"`
	Problems      []PublicProblem `json:"problems"`
}

// ProblemAnnouncement describes a problem that just went live.
type ProblemAnnouncement struct {
	Problem   Problem `json:"problem"`
	Index     int     `json:"index"`
	Countdown int     `json:"countdown"`
	Status    Status  `json:"status"`
}

// AnswerResult summarizes the outcome of one submission.
type AnswerResult struct {
	ProblemID string  `json:"problemId"`
	Correct   bool    `json:"correct"`
	Duplicate bool    `json:"duplicate"`
	Awarded   float64 `json:"awarded"`
	Total     float64 `json:"total"`
}

// Audience selects which connections of a room group receive a broadcast.
type Audience int

const (
	AudienceRoom Audience = iota
	AudienceAdmins
)

// Outbound event names.
const (
	EventParticipants = "participants"
	EventProblem      = "problem"
	EventAdminProblem = "adminProblem"
	EventLeaderboard  = "leaderboard"
	EventEnd          = "end"
)

// ParticipantsPayload is the roster snapshot event.
type ParticipantsPayload struct {
	Participants []ParticipantView `json:"participants"`
}

// ProblemPayload is the participant-facing problem event.
type ProblemPayload struct {
	Problem PublicProblem `json:"problem"`
	Status  Status        `json:"status"`
}

// AdminProblemPayload is the admin-facing problem event, including the answer key.
type AdminProblemPayload struct {
	Problem Problem `json:"problem"`
	Index   int     `json:"index"`
	Status  Status  `json:"status"`
}

// LeaderboardPayload carries intermediate standings.
type LeaderboardPayload struct {
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
	Status      string             `json:"status"`
}

// EndPayload carries the final standings.
type EndPayload struct {
	Status      Status             `json:"status"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}
