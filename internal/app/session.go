package app

import (
	"time"

	"quiz-host/internal/domain"
	"quiz-host/internal/scoring"

	"github.com/shopspring/decimal"
)

type answerKey struct {
	participantID string
	problemID     string
}

// quizSession is the problem sequence, cursor and timing state of one room.
// It is not safe for concurrent use; the owning Room serializes access.
type quizSession struct {
	problems []domain.Problem
	loaded   bool
	// current counts presented problems; the live one is problems[current-1].
	current   int
	startTime time.Time
	status    domain.Status
	answered  map[answerKey]struct{}
}

func newQuizSession() *quizSession {
	return &quizSession{
		status:   domain.StatusWaiting,
		answered: make(map[answerKey]struct{}),
	}
}

func (s *quizSession) needsProblems() bool {
	return !s.loaded
}

// start moves waiting -> started and returns the first problem's countdown.
// problems is only used when no set has been loaded yet.
func (s *quizSession) start(problems []domain.Problem) (int, error) {
	if s.status != domain.StatusWaiting {
		return 0, domain.ErrInvalidTransition
	}
	if !s.loaded {
		if len(problems) == 0 {
			return 0, domain.ErrEmptyQuiz
		}
		s.problems = make([]domain.Problem, len(problems))
		for i, p := range problems {
			p.Options = append([]string(nil), p.Options...)
			s.problems[i] = p
		}
		s.loaded = true
	}
	if len(s.problems) == 0 {
		return 0, domain.ErrEmptyQuiz
	}
	s.status = domain.StatusStarted
	return s.problems[0].Countdown, nil
}

func (s *quizSession) advance(now time.Time) (domain.ProblemAnnouncement, error) {
	if s.status != domain.StatusStarted && s.status != domain.StatusOngoing {
		return domain.ProblemAnnouncement{}, domain.ErrInvalidTransition
	}
	if s.current >= len(s.problems) {
		return domain.ProblemAnnouncement{}, domain.ErrNoMoreProblems
	}
	problem := s.problems[s.current]
	s.current++
	s.startTime = now
	s.status = domain.StatusOngoing
	return domain.ProblemAnnouncement{
		Problem:   problem,
		Index:     s.current - 1,
		Countdown: problem.Countdown,
		Status:    s.status,
	}, nil
}

// end is idempotent once play has begun.
func (s *quizSession) end() error {
	if s.status == domain.StatusWaiting {
		return domain.ErrInvalidTransition
	}
	s.status = domain.StatusFinished
	return nil
}

// active returns the live problem, if any.
func (s *quizSession) active() (domain.Problem, bool) {
	if s.status != domain.StatusOngoing || s.current == 0 {
		return domain.Problem{}, false
	}
	return s.problems[s.current-1], true
}

func (s *quizSession) isActive(problemID string) bool {
	p, ok := s.active()
	return ok && p.ID == problemID
}

// answer scores one submission against the live problem. Only the first submission of a
// participant per problem counts; later ones report duplicate and score nothing.
func (s *quizSession) answer(participantID, problemID string, choice int, submitTime time.Time) (awarded decimal.Decimal, correct, duplicate bool, err error) {
	problem, ok := s.active()
	if !ok || problem.ID != problemID {
		return decimal.Zero, false, false, domain.ErrProblemNotActive
	}
	key := answerKey{participantID: participantID, problemID: problemID}
	if _, seen := s.answered[key]; seen {
		return decimal.Zero, false, true, nil
	}
	s.answered[key] = struct{}{}

	if choice != problem.Answer {
		return decimal.Zero, false, false, nil
	}
	return scoring.Score(s.startTime, submitTime, problem.Countdown), true, false, nil
}

func (s *quizSession) publicProblems(roomID string) []domain.PublicProblem {
	out := make([]domain.PublicProblem, 0, len(s.problems))
	for _, p := range s.problems {
		out = append(out, p.Public(roomID))
	}
	return out
}
