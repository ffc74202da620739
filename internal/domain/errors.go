package domain

import "errors"

var (
	// ErrRoomNotFound is returned when no live room matches the requested id.
	ErrRoomNotFound = errors.New("room doesn't exist")
	// ErrParticipantNotFound is returned when a participant id is unknown to the room.
	ErrParticipantNotFound = errors.New("participant not found in room")
	// ErrAdminNotFound indicates the admin referenced by a command is not in the catalog.
	ErrAdminNotFound = errors.New("admin not found")
	// ErrRoomExists is returned when an admin already owns a room with the same name.
	ErrRoomExists = errors.New("room already exists")
	// ErrAdminExists is returned when the admin username is taken.
	ErrAdminExists = errors.New("username is already taken")
	// ErrNameTaken is returned when the display name is already used in the room.
	ErrNameTaken = errors.New("user already in room")
	// ErrRoomClosed is returned when joining a room whose quiz has already left waiting.
	ErrRoomClosed = errors.New("room is no longer accepting participants")
	// ErrEmptyQuiz is returned when starting a room that has no problems.
	ErrEmptyQuiz = errors.New("quiz has no problems yet")
	// ErrNoMoreProblems is returned when advancing past the last problem.
	ErrNoMoreProblems = errors.New("there's no problems left")
	// ErrInvalidTransition is returned when a command is not valid for the room status.
	ErrInvalidTransition = errors.New("command not allowed in current room status")
	// ErrProblemNotActive is returned for submissions against a problem that is not live.
	ErrProblemNotActive = errors.New("problem is not active")
	// ErrForbidden is returned when the caller does not own the room.
	ErrForbidden = errors.New("only the room admin can do that")
	// ErrInvalidProblem is returned when a problem definition fails validation.
	ErrInvalidProblem = errors.New("invalid problem")
	// ErrInvalidInput is returned for malformed command arguments.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPersistence wraps failures of the durable catalog.
	ErrPersistence = errors.New("storage failure")
)

// Kind groups errors by how they are reported back to the caller.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindInvalidTransition Kind = "invalid_transition"
	KindForbidden         Kind = "forbidden"
	KindInvalid           Kind = "invalid"
	KindPersistence       Kind = "persistence"
	KindInternal          Kind = "internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrPersistence, KindPersistence},
	{ErrRoomNotFound, KindNotFound},
	{ErrParticipantNotFound, KindNotFound},
	{ErrAdminNotFound, KindNotFound},
	{ErrRoomExists, KindConflict},
	{ErrAdminExists, KindConflict},
	{ErrNameTaken, KindConflict},
	{ErrRoomClosed, KindInvalidTransition},
	{ErrEmptyQuiz, KindInvalidTransition},
	{ErrNoMoreProblems, KindInvalidTransition},
	{ErrInvalidTransition, KindInvalidTransition},
	{ErrProblemNotActive, KindInvalidTransition},
	{ErrForbidden, KindForbidden},
	{ErrInvalidProblem, KindInvalid},
	{ErrInvalidInput, KindInvalid},
}

// KindOf classifies err. Persistence wins over any other sentinel wrapped alongside it.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
