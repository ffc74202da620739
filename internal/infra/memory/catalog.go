package memory

import (
	"context"
	"sync"

	"quiz-host/internal/domain"

	"github.com/google/uuid"
)

// Catalog is a durable-store stand-in backed by maps (useful for tests/demos).
type Catalog struct {
	mu       sync.RWMutex
	admins   map[string]domain.Admin
	rooms    map[string]domain.RoomRecord
	problems map[string][]domain.Problem
}

func NewCatalog() *Catalog {
	return &Catalog{
		admins:   make(map[string]domain.Admin),
		rooms:    make(map[string]domain.RoomRecord),
		problems: make(map[string][]domain.Problem),
	}
}

// NewStaticCatalog seeds a catalog with admins, rooms and their problem sets keyed by quiz id.
func NewStaticCatalog(admins []domain.Admin, rooms []domain.RoomRecord, problems map[string][]domain.Problem) *Catalog {
	c := NewCatalog()
	for _, a := range admins {
		c.admins[a.ID] = a
	}
	for _, r := range rooms {
		c.rooms[r.ID] = r
	}
	for quizID, set := range problems {
		c.problems[quizID] = append([]domain.Problem(nil), set...)
	}
	return c
}

func (c *Catalog) CreateAdmin(_ context.Context, username string) (domain.Admin, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range c.admins {
		if a.Username == username {
			return domain.Admin{}, domain.ErrAdminExists
		}
	}
	admin := domain.Admin{ID: uuid.NewString(), Username: username}
	c.admins[admin.ID] = admin
	return admin, nil
}

func (c *Catalog) FindRoom(_ context.Context, name, adminID string) (domain.RoomRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.rooms {
		if r.Name == name && r.AdminID == adminID {
			return r, nil
		}
	}
	return domain.RoomRecord{}, domain.ErrRoomNotFound
}

func (c *Catalog) GetRoom(_ context.Context, roomID string) (domain.RoomRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if r, ok := c.rooms[roomID]; ok {
		return r, nil
	}
	return domain.RoomRecord{}, domain.ErrRoomNotFound
}

func (c *Catalog) CreateRoom(_ context.Context, room domain.RoomRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.admins[room.AdminID]; !ok {
		return domain.ErrAdminNotFound
	}
	if _, ok := c.rooms[room.ID]; ok {
		return domain.ErrRoomExists
	}
	// same rule as the rooms (admin_id, name) unique index
	for _, r := range c.rooms {
		if r.Name == room.Name && r.AdminID == room.AdminID {
			return domain.ErrRoomExists
		}
	}
	c.rooms[room.ID] = room
	return nil
}

func (c *Catalog) AddProblem(_ context.Context, quizID string, problem domain.Problem) (domain.Problem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if problem.ID == "" {
		problem.ID = uuid.NewString()
	}
	problem.Options = append([]string(nil), problem.Options...)
	c.problems[quizID] = append(c.problems[quizID], problem)
	return problem, nil
}

func (c *Catalog) LoadProblems(_ context.Context, quizID string) ([]domain.Problem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Problem(nil), c.problems[quizID]...), nil
}
