package redis

import (
	"context"
	"sync"
	"time"

	"quiz-host/internal/app"

	"github.com/redis/go-redis/v9"
)

// RoomStore is a Redis-aware implementation of app.RoomStore.
// Notes:
//   - Rooms themselves stay in a local map; in-flight quiz state is process-bound.
//   - Redis holds a liveness key per room (status + owning admin) with a TTL that is
//     refreshed on every state change, so operators and other services can see which
//     rooms are being played right now.
type RoomStore struct {
	client *redis.Client
	ttl    time.Duration

	mu    sync.RWMutex
	rooms map[string]*app.Room
}

func NewRoomStore(client *redis.Client, ttl time.Duration) *RoomStore {
	return &RoomStore{
		client: client,
		ttl:    ttl,
		rooms:  make(map[string]*app.Room),
	}
}

// Add registers the room locally, then writes its liveness key outside the map lock.
func (s *RoomStore) Add(room *app.Room) bool {
	s.mu.Lock()
	if _, ok := s.rooms[room.ID()]; ok {
		s.mu.Unlock()
		return false
	}
	s.rooms[room.ID()] = room
	s.mu.Unlock()

	s.mark(room)
	return true
}

func (s *RoomStore) Get(roomID string) (*app.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	return room, ok
}

func (s *RoomStore) Delete(roomID string) {
	s.mu.Lock()
	delete(s.rooms, roomID)
	s.mu.Unlock()

	_ = s.client.Del(context.Background(), s.key(roomID)).Err()
}

func (s *RoomStore) Touch(roomID string) {
	room, ok := s.Get(roomID)
	if !ok {
		return
	}
	s.mark(room)
}

func (s *RoomStore) Range(fn func(room *app.Room) bool) {
	s.mu.RLock()
	rooms := make([]*app.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}
	s.mu.RUnlock()

	for _, room := range rooms {
		if !fn(room) {
			return
		}
	}
}

// mark writes the best-effort liveness key.
func (s *RoomStore) mark(room *app.Room) {
	ctx := context.Background()
	key := s.key(room.ID())
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"status":  string(room.Status()),
		"adminId": room.AdminID(),
		"name":    room.Name(),
	})
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, _ = pipe.Exec(ctx)
}

func (s *RoomStore) key(roomID string) string {
	return "quiz:room:" + roomID
}
