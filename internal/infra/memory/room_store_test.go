package memory

import (
	"testing"

	"quiz-host/internal/app"
	"quiz-host/internal/domain"
)

func TestRoomStoreLifecycle(t *testing.T) {
	store := NewRoomStore()

	room := app.NewRoom(domain.RoomRecord{ID: "room-1", Name: "Trivia", AdminID: "admin-1"})
	if !store.Add(room) {
		t.Fatalf("expected room added")
	}
	if store.Add(app.NewRoom(domain.RoomRecord{ID: "room-1"})) {
		t.Fatalf("expected duplicate id rejected")
	}
	if got, ok := store.Get("room-1"); !ok || got != room {
		t.Fatalf("expected room present")
	}

	seen := 0
	store.Range(func(*app.Room) bool { seen++; return true })
	if seen != 1 || store.Len() != 1 {
		t.Fatalf("expected one room, ranged %d len %d", seen, store.Len())
	}

	store.Delete("room-1")
	if _, ok := store.Get("room-1"); ok {
		t.Fatalf("expected room removed")
	}
}
