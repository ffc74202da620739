package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"quiz-host/internal/domain"
)

func TestRouterHealthAndVersion(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "quiz-host vtest") {
		t.Fatalf("unexpected version body %q", body)
	}
}

func TestRouterRoomAndQR(t *testing.T) {
	server, registry := newTestServer(t)

	resp, err := http.Get(server.URL + "/rooms/room-1/qr")
	if err != nil {
		t.Fatalf("qr: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 before the room is live, got %d", resp.StatusCode)
	}

	if _, err := registry.OpenRoom(testContext(t), "room-1", "admin-1"); err != nil {
		t.Fatalf("open room: %v", err)
	}

	resp, err = http.Get(server.URL + "/rooms/room-1/qr")
	if err != nil {
		t.Fatalf("qr: %v", err)
	}
	png, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.Header.Get("Content-Type") != "image/png" || !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatalf("expected png, got %q", resp.Header.Get("Content-Type"))
	}

	resp, err = http.Get(server.URL + "/rooms/room-1")
	if err != nil {
		t.Fatalf("room: %v", err)
	}
	defer resp.Body.Close()
	var view domain.RoomView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode room: %v", err)
	}
	if view.Name != "Friday" || view.Status != domain.StatusWaiting {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestJoinURL(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://quiz.local/rooms/abc/qr", nil)
	req.Header.Set("X-Forwarded-Proto", "https")

	if got := joinURL(RouterConfig{}, req, "abc"); got != "https://quiz.local/?roomId=abc" {
		t.Fatalf("unexpected derived url %q", got)
	}
	if got := joinURL(RouterConfig{PublicURL: "https://play.example.com/"}, req, "abc"); got != "https://play.example.com/?roomId=abc" {
		t.Fatalf("unexpected configured url %q", got)
	}
}

// testContext stands in for testing.T.Context (Go 1.24+): a context that is
// cancelled when the test finishes.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
