package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCountRoomActivity(t *testing.T) {
	m := New()
	m.RoomOpened()
	m.RoomOpened()
	m.RoomClosed()
	m.AnswerRecorded("correct")
	m.AnswerRecorded("correct")
	m.AnswerRecorded("duplicate")

	if got := testutil.ToFloat64(m.roomsActive); got != 1 {
		t.Fatalf("expected 1 active room, got %v", got)
	}
	if got := testutil.ToFloat64(m.roomsOpened); got != 2 {
		t.Fatalf("expected 2 rooms opened, got %v", got)
	}
	if got := testutil.ToFloat64(m.answers.WithLabelValues("correct")); got != 2 {
		t.Fatalf("expected 2 correct answers, got %v", got)
	}
	if got := testutil.ToFloat64(m.answers.WithLabelValues("duplicate")); got != 1 {
		t.Fatalf("expected 1 duplicate answer, got %v", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ParticipantJoined()
	m.ConnectionOpened()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, name := range []string{"quiz_participants_joined_total 1", "quiz_ws_connections 1", "go_goroutines"} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("expected %q in metrics output", name)
		}
	}
}
