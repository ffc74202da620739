package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the quiz host collectors on a dedicated registry.
type Metrics struct {
	reg *prometheus.Registry

	roomsActive     prometheus.Gauge
	roomsOpened     prometheus.Counter
	participants    prometheus.Counter
	problems        prometheus.Counter
	answers         *prometheus.CounterVec
	connections     prometheus.Gauge
	droppedMessages prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		roomsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "quiz_rooms_active",
			Help: "Rooms currently held by the registry",
		}),
		roomsOpened: f.NewCounter(prometheus.CounterOpts{
			Name: "quiz_rooms_opened_total",
			Help: "Rooms registered since start",
		}),
		participants: f.NewCounter(prometheus.CounterOpts{
			Name: "quiz_participants_joined_total",
			Help: "Participants that joined a room",
		}),
		problems: f.NewCounter(prometheus.CounterOpts{
			Name: "quiz_problems_presented_total",
			Help: "Problems presented to rooms",
		}),
		answers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_answers_total",
			Help: "Answer submissions by outcome",
		}, []string{"outcome"}), // correct/wrong/duplicate/rejected
		connections: f.NewGauge(prometheus.GaugeOpts{
			Name: "quiz_ws_connections",
			Help: "Open websocket connections",
		}),
		droppedMessages: f.NewCounter(prometheus.CounterOpts{
			Name: "quiz_ws_dropped_messages_total",
			Help: "Outbound messages dropped because a client was too slow",
		}),
	}
}

func (m *Metrics) RoomOpened() {
	m.roomsActive.Inc()
	m.roomsOpened.Inc()
}

func (m *Metrics) RoomClosed()                   { m.roomsActive.Dec() }
func (m *Metrics) ParticipantJoined()            { m.participants.Inc() }
func (m *Metrics) ProblemPresented()             { m.problems.Inc() }
func (m *Metrics) AnswerRecorded(outcome string) { m.answers.WithLabelValues(outcome).Inc() }
func (m *Metrics) ConnectionOpened()             { m.connections.Inc() }
func (m *Metrics) ConnectionClosed()             { m.connections.Dec() }
func (m *Metrics) MessageDropped()               { m.droppedMessages.Inc() }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
