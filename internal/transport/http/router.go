package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quiz-host/internal/app"
	"quiz-host/internal/domain"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320

// RouterConfig collects what the HTTP surface needs.
type RouterConfig struct {
	Registry *app.Registry
	WS       *WSHandler
	Metrics  http.Handler
	Version  string
	// PublicURL is the base of join links encoded in QR codes. Empty means
	// derive it from the request.
	PublicURL string
	Verbose   bool
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := httprouter.New()

	mux.GET("/healthz", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.GET("/version", serveVersion(cfg))
	if cfg.Metrics != nil {
		mux.Handler(http.MethodGet, "/metrics", cfg.Metrics)
	}
	mux.GET("/rooms/:roomId", serveRoom(cfg))
	mux.GET("/rooms/:roomId/qr", serveQR(cfg))
	mux.HandlerFunc(http.MethodGet, "/ws", cfg.WS.ServeWS)

	return mux
}

func serveVersion(cfg RouterConfig) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("quiz-host v" + cfg.Version + "\n"))
		logf(cfg, "SERVE: version to %s in %s", r.RemoteAddr, time.Since(startTime).Round(time.Microsecond))
	}
}

func serveRoom(cfg RouterConfig) httprouter.Handle {
	return func(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
		view, err := cfg.Registry.Room(ps.ByName("roomId"))
		if errors.Is(err, domain.ErrRoomNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(view)
	}
}

// serveQR renders a PNG QR code of the room's join link.
func serveQR(cfg RouterConfig) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := ps.ByName("roomId")
		if _, err := cfg.Registry.Room(roomID); err != nil {
			http.Error(w, domain.ErrRoomNotFound.Error(), http.StatusNotFound)
			return
		}

		png, err := qrcode.Encode(joinURL(cfg, r, roomID), qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
		logf(cfg, "SERVE: qr for room %s to %s", roomID, r.RemoteAddr)
	}
}

func joinURL(cfg RouterConfig, r *http.Request, roomID string) string {
	base := strings.TrimSuffix(cfg.PublicURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/?roomId=" + url.QueryEscape(roomID)
}

func logf(cfg RouterConfig, format string, args ...any) {
	if cfg.Verbose {
		log.Printf(format, args...)
	}
}
