package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"bond/voice"
)

// Bot reports the voice listener's liveness.
type Bot interface {
	Listening() bool
	Sessions() []voice.SessionInfo
}

type botStatus struct {
	Online    bool                `json:"online"`
	Listening bool                `json:"listening"`
	Sessions  []voice.SessionInfo `json:"sessions"`
}

// NewStatusRouter serves GET /status for the listen process.
func NewStatusRouter(bot Bot, metrics http.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		sessions := bot.Sessions()
		if sessions == nil {
			sessions = []voice.SessionInfo{}
		}
		writeJSON(w, http.StatusOK, botStatus{
			Online:    true,
			Listening: bot.Listening(),
			Sessions:  sessions,
		})
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	return r
}
