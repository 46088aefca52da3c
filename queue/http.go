package queue

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

type enqueueRequest struct {
	Sentence string `json:"sentence"`
}

// Observer is told about each enqueue and drain handled over HTTP.
type Observer interface {
	SentenceEnqueued(added bool)
	SentencesDrained(n int)
}

type nopObserver struct{}

func (nopObserver) SentenceEnqueued(bool) {}
func (nopObserver) SentencesDrained(int) {}

// Routes mounts the queue boundary on r. POST adds one sentence and GET
// drains everything pending.
func Routes(r chi.Router, q *Queue, obs Observer) {
	if obs == nil {
		obs = nopObserver{}
	}

	r.Post("/api/queue", func(w http.ResponseWriter, req *http.Request) {
		var body enqueueRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil ||
			strings.TrimSpace(body.Sentence) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "Missing sentence",
			})
			return
		}
		obs.SentenceEnqueued(q.Enqueue(body.Sentence))
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	r.Get("/api/queue", func(w http.ResponseWriter, req *http.Request) {
		sentences := q.DrainAll()
		obs.SentencesDrained(len(sentences))
		writeJSON(w, http.StatusOK, sentences)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
