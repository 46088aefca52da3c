package www

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/a-h/templ"
	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"bond/board"
	"bond/confirm"
	"bond/execute"
	"bond/intent"
	"bond/journal"
	"bond/queue"
)

// Pipeline is the part of the consumer the API drives.
type Pipeline interface {
	Interpret(ctx context.Context, sentence string) (intent.Interpretation, error)
	Execute(ctx context.Context, cmd intent.Command) (execute.Result, error)
	Decide(ctx context.Context, id string, approve bool) (confirm.Request, *execute.Result, error)
	Gate() *confirm.Gate
	Journal() journal.Journal
}

type Options struct {
	Queue      *queue.Queue
	Pipeline   Pipeline
	Board      board.Tracker
	MaxResults int
	// QueueObserver is told about queue traffic. May be nil.
	QueueObserver queue.Observer
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

type server struct {
	opts Options
	log  *log.Logger
}

func NewRouter(opts Options, logger *log.Logger) *chi.Mux {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 200
	}
	s := &server{opts: opts, log: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	queue.Routes(r, opts.Queue, opts.QueueObserver)

	r.Post("/api/transcript", s.handleTranscript)
	r.Post("/api/execute", s.handleExecute)
	r.Get("/api/confirmations", s.handleConfirmations)
	r.Post("/api/confirmations/{id}/approve", s.handleDecision(true))
	r.Post("/api/confirmations/{id}/dismiss", s.handleDecision(false))
	r.Get("/api/board", s.handleBoard)
	r.Get("/api/activity", s.handleActivity)

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	r.Method(http.MethodGet, "/", templ.Handler(StatusPage(opts.Queue, opts.Pipeline)))

	return r
}

type transcriptRequest struct {
	Sentence string `json:"sentence"`
}

type transcriptResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Command intent.Command `json:"cmd"`
	Tier    intent.Tier    `json:"tier,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func (s *server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	var body transcriptRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil ||
		strings.TrimSpace(body.Sentence) == "" {
		writeJSON(w, http.StatusBadRequest, transcriptResponse{Error: "Missing sentence", Command: intent.None()})
		return
	}

	result, err := s.opts.Pipeline.Interpret(r.Context(), body.Sentence)
	if err != nil {
		s.log.Error("interpretation failed", "sentence", body.Sentence, "error", err)
		writeJSON(w, http.StatusInternalServerError, transcriptResponse{Error: err.Error(), Command: intent.None()})
		return
	}

	writeJSON(w, http.StatusOK, transcriptResponse{
		Success: true,
		Message: result.Command.Describe(),
		Command: result.Command,
		Tier:    result.Tier,
	})
}

type executeRequest struct {
	Command *intent.Command `json:"cmd"`
}

func (s *server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var body executeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Command == nil {
		writeJSON(w, http.StatusBadRequest, execute.Result{Error: "Missing cmd"})
		return
	}
	if err := body.Command.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, execute.Result{Error: err.Error()})
		return
	}

	res, err := s.opts.Pipeline.Execute(r.Context(), *body.Command)
	writeJSON(w, executionStatus(err), res)
}

func executionStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case execute.IsResolutionError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) handleConfirmations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Pipeline.Gate().Pending())
}

type decisionResponse struct {
	Request confirm.Request `json:"request"`
	Result  *execute.Result `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (s *server) handleDecision(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		req, res, err := s.opts.Pipeline.Decide(r.Context(), id, approve)

		switch {
		case errors.Is(err, confirm.ErrNotFound):
			writeJSON(w, http.StatusNotFound, decisionResponse{Error: err.Error()})
		case errors.Is(err, confirm.ErrAlreadyDecided):
			writeJSON(w, http.StatusConflict, decisionResponse{Request: req, Error: err.Error()})
		case err != nil:
			writeJSON(w, executionStatus(err), decisionResponse{Request: req, Result: res, Error: err.Error()})
		default:
			writeJSON(w, http.StatusOK, decisionResponse{Request: req, Result: res})
		}
	}
}

func (s *server) handleBoard(w http.ResponseWriter, r *http.Request) {
	view, err := board.Load(r.Context(), s.opts.Board, s.opts.MaxResults)
	if err != nil {
		s.log.Error("failed to load board", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *server) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid limit"})
			return
		}
		limit = n
	}

	entries, err := s.opts.Pipeline.Journal().Recent(r.Context(), limit)
	if err != nil {
		s.log.Error("failed to read activity", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
