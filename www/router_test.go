package www

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"bond/confirm"
	"bond/execute"
	"bond/intent"
	"bond/jira"
	"bond/journal"
	"bond/metrics"
	"bond/pipeline"
	"bond/queue"
	"bond/voice"
)

type MockTracker struct {
	transitionErr error
}

func (m *MockTracker) BoardConfiguration(ctx context.Context) (*jira.BoardConfiguration, error) {
	return &jira.BoardConfiguration{ColumnConfig: jira.ColumnConfig{Columns: []jira.Column{
		{Name: "To Do", Statuses: []jira.StatusRef{{ID: "1"}}},
		{Name: "Done", Statuses: []jira.StatusRef{{ID: "3"}}},
	}}}, nil
}

func (m *MockTracker) BoardIssues(ctx context.Context, maxResults int) ([]jira.Issue, error) {
	return []jira.Issue{
		{Key: "KAN-1", Fields: jira.IssueFields{Summary: "Login page", Status: jira.StatusRef{ID: "1"}}},
		{Key: "KAN-2", Fields: jira.IssueFields{Summary: "<script>", Status: jira.StatusRef{ID: "3"}}},
	}, nil
}

func (m *MockTracker) Transitions(ctx context.Context, key string) ([]jira.Transition, error) {
	return []jira.Transition{{ID: "31", To: jira.StatusRef{ID: "3"}}}, nil
}

func (m *MockTracker) DoTransition(ctx context.Context, key, id string) error {
	return m.transitionErr
}

func (m *MockTracker) SampleIssueKey(ctx context.Context) (string, error) {
	return "KAN-1", nil
}

func (m *MockTracker) CreateIssue(ctx context.Context, project, summary, issueType string) (*jira.CreatedIssue, error) {
	return &jira.CreatedIssue{Key: project + "-9"}, nil
}

type harness struct {
	server   *httptest.Server
	queue    *queue.Queue
	consumer *pipeline.Consumer
	tracker  *MockTracker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := log.New(io.Discard)
	tracker := &MockTracker{}
	q := queue.New()
	m := metrics.New()
	consumer := pipeline.New(pipeline.Options{
		Source:      q,
		Tracker:     tracker,
		Interpreter: intent.NewInterpreter(nil, intent.NoneFallback, logger),
		Gate:        confirm.NewGate(),
		Executor:    execute.NewService(tracker, logger),
		Journal:     journal.NewMemory(10),
		Observer:    m,
	}, logger)

	srv := httptest.NewServer(NewRouter(Options{
		Queue:         q,
		Pipeline:      consumer,
		Board:         tracker,
		QueueObserver: m,
		Metrics:       m.Handler(),
	}, logger))
	t.Cleanup(srv.Close)
	return &harness{server: srv, queue: q, consumer: consumer, tracker: tracker}
}

func (h *harness) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, h.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, data
}

func TestTranscript(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCmd    intent.Command
		wantMsg    string
	}{
		{"move", `{"sentence":"move login page to done"}`, 200, intent.Move("KAN-1", "3"), "Move KAN-1 → status 3"},
		{"create", `{"sentence":"create ticket called Add Search"}`, 200, intent.Create("Add Search"), `Create new issue: "Add Search"`},
		{"none", `{"sentence":"nice weather"}`, 200, intent.None(), "No action"},
		{"missing", `{}`, 400, intent.None(), ""},
		{"blank", `{"sentence":"   "}`, 400, intent.None(), ""},
		{"garbage", `not json`, 400, intent.None(), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, data := h.do(t, http.MethodPost, "/api/transcript", tt.body)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, body %s", status, data)
			}
			var resp transcriptResponse
			if err := json.Unmarshal(data, &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Command != tt.wantCmd || resp.Message != tt.wantMsg {
				t.Errorf("resp = %+v", resp)
			}
			if resp.Success != (tt.wantStatus == 200) {
				t.Errorf("success = %v", resp.Success)
			}
		})
	}

	if len(h.consumer.Gate().Pending()) != 0 {
		t.Error("interpret-only endpoint submitted to the gate")
	}
}

func TestExecute(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		transitionErr error
		wantStatus    int
		wantSuccess   bool
		wantIssue     string
	}{
		{"move", `{"cmd":{"action":"move","issueKey":"KAN-1","toStatusId":"3"}}`, nil, 200, true, "KAN-1"},
		{"create", `{"cmd":{"action":"create","summary":"Docs"}}`, nil, 200, true, "KAN-9"},
		{"none", `{"cmd":{"action":"none"}}`, nil, 200, true, ""},
		{"no transition", `{"cmd":{"action":"move","issueKey":"KAN-1","toStatusId":"99"}}`, nil, 400, false, ""},
		{"tracker failure", `{"cmd":{"action":"move","issueKey":"KAN-1","toStatusId":"3"}}`, errors.New("boom"), 500, false, ""},
		{"missing cmd", `{}`, nil, 400, false, ""},
		{"invalid cmd", `{"cmd":{"action":"move"}}`, nil, 400, false, ""},
		{"bad json", `{`, nil, 400, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.tracker.transitionErr = tt.transitionErr

			status, data := h.do(t, http.MethodPost, "/api/execute", tt.body)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, body %s", status, data)
			}
			var res execute.Result
			if err := json.Unmarshal(data, &res); err != nil {
				t.Fatal(err)
			}
			if res.Success != tt.wantSuccess || res.IssueKey != tt.wantIssue {
				t.Errorf("result = %+v", res)
			}
			if !res.Success && res.Error == "" {
				t.Error("failure without error text")
			}
		})
	}
}

func TestConfirmationFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	move, err := h.consumer.Handle(ctx, "move login page to done")
	if err != nil {
		t.Fatal(err)
	}
	create, err := h.consumer.Handle(ctx, "create ticket called Docs")
	if err != nil {
		t.Fatal(err)
	}

	status, data := h.do(t, http.MethodGet, "/api/confirmations", "")
	var pending []confirm.Request
	if err := json.Unmarshal(data, &pending); err != nil || status != 200 {
		t.Fatalf("status = %d, err = %v", status, err)
	}
	if len(pending) != 2 || pending[0].ID != move.ID || pending[0].Label != "Move KAN-1?" {
		t.Fatalf("pending = %+v", pending)
	}

	status, data = h.do(t, http.MethodPost, "/api/confirmations/"+move.ID+"/approve", "")
	var decided decisionResponse
	if err := json.Unmarshal(data, &decided); err != nil || status != 200 {
		t.Fatalf("approve status = %d, body %s", status, data)
	}
	if decided.Request.Status != confirm.Approved || decided.Result == nil || !decided.Result.Success {
		t.Errorf("approve = %+v", decided)
	}

	status, _ = h.do(t, http.MethodPost, "/api/confirmations/"+move.ID+"/dismiss", "")
	if status != http.StatusConflict {
		t.Errorf("second decision status = %d", status)
	}

	status, data = h.do(t, http.MethodPost, "/api/confirmations/"+create.ID+"/dismiss", "")
	decided = decisionResponse{}
	if err := json.Unmarshal(data, &decided); err != nil || status != 200 {
		t.Fatalf("dismiss status = %d", status)
	}
	if decided.Request.Status != confirm.Dismissed || decided.Result != nil {
		t.Errorf("dismiss = %+v", decided)
	}

	status, _ = h.do(t, http.MethodPost, "/api/confirmations/nope/approve", "")
	if status != http.StatusNotFound {
		t.Errorf("unknown id status = %d", status)
	}

	status, data = h.do(t, http.MethodGet, "/api/activity?limit=5", "")
	var activity []journal.Entry
	if err := json.Unmarshal(data, &activity); err != nil || status != 200 {
		t.Fatalf("activity status = %d", status)
	}
	if len(activity) != 2 || activity[0].Kind != journal.KindDismissed || activity[1].IssueKey != "KAN-1" {
		t.Errorf("activity = %+v", activity)
	}

	if status, _ := h.do(t, http.MethodGet, "/api/activity?limit=x", ""); status != 400 {
		t.Errorf("bad limit status = %d", status)
	}
}

func TestBoard(t *testing.T) {
	h := newHarness(t)
	status, data := h.do(t, http.MethodGet, "/api/board", "")
	if status != 200 {
		t.Fatalf("status = %d", status)
	}
	var view struct {
		Lanes []struct {
			Label string `json:"label"`
			Cards []struct {
				Key string `json:"key"`
			} `json:"cards"`
		} `json:"lanes"`
	}
	if err := json.Unmarshal(data, &view); err != nil {
		t.Fatal(err)
	}
	if len(view.Lanes) != 2 || view.Lanes[0].Label != "To Do" || view.Lanes[0].Cards[0].Key != "KAN-1" {
		t.Errorf("view = %+v", view)
	}
}

func TestQueueAndMetrics(t *testing.T) {
	h := newHarness(t)

	if status, _ := h.do(t, http.MethodPost, "/api/queue", `{"sentence":"hello there."}`); status != 200 {
		t.Fatalf("enqueue status = %d", status)
	}
	if h.queue.Len() != 1 {
		t.Errorf("queue len = %d", h.queue.Len())
	}

	status, data := h.do(t, http.MethodGet, "/metrics", "")
	if status != 200 || !strings.Contains(string(data), "bond_") {
		t.Errorf("metrics status = %d", status)
	}
}

func TestStatusPage(t *testing.T) {
	h := newHarness(t)
	if _, err := h.consumer.Handle(context.Background(), "create ticket called <b>Bold</b>"); err != nil {
		t.Fatal(err)
	}
	h.queue.Enqueue("waiting")

	status, data := h.do(t, http.MethodGet, "/", "")
	page := string(data)
	if status != 200 {
		t.Fatalf("status = %d", status)
	}
	if !strings.Contains(page, "Sentences waiting: 1") {
		t.Error("queue depth missing")
	}
	if strings.Contains(page, "<b>") || !strings.Contains(page, "&lt;b&gt;") {
		t.Error("label not escaped")
	}
}

type fakeBot struct{ listening bool }

func (b fakeBot) Listening() bool { return b.listening }

func (b fakeBot) Sessions() []voice.SessionInfo {
	if !b.listening {
		return nil
	}
	return []voice.SessionInfo{{Speaker: "alice", CreatedAt: time.Unix(0, 0), State: "active"}}
}

func TestBotStatus(t *testing.T) {
	for _, listening := range []bool{false, true} {
		srv := httptest.NewServer(NewStatusRouter(fakeBot{listening}, nil))
		resp, err := http.Get(srv.URL + "/status")
		if err != nil {
			t.Fatal(err)
		}
		var got botStatus
		if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		srv.Close()

		if !got.Online || got.Listening != listening || got.Sessions == nil {
			t.Errorf("listening=%v: %+v", listening, got)
		}
		if listening && got.Sessions[0].Speaker != "alice" {
			t.Errorf("sessions = %+v", got.Sessions)
		}
	}
}
