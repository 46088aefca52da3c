package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/sashabaranov/go-openai"
)

type MockLanguageModel struct {
	chunks []string
	err    error
	midErr error
}

func (m *MockLanguageModel) ChatCompletion(
	ctx context.Context,
	req *ChatCompletionRequest,
) (chan *ChatCompletionResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	ch := make(chan *ChatCompletionResponse, len(m.chunks)+1)
	for _, c := range m.chunks {
		ch <- &ChatCompletionResponse{Content: c}
	}
	if m.midErr != nil {
		ch <- &ChatCompletionResponse{Err: m.midErr}
	}
	close(ch)
	return ch, nil
}

func TestComplete(t *testing.T) {
	tests := []struct {
		name    string
		model   *MockLanguageModel
		want    string
		wantErr bool
	}{
		{"joins chunks", &MockLanguageModel{chunks: []string{`{"action":`, `"none"}`}}, `{"action":"none"}`, false},
		{"start error", &MockLanguageModel{err: errors.New("dial")}, "", true},
		{"stream error", &MockLanguageModel{chunks: []string{"x"}, midErr: errors.New("reset")}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Complete(context.Background(), tt.model, &ChatCompletionRequest{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOpenAIStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("key")
	cfg.BaseURL = srv.URL + "/v1"
	model := NewOpenAILanguageModelWithConfig(cfg, "", log.New(io.Discard))

	_, err := Complete(context.Background(), model, (&ChatCompletionRequest{SystemPrompt: "p"}).WithUserMessage("hi"))
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d", statusErr.StatusCode)
	}
}

func TestOpenAIStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range []string{`{\"action\":`, `\"none\"}`} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"%s\"}}]}\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("key")
	cfg.BaseURL = srv.URL + "/v1"
	model := NewOpenAILanguageModelWithConfig(cfg, "", log.New(io.Discard))

	got, err := Complete(context.Background(), model, (&ChatCompletionRequest{}).WithUserMessage("hi"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(got) != `{"action":"none"}` {
		t.Errorf("got %q", got)
	}
}

func TestTransportErrorIsNotStatusError(t *testing.T) {
	cfg := openai.DefaultConfig("key")
	cfg.BaseURL = "http://127.0.0.1:1/v1"
	model := NewOpenAILanguageModelWithConfig(cfg, "", log.New(io.Discard))

	_, err := Complete(context.Background(), model, (&ChatCompletionRequest{}).WithUserMessage("hi"))
	if err == nil {
		t.Fatal("expected error")
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		t.Errorf("transport failure classified as status error: %v", err)
	}
}
