package main

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"bond/queue"
	"bond/stt"
)

func TestForwardSentences(t *testing.T) {
	q := queue.New()
	r := chi.NewRouter()
	queue.Routes(r, q, nil)
	srv := httptest.NewServer(r)
	defer srv.Close()

	sentences := make(chan stt.Sentence, 4)
	sentences <- stt.Sentence{Text: "Move login page to done.", Speaker: "alice"}
	sentences <- stt.Sentence{Text: "Create a ticket called docs.", Speaker: "bob"}
	sentences <- stt.Sentence{Text: "Move login page to done.", Speaker: "carol"}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		forwardSentences(ctx, sentences, queue.NewClient(srv.URL), log.New(io.Discard))
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(sentences) > 0 || q.Len() < 2 {
		select {
		case <-deadline:
			t.Fatalf("queue has %d sentences", q.Len())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	got := q.DrainAll()
	want := []string{"Move login page to done.", "Create a ticket called docs."}
	if len(got) != len(want) {
		t.Fatalf("queue = %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("queue[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestForwardSentencesLogsQueuedOnly(t *testing.T) {
	q := queue.New()
	r := chi.NewRouter()
	queue.Routes(r, q, nil)
	srv := httptest.NewServer(r)
	defer srv.Close()

	buf := &lockedBuffer{}
	logger := log.NewWithOptions(buf, log.Options{Level: log.DebugLevel})

	sentences := make(chan stt.Sentence, 1)
	sentences <- stt.Sentence{Text: "Move login page to done.", Speaker: "alice"}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		forwardSentences(ctx, sentences, queue.NewClient(srv.URL), logger)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for !strings.Contains(buf.String(), "queued") {
		select {
		case <-deadline:
			t.Fatalf("log = %q, want a queued line", buf.String())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if q.Len() != 1 {
		t.Errorf("queue has %d sentences", q.Len())
	}
	if out := buf.String(); strings.Contains(out, "heard") {
		t.Errorf("log = %q, sentence logged as heard again", out)
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
