package voice

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/charmbracelet/log"

	"bond/queue"
	"bond/stt"
)

// MockDecoder passes frames through untouched. A frame reading "bad"
// fails to decode.
type MockDecoder struct {
	sink   io.WriteCloser
	closes int32
}

func (d *MockDecoder) Write(frame []byte) error {
	if string(frame) == "bad" {
		return errors.New("corrupted frame")
	}
	_, err := d.sink.Write(frame)
	return err
}

func (d *MockDecoder) Close() error {
	atomic.AddInt32(&d.closes, 1)
	return d.sink.Close()
}

type MockRecognizer struct {
	results chan stt.Result
	errs    chan error
	once    sync.Once
}

func (r *MockRecognizer) SendAudio(data []byte) error {
	r.results <- stt.Result{Text: string(data), Final: true}
	return nil
}

func (r *MockRecognizer) finish() {
	r.once.Do(func() {
		close(r.results)
		close(r.errs)
	})
}

func (r *MockRecognizer) EndStream() error { r.finish(); return nil }
func (r *MockRecognizer) Stop() error { r.finish(); return nil }

func (r *MockRecognizer) Receive() (<-chan stt.Result, <-chan error) {
	return r.results, r.errs
}

type MockRecognition struct {
	failStart bool
	started   int32
}

func (m *MockRecognition) Start(ctx context.Context, language string) (stt.SpeechRecognizer, error) {
	atomic.AddInt32(&m.started, 1)
	if m.failStart {
		return nil, errors.New("service unavailable")
	}
	return &MockRecognizer{results: make(chan stt.Result, 64), errs: make(chan error)}, nil
}

type harness struct {
	manager  *Manager
	queue    *queue.Queue
	decoders sync.Map
	mu       sync.Mutex
	ended    map[string]int
}

func newHarness(t *testing.T, silence time.Duration, recognition *MockRecognition) *harness {
	t.Helper()
	h := &harness{queue: queue.New(), ended: make(map[string]int)}
	h.manager = NewManager(Config{
		Silence:     silence,
		Language:    "en",
		Recognition: recognition,
		NewDecoder: func(sink io.WriteCloser) (Decoder, error) {
			return &MockDecoder{sink: sink}, nil
		},
		Sink: func(s stt.Sentence) { h.queue.Enqueue(s.Text) },
		OnSessionEnd: func(speaker string) {
			h.mu.Lock()
			h.ended[speaker]++
			h.mu.Unlock()
		},
	}, log.New(io.Discard))
	t.Cleanup(h.manager.CloseAll)
	return h
}

func (h *harness) endCount(speaker string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ended[speaker]
}

func waitClosed(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Closed():
	case <-time.After(2 * time.Second):
		t.Fatalf("session %s did not close", s.Speaker)
	}
}

func TestConcurrentSpeakers(t *testing.T) {
	h := newHarness(t, time.Minute, &MockRecognition{})
	ctx := context.Background()

	s1, _ := h.manager.SpeakingStart(ctx, "s1")
	s2, _ := h.manager.SpeakingStart(ctx, "s2")

	h.manager.Feed("s1", []byte("move login page to done"))
	h.manager.Feed("s2", []byte("create a task called docs"))

	h.manager.Close("s1")
	if s1.State() != Closed {
		t.Errorf("s1 state = %s", s1.State())
	}
	if s2.State() != Active {
		t.Fatalf("closing s1 changed s2 to %s", s2.State())
	}
	if !h.manager.Feed("s2", []byte("and another one")) {
		t.Fatal("s2 stopped accepting audio")
	}
	h.manager.Close("s2")

	got := h.queue.DrainAll()
	sort.Strings(got)
	want := []string{"and another one", "create a task called docs", "move login page to done"}
	if len(got) != len(want) {
		t.Fatalf("drained %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("drained %q, want %q", got, want)
		}
	}
}

func TestSpeakingStartIgnoredForLiveSession(t *testing.T) {
	recognition := &MockRecognition{}
	h := newHarness(t, time.Minute, recognition)
	ctx := context.Background()

	first, opened := h.manager.SpeakingStart(ctx, "s1")
	if !opened {
		t.Fatal("first speaking start did not open a session")
	}
	second, opened := h.manager.SpeakingStart(ctx, "s1")
	if opened || second != first {
		t.Error("second speaking start replaced the live session")
	}
	if n := len(h.manager.Sessions()); n != 1 {
		t.Errorf("sessions = %d", n)
	}

	h.manager.Close("s1")
	third, opened := h.manager.SpeakingStart(ctx, "s1")
	if !opened || third == first {
		t.Error("speaking start after close did not open a new session")
	}
}

func TestSilenceClosesSession(t *testing.T) {
	h := newHarness(t, 30*time.Millisecond, &MockRecognition{})

	s, _ := h.manager.SpeakingStart(context.Background(), "s1")
	h.manager.Feed("s1", []byte("hello"))
	waitClosed(t, s)

	if h.endCount("s1") != 1 {
		t.Errorf("end callback fired %d times", h.endCount("s1"))
	}
	if got := h.queue.DrainAll(); len(got) != 1 || got[0] != "hello" {
		t.Errorf("drained %q", got)
	}
	if h.manager.Feed("s1", []byte("late")) {
		t.Error("closed session accepted audio")
	}
}

func TestDecodeErrorClosesOnce(t *testing.T) {
	h := newHarness(t, time.Minute, &MockRecognition{})

	s, _ := h.manager.SpeakingStart(context.Background(), "s1")
	h.manager.Feed("s1", []byte("bad"))
	waitClosed(t, s)

	h.manager.Close("s1")
	s.requestClose()
	s.teardown("again")

	if h.endCount("s1") != 1 {
		t.Errorf("end callback fired %d times", h.endCount("s1"))
	}
	if closes := atomic.LoadInt32(&s.decoder.(*MockDecoder).closes); closes != 1 {
		t.Errorf("decoder closed %d times", closes)
	}
}

func TestRecognizerStartFailure(t *testing.T) {
	h := newHarness(t, time.Minute, &MockRecognition{failStart: true})

	s, _ := h.manager.SpeakingStart(context.Background(), "s1")
	waitClosed(t, s)

	if h.endCount("s1") != 1 {
		t.Errorf("end callback fired %d times", h.endCount("s1"))
	}
	if len(h.manager.Sessions()) != 0 {
		t.Error("failed session still listed")
	}
}

func TestCloseReturnsAfterEndCallback(t *testing.T) {
	h := newHarness(t, time.Minute, &MockRecognition{})
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		h.manager.SpeakingStart(ctx, "a")
		h.manager.Close("a")
		if got := h.endCount("a"); got != i+1 {
			t.Fatalf("after close %d: end callback fired %d times", i+1, got)
		}
	}
}

func TestCloseAll(t *testing.T) {
	h := newHarness(t, time.Minute, &MockRecognition{})
	ctx := context.Background()
	for _, sp := range []string{"a", "b", "c"} {
		h.manager.SpeakingStart(ctx, sp)
	}
	h.manager.CloseAll()
	if len(h.manager.Sessions()) != 0 {
		t.Error("sessions left after CloseAll")
	}
	for _, sp := range []string{"a", "b", "c"} {
		if h.endCount(sp) != 1 {
			t.Errorf("%s ended %d times", sp, h.endCount(sp))
		}
	}
}

func TestListenerPacketRouting(t *testing.T) {
	h := newHarness(t, time.Minute, &MockRecognition{})
	l := newListener(h.manager, "g", "c", log.New(io.Discard))

	l.handlePacket(5, []byte("before mapping"))
	l.handleVoiceSpeakingUpdate(nil, &discordgo.VoiceSpeakingUpdate{UserID: "user-9", SSRC: 7, Speaking: true})
	l.handlePacket(7, []byte("after mapping"))

	var speakers []string
	for _, s := range h.manager.Sessions() {
		speakers = append(speakers, s.Speaker)
	}
	sort.Strings(speakers)
	if len(speakers) != 2 || speakers[0] != "ssrc:5" || speakers[1] != "user-9" {
		t.Errorf("speakers = %v", speakers)
	}

	h.manager.CloseAll()
	got := h.queue.DrainAll()
	sort.Strings(got)
	if len(got) != 2 || got[0] != "after mapping" || got[1] != "before mapping" {
		t.Errorf("drained %q", got)
	}
}
