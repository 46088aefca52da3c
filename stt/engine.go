package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

type State int

const (
	Idle State = iota
	Recognizing
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recognizing:
		return "recognizing"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var ErrNotRecognizing = errors.New("engine is not recognizing")

// Sentence is one finalized utterance of a speaker.
type Sentence struct {
	Text      string    `json:"text"`
	Speaker   string    `json:"speaker"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives finished sentences. It is called from the engine's
// event loop and should not block for long.
type Sink func(Sentence)

const flushTimeout = 5 * time.Second

// Engine binds one speaker's PCM stream to a recognizer. It is the
// io.WriteCloser a snd.Decoder writes into.
type Engine struct {
	Speaker   string
	Language  string
	OnPartial func(Result)

	recognition SpeechRecognition
	sink        Sink
	log         *log.Logger
	now         func() time.Time

	mu    sync.Mutex
	state State
	rec   SpeechRecognizer

	// emitMu orders deliveries against the switch to Stopped.
	emitMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
	doneOnce  sync.Once
}

func NewEngine(
	speaker string,
	language string,
	recognition SpeechRecognition,
	sink Sink,
	logger *log.Logger,
) *Engine {
	return &Engine{
		Speaker:     speaker,
		Language:    language,
		recognition: recognition,
		sink:        sink,
		log:         logger,
		now:         time.Now,
		done:        make(chan struct{}),
	}
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Done is closed when the event loop has exited.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Start opens the recognizer and begins delivering results.
func (e *Engine) Start(ctx context.Context) error {
	if s := e.State(); s != Idle {
		return fmt.Errorf("cannot start engine in state %s", s)
	}

	rec, err := e.recognition.Start(ctx, e.Language)
	if err != nil {
		return fmt.Errorf("failed to start recognition: %w", err)
	}

	e.mu.Lock()
	if e.state != Idle {
		e.mu.Unlock()
		rec.Stop()
		return fmt.Errorf("engine closed while starting")
	}
	e.rec = rec
	e.state = Recognizing
	e.mu.Unlock()

	results, errs := rec.Receive()
	go e.loop(results, errs)
	return nil
}

func (e *Engine) loop(results <-chan Result, errs <-chan error) {
	defer e.doneOnce.Do(func() { close(e.done) })

	for r := range results {
		e.handle(r)
	}
	if err := <-errs; err != nil {
		e.log.Error("recognition ended with error", "speaker", e.Speaker, "error", err)
	}
}

func (e *Engine) handle(r Result) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	if e.State() == Stopped {
		return
	}

	if !r.Final {
		e.log.Debug("partial", "speaker", e.Speaker, "text", r.Text)
		if e.OnPartial != nil {
			e.OnPartial(r)
		}
		return
	}

	text := strings.TrimSpace(r.Text)
	if text == "" {
		return
	}
	e.log.Info("heard", "speaker", e.Speaker, "text", text)
	e.sink(Sentence{Text: text, Speaker: e.Speaker, Timestamp: e.now()})
}

// Write pushes PCM to the recognizer.
func (e *Engine) Write(pcm []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Recognizing {
		return 0, ErrNotRecognizing
	}
	if err := e.rec.SendAudio(pcm); err != nil {
		return 0, err
	}
	return len(pcm), nil
}

// Close ends the input stream, waits briefly for trailing results and
// stops the recognizer. Errors are logged, not returned.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		rec := e.rec
		wasIdle := e.state == Idle
		e.mu.Unlock()

		if !wasIdle {
			if err := rec.EndStream(); err != nil {
				e.log.Warn("failed to end stream", "speaker", e.Speaker, "error", err)
			}
			select {
			case <-e.done:
			case <-time.After(flushTimeout):
				e.log.Warn("recognizer did not flush in time", "speaker", e.Speaker)
			}
		}

		e.emitMu.Lock()
		e.mu.Lock()
		e.state = Stopped
		e.mu.Unlock()
		e.emitMu.Unlock()

		if wasIdle {
			e.doneOnce.Do(func() { close(e.done) })
			return
		}
		if err := rec.Stop(); err != nil {
			e.log.Warn("failed to stop recognizer", "speaker", e.Speaker, "error", err)
		}
		<-e.done
	})
	return nil
}
