package voice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bond/stt"
)

type State int

const (
	Active State = iota
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// packetBuffer holds three seconds of 20 ms frames.
const packetBuffer = 3 * 1000 / 20

// Session is one speaker's capture: a decoder feeding a recognition
// engine, ended by silence, an explicit close, or a failure.
type Session struct {
	Speaker   string
	CreatedAt time.Time

	manager *Manager
	engine  *stt.Engine
	decoder Decoder

	mu    sync.Mutex
	state State

	packets   chan []byte
	stop      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
	closed    chan struct{}
}

type SessionInfo struct {
	Speaker   string    `json:"speaker"`
	CreatedAt time.Time `json:"createdAt"`
	State     string    `json:"state"`
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Closed is closed once the session has released its resources.
func (s *Session) Closed() <-chan struct{} {
	return s.closed
}

func (s *Session) info() SessionInfo {
	return SessionInfo{Speaker: s.Speaker, CreatedAt: s.CreatedAt, State: s.State().String()}
}

func (s *Session) push(frame []byte) bool {
	if s.State() != Active {
		return false
	}
	select {
	case s.packets <- frame:
		return true
	default:
		s.manager.log.Warn("voice packet channel full, dropping packet", "speaker", s.Speaker)
		return false
	}
}

// requestClose asks the session loop to shut down.
func (s *Session) requestClose() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Session) run(ctx context.Context) {
	m := s.manager

	if err := s.engine.Start(ctx); err != nil {
		m.log.Error("failed to start recognition", "speaker", s.Speaker, "error", err)
		s.teardown("recognizer start failed")
		return
	}

	silence := time.NewTimer(m.silence)
	defer silence.Stop()

	for {
		select {
		case frame := <-s.packets:
			if err := s.decoder.Write(frame); err != nil {
				m.log.Warn("decode failed", "speaker", s.Speaker, "error", err)
				s.teardown("decode error")
				return
			}
			if !silence.Stop() {
				select {
				case <-silence.C:
				default:
				}
			}
			silence.Reset(m.silence)
		case <-silence.C:
			s.flush()
			s.teardown("silence")
			return
		case <-s.engine.Done():
			s.teardown("recognizer ended")
			return
		case <-s.stop:
			s.flush()
			s.teardown("closed")
			return
		case <-ctx.Done():
			s.teardown("canceled")
			return
		}
	}
}

// flush decodes frames that were queued before the close was noticed.
func (s *Session) flush() {
	for {
		select {
		case frame := <-s.packets:
			if err := s.decoder.Write(frame); err != nil {
				s.manager.log.Warn("decode failed", "speaker", s.Speaker, "error", err)
				return
			}
		default:
			return
		}
	}
}

// teardown releases the decoder and engine and reports the end of the
// session. Only the first call has any effect.
func (s *Session) teardown(reason string) {
	s.closeOnce.Do(func() {
		s.setState(Closing)
		s.manager.log.Debug("closing session", "speaker", s.Speaker, "reason", reason)

		if err := s.decoder.Close(); err != nil {
			s.manager.log.Warn("failed to close decoder", "speaker", s.Speaker, "error", err)
		}

		s.setState(Closed)
		s.manager.remove(s)
		s.manager.sessionEnded(s, reason)
		close(s.closed)
	})
}
