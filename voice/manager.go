package voice

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"bond/snd"
	"bond/stt"
)

// Decoder is the per-session audio decoder. Closing it must close the
// sink it writes to.
type Decoder interface {
	Write(frame []byte) error
	Close() error
}

type DecoderFactory func(sink io.WriteCloser) (Decoder, error)

func OpusDecoderFactory(sink io.WriteCloser) (Decoder, error) {
	return snd.NewOpusDecoder(sink)
}

// Observer hears about session lifecycle events.
type Observer interface {
	SessionOpened(speaker string)
	SessionClosed(speaker string, reason string, lifetime time.Duration)
}

type Config struct {
	Silence     time.Duration
	Language    string
	Recognition stt.SpeechRecognition
	NewDecoder  DecoderFactory
	Sink        stt.Sink
	// OnSessionEnd runs exactly once per session, after its resources
	// are released.
	OnSessionEnd func(speaker string)
	Observer     Observer
}

// Manager keeps at most one live session per speaker.
type Manager struct {
	cfg     Config
	silence time.Duration
	log     *log.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewManager(cfg Config, logger *log.Logger) *Manager {
	if cfg.Silence <= 0 {
		cfg.Silence = time.Second
	}
	if cfg.NewDecoder == nil {
		cfg.NewDecoder = OpusDecoderFactory
	}
	return &Manager{
		cfg:      cfg,
		silence:  cfg.Silence,
		log:      logger,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// SpeakingStart opens a session for speaker unless one is already
// active or closing. It reports whether a new session was opened.
func (m *Manager) SpeakingStart(ctx context.Context, speaker string) (*Session, bool) {
	m.mu.Lock()
	if s, ok := m.sessions[speaker]; ok {
		m.mu.Unlock()
		return s, false
	}

	s := &Session{
		Speaker:   speaker,
		CreatedAt: m.now(),
		manager:   m,
		state:     Active,
		packets:   make(chan []byte, packetBuffer),
		stop:      make(chan struct{}),
		closed:    make(chan struct{}),
	}
	s.engine = stt.NewEngine(speaker, m.cfg.Language, m.cfg.Recognition, m.cfg.Sink, m.log)

	decoder, err := m.cfg.NewDecoder(s.engine)
	if err != nil {
		m.mu.Unlock()
		m.log.Error("failed to create decoder", "speaker", speaker, "error", err)
		s.engine.Close()
		return nil, false
	}
	s.decoder = decoder
	m.sessions[speaker] = s
	m.mu.Unlock()

	m.log.Info("session opened", "speaker", speaker)
	if m.cfg.Observer != nil {
		m.cfg.Observer.SessionOpened(speaker)
	}

	go s.run(ctx)
	return s, true
}

// Feed routes one compressed frame to the speaker's live session.
// Frames for a speaker without an active session are dropped.
func (m *Manager) Feed(speaker string, frame []byte) bool {
	m.mu.Lock()
	s, ok := m.sessions[speaker]
	m.mu.Unlock()
	if !ok {
		return false
	}
	return s.push(frame)
}

// Close ends the speaker's session, if any, and waits for it to finish.
func (m *Manager) Close(speaker string) {
	m.mu.Lock()
	s, ok := m.sessions[speaker]
	m.mu.Unlock()
	if !ok {
		return
	}
	s.requestClose()
	<-s.closed
}

// CloseAll ends every session and waits for all of them.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	for _, s := range live {
		s.requestClose()
	}
	for _, s := range live {
		<-s.closed
	}
}

func (m *Manager) Sessions() []SessionInfo {
	m.mu.Lock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.info())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[s.Speaker] == s {
		delete(m.sessions, s.Speaker)
	}
}

func (m *Manager) sessionEnded(s *Session, reason string) {
	m.log.Info("session closed", "speaker", s.Speaker, "reason", reason)
	if m.cfg.Observer != nil {
		m.cfg.Observer.SessionClosed(s.Speaker, reason, m.now().Sub(s.CreatedAt))
	}
	if m.cfg.OnSessionEnd != nil {
		m.cfg.OnSessionEnd(s.Speaker)
	}
}
