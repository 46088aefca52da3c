package speechmatics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

const (
	WebSocketBaseURL = "wss://eu2.rt.speechmatics.com/v2"
	PingInterval     = 30 * time.Second
	PongTimeout      = 60 * time.Second
)

type Client struct {
	APIKey string
	URL    string
	Dialer *websocket.Dialer
	log    *log.Logger
}

func NewClient(apiKey string, url string, logger *log.Logger) *Client {
	if url == "" {
		url = WebSocketBaseURL
	}
	return &Client{
		APIKey: apiKey,
		URL:    url,
		Dialer: websocket.DefaultDialer,
		log:    logger,
	}
}

type OperatingPoint string

const (
	OperatingPointStandard OperatingPoint = "standard"
	OperatingPointEnhanced OperatingPoint = "enhanced"
)

type TranscriptionConfig struct {
	Language           string         `json:"language"`
	OperatingPoint     OperatingPoint `json:"operating_point,omitempty"`
	EnablePartials     bool           `json:"enable_partials,omitempty"`
	MaxDelay           float64        `json:"max_delay,omitempty"`
	PunctuationEnabled bool           `json:"punctuation_enabled,omitempty"`
}

type AudioFormat struct {
	Type       string `json:"type"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

// RawPCM describes interleaved signed 16-bit little-endian samples.
func RawPCM(sampleRate int) AudioFormat {
	return AudioFormat{Type: "raw", Encoding: "pcm_s16le", SampleRate: sampleRate}
}

type StartRecognitionMessage struct {
	Message             string              `json:"message"`
	AudioFormat         AudioFormat         `json:"audio_format"`
	TranscriptionConfig TranscriptionConfig `json:"transcription_config"`
}

type EndOfStreamMessage struct {
	Message   string `json:"message"`
	LastSeqNo int    `json:"last_seq_no"`
}

const (
	MessageRecognitionStarted   = "RecognitionStarted"
	MessageAudioAdded           = "AudioAdded"
	MessageAddPartialTranscript = "AddPartialTranscript"
	MessageAddTranscript        = "AddTranscript"
	MessageEndOfTranscript      = "EndOfTranscript"
	MessageInfo                 = "Info"
	MessageWarning              = "Warning"
	MessageError                = "Error"
)

type RTTranscriptResponse struct {
	Message  string `json:"message"`
	SeqNo    int    `json:"seq_no,omitempty"`
	Type     string `json:"type,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Metadata struct {
		StartTime  float64 `json:"start_time"`
		EndTime    float64 `json:"end_time"`
		Transcript string  `json:"transcript"`
	} `json:"metadata"`
	Results []struct {
		Alternatives []struct {
			Confidence float64 `json:"confidence"`
			Content    string  `json:"content"`
		} `json:"alternatives"`
		StartTime float64 `json:"start_time"`
		EndTime   float64 `json:"end_time"`
		Type      string  `json:"type"`
	} `json:"results"`
}

// ServerError is an Error message sent by the service.
type ServerError struct {
	Type   string
	Reason string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("speechmatics %s: %s", e.Type, e.Reason)
}

// Session is one real-time recognition stream.
type Session struct {
	conn  *websocket.Conn
	log   *log.Logger
	mu    sync.Mutex
	seqNo int
	stop  chan struct{}
	once  sync.Once
}

func (c *Client) Connect(
	ctx context.Context,
	config TranscriptionConfig,
	audioFormat AudioFormat,
) (*Session, error) {
	header := http.Header{}
	header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))

	conn, _, err := c.Dialer.DialContext(ctx, c.URL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	s := &Session{conn: conn, log: c.log, stop: make(chan struct{})}

	err = s.writeJSON(StartRecognitionMessage{
		Message:             "StartRecognition",
		AudioFormat:         audioFormat,
		TranscriptionConfig: config,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send StartRecognition message: %w", err)
	}

	go s.keepAlive()
	return s, nil
}

func (s *Session) keepAlive() {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(PongTimeout)); err != nil {
				s.log.Error("Failed to send ping", "error", err)
				return
			}
		}
	}
}

func (s *Session) writeJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// SendAudio writes one binary audio frame.
func (s *Session) SendAudio(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("failed to send audio data: %w", err)
	}
	s.seqNo++
	return nil
}

// EndStream tells the service no more audio follows. The service
// answers with EndOfTranscript once it has flushed.
func (s *Session) EndStream() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.conn.WriteJSON(EndOfStreamMessage{
		Message:   "EndOfStream",
		LastSeqNo: s.seqNo,
	})
	if err != nil {
		return fmt.Errorf("failed to send EndOfStream message: %w", err)
	}
	return nil
}

// Receive reads server messages until EndOfTranscript, an Error
// message, or a closed connection. Both channels are closed on return.
func (s *Session) Receive() (<-chan RTTranscriptResponse, <-chan error) {
	transcriptChan := make(chan RTTranscriptResponse)
	errChan := make(chan error, 1)

	go func() {
		defer close(transcriptChan)
		defer close(errChan)

		for {
			var response RTTranscriptResponse
			if err := s.conn.ReadJSON(&response); err != nil {
				select {
				case <-s.stop:
					return
				default:
				}
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					errChan <- fmt.Errorf("WebSocket closed unexpectedly: %w", err)
				}
				return
			}

			switch response.Message {
			case MessageError:
				errChan <- &ServerError{Type: response.Type, Reason: response.Reason}
				return
			case MessageWarning:
				s.log.Warn("speechmatics warning", "type", response.Type, "reason", response.Reason)
				continue
			}

			select {
			case transcriptChan <- response:
			case <-s.stop:
				return
			}
			if response.Message == MessageEndOfTranscript {
				return
			}
		}
	}()

	return transcriptChan, errChan
}

func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stop)

		s.mu.Lock()
		werr := s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		s.mu.Unlock()
		if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
			s.log.Debug("failed to send close message", "error", werr)
		}

		if cerr := s.conn.Close(); cerr != nil {
			err = fmt.Errorf("failed to close WebSocket connection: %w", cerr)
		}
	})
	return err
}
