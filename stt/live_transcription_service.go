package stt

import (
	"context"
)

type Result struct {
	Text     string
	Start    float64
	Duration float64
	// Final results are not revised further; partial ones are.
	Final bool
}

type SpeechRecognizer interface {
	SendAudio(data []byte) error
	// EndStream announces the end of input. Pending results are still
	// delivered before Receive's channels close.
	EndStream() error
	Receive() (<-chan Result, <-chan error)
	Stop() error
}

type SpeechRecognition interface {
	Start(ctx context.Context, language string) (SpeechRecognizer, error)
}
