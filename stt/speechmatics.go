package stt

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"

	"bond/snd"
	"bond/speechmatics"
)

type SpeechmaticsRecognition struct {
	client   *speechmatics.Client
	maxDelay float64
	log      *log.Logger
}

func NewSpeechmaticsRecognition(client *speechmatics.Client, logger *log.Logger) *SpeechmaticsRecognition {
	return &SpeechmaticsRecognition{client: client, maxDelay: 2, log: logger}
}

func (r *SpeechmaticsRecognition) Start(ctx context.Context, language string) (SpeechRecognizer, error) {
	session, err := r.client.Connect(
		ctx,
		speechmatics.TranscriptionConfig{
			Language:       language,
			OperatingPoint: speechmatics.OperatingPointEnhanced,
			EnablePartials: true,
			MaxDelay:       r.maxDelay,
		},
		speechmatics.RawPCM(snd.SampleRate),
	)
	if err != nil {
		return nil, err
	}
	return &SpeechmaticsSession{session: session, log: r.log}, nil
}

type SpeechmaticsSession struct {
	session *speechmatics.Session
	log     *log.Logger
}

func (s *SpeechmaticsSession) SendAudio(data []byte) error {
	return s.session.SendAudio(data)
}

func (s *SpeechmaticsSession) EndStream() error {
	return s.session.EndStream()
}

func (s *SpeechmaticsSession) Stop() error {
	return s.session.Close()
}

// Receive maps server messages to results. Final transcript fragments
// are joined until one ends a sentence, so each final Result is a whole
// sentence.
func (s *SpeechmaticsSession) Receive() (<-chan Result, <-chan error) {
	responses, errs := s.session.Receive()
	results := make(chan Result)

	go func() {
		defer close(results)
		var joiner sentenceJoiner
		for r := range responses {
			switch r.Message {
			case speechmatics.MessageAddPartialTranscript:
				results <- Result{
					Text:     r.Metadata.Transcript,
					Start:    r.Metadata.StartTime,
					Duration: r.Metadata.EndTime - r.Metadata.StartTime,
				}
			case speechmatics.MessageAddTranscript:
				for _, res := range joiner.add(r.Metadata.Transcript, r.Metadata.StartTime, r.Metadata.EndTime) {
					results <- res
				}
			case speechmatics.MessageEndOfTranscript:
				if res, ok := joiner.flush(); ok {
					results <- res
				}
			}
		}
		if res, ok := joiner.flush(); ok {
			results <- res
		}
	}()

	return results, errs
}

type sentenceJoiner struct {
	words []string
	start float64
	end   float64
}

func (j *sentenceJoiner) add(fragment string, start, end float64) []Result {
	var out []Result
	for _, w := range strings.Fields(fragment) {
		if len(j.words) == 0 {
			j.start = start
		}
		j.words = append(j.words, w)
		j.end = end
		if strings.HasSuffix(w, ".") || strings.HasSuffix(w, "?") || strings.HasSuffix(w, "!") {
			if res, ok := j.flush(); ok {
				out = append(out, res)
			}
		}
	}
	return out
}

func (j *sentenceJoiner) flush() (Result, bool) {
	if len(j.words) == 0 {
		return Result{}, false
	}
	res := Result{
		Text:     strings.Join(j.words, " "),
		Start:    j.start,
		Duration: j.end - j.start,
		Final:    true,
	}
	j.words = nil
	return res, true
}
