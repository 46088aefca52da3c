package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type GeminiLanguageModel struct {
	client *genai.Client
	model  string
	log    *log.Logger
}

func NewGeminiLanguageModel(
	ctx context.Context,
	apiKey string,
	model string,
	logger *log.Logger,
) (*GeminiLanguageModel, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GeminiLanguageModel{client: client, model: model, log: logger}, nil
}

func (g *GeminiLanguageModel) Close() error {
	return g.client.Close()
}

func (g *GeminiLanguageModel) ChatCompletion(
	ctx context.Context,
	req *ChatCompletionRequest,
) (chan *ChatCompletionResponse, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(req.Temperature)
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	instruction := []genai.Part{genai.Text(req.SystemPrompt)}
	for _, m := range req.ContextMessages {
		instruction = append(instruction, genai.Text(m))
	}
	model.SystemInstruction = &genai.Content{Parts: instruction}

	var prompt []genai.Part
	for _, m := range req.UserMessages {
		prompt = append(prompt, genai.Text(m))
		g.log.Debug("user message", "content", m)
	}

	stream := model.GenerateContentStream(ctx, prompt...)

	// The first chunk carries any request failure, so it is read before
	// returning to keep status errors on the synchronous path.
	first, err := stream.Next()
	if err != nil && !errors.Is(err, iterator.Done) {
		return nil, classifyGeminiError(err)
	}

	result := make(chan *ChatCompletionResponse)
	go func() {
		defer close(result)
		if errors.Is(err, iterator.Done) {
			return
		}
		result <- &ChatCompletionResponse{Content: responseText(first)}
		for {
			resp, err := stream.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				result <- &ChatCompletionResponse{Err: classifyGeminiError(err)}
				return
			}
			result <- &ChatCompletionResponse{Content: responseText(resp)}
		}
	}()

	return result, nil
}

func classifyGeminiError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &StatusError{StatusCode: apiErr.Code, Message: apiErr.Message}
	}
	return fmt.Errorf("Gemini API error: %w", err)
}

func responseText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
	}
	return text.String()
}
