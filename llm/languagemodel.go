package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/sashabaranov/go-openai"
)

type LanguageModel interface {
	ChatCompletion(
		ctx context.Context,
		req *ChatCompletionRequest,
	) (chan *ChatCompletionResponse, error)
}

// StatusError means the model service answered with a non-2xx status.
// Any other error from ChatCompletion is a transport failure.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("language model returned %d: %s", e.StatusCode, e.Message)
}

type ChatCompletionRequest struct {
	SystemPrompt string
	// ContextMessages are sent as system messages after the prompt.
	ContextMessages []string
	UserMessages    []string
	MaxTokens       int
	Temperature     float32
}

func (r *ChatCompletionRequest) WithContext(
	message string,
) *ChatCompletionRequest {
	r.ContextMessages = append(r.ContextMessages, message)
	return r
}

func (r *ChatCompletionRequest) WithUserMessage(
	message string,
) *ChatCompletionRequest {
	r.UserMessages = append(r.UserMessages, message)
	return r
}

type ChatCompletionResponse struct {
	Err     error
	Content string
}

// Complete collects a streamed completion into one string.
func Complete(
	ctx context.Context,
	model LanguageModel,
	req *ChatCompletionRequest,
) (string, error) {
	stream, err := model.ChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for chunk := range stream {
		if chunk.Err != nil {
			return "", chunk.Err
		}
		sb.WriteString(chunk.Content)
	}
	return sb.String(), nil
}

type OpenAILanguageModel struct {
	client *openai.Client
	model  string
	log    *log.Logger
}

func NewOpenAILanguageModel(
	apiKey string,
	model string,
	logger *log.Logger,
) *OpenAILanguageModel {
	return NewOpenAILanguageModelWithConfig(openai.DefaultConfig(apiKey), model, logger)
}

func NewOpenAILanguageModelWithConfig(
	cfg openai.ClientConfig,
	model string,
	logger *log.Logger,
) *OpenAILanguageModel {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAILanguageModel{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		log:    logger,
	}
}

func (o *OpenAILanguageModel) ChatCompletion(
	ctx context.Context,
	req *ChatCompletionRequest,
) (chan *ChatCompletionResponse, error) {
	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		},
	}
	for _, m := range req.ContextMessages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: m,
		})
	}
	for _, userMessage := range req.UserMessages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: userMessage,
		})
		o.log.Debug("user message", "content", userMessage)
	}

	// A zero temperature is dropped from the request body by omitempty.
	temperature := req.Temperature
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	resp, err := o.client.CreateChatCompletionStream(
		ctx,
		openai.ChatCompletionRequest{
			Model:       o.model,
			Messages:    messages,
			MaxTokens:   req.MaxTokens,
			Temperature: temperature,
			Stream:      true,
		},
	)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	result := make(chan *ChatCompletionResponse)
	go func() {
		defer close(result)
		defer resp.Close()
		for {
			response, err := resp.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				result <- &ChatCompletionResponse{Err: classifyOpenAIError(err)}
				return
			}
			if len(response.Choices) == 0 {
				continue
			}
			result <- &ChatCompletionResponse{
				Content: response.Choices[0].Delta.Content,
			}
		}
	}()

	return result, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &StatusError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &StatusError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}
	return fmt.Errorf("OpenAI API error: %w", err)
}
