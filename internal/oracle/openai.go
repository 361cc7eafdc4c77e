package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI is the secondary oracle provider, using the official openai-go SDK
// (chat completions). It has no structured-output wiring; the JSON contract
// is stated in the system message and enforced by the chain's decode step.
type OpenAI struct {
	model string
	opts  []option.RequestOption
}

func NewOpenAI(apiKey, model string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key missing")
	}
	return &OpenAI{
		model: model,
		opts:  []option.RequestOption{option.WithAPIKey(apiKey)},
	}, nil
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Complete(ctx context.Context, req Request) (json.RawMessage, error) {
	client := openai.NewClient(o.opts...)

	system := req.System
	if system == "" {
		system = "Respond with a single JSON object and nothing else."
	} else {
		system += "\n\nRespond with a single JSON object and nothing else."
	}

	msgs := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(system),
		openai.UserMessage(req.User),
	}

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: msgs,
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: empty choices")
	}
	return json.RawMessage(resp.Choices[0].Message.Content), nil
}
