// Package anthropicllm implements llmclient.Client over
// github.com/anthropics/anthropic-sdk-go. Complete maps to a single
// non-streaming Messages call; Stream maps to the SDK's streaming
// Messages call.
package anthropicllm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nlq-sql/queryengine/pkg/llmclient"
)

// Client wraps an anthropic.Client for a fixed model and token ceiling.
type Client struct {
	api       anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// New constructs a Client. apiKey may be empty to fall back to the SDK's
// default ANTHROPIC_API_KEY environment lookup.
func New(apiKey string, model anthropic.Model, maxTokens int64) *Client {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &Client{
		api:       anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}
}

func toParams(messages []llmclient.Message, opts llmclient.Options, maxTokens int64) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		MaxTokens: maxTokens,
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = opts.MaxTokens
	}
	if len(opts.StopTokens) > 0 {
		params.StopSequences = opts.StopTokens
	}
	params.Temperature = anthropic.Float(opts.Temperature)

	var msgs []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case llmclient.RoleSystem:
			params.System = []anthropic.TextBlockParam{{Text: m.Content}}
		case llmclient.RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	params.Messages = msgs
	return params
}

func (c *Client) Complete(ctx context.Context, messages []llmclient.Message, opts llmclient.Options) (string, error) {
	params := toParams(messages, opts, c.maxTokens)
	params.Model = c.model

	resp, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropicllm: complete: %w", err)
	}
	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

func (c *Client) Stream(ctx context.Context, messages []llmclient.Message, opts llmclient.Options) (<-chan llmclient.Chunk, error) {
	params := toParams(messages, opts, c.maxTokens)
	params.Model = c.model

	out := make(chan llmclient.Chunk)
	stream := c.api.Messages.NewStreaming(ctx, params)

	go func() {
		defer close(out)
		for stream.Next() {
			event := stream.Current()
			if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
				if text := delta.Delta.Text; text != "" {
					select {
					case out <- llmclient.Chunk{Text: text}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
		if stream.Err() != nil {
			// Closing without a Done marker signals a broken stream.
			return
		}
		select {
		case out <- llmclient.Chunk{Done: true}:
		case <-ctx.Done():
		}
	}()

	return out, nil
}
