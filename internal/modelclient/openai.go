package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/af-corp/quorum-engine/internal/config"
)

// OpenAIClient speaks the OpenAI-compatible chat completions API. It is the
// default client for unknown provider types.
type OpenAIClient struct {
	cfg    config.ProviderConfig
	client *http.Client
	prices PriceLookup
}

func NewOpenAIClient(cfg config.ProviderConfig, client *http.Client, prices PriceLookup) *OpenAIClient {
	return &OpenAIClient{cfg: cfg, client: client, prices: prices}
}

func (c *OpenAIClient) Probe(ctx context.Context, modelID string) error {
	_, err := c.send(ctx, modelID, "ping", "", 1)
	return err
}

func (c *OpenAIClient) Invoke(ctx context.Context, modelID, prompt, roleContext string) (*Result, error) {
	return c.send(ctx, modelID, prompt, roleContext, 0)
}

func (c *OpenAIClient) send(ctx context.Context, modelID, prompt, roleContext string, maxTokens int) (*Result, error) {
	body := chatRequestBody{Model: providerModelName(modelID)}
	if roleContext != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: roleContext})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: prompt})
	if maxTokens > 0 {
		body.MaxTokens = &maxTokens
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	url := c.cfg.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	for k, v := range c.cfg.Headers {
		if v != "" {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Provider: "openai", StatusCode: resp.StatusCode, Message: string(raw)}
	}

	var parsed chatResponseBody
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, &APIError{Provider: "openai", StatusCode: resp.StatusCode, Message: "empty choices"}
	}

	result := &Result{
		Text:             parsed.Choices[0].Message.Content,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
	}
	if in, out, ok := c.prices(modelID); ok {
		result.CostUSD = in*float64(result.PromptTokens)/1e6 + out*float64(result.CompletionTokens)/1e6
	}
	return result, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequestBody struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens *int          `json:"max_tokens,omitempty"`
}

type chatResponseBody struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
