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

// AnthropicClient speaks the Anthropic messages API.
type AnthropicClient struct {
	cfg    config.ProviderConfig
	client *http.Client
	prices PriceLookup
}

func NewAnthropicClient(cfg config.ProviderConfig, client *http.Client, prices PriceLookup) *AnthropicClient {
	return &AnthropicClient{cfg: cfg, client: client, prices: prices}
}

func (c *AnthropicClient) Probe(ctx context.Context, modelID string) error {
	_, err := c.send(ctx, modelID, "ping", "", 1)
	return err
}

func (c *AnthropicClient) Invoke(ctx context.Context, modelID, prompt, roleContext string) (*Result, error) {
	return c.send(ctx, modelID, prompt, roleContext, 4096)
}

func (c *AnthropicClient) send(ctx context.Context, modelID, prompt, roleContext string, maxTokens int) (*Result, error) {
	body := anthropicRequestBody{
		Model:     providerModelName(modelID),
		MaxTokens: maxTokens,
		System:    roleContext,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal messages request: %w", err)
	}

	url := c.cfg.BaseURL + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	version := c.cfg.APIVersion
	if version == "" {
		version = "2023-06-01"
	}
	httpReq.Header.Set("anthropic-version", version)
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
		return nil, fmt.Errorf("read messages response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Provider: "anthropic", StatusCode: resp.StatusCode, Message: string(raw)}
	}

	var parsed anthropicResponseBody
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal messages response: %w", err)
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	result := &Result{
		Text:             text,
		PromptTokens:     parsed.Usage.InputTokens,
		CompletionTokens: parsed.Usage.OutputTokens,
	}
	if in, out, ok := c.prices(modelID); ok {
		result.CostUSD = in*float64(result.PromptTokens)/1e6 + out*float64(result.CompletionTokens)/1e6
	}
	return result, nil
}

type anthropicRequestBody struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []chatMessage `json:"messages"`
}

type anthropicResponseBody struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
