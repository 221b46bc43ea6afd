package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"loom/internal/logging"
	"loom/internal/utils/id"
)

// OpenAIConfig configures an OpenAI-compatible chat completions client. Any
// provider speaking the same wire format works through BaseURL.
type OpenAIConfig struct {
	Model   string
	APIKey  string
	BaseURL string // defaults to https://api.openai.com/v1
	Timeout time.Duration
	Headers map[string]string
}

type openaiClient struct {
	config     OpenAIConfig
	httpClient *http.Client
	logger     logging.Logger
}

// NewOpenAIClient builds a Client over the OpenAI chat completions API.
func NewOpenAIClient(config OpenAIConfig, logger logging.Logger) (Client, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &openaiClient{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.OrNop(logger),
	}, nil
}

func (c *openaiClient) Model() string { return c.config.Model }

func (c *openaiClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	payload := map[string]any{
		"model":    c.config.Model,
		"messages": convertMessages(req.Messages),
		"stream":   false,
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if len(req.Capabilities) > 0 {
		tools := make([]map[string]any, 0, len(req.Capabilities))
		for _, def := range req.Capabilities {
			tools = append(tools, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        def.Name,
					"description": def.Description,
					"parameters":  def.Parameters,
				},
			})
		}
		payload["tools"] = tools
		payload["tool_choice"] = "auto"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.config.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	requestID := id.NewRequestID()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	for k, v := range c.config.Headers {
		httpReq.Header.Set(k, v)
	}

	c.logger.Debug("POST %s model=%s messages=%d request=%s", endpoint, c.config.Model, len(req.Messages), requestID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("provider error %d: %s", resp.StatusCode, truncateBody(respBody))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content   string `json:"content"`
				ToolCalls []struct {
					ID       string `json:"id"`
					Function struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("provider returned no choices")
	}

	choice := decoded.Choices[0]
	out := &CompletionResponse{
		Content:    choice.Message.Content,
		StopReason: choice.FinishReason,
		Usage: TokenUsage{
			PromptTokens:     decoded.Usage.PromptTokens,
			CompletionTokens: decoded.Usage.CompletionTokens,
			TotalTokens:      decoded.Usage.TotalTokens,
		},
	}
	for _, call := range choice.Message.ToolCalls {
		out.CapabilityCalls = append(out.CapabilityCalls, CapabilityCall{
			ID:           call.ID,
			Name:         call.Function.Name,
			RawArguments: call.Function.Arguments,
		})
	}
	return out, nil
}

// convertMessages renders the neutral transcript in OpenAI wire form.
func convertMessages(messages []Message) []map[string]any {
	out := make([]map[string]any, 0, len(messages))
	for _, msg := range messages {
		entry := map[string]any{
			"role":    msg.Role,
			"content": msg.Content,
		}
		if msg.Role == RoleTool {
			entry["tool_call_id"] = msg.CallID
			entry["name"] = msg.Name
		}
		if len(msg.CapabilityCalls) > 0 {
			calls := make([]map[string]any, 0, len(msg.CapabilityCalls))
			for _, call := range msg.CapabilityCalls {
				raw := call.RawArguments
				if raw == "" {
					if encoded, err := json.Marshal(call.Arguments); err == nil {
						raw = string(encoded)
					}
				}
				calls = append(calls, map[string]any{
					"id":   call.ID,
					"type": "function",
					"function": map[string]any{
						"name":      call.Name,
						"arguments": raw,
					},
				})
			}
			entry["tool_calls"] = calls
		}
		out = append(out, entry)
	}
	return out
}

func truncateBody(body []byte) string {
	const limit = 512
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}
