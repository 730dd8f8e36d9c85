package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/KamdynS/go-structured/llm"
	"github.com/liushuangls/go-anthropic/v2"
)

// Client implements the llm.Client interface for Anthropic Claude
type Client struct {
	client  *anthropic.Client
	config  Config
	retrier *llm.Retrier
}

// Config holds Anthropic-specific configuration
type Config struct {
	APIKey      string          `json:"api_key"`
	Model       string          `json:"model"` // e.g., "claude-3-5-sonnet-20241022"
	BaseURL     string          `json:"base_url,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Timeout     time.Duration   `json:"timeout,omitempty"`
	RetryConfig llm.RetryConfig `json:"retry_config,omitempty"`
}

// NewClient creates a new Anthropic client
func NewClient(config Config) (*Client, error) {
	if config.Model == "" {
		config.Model = llm.ModelClaude35Haiku
	}
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if config.MaxTokens == 0 {
		config.MaxTokens = 1024
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.RetryConfig.MaxRetries == 0 {
		config.RetryConfig = llm.DefaultRetryConfig()
	}

	opts := []anthropic.ClientOption{
		anthropic.WithHTTPClient(&http.Client{Timeout: config.Timeout}),
	}
	if config.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(config.BaseURL))
	}

	return &Client{
		client:  anthropic.NewClient(config.APIKey, opts...),
		config:  config,
		retrier: llm.NewRetrier(config.RetryConfig),
	}, nil
}

func validateConfig(config Config) error {
	if config.APIKey == "" {
		return fmt.Errorf("API key is required")
	}

	model, err := llm.GetModel(config.Model)
	if err != nil {
		return fmt.Errorf("invalid model: %w", err)
	}
	if model.Provider != llm.ProviderAnthropic {
		return fmt.Errorf("model %s is not an Anthropic model", config.Model)
	}

	if t := config.Temperature; t != nil && (*t < 0 || *t > 1) {
		return fmt.Errorf("temperature must be between 0 and 1")
	}
	if config.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative")
	}
	return nil
}

// Chat implements llm.Client interface
func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.Response, error) {
	start := time.Now()

	result, err := llm.Execute(c.retrier, ctx, func(ctx context.Context, attempt int) (*llm.Response, error) {
		return c.chat(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	result.Latency = time.Since(start)
	result.Timestamp = start
	return result, nil
}

func (c *Client) chat(ctx context.Context, req *llm.ChatRequest) (*llm.Response, error) {
	anthReq := c.buildRequest(req)

	resp, err := c.client.CreateMessages(ctx, anthReq)
	if err != nil {
		return nil, convertError(err)
	}
	if len(resp.Content) == 0 {
		return nil, llm.NewLLMError(llm.ProviderAnthropic, llm.ErrorTypeUnknown, "no content returned")
	}

	// Anthropic returns an array of content blocks; text blocks are joined and
	// tool_use blocks become tool calls with the input as a JSON string.
	var content strings.Builder
	var toolCalls []llm.ToolCall
	for _, block := range resp.Content {
		switch block.Type {
		case anthropic.MessagesContentTypeText:
			if block.Text != nil {
				content.WriteString(*block.Text)
			}
		case anthropic.MessagesContentTypeToolUse:
			if block.MessageContentToolUse == nil {
				continue
			}
			args := string(block.MessageContentToolUse.Input)
			if args == "" {
				args = "{}"
			}
			toolCalls = append(toolCalls, llm.ToolCall{
				ID:   block.MessageContentToolUse.ID,
				Type: "function",
				Function: llm.Function{
					Name:      block.MessageContentToolUse.Name,
					Arguments: args,
				},
			})
		}
	}

	var usage *llm.Usage
	if resp.Usage.OutputTokens > 0 {
		modelInfo, _ := llm.GetModel(string(anthReq.Model))
		usage = &llm.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
			Cost:         modelInfo.EstimateCost(resp.Usage.InputTokens, resp.Usage.OutputTokens),
		}
	}

	return &llm.Response{
		Content:      content.String(),
		Role:         llm.RoleAssistant,
		Model:        string(anthReq.Model),
		Provider:     llm.ProviderAnthropic,
		Usage:        usage,
		FinishReason: string(resp.StopReason),
		ToolCalls:    toolCalls,
		Meta: map[string]string{
			"id":   resp.ID,
			"type": string(resp.Type),
		},
	}, nil
}

// buildRequest folds system messages into the top-level system prompt, which
// is where Anthropic expects them. ResponseFormat has no Anthropic equivalent
// and is ignored; JSON mode relies on the caller's instructions.
func (c *Client) buildRequest(req *llm.ChatRequest) anthropic.MessagesRequest {
	var system []string
	if req.SystemPrompt != "" {
		system = append(system, req.SystemPrompt)
	}

	messages := make([]anthropic.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		text := msg.Content
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, text)
		case llm.RoleAssistant:
			messages = append(messages, anthropic.Message{
				Role:    anthropic.RoleAssistant,
				Content: []anthropic.MessageContent{{Type: anthropic.MessagesContentTypeText, Text: &text}},
			})
		default:
			messages = append(messages, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{{Type: anthropic.MessagesContentTypeText, Text: &text}},
			})
		}
	}

	model := c.config.Model
	if req.Model != "" {
		model = req.Model
	}

	anthReq := anthropic.MessagesRequest{
		Model:         anthropic.Model(model),
		Messages:      messages,
		MaxTokens:     c.config.MaxTokens,
		System:        strings.Join(system, "\n\n"),
		StopSequences: req.Stop,
	}

	temperature := c.config.Temperature
	if req.Temperature != nil {
		temperature = req.Temperature
	}
	if temperature != nil {
		t := float32(*temperature)
		anthReq.Temperature = &t
	}
	if req.MaxTokens != nil {
		anthReq.MaxTokens = *req.MaxTokens
	}
	if req.TopP != nil {
		p := float32(*req.TopP)
		anthReq.TopP = &p
	}

	for _, tool := range req.Tools {
		anthReq.Tools = append(anthReq.Tools, anthropic.ToolDefinition{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			InputSchema: tool.Function.Parameters,
		})
	}
	if req.ToolChoice != nil && len(anthReq.Tools) > 0 {
		anthReq.ToolChoice = &anthropic.ToolChoice{Type: "tool", Name: req.ToolChoice.Name}
	}

	return anthReq
}

// convertError converts Anthropic SDK errors to LLM errors
func convertError(err error) error {
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		errType := llm.ErrorTypeUnknown
		switch string(apiErr.Type) {
		case "invalid_request_error":
			errType = llm.ErrorTypeInvalidRequest
		case "authentication_error":
			errType = llm.ErrorTypeAuthentication
		case "permission_error":
			errType = llm.ErrorTypePermission
		case "not_found_error":
			errType = llm.ErrorTypeNotFound
		case "rate_limit_error":
			errType = llm.ErrorTypeRateLimit
		case "api_error", "overloaded_error":
			errType = llm.ErrorTypeServerError
		}
		llmErr := llm.NewLLMErrorWithCause(llm.ProviderAnthropic, errType, apiErr.Message, err)
		llmErr.Code = string(apiErr.Type)
		return llmErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return llm.NewLLMErrorWithCause(llm.ProviderAnthropic, llm.ErrorTypeTimeout, "request timeout", err)
	case errors.Is(err, context.Canceled):
		return err
	}

	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "connection") || strings.Contains(lower, "network") {
		return llm.NewLLMErrorWithCause(llm.ProviderAnthropic, llm.ErrorTypeConnectionError, "connection error", err)
	}
	return llm.NewLLMErrorWithCause(llm.ProviderAnthropic, llm.ErrorTypeUnknown, err.Error(), err)
}

// Model implements llm.Client interface
func (c *Client) Model() string {
	return c.config.Model
}

// Provider implements llm.Client interface
func (c *Client) Provider() llm.Provider {
	return llm.ProviderAnthropic
}

// Validate implements llm.Client interface
func (c *Client) Validate() error {
	return validateConfig(c.config)
}

var _ llm.Client = (*Client)(nil)
