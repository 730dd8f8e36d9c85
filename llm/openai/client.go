package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/KamdynS/go-structured/llm"
	"github.com/sashabaranov/go-openai"
)

// Client implements the llm.Client interface for OpenAI
type Client struct {
	client  *openai.Client
	config  Config
	retrier *llm.Retrier
}

// Config holds OpenAI-specific configuration
type Config struct {
	APIKey       string          `json:"api_key"`
	Model        string          `json:"model"` // e.g., "gpt-4-turbo-preview", "gpt-4o"
	BaseURL      string          `json:"base_url,omitempty"`
	Temperature  *float64        `json:"temperature,omitempty"`
	MaxTokens    int             `json:"max_tokens,omitempty"`
	Timeout      time.Duration   `json:"timeout,omitempty"`
	RetryConfig  llm.RetryConfig `json:"retry_config,omitempty"`
	Organization string          `json:"organization,omitempty"`
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client `json:"-"`
}

// NewClient creates a new OpenAI client
func NewClient(config Config) (*Client, error) {
	if config.Model == "" {
		config.Model = llm.ModelGPT4oMini
	}
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.RetryConfig.MaxRetries == 0 {
		config.RetryConfig = llm.DefaultRetryConfig()
	}

	openaiConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		openaiConfig.BaseURL = config.BaseURL
	}
	if config.Organization != "" {
		openaiConfig.OrgID = config.Organization
	}
	if config.HTTPClient != nil {
		openaiConfig.HTTPClient = config.HTTPClient
	} else {
		openaiConfig.HTTPClient = &http.Client{Timeout: config.Timeout}
	}

	return &Client{
		client:  openai.NewClientWithConfig(openaiConfig),
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
	if model.Provider != llm.ProviderOpenAI {
		return fmt.Errorf("model %s is not an OpenAI model", config.Model)
	}

	if t := config.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("temperature must be between 0 and 2")
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
	oaiReq := c.buildRequest(req)

	resp, err := c.client.CreateChatCompletion(ctx, oaiReq)
	if err != nil {
		return nil, convertError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, llm.NewLLMError(llm.ProviderOpenAI, llm.ErrorTypeUnknown, "no choices returned")
	}

	choice := resp.Choices[0]

	var toolCalls []llm.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		toolCalls = append(toolCalls, llm.ToolCall{
			ID:   tc.ID,
			Type: string(tc.Type),
			Function: llm.Function{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}

	var usage *llm.Usage
	if resp.Usage.TotalTokens > 0 {
		modelInfo, _ := llm.GetModel(oaiReq.Model)
		usage = &llm.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
			Cost:         modelInfo.EstimateCost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
		}
	}

	return &llm.Response{
		Content:      choice.Message.Content,
		Role:         llm.RoleAssistant,
		Model:        oaiReq.Model,
		Provider:     llm.ProviderOpenAI,
		Usage:        usage,
		FinishReason: string(choice.FinishReason),
		ToolCalls:    toolCalls,
		Meta: map[string]string{
			"id":      resp.ID,
			"object":  resp.Object,
			"created": fmt.Sprintf("%d", resp.Created),
		},
	}, nil
}

func (c *Client) buildRequest(req *llm.ChatRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, msg := range req.Messages {
		oaiMsg := openai.ChatCompletionMessage{
			Content: msg.Content,
			Name:    msg.Name,
		}
		switch msg.Role {
		case llm.RoleSystem:
			oaiMsg.Role = openai.ChatMessageRoleSystem
		case llm.RoleAssistant:
			oaiMsg.Role = openai.ChatMessageRoleAssistant
		case llm.RoleTool:
			oaiMsg.Role = openai.ChatMessageRoleTool
			oaiMsg.ToolCallID = msg.ToolCallID
		default:
			oaiMsg.Role = openai.ChatMessageRoleUser
		}
		messages = append(messages, oaiMsg)
	}

	model := c.config.Model
	if req.Model != "" {
		model = req.Model
	}

	oaiReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		Stop:     req.Stop,
		Seed:     req.Seed,
		User:     req.User,
	}

	temperature := c.config.Temperature
	if req.Temperature != nil {
		temperature = req.Temperature
	}
	if temperature != nil {
		oaiReq.Temperature = float32(*temperature)
		if oaiReq.Temperature == 0 {
			// The SDK drops a zero temperature via omitempty.
			oaiReq.Temperature = math.SmallestNonzeroFloat32
		}
	}

	if req.MaxTokens != nil {
		oaiReq.MaxTokens = *req.MaxTokens
	} else if c.config.MaxTokens > 0 {
		oaiReq.MaxTokens = c.config.MaxTokens
	}
	if req.TopP != nil {
		oaiReq.TopP = float32(*req.TopP)
	}

	if len(req.Tools) > 0 {
		tools := make([]openai.Tool, len(req.Tools))
		for i, tool := range req.Tools {
			tools[i] = openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        tool.Function.Name,
					Description: tool.Function.Description,
					Parameters:  tool.Function.Parameters,
				},
			}
		}
		oaiReq.Tools = tools

		if req.ToolChoice != nil {
			oaiReq.ToolChoice = openai.ToolChoice{
				Type:     openai.ToolTypeFunction,
				Function: openai.ToolFunction{Name: req.ToolChoice.Name},
			}
		}
	}

	if req.ResponseFormat != nil && req.ResponseFormat.Type == llm.ResponseFormatJSONObject {
		oaiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	return oaiReq
}

// convertError converts OpenAI SDK errors to LLM errors
func convertError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		llmErr := llm.ParseHTTPError(llm.ProviderOpenAI, apiErr.HTTPStatusCode, apiErr.Message)
		if code, ok := apiErr.Code.(string); ok {
			llmErr.Code = code
		}
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests &&
			strings.Contains(strings.ToLower(apiErr.Message), "try again in") {
			llmErr.RetryAfter = 60
		}
		llmErr.Cause = err
		return llmErr
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		llmErr := llm.ParseHTTPError(llm.ProviderOpenAI, reqErr.HTTPStatusCode, "")
		llmErr.Cause = err
		return llmErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return llm.NewLLMErrorWithCause(llm.ProviderOpenAI, llm.ErrorTypeTimeout, "request timeout", err)
	case errors.Is(err, context.Canceled):
		return err
	}

	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "connection") || strings.Contains(lower, "network") {
		return llm.NewLLMErrorWithCause(llm.ProviderOpenAI, llm.ErrorTypeConnectionError, "connection error", err)
	}
	return llm.NewLLMErrorWithCause(llm.ProviderOpenAI, llm.ErrorTypeUnknown, err.Error(), err)
}

// Model implements llm.Client interface
func (c *Client) Model() string {
	return c.config.Model
}

// Provider implements llm.Client interface
func (c *Client) Provider() llm.Provider {
	return llm.ProviderOpenAI
}

// Validate implements llm.Client interface
func (c *Client) Validate() error {
	return validateConfig(c.config)
}

var _ llm.Client = (*Client)(nil)
