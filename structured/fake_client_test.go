package structured

import (
	"context"
	"sync"

	"github.com/KamdynS/go-structured/llm"
)

// fakeClient returns a canned response and records every request.
type fakeClient struct {
	mu       sync.Mutex
	requests []*llm.ChatRequest
	resp     *llm.Response
	err      error
}

func (f *fakeClient) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeClient) Model() string          { return llm.ModelGPT4TurboPreview }
func (f *fakeClient) Provider() llm.Provider { return llm.ProviderOpenAI }
func (f *fakeClient) Validate() error        { return nil }

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeClient) lastRequest() *llm.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

func toolCallResponse(name, args string) *llm.Response {
	return &llm.Response{
		Role:         llm.RoleAssistant,
		Model:        llm.ModelGPT4TurboPreview,
		Provider:     llm.ProviderOpenAI,
		FinishReason: "tool_calls",
		Usage:        &llm.Usage{InputTokens: 40, OutputTokens: 12, TotalTokens: 52},
		ToolCalls: []llm.ToolCall{{
			ID:       "call_1",
			Type:     "function",
			Function: llm.Function{Name: name, Arguments: args},
		}},
	}
}

func textResponse(content string) *llm.Response {
	return &llm.Response{
		Role:         llm.RoleAssistant,
		Content:      content,
		Model:        llm.ModelGPT4TurboPreview,
		Provider:     llm.ProviderOpenAI,
		FinishReason: "stop",
	}
}

var _ llm.Client = (*fakeClient)(nil)
