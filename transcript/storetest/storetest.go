// Package storetest holds the behavioural contract every transcript.Store
// implementation is expected to satisfy.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/KamdynS/go-structured/llm"
	"github.com/KamdynS/go-structured/transcript"
)

// Factory returns an empty store for one contract run.
type Factory func(t *testing.T) transcript.Store

// Run exercises Save, Get and List against a fresh store.
func Run(t *testing.T, makeStore Factory) {
	t.Helper()
	ctx := context.Background()
	s := makeStore(t)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	first := Sample(transcript.NewID(), base)
	second := Sample(transcript.NewID(), base.Add(time.Second))
	second.Parsed = nil
	second.Error = "extraction: no_tool_call"

	for _, r := range []transcript.Record{first, second} {
		if err := s.Save(ctx, r); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	got, err := s.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != first.Name || got.Method != first.Method || !got.StartedAt.Equal(first.StartedAt) {
		t.Fatalf("get: round trip mismatch: %+v", got)
	}
	if got.Parsed["operation"] != "add" || got.Parsed["number1"] != 2.0 {
		t.Fatalf("get: parsed mismatch: %+v", got.Parsed)
	}
	if got.Response == nil || len(got.Response.ToolCalls) != 1 || got.Response.ToolCalls[0].Function.Name != "calculator" {
		t.Fatalf("get: response mismatch: %+v", got.Response)
	}
	if len(got.Messages) != 2 || got.Messages[1].Content != "Please help me!! What is 2 + 2?" {
		t.Fatalf("get: messages mismatch: %+v", got.Messages)
	}

	if _, err := s.Get(ctx, transcript.NewID()); !errors.Is(err, transcript.ErrNotFound) {
		t.Fatalf("get missing: want ErrNotFound, got %v", err)
	}

	all, err := s.List(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].ID != second.ID || all[1].ID != first.ID {
		t.Fatalf("list: want newest first, got %d records", len(all))
	}
	if all[0].Succeeded() || !all[1].Succeeded() {
		t.Fatal("list: success flags wrong")
	}

	limited, err := s.List(ctx, 1)
	if err != nil {
		t.Fatalf("list limit: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != second.ID {
		t.Fatalf("list limit: got %d records", len(limited))
	}

	second.Error = "overwritten"
	if err := s.Save(ctx, second); err != nil {
		t.Fatalf("save overwrite: %v", err)
	}
	got, err = s.Get(ctx, second.ID)
	if err != nil || got.Error != "overwritten" {
		t.Fatalf("overwrite: %+v (%v)", got, err)
	}
}

// Sample returns a successful calculator record.
func Sample(id string, startedAt time.Time) transcript.Record {
	return transcript.Record{
		ID:         id,
		Name:       "calculator",
		Method:     "functionCalling",
		SchemaKind: "typed",
		Provider:   string(llm.ProviderOpenAI),
		Model:      llm.ModelGPT4TurboPreview,
		Messages: []llm.Message{
			llm.System("You are VERY bad at math and must always use a calculator."),
			llm.Human("Please help me!! What is 2 + 2?"),
		},
		Response: &llm.Response{
			Role:     llm.RoleAssistant,
			Model:    llm.ModelGPT4TurboPreview,
			Provider: llm.ProviderOpenAI,
			ToolCalls: []llm.ToolCall{{
				ID:   "call_1",
				Type: "function",
				Function: llm.Function{
					Name:      "calculator",
					Arguments: `{"operation":"add","number1":2,"number2":2}`,
				},
			}},
		},
		Parsed:    map[string]any{"operation": "add", "number1": 2.0, "number2": 2.0},
		StartedAt: startedAt,
		Duration:  150 * time.Millisecond,
	}
}
