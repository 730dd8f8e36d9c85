package llm

import (
	"fmt"
	"sort"
)

// Provider represents LLM providers
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Model represents an LLM model with its properties
type Model struct {
	Provider     Provider     `json:"provider"`
	Name         string       `json:"name"`
	DisplayName  string       `json:"display_name"`
	ContextSize  int          `json:"context_size"`
	InputCost    float64      `json:"input_cost"`  // USD per 1M input tokens
	OutputCost   float64      `json:"output_cost"` // USD per 1M output tokens
	Capabilities Capabilities `json:"capabilities"`
}

// Capabilities records which structured output methods a model supports.
type Capabilities struct {
	FunctionCalling bool `json:"function_calling"`
	JSONMode        bool `json:"json_mode"`
}

// OpenAI models
const (
	ModelGPT4o             = "gpt-4o"
	ModelGPT4oMini         = "gpt-4o-mini"
	ModelGPT4Turbo         = "gpt-4-turbo"
	ModelGPT4TurboPreview  = "gpt-4-turbo-preview"
	ModelGPT4_1106_Preview = "gpt-4-1106-preview"
	ModelGPT35Turbo        = "gpt-3.5-turbo"
)

// Anthropic models
const (
	ModelClaude35Sonnet = "claude-3-5-sonnet-20241022"
	ModelClaude35Haiku  = "claude-3-5-haiku-20241022"
	ModelClaudeHaiku    = "claude-3-haiku-20240307"
)

var (
	openAIStructured    = Capabilities{FunctionCalling: true, JSONMode: true}
	anthropicStructured = Capabilities{FunctionCalling: true}
)

// AvailableModels contains all known models with their metadata
var AvailableModels = map[string]Model{
	ModelGPT4o: {
		Provider: ProviderOpenAI, Name: ModelGPT4o, DisplayName: "GPT-4o",
		ContextSize: 128000, InputCost: 5.0, OutputCost: 15.0,
		Capabilities: openAIStructured,
	},
	ModelGPT4oMini: {
		Provider: ProviderOpenAI, Name: ModelGPT4oMini, DisplayName: "GPT-4o Mini",
		ContextSize: 128000, InputCost: 0.15, OutputCost: 0.60,
		Capabilities: openAIStructured,
	},
	ModelGPT4Turbo: {
		Provider: ProviderOpenAI, Name: ModelGPT4Turbo, DisplayName: "GPT-4 Turbo",
		ContextSize: 128000, InputCost: 10.0, OutputCost: 30.0,
		Capabilities: openAIStructured,
	},
	ModelGPT4TurboPreview: {
		Provider: ProviderOpenAI, Name: ModelGPT4TurboPreview, DisplayName: "GPT-4 Turbo Preview",
		ContextSize: 128000, InputCost: 10.0, OutputCost: 30.0,
		Capabilities: openAIStructured,
	},
	ModelGPT4_1106_Preview: {
		Provider: ProviderOpenAI, Name: ModelGPT4_1106_Preview, DisplayName: "GPT-4 1106 Preview",
		ContextSize: 128000, InputCost: 10.0, OutputCost: 30.0,
		Capabilities: openAIStructured,
	},
	ModelGPT35Turbo: {
		Provider: ProviderOpenAI, Name: ModelGPT35Turbo, DisplayName: "GPT-3.5 Turbo",
		ContextSize: 16385, InputCost: 0.5, OutputCost: 1.5,
		Capabilities: openAIStructured,
	},
	ModelClaude35Sonnet: {
		Provider: ProviderAnthropic, Name: ModelClaude35Sonnet, DisplayName: "Claude 3.5 Sonnet",
		ContextSize: 200000, InputCost: 3.0, OutputCost: 15.0,
		Capabilities: anthropicStructured,
	},
	ModelClaude35Haiku: {
		Provider: ProviderAnthropic, Name: ModelClaude35Haiku, DisplayName: "Claude 3.5 Haiku",
		ContextSize: 200000, InputCost: 0.8, OutputCost: 4.0,
		Capabilities: anthropicStructured,
	},
	ModelClaudeHaiku: {
		Provider: ProviderAnthropic, Name: ModelClaudeHaiku, DisplayName: "Claude 3 Haiku",
		ContextSize: 200000, InputCost: 0.25, OutputCost: 1.25,
		Capabilities: anthropicStructured,
	},
}

// GetModel returns model metadata for a given model name
func GetModel(name string) (Model, error) {
	model, exists := AvailableModels[name]
	if !exists {
		return Model{}, fmt.Errorf("unknown model: %s", name)
	}
	return model, nil
}

// GetModelsByProvider returns all models for a given provider, sorted by name.
func GetModelsByProvider(provider Provider) []Model {
	var models []Model
	for _, model := range AvailableModels {
		if model.Provider == provider {
			models = append(models, model)
		}
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models
}

// ValidateModel checks if a model name is valid
func ValidateModel(name string) error {
	_, err := GetModel(name)
	return err
}

// String returns a human-readable representation of the model
func (m Model) String() string {
	return fmt.Sprintf("%s (%s) - %s", m.DisplayName, m.Name, m.Provider)
}

// EstimateCost estimates the cost for given token counts
func (m Model) EstimateCost(inputTokens, outputTokens int) float64 {
	inputCost := (float64(inputTokens) / 1000000) * m.InputCost
	outputCost := (float64(outputTokens) / 1000000) * m.OutputCost
	return inputCost + outputCost
}
