package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/KamdynS/go-structured/calculator"
	"github.com/KamdynS/go-structured/internal/logutil"
	"github.com/KamdynS/go-structured/llm"
	"github.com/KamdynS/go-structured/schema"
	"github.com/KamdynS/go-structured/structured"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newInvokeCmd(v *viper.Viper) *cobra.Command {
	var (
		schemaArg  string
		name       string
		method     string
		includeRaw bool
		repair     bool
		system     string
		human      string
	)

	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Ask the model once and print the structured result as JSON",
		Example: `  structctl invoke --human "What is 2 + 2?"
  structctl invoke --schema ./person.json --name person --method jsonMode \
    --system "Reply with JSON holding name and age." --human "Ada, 36"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(human) == "" {
				return fmt.Errorf("--human is required")
			}
			m, err := structured.ParseMethod(method)
			if err != nil {
				return err
			}

			sch, isCalculator, err := loadSchema(schemaArg)
			if err != nil {
				return err
			}
			if name == "" && isCalculator {
				name = calculator.Name
			}
			if system == "" && isCalculator {
				system = calculator.SystemPrompt
				if m == structured.MethodJSONMode {
					system = calculator.Instructions
				}
			}

			logger, err := logutil.LoggerFromViper(v, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			shutdown, err := setupOTel(v, logger)
			if err != nil {
				return err
			}
			defer func() { _ = shutdown(context.Background()) }()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			client, err := clientFromViper(v)
			if err != nil {
				return err
			}
			recorder, closeRecorder, err := recorderFromViper(ctx, v, logger)
			if err != nil {
				return err
			}
			defer closeRecorder()

			model, err := structured.Configure(client, sch, structured.Options{
				Name:       name,
				Method:     m,
				IncludeRaw: includeRaw,
				Repair:     repair,
				Recorder:   recorder,
				Logger:     logger,
			})
			if err != nil {
				return err
			}

			var msgs []llm.Message
			if system != "" {
				msgs = append(msgs, llm.System(system))
			}
			msgs = append(msgs, llm.Human(human))

			result, err := model.Invoke(ctx, msgs)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}

			if isCalculator {
				req, err := structured.Decode[calculator.Request](result)
				if err != nil {
					return err
				}
				answer, err := req.Evaluate()
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", req, calculator.FormatResult(answer))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&schemaArg, "schema", calculator.Name, `"calculator" or a JSON Schema file.`)
	f.StringVar(&name, "name", "", "Output name; the tool name under function calling.")
	f.StringVar(&method, "method", "functionCalling", "Extraction method: functionCalling|jsonMode.")
	f.BoolVar(&includeRaw, "include-raw", false, "Print the raw model response with the parsed value.")
	f.BoolVar(&repair, "repair", false, "Repair malformed JSON-mode output before parsing.")
	f.StringVar(&system, "system", "", "System prompt.")
	f.StringVar(&human, "human", "", "User message.")
	return cmd
}

// loadSchema resolves the --schema argument. The built-in calculator schema
// also selects the calculator prompts and answer.
func loadSchema(arg string) (schema.Schema, bool, error) {
	if arg == "" || arg == calculator.Name {
		return calculator.Schema(), true, nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return schema.Schema{}, false, fmt.Errorf("read schema: %w", err)
	}
	return schema.JSONBytes(data), false, nil
}
