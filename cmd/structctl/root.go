package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "STRUCTCTL"

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:          "structctl",
		Short:        "Structured output from chat models",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v)
		},
	}

	pf := cmd.PersistentFlags()
	pf.String("config", "", "Config file path (optional).")
	pf.String("env-file", ".env", "Dotenv file loaded before reading the environment.")
	pf.String("provider", "openai", "Chat provider: openai|anthropic.")
	pf.String("model", "", "Model identifier (provider default when empty).")
	pf.Float64("temperature", 0, "Sampling temperature.")
	pf.Duration("timeout", 60*time.Second, "Per-request timeout.")
	pf.String("transcript-backend", "none", "Transcript store: none|memory|redis|postgres.")
	pf.String("log-level", "", "Logging level: debug|info|warn|error.")
	pf.String("log-format", "text", "Logging format: text|json.")
	pf.Bool("log-add-source", false, "Include source file:line in logs.")
	pf.Bool("debug", false, "Shortcut for --log-level=debug.")
	pf.Bool("otel", false, "Export spans through OpenTelemetry.")

	bind := map[string]string{
		"config":             "config",
		"env_file":           "env-file",
		"provider":           "provider",
		"model":              "model",
		"temperature":        "temperature",
		"timeout":            "timeout",
		"transcript.backend": "transcript-backend",
		"logging.level":      "log-level",
		"logging.format":     "log-format",
		"logging.add_source": "log-add-source",
		"debug":              "debug",
		"otel.enabled":       "otel",
	}
	for key, flag := range bind {
		_ = v.BindPFlag(key, pf.Lookup(flag))
	}
	setDefaults(v)

	cmd.AddCommand(newInvokeCmd(v))
	cmd.AddCommand(newServeCmd(v))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", "openai")
	v.SetDefault("timeout", 60*time.Second)
	v.SetDefault("transcript.backend", "none")
	v.SetDefault("transcript.redis_addr", "localhost:6379")
	v.SetDefault("transcript.redis_prefix", "structured")
	v.SetDefault("transcript.ttl", 24*time.Hour)
	v.SetDefault("transcript.postgres_table", "structured_transcripts")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors", false)
	v.SetDefault("logging.format", "text")
	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.service_name", "structctl")
	v.SetDefault("otel.metrics_interval", time.Minute)
}

// initConfig loads the dotenv file, the environment and an optional config
// file, in increasing precedence below flags.
func initConfig(v *viper.Viper) error {
	if envFile := strings.TrimSpace(v.GetString("env_file")); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	// Provider SDK conventions.
	_ = v.BindEnv("openai.api_key", envPrefix+"_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("openai.base_url", envPrefix+"_OPENAI_BASE_URL", "OPENAI_BASE_URL")
	_ = v.BindEnv("anthropic.api_key", envPrefix+"_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("anthropic.base_url", envPrefix+"_ANTHROPIC_BASE_URL", "ANTHROPIC_BASE_URL")

	cfgFile := strings.TrimSpace(v.GetString("config"))
	if cfgFile == "" {
		return nil
	}
	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", cfgFile, err)
	}
	return nil
}

var (
	version = "dev"
	commit  = "none"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "structctl %s\n", strings.TrimSpace(version))
			if c := strings.TrimSpace(commit); c != "" && c != "none" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "commit: %s\n", c)
			}
			return nil
		},
	}
}
