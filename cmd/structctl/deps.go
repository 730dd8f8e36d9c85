package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/KamdynS/go-structured/llm"
	"github.com/KamdynS/go-structured/llm/anthropic"
	"github.com/KamdynS/go-structured/llm/openai"
	"github.com/KamdynS/go-structured/observability"
	otelobs "github.com/KamdynS/go-structured/observability/otel"
	"github.com/KamdynS/go-structured/transcript"
	"github.com/KamdynS/go-structured/transcript/inmemory"
	"github.com/KamdynS/go-structured/transcript/postgres"
	tredis "github.com/KamdynS/go-structured/transcript/redis"
	"github.com/jackc/pgx/v5/pgxpool"
	rds "github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
)

func clientFromViper(v *viper.Viper) (llm.Client, error) {
	// Leave the provider default in place unless a temperature was given.
	var temperature *float64
	if v.IsSet("temperature") {
		t := v.GetFloat64("temperature")
		temperature = &t
	}
	timeout := v.GetDuration("timeout")
	model := strings.TrimSpace(v.GetString("model"))

	switch provider := strings.ToLower(strings.TrimSpace(v.GetString("provider"))); provider {
	case "", string(llm.ProviderOpenAI):
		client, err := openai.NewClient(openai.Config{
			APIKey:      v.GetString("openai.api_key"),
			BaseURL:     v.GetString("openai.base_url"),
			Model:       model,
			Temperature: temperature,
			Timeout:     timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		return client, nil
	case string(llm.ProviderAnthropic):
		client, err := anthropic.NewClient(anthropic.Config{
			APIKey:      v.GetString("anthropic.api_key"),
			BaseURL:     v.GetString("anthropic.base_url"),
			Model:       model,
			Temperature: temperature,
			Timeout:     timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("anthropic: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

// recorderFromViper opens the configured transcript store. The returned
// close function is never nil.
func recorderFromViper(ctx context.Context, v *viper.Viper, logger *slog.Logger) (transcript.Store, func(), error) {
	noop := func() {}

	switch backend := strings.ToLower(strings.TrimSpace(v.GetString("transcript.backend"))); backend {
	case "", "none":
		return nil, noop, nil
	case "memory":
		return inmemory.NewStore(), noop, nil
	case "redis":
		client := rds.NewClient(&rds.Options{
			Addr:     v.GetString("transcript.redis_addr"),
			Password: v.GetString("transcript.redis_password"),
			DB:       v.GetInt("transcript.redis_db"),
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("redis transcript store: %w", err)
		}
		logger.Debug("transcripts in redis", "addr", v.GetString("transcript.redis_addr"))
		store := tredis.NewStore(client, v.GetDuration("transcript.ttl"), v.GetString("transcript.redis_prefix"))
		return store, func() { _ = client.Close() }, nil
	case "postgres":
		dsn := v.GetString("transcript.postgres_dsn")
		if dsn == "" {
			return nil, noop, fmt.Errorf("postgres transcript store: transcript.postgres_dsn is required")
		}
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, noop, fmt.Errorf("postgres transcript store: %w", err)
		}
		store := postgres.New(pool, postgres.WithTable(v.GetString("transcript.postgres_table")))
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, noop, fmt.Errorf("postgres transcript store: %w", err)
		}
		logger.Debug("transcripts in postgres", "table", v.GetString("transcript.postgres_table"))
		return store, pool.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown transcript backend %q", backend)
	}
}

// setupOTel installs OpenTelemetry tracing and metrics when otel.enabled is
// set. Finished spans and collected metrics are logged. The returned shutdown
// flushes both.
func setupOTel(v *viper.Viper, logger *slog.Logger) (func(context.Context) error, error) {
	if !v.GetBool("otel.enabled") {
		return func(context.Context) error { return nil }, nil
	}

	service := v.GetString("otel.service_name")
	tp := otelobs.NewTracerProvider(logger)
	mp := otelobs.NewMeterProvider(logger, v.GetDuration("otel.metrics_interval"))
	shutdown := func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}

	metrics, err := otelobs.NewMetricsAdapter(service, mp)
	if err != nil {
		_ = shutdown(context.Background())
		return nil, fmt.Errorf("otel metrics: %w", err)
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	observability.SetTracer(otelobs.NewTracer(service, tp))
	observability.SetMetrics(metrics)
	return shutdown, nil
}
