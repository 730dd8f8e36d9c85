package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/KamdynS/go-structured/calculator"
	"github.com/KamdynS/go-structured/internal/logutil"
	"github.com/KamdynS/go-structured/observability"
	"github.com/KamdynS/go-structured/observability/prom"
	"github.com/KamdynS/go-structured/schema"
	structhttp "github.com/KamdynS/go-structured/server/http"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve POST /v1/structured over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper(v, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			shutdown, err := setupOTel(v, logger)
			if err != nil {
				return err
			}
			defer func() { _ = shutdown(context.Background()) }()

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client, err := clientFromViper(v)
			if err != nil {
				return err
			}
			recorder, closeRecorder, err := recorderFromViper(ctx, v, logger)
			if err != nil {
				return err
			}
			defer closeRecorder()

			exporter := prom.New()
			if v.GetBool("otel.enabled") {
				observability.SetMetrics(observability.Multi(observability.MetricsImpl, exporter))
			} else {
				observability.SetMetrics(exporter)
			}

			srv := structhttp.NewServer(client, structhttp.Config{
				Port:       v.GetInt("server.port"),
				EnableCORS: v.GetBool("server.cors"),
				Schemas:    map[string]schema.Schema{calculator.Name: calculator.Schema()},
				Recorder:   recorder,
				Metrics:    exporter,
				Logger:     logger,
			})
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().Int("port", 8080, "Listen port.")
	cmd.Flags().Bool("cors", false, "Allow cross-origin requests.")
	_ = v.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	_ = v.BindPFlag("server.cors", cmd.Flags().Lookup("cors"))
	return cmd
}
