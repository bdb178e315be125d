package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/comigor/jobchat-go/internal/assistant"
	"github.com/comigor/jobchat-go/internal/history"
	"github.com/comigor/jobchat-go/internal/llm"
	"github.com/comigor/jobchat-go/internal/logger"
	"github.com/comigor/jobchat-go/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the reference chat backend (socket, REST fallback, history)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store := history.Open(cfg.Storage.HistoryPath, logger.L)
			defer store.Close()

			client := llm.NewClient(cfg.LLM)
			if client == nil {
				logger.L.Info("no model configured; replies use canned text")
			}
			bot := assistant.New(assistant.Options{
				Client:       client,
				Model:        cfg.LLM.Model,
				SystemPrompt: cfg.LLM.SystemPrompt,
				History:      store,
				Logger:       logger.L,
			})

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			srv := &http.Server{
				Addr: cfg.Server.Addr(),
				Handler: server.New(server.Options{
					Responder:   bot,
					Transcripts: store,
					Gatherer:    reg,
					Logger:      logger.L,
				}).Handler(),
				ReadHeaderTimeout: 5 * time.Second,
				IdleTimeout:       120 * time.Second,
			}
			logger.L.Info("starting server", "address", srv.Addr)
			return runServer(ctx, srv)
		},
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
