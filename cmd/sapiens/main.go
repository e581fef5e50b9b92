// Sapiens career mentoring service.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/philippgille/chromem-go"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/mason-sapiens/sapiens-mvp/agent"
	"github.com/mason-sapiens/sapiens-mvp/config"
	"github.com/mason-sapiens/sapiens-mvp/knowledge"
	"github.com/mason-sapiens/sapiens-mvp/logging"
	"github.com/mason-sapiens/sapiens-mvp/model"
	anthropicmodel "github.com/mason-sapiens/sapiens-mvp/model/anthropic"
	openaimodel "github.com/mason-sapiens/sapiens-mvp/model/openai"
	"github.com/mason-sapiens/sapiens-mvp/orchestrator"
	"github.com/mason-sapiens/sapiens-mvp/server"
	"github.com/mason-sapiens/sapiens-mvp/store"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("starting server", "addr", cfg.Server.Addr, "provider", cfg.Model.Provider)

	repo, err := store.NewSQLite(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to initialize database", "error", err, "path", cfg.Database.Path)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			logger.Error("failed to close database", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected", "path", cfg.Database.Path)

	backend, err := buildModel(cfg.Model)
	if err != nil {
		logger.Error("failed to initialize model backend", "error", err)
		os.Exit(1)
	}

	var retriever knowledge.Retriever
	if cfg.Knowledge.Enabled {
		r, err := knowledge.NewChromemRetriever(knowledge.ChromemConfig{
			Path:       cfg.Knowledge.Path,
			Collection: cfg.Knowledge.Collection,
		}, chromem.NewEmbeddingFuncDefault())
		if err != nil {
			logger.Error("failed to initialize knowledge store", "error", err)
			os.Exit(1)
		}
		retriever = r
		logger.Info("knowledge store ready", "path", cfg.Knowledge.Path)
	}

	agentOpts := func(o *agent.Options) {
		o.Timeout = time.Duration(cfg.Model.TimeoutSeconds) * time.Second
		o.Retriever = retriever
		o.Logger = logger
	}
	agents := orchestrator.Agents{
		Relay:     agent.NewRelay(backend, agentOpts),
		Generator: agent.NewGenerator(backend, agentOpts),
		Evaluator: agent.NewEvaluator(backend, agentOpts),
		Coach:     agent.NewCoach(backend, agentOpts),
		Reviewer:  agent.NewReviewer(backend, agentOpts),
	}

	orch := orchestrator.New(repo, agents, func(o *orchestrator.Options) {
		o.Logger = logger
		o.StrictUsers = cfg.Orchestrator.StrictUsers
	})

	srv := server.New(orch, repo, func(o *server.Options) {
		o.Logger = logger
	})

	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
			os.Exit(1)
		}
	}
	logger.Info("server stopped")
}

// buildModel selects the text-generation backend from configuration.
func buildModel(cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case "openai":
		return openaimodel.NewModel(func(o *openaimodel.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.Temperature = cfg.Temperature
			o.MaxCompletionTokens = cfg.MaxTokens
		}), nil
	case "anthropic":
		return anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
			o.Temperature = cfg.Temperature
			o.MaxTokens = cfg.MaxTokens
		}), nil
	case "mock":
		return model.NewMock(), nil
	default:
		return nil, errors.New("unknown model provider " + cfg.Provider)
	}
}
