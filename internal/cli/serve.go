package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/peakmind/coach/internal/api"
	"github.com/peakmind/coach/internal/auth"
	"github.com/peakmind/coach/internal/config"
	"github.com/peakmind/coach/internal/core"
	"github.com/peakmind/coach/internal/health"
	"github.com/peakmind/coach/internal/llm"
	"github.com/peakmind/coach/internal/metrics"
	"github.com/peakmind/coach/internal/speech"
	"github.com/peakmind/coach/internal/store"
	"github.com/peakmind/coach/internal/telemetry"
	"github.com/peakmind/coach/internal/vector"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

func init() {
	// The bare binary starts the server.
	RootCmd.RunE = runServe
	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg, logger)
}

// closer is released in reverse order of acquisition on shutdown.
type closer struct {
	name string
	fn   func(ctx context.Context) error
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	var closers []closer
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].fn(shutdownCtx); err != nil {
				logger.Warn("Error during shutdown", zap.String("resource", closers[i].name), zap.Error(err))
			}
		}
	}()

	if cfg.EnableTracing {
		tp, err := telemetry.InitTracing(ctx, cfg.Environment, cfg.OTLPEndpoint)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		closers = append(closers, closer{"tracer", tp.Shutdown})
		logger.Info("Tracing enabled", zap.String("endpoint", cfg.OTLPEndpoint))
	}

	collector := metrics.NewCollector()
	monitor := health.NewMonitor(cfg.HealthCheckInterval, cfg.HealthCheckTimeout, collector, logger)

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	closers = append(closers, closer{"store", func(context.Context) error { return st.Close() }})
	monitor.Register("store", st.Ping)

	model, embedder, release, err := buildModels(ctx, cfg)
	if err != nil {
		return err
	}
	closers = append(closers, closer{"llm", func(context.Context) error { return release() }})

	var searcher vector.Searcher
	if cfg.VectorBackend == "pgvector" {
		pg, err := vector.NewPGVectorStore(ctx, cfg.VectorDatabaseURL, cfg.VectorCollection, embedder)
		if err != nil {
			return fmt.Errorf("failed to connect to vector database: %w", err)
		}
		closers = append(closers, closer{"vector", func(context.Context) error { pg.Close(); return nil }})
		monitor.Register("vector", pg.Ping)
		searcher = pg
	} else {
		logger.Warn("Context retrieval disabled", zap.String("vector_backend", cfg.VectorBackend))
	}

	catalog, err := core.LoadPersonas(cfg.PersonaFile)
	if err != nil {
		return err
	}
	persona, err := catalog.Get(cfg.Persona)
	if err != nil {
		return err
	}

	llmService := core.NewLLMService(model, cfg.CompletionFallback, cfg.LLMTimeout, collector, logger)
	ragService := core.NewRAGService(searcher, cfg.RetrievalK, collector, logger)
	chatService := core.NewChatService(st, ragService, llmService, core.ChatConfig{
		Instructions:  persona.Instructions,
		HistoryLimit:  cfg.HistoryLimit,
		FanoutTimeout: cfg.TurnFanoutTimeout,
	}, collector, logger)
	profileService := core.NewProfileService(st, logger)
	speechService := core.NewSpeechService(
		speech.NewClient(cfg.ElevenLabsAPIKey, cfg.TTSTimeout,
			speech.WithBaseURL(cfg.ElevenLabsBaseURL),
			speech.WithModel(cfg.ElevenLabsModel),
		),
		cfg.ElevenLabsDefaultVoice, collector, logger,
	)

	if err := monitor.Start(); err != nil {
		return err
	}
	closers = append(closers, closer{"monitor", func(context.Context) error { return monitor.Shutdown() }})

	routerCfg := api.RouterConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		EnableDebug:    cfg.EnableDebugRoutes,
		Readiness:      monitor,
	}
	if cfg.EnableMetrics {
		routerCfg.Metrics = collector
	}
	if cfg.AuthJWTSecret != "" {
		routerCfg.Auth = newValidator(cfg.AuthJWTSecret)
	}
	handler := api.NewAPIHandler(chatService, profileService, speechService, logger)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(handler, routerCfg, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LLMTimeout + cfg.TurnFanoutTimeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server",
			zap.String("addr", srv.Addr),
			zap.String("store", cfg.StoreBackend),
			zap.String("vector", cfg.VectorBackend),
			zap.String("model", model.Name()),
			zap.String("persona", cfg.Persona),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("could not listen on %s: %w", srv.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server exited gracefully")
	return nil
}

func newValidator(secret string) *auth.Validator {
	return auth.NewValidator(secret, 24*time.Hour)
}

func openStore(cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case "sqlite":
		st, err := store.NewSQLiteStore(cfg.DatabasePath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return st, nil
	default:
		st, err := store.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey(), cfg.SupabaseTimeout, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize supabase client: %w", err)
		}
		return st, nil
	}
}

// buildModels returns the chat model, the embedder and a release func for
// any SDK clients that hold connections.
func buildModels(ctx context.Context, cfg *config.Config) (llm.ChatModel, llm.Embedder, func() error, error) {
	var (
		openai *llm.OpenAIClient
		gemini *llm.GeminiClient
	)
	release := func() error {
		if gemini != nil {
			return gemini.Close()
		}
		return nil
	}

	if cfg.LLMProvider == "openai" || cfg.EmbeddingProvider == "openai" {
		openai = llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:         cfg.OpenAIAPIKey,
			BaseURL:        cfg.OpenAIBaseURL,
			ChatModel:      cfg.OpenAIChatModel,
			EmbeddingModel: cfg.OpenAIEmbeddingModel,
			Temperature:    cfg.LLMTemperature,
			Timeout:        cfg.LLMTimeout,
		})
	}
	if cfg.LLMProvider == "gemini" || cfg.EmbeddingProvider == "gemini" {
		g, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
			APIKey:         cfg.GeminiAPIKey,
			ChatModel:      cfg.GeminiChatModel,
			EmbeddingModel: cfg.GeminiEmbeddingModel,
			Temperature:    cfg.LLMTemperature,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create gemini client: %w", err)
		}
		gemini = g
	}

	var (
		model    llm.ChatModel
		embedder llm.Embedder
	)
	if cfg.LLMProvider == "gemini" {
		model = gemini
	} else {
		model = openai
	}
	if cfg.EmbeddingProvider == "gemini" {
		embedder = gemini
	} else {
		embedder = openai
	}
	return model, embedder, release, nil
}
