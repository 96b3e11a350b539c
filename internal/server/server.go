package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	mid "github.com/atlaskb/backend/internal/server/middleware"

	"github.com/atlaskb/backend/internal/queue"
	"github.com/atlaskb/backend/internal/util"
	"github.com/atlaskb/backend/pkg/ai"
	oai "github.com/atlaskb/backend/pkg/ai/ollama"
	gai "github.com/atlaskb/backend/pkg/ai/openai"
	"github.com/atlaskb/backend/pkg/knowledge"
	"github.com/atlaskb/backend/pkg/logger"
	"github.com/atlaskb/backend/pkg/store"
	"github.com/atlaskb/backend/pkg/store/memory"
	pgxstore "github.com/atlaskb/backend/pkg/store/pgx"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

func Init() {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &mid.App{}

	databaseURL := util.GetEnv("DATABASE_URL")
	var docStore store.DocumentStore
	if databaseURL != "" {
		if err := pgxstore.Migrate(databaseURL); err != nil {
			logger.Fatal("Failed to run migrations", "err", err)
		}
		pool, err := pgxstore.NewPool(ctx, databaseURL)
		if err != nil {
			logger.Fatal("Failed to connect to database", "err", err)
		}
		defer pool.Close()
		app.DBConn = pool
		docStore = pgxstore.New(pool)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory document store")
		docStore = memory.New()
	}

	if util.GetEnv("RABBITMQ_HOST") != "" {
		que := queue.Init()
		defer que.Close()
		ch, err := que.Channel()
		if err != nil {
			logger.Fatal("Failed to open channel", "err", err)
		}
		if err := queue.SetupQueues(ch, queue.JobQueues); err != nil {
			logger.Fatal("Failed to set up queues", "err", err)
		}
		app.Queue = ch
	}

	svc := knowledge.New(NewTextModelClient(), docStore, KnowledgeParams())
	if loaded, err := svc.LoadIndex(ctx); err != nil {
		logger.Error("Failed to load embedding index", "err", err)
	} else {
		logger.Info("Embedding index ready", "vectors", loaded)
	}
	app.Knowledge = svc

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	RegisterRoutes(e)

	go func() {
		port := util.GetEnvString("PORT", "8080")
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}

// NewTextModelClient builds the configured text model adapter, or nil when
// none is configured so the core runs pattern-and-keyword-only.
func NewTextModelClient() ai.TextModelClient {
	switch util.GetEnv("AI_ADAPTER") {
	case "ollama":
		client, err := oai.NewTextModelOllamaClient(oai.NewTextModelOllamaClientParams{
			CompletionModel: util.GetEnv("AI_CHAT_MODEL"),
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),
			EmbeddingDim:    util.GetEnvInt("AI_EMBED_DIM", 0),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),
		})
		if err != nil {
			logger.Fatal("Could not create Ollama client", "err", err)
		}
		return client
	case "openai":
		return gai.NewTextModelOpenAIClient(gai.NewTextModelOpenAIClientParams{
			CompletionModel: util.GetEnv("AI_CHAT_MODEL"),
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),
			EmbeddingDim:    util.GetEnvInt("AI_EMBED_DIM", 0),

			ChatURL:      util.GetEnv("AI_CHAT_URL"),
			ChatKey:      util.GetEnv("AI_CHAT_KEY"),
			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),
		})
	default:
		logger.Warn("AI_ADAPTER not set, text model disabled")
		return nil
	}
}

// KnowledgeParams reads the policy knobs from the environment. Zero values
// select each subsystem's default.
func KnowledgeParams() knowledge.Params {
	return knowledge.Params{
		FuzzyThreshold:         util.GetEnvNumeric("ENTITY_FUZZY_THRESHOLD", 0),
		MinNewEntityConfidence: util.GetEnvNumeric("EXTRACT_MIN_CONFIDENCE", 0),
		GraphHalfLifeDays:      util.GetEnvNumeric("GRAPH_HALF_LIFE_DAYS", 0),
		GraphSaturationScale:   util.GetEnvNumeric("GRAPH_SATURATION_SCALE", 0),
		GraphExplicitCeiling:   util.GetEnvNumeric("GRAPH_EXPLICIT_CEILING", 0),
		VectorWeight:           util.GetEnvNumeric("SEARCH_VECTOR_WEIGHT", 0),
		KeywordWeight:          util.GetEnvNumeric("SEARCH_KEYWORD_WEIGHT", 0),
		GraphWeight:            util.GetEnvNumeric("SEARCH_GRAPH_WEIGHT", 0),
		SynthesisSources:       util.GetEnvInt("SYNTHESIS_SOURCES", 0),
		ExtractConcurrency:     util.GetEnvInt("EXTRACT_CONCURRENCY", 0),
		EmbedConcurrency:       util.GetEnvInt("EMBED_CONCURRENCY", 0),
	}
}
