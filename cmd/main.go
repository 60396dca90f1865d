package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coursepilot/coursepilot-backend/internal/data/db"
	"github.com/coursepilot/coursepilot-backend/internal/data/repos"
	httpx "github.com/coursepilot/coursepilot-backend/internal/http"
	httpH "github.com/coursepilot/coursepilot-backend/internal/http/handlers"
	"github.com/coursepilot/coursepilot-backend/internal/observability"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/event"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/executor"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/stage"
	"github.com/coursepilot/coursepilot-backend/internal/pipeline/state"
	"github.com/coursepilot/coursepilot-backend/internal/platform/logger"
	"github.com/coursepilot/coursepilot-backend/internal/platform/openai"
	"github.com/coursepilot/coursepilot-backend/internal/platform/pinecone"
	"github.com/coursepilot/coursepilot-backend/internal/services"
	"github.com/coursepilot/coursepilot-backend/internal/utils"
)

func main() {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "coursepilot-backend",
		Environment: utils.GetEnv("DEPLOY_ENV", "development", log),
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Redis: state store + event router share one client
	rdb, err := state.NewRedisClient(log)
	if err != nil {
		log.Fatal("Redis init failed", "error", err)
	}
	stateStore, err := state.NewRedisStore(log, rdb)
	if err != nil {
		log.Fatal("State store init failed", "error", err)
	}
	router, err := event.NewRouter(log, rdb)
	if err != nil {
		log.Fatal("Event router init failed", "error", err)
	}

	// Repos
	courseRepo := repos.NewCourseRepo(thePG, log)
	sectionRepo := repos.NewCourseSectionRepo(thePG, log)
	pipelineEventRepo := repos.NewPipelineEventRepo(thePG, log)

	// Clients
	openaiClient, err := openai.NewClient(log)
	if err != nil {
		log.Fatal("Could not init OpenAIClient", "error", err)
	}
	pineconeClient, err := pinecone.New(log, pinecone.Config{APIKey: os.Getenv("PINECONE_API_KEY")})
	if err != nil {
		log.Fatal("Could not init PineconeClient", "error", err)
	}
	vectorStore, err := pinecone.NewVectorStore(log, pineconeClient)
	if err != nil {
		log.Fatal("Could not init VectorStore", "error", err)
	}

	// Pipeline
	exec := executor.New(log, thePG, openaiClient, vectorStore, courseRepo, sectionRepo, pipelineEventRepo)
	registry, err := stage.NewRegistry(
		stage.NewEmbedStage(),
		stage.NewSourcesStage(),
		stage.NewPartsStage(),
		stage.NewExpandStage(),
		stage.NewReviewStage(),
		stage.NewStoreStage(),
	)
	if err != nil {
		log.Fatal("Stage registry init failed", "error", err)
	}
	worker := pipeline.NewWorker(log, stateStore, registry, exec, router)

	// HTTP
	intake := services.NewIntakeService(log, stateStore, router)
	server := httpx.NewServer(httpx.RouterConfig{
		CourseGenHandler: httpH.NewCourseGenHandler(log, intake),
		HealthHandler:    httpH.NewHealthHandler(),
	})
	addr := utils.GetEnv("HTTP_ADDR", ":8080", log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return router.Consume(gctx, worker.Handle)
	})
	g.Go(func() error {
		return server.Run(addr)
	})

	log.Info("coursepilot backend running", "addr", addr)
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Fatal("Service exited", "error", err)
	}
}
