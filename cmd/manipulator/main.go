// The manipulator is the pipeline's long-running HTTP service. It dispatches
// manipulation runs against documents and serves document and session state
// for polling.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/loandoc/pipeline/internal/config"
	"github.com/loandoc/pipeline/internal/gcp"
	"github.com/loandoc/pipeline/internal/handlers"
	"github.com/loandoc/pipeline/internal/lock"
	"github.com/loandoc/pipeline/internal/pdf"
	"github.com/loandoc/pipeline/internal/services"
	"github.com/loandoc/pipeline/internal/store"
	"github.com/loandoc/pipeline/internal/suggest"
	"github.com/loandoc/pipeline/internal/tracing"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, relying on environment variables.")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration.", "error", err)
		os.Exit(1)
	}
	slog.Info("Starting manipulator service.", "service", cfg.ServiceName, "port", cfg.ServicePort)

	ctx := context.Background()

	shutdownTracer, err := tracing.Init(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("Failed to initialize tracing.", "error", err)
		os.Exit(1)
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shCtx); err != nil {
			slog.Error("Failed to shut down tracer.", "error", err)
		}
	}()

	fsClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
	if err != nil {
		slog.Error("Failed to create Firestore client.", "error", err)
		os.Exit(1)
	}
	defer fsClient.Close()

	objects, err := gcp.NewObjectStore(ctx, cfg.DocumentsBucket)
	if err != nil {
		slog.Error("Failed to create object store.", "error", err)
		os.Exit(1)
	}

	locker, err := lock.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		slog.Error("Failed to connect to Redis.", "error", err)
		os.Exit(1)
	}
	defer locker.Close()

	var suggester services.Suggester
	if cfg.SuggesterEnabled {
		client, err := suggest.New(ctx, cfg.ProjectID, cfg.VertexAIRegion)
		if err != nil {
			slog.Error("Failed to create classification suggester.", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		suggester = client
	}

	st := store.New(fsClient, cfg.DocumentsCollection, cfg.SessionsCollection)
	engine := pdf.NewCPUEngine(cfg.RasterDPI)
	orchestrator := services.NewOrchestrator(st, objects, engine, locker, st, suggester, cfg.LeadRangeSource, services.Options{
		LockTTL:    cfg.LockTTL,
		RunTimeout: cfg.RunTimeout,
	})

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	processHandler := handlers.NewProcessHandler(st, orchestrator)
	annotationsHandler := handlers.NewAnnotationsHandler(st)
	sessionHandler := handlers.NewSessionHandler(st)
	documentHandler := handlers.NewDocumentHandler(st)

	router.Handle("/documents/{id}/process",
		otelhttp.NewHandler(processHandler, "POST /documents/{id}/process")).Methods("POST")
	router.Handle("/documents/{id}/annotations",
		otelhttp.NewHandler(annotationsHandler, "POST /documents/{id}/annotations")).Methods("POST")
	router.Handle("/documents/{id}",
		otelhttp.NewHandler(documentHandler, "GET /documents/{id}")).Methods("GET")
	router.Handle("/sessions/{id}",
		otelhttp.NewHandler(sessionHandler, "GET /sessions/{id}")).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.ServicePort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("Server listening.", "port", cfg.ServicePort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed.", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server.")
	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		slog.Error("Server forced to shut down.", "error", err)
	}
	slog.Info("Server exited.")
}
