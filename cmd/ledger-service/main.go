package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pharmstock/pharmstock-backend/internal/ledger/events"
	"github.com/pharmstock/pharmstock-backend/internal/ledger/handler"
	"github.com/pharmstock/pharmstock-backend/internal/ledger/repository"
	"github.com/pharmstock/pharmstock-backend/internal/ledger/service"
	"github.com/pharmstock/pharmstock-backend/pkg/config"
	"github.com/pharmstock/pharmstock-backend/pkg/database"
	"github.com/pharmstock/pharmstock-backend/pkg/httputil"
	"github.com/pharmstock/pharmstock-backend/pkg/logger"
	"github.com/pharmstock/pharmstock-backend/pkg/messaging"
)

// expirySweepInterval is how often open batches are re-scanned for upcoming
// expiries. One pass per day is enough; the alert window is measured in days.
const expirySweepInterval = 24 * time.Hour

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("ledger-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("ledger-service", cfg.Server.Environment)
	log.Info().Msg("starting Ledger Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	publisher, err := events.NewLedgerEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize repositories
	itemRepo := repository.NewItemRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	entryRepo := repository.NewEntryRepository(db)

	// Initialize service
	ledgerService := service.NewLedgerService(db, itemRepo, batchRepo, entryRepo, publisher, log, cfg.Ledger)

	// Initialize handlers
	itemHandler := handler.NewItemHandler(ledgerService, log)
	ledgerHandler := handler.NewLedgerHandler(ledgerService, log)
	batchHandler := handler.NewBatchHandler(ledgerService, log)
	exportHandler := handler.NewExportHandler(ledgerService, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Periodic expiry sweep
	go runExpirySweep(ctx, ledgerService, log)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(httputil.ActorContext)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Actor-ID", "X-Actor-Name", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "ledger-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1/ledger", func(r chi.Router) {
		r.Route("/items", func(r chi.Router) {
			r.Get("/", itemHandler.List)
			r.Post("/", itemHandler.Create)
			r.Get("/{id}", itemHandler.Get)
			r.Delete("/{id}", itemHandler.Delete)

			r.Post("/{id}/receive", ledgerHandler.Receive)
			r.Post("/{id}/consume", ledgerHandler.Consume)
			r.Post("/{id}/consume-batch", ledgerHandler.ConsumeFromBatch)
			r.Post("/{id}/adjust", ledgerHandler.Adjust)
			r.Post("/{id}/reconcile", ledgerHandler.Reconcile)
			r.Get("/{id}/history", ledgerHandler.History)
			r.Get("/{id}/register", exportHandler.StockRegister)
			r.Get("/{id}/batches", batchHandler.ListByItem)
		})

		r.Get("/batches/expiring", batchHandler.Expiring)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Stop the expiry sweep
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func runExpirySweep(ctx context.Context, svc *service.LedgerService, log *logger.Logger) {
	ticker := time.NewTicker(expirySweepInterval)
	defer ticker.Stop()

	// Run once at startup so alerts do not wait a full interval after a restart
	if n, err := svc.SweepExpiring(ctx); err != nil {
		log.Error().Err(err).Msg("expiry sweep failed")
	} else if n > 0 {
		log.Info().Int("batches", n).Msg("expiry sweep published alerts")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := svc.SweepExpiring(ctx); err != nil {
				log.Error().Err(err).Msg("expiry sweep failed")
			} else if n > 0 {
				log.Info().Int("batches", n).Msg("expiry sweep published alerts")
			}
		}
	}
}
