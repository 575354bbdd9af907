package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/classmark/examhub/internal/analytics"
	api "github.com/classmark/examhub/internal/api/http"
	"github.com/classmark/examhub/internal/attempt"
	"github.com/classmark/examhub/internal/auth"
	"github.com/classmark/examhub/internal/catalog"
	"github.com/classmark/examhub/internal/config"
	"github.com/classmark/examhub/internal/db"
	"github.com/classmark/examhub/internal/eventlog"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}

	if err := auth.EnsureAdmin(ctx, dbh, cfg); err != nil {
		log.Fatalf("seed admin: %v", err)
	}

	// --- Services ---
	catStore := catalog.NewSQLStore(dbh)
	catSvc := catalog.NewService(catStore)
	events := eventlog.NewRepo(dbh)
	attemptSvc := attempt.NewService(attempt.NewSQLStore(dbh), catStore, attempt.WithEvents(events))
	analyticsSvc := analytics.NewService(analytics.NewSQLStore(dbh), catStore)
	authSvc := auth.NewAuthService(cfg.AuthSecret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	api.Mount(r, api.Deps{
		DB:        dbh,
		Auth:      authSvc,
		Catalog:   catSvc,
		CatStore:  catStore,
		Attempts:  attemptSvc,
		Analytics: analyticsSvc,
		Events:    events,
	})

	log.Printf("examhub listening on %s (mode=%s driver=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver)
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		log.Fatal(err)
	}
}
