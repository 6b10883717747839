package main

import (
	"context"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KamogeloT/MediFlow/internal/config"
	"github.com/KamogeloT/MediFlow/internal/feed"
	"github.com/KamogeloT/MediFlow/internal/httpapi"
	"github.com/KamogeloT/MediFlow/internal/realtime"
	"github.com/KamogeloT/MediFlow/internal/store"
	"github.com/KamogeloT/MediFlow/internal/store/memory"
	"github.com/KamogeloT/MediFlow/internal/store/postgres"
	"github.com/KamogeloT/MediFlow/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("clinicd")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	var st store.Store
	var feedSource feed.Source
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer pool.Close()
		pg := postgres.NewStore(pool)
		st = pg
		feedSource = pg
	} else {
		log.Printf("DATABASE_URL not set, using in-memory store")
		mem := memory.NewStore()
		st = mem
		feedSource = mem
	}

	sync := feed.NewSynchronizer()
	poller := feed.NewPoller(feedSource, sync, cfg.PollInterval, cfg.BatchSize)

	hub := realtime.NewHub()
	unsubscribe := realtime.Bridge(sync, hub)
	defer unsubscribe()

	var auth *httpapi.Authenticator
	var verifier realtime.TokenVerifier
	if cfg.JWTSecret != "" {
		auth = httpapi.NewAuthenticator(cfg.JWTSecret)
		verifier = auth
	} else {
		log.Printf("JWT_SECRET not set, authentication disabled")
	}

	handler := httpapi.NewHandler(st, httpapi.Options{Auth: auth})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		PerMinute: cfg.RateLimitPerMinute,
		Burst:     cfg.RateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.Handle("/realtime/", realtime.NewSessionHandler("/realtime", hub, verifier))
	mux.Handle("/", handler.Routes())

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(mux)), "clinicd")
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	pollCtx, stopPoller := context.WithCancel(context.Background())
	defer stopPoller()
	go poller.Run(pollCtx)

	go func() {
		log.Printf("clinicd listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	stopPoller()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
