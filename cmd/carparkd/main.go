package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/example/carparkd/internal/carpark/domain"
	carparkhandler "github.com/example/carparkd/internal/carpark/handler"
	"github.com/example/carparkd/internal/carpark/repository"
	carparkservice "github.com/example/carparkd/internal/carpark/service"
	"github.com/example/carparkd/internal/geocode"
	"github.com/example/carparkd/internal/importer"
	"github.com/example/carparkd/pkg/events"
	"github.com/example/carparkd/pkg/observability"
)

type appConfig struct {
	HTTPAddr        string
	PostgresDSN     string
	NATSURL         string
	GeocoderAuth    string
	GeocoderURL     string
	GeocoderEmail   string
	GeocoderPass    string
	AvailabilityURL string
	HTTPTimeout     time.Duration
	ImportPoolSize  int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	logger := observability.SetupLogger("carparkd")
	defer logger.Sync() //nolint:errcheck

	shutdown, err := observability.SetupTracer(ctx, "carparkd")
	if err != nil {
		logger.Warn("tracer setup failed", zap.Error(err))
	} else {
		defer shutdown(context.Background())
	}

	cfg := loadConfig()

	var store domain.Store
	var ready func(context.Context) error
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("postgres connect", zap.Error(err))
		}
		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			logger.Fatal("postgres ping", zap.Error(err))
		}
		defer db.Close()

		pg := repository.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal("schema setup", zap.Error(err))
		}
		store = pg
		ready = pg.Ping
	} else {
		logger.Warn("no POSTGRES_DSN configured, using in-memory store")
		store = repository.NewMemory()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		if conn, err := nats.Connect(cfg.NATSURL, nats.Name("carparkd")); err == nil {
			natsConn = conn
			defer conn.Drain()
		} else {
			logger.Warn("nats connection failed", zap.Error(err))
		}
	}
	publisher := events.NewPublisher(natsConn, "carpark.imports")

	geocoder := geocode.New(geocode.Config{
		AuthURL:    cfg.GeocoderAuth,
		ConvertURL: cfg.GeocoderURL,
		Email:      cfg.GeocoderEmail,
		Password:   cfg.GeocoderPass,
		Timeout:    cfg.HTTPTimeout,
	})

	pipeline := importer.NewPipeline(store, geocoder, publisher, logger.Named("importer"), importer.PipelineConfig{
		PoolSize: cfg.ImportPoolSize,
	})
	feed := importer.NewFeed(store, publisher, logger.Named("feed"), importer.FeedConfig{
		URL:     cfg.AvailabilityURL,
		Timeout: cfg.HTTPTimeout,
	})

	svc := carparkservice.New(store)
	carparkHTTP := carparkhandler.NewHTTP(svc)
	adminHTTP := importer.NewAdminHTTP(pipeline, feed, logger.Named("admin"))

	r := chi.NewRouter()
	r.Mount("/", carparkHTTP.Router())
	r.Mount("/admin", adminHTTP.Router())
	r.Mount("/observability", observability.MetricsRouter(ready))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("carparkd listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func loadConfig() appConfig {
	return appConfig{
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		PostgresDSN:     firstNonEmpty(os.Getenv("POSTGRES_DSN"), os.Getenv("DATABASE_URL")),
		NATSURL:         os.Getenv("NATS_URL"),
		GeocoderAuth:    os.Getenv("GEOCODER_AUTH_URL"),
		GeocoderURL:     os.Getenv("GEOCODER_CONVERT_URL"),
		GeocoderEmail:   os.Getenv("GEOCODER_EMAIL"),
		GeocoderPass:    os.Getenv("GEOCODER_PASSWORD"),
		AvailabilityURL: os.Getenv("AVAILABILITY_FEED_URL"),
		HTTPTimeout:     time.Duration(parseIntEnv("OUTBOUND_TIMEOUT_SEC", 10)) * time.Second,
		ImportPoolSize:  parseIntEnv("IMPORT_POOL_SIZE", 1),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}
