package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/schoolmsg/internal/attachments"
	"github.com/schoolmsg/internal/config"
	"github.com/schoolmsg/internal/handler"
	"github.com/schoolmsg/internal/logger"
	"github.com/schoolmsg/internal/middleware"
	"github.com/schoolmsg/internal/push"
	"github.com/schoolmsg/internal/repository"
	"github.com/schoolmsg/internal/seal"
	"github.com/schoolmsg/internal/service"
	"github.com/schoolmsg/internal/startup"
	"github.com/schoolmsg/internal/storage"
	"github.com/schoolmsg/internal/storage/memory"
	"github.com/schoolmsg/internal/ws"
	"github.com/schoolmsg/migrations"
)

// presenceResetter — хранилища присутствия, переживающие рестарт процесса.
type presenceResetter interface {
	ResetOnline(ctx context.Context) error
}

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "apply database migrations and exit")
	embedded := flag.Bool("embedded-db", false, "start with embedded PostgreSQL (no external DB required)")
	flag.Parse()

	if err := run(*migrate, *embedded); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

// run возвращает ошибку вместо os.Exit, чтобы отработали все defer (остановка embedded postgres, пул).
func run(migrate, embedded bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	if embedded || migrate {
		cfg.StoreMode = config.StorePostgres
	}
	logger.Infof("starting API service (store=%s presence=%s)", cfg.StoreMode, cfg.PresenceBackend)

	if embedded {
		embeddedDB, err := startEmbeddedPostgres(cfg)
		if err != nil {
			return fmt.Errorf("embedded postgres: %w", err)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	var (
		store    storage.MessageStore
		presence storage.PresenceStore
		checks   = map[string]handler.Pinger{}
	)
	switch cfg.StoreMode {
	case config.StorePostgres:
		pool, err := connectPostgres(rootCtx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := runMigrations(rootCtx, pool); err != nil {
			return err
		}
		if migrate {
			return nil
		}
		store = repository.NewStore(pool)
		presence = repository.NewPresenceRepository(pool)
		checks["postgres"] = pool
		logger.Info("database connected, migrations applied")
	default:
		store = memory.New()
		presence = memory.NewPresence()
		logger.Warnf("in-memory store: data is lost on restart")
	}

	if cfg.PresenceBackend == config.PresenceRedis {
		rp, err := startup.ConnectRedisPresence(rootCtx, cfg.RedisURL, 60*time.Second)
		if err != nil {
			return err
		}
		defer rp.Close()
		presence = rp
		checks["redis"] = rp
	}

	if r, ok := presence.(presenceResetter); ok && cfg.PresenceResetOnStart {
		resetCtx, resetCancel := context.WithTimeout(rootCtx, 5*time.Second)
		if err := r.ResetOnline(resetCtx); err != nil {
			logger.Errorf("reset online status: %v", err)
		}
		resetCancel()
	}

	sealer, err := seal.New(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("sealer: %w", err)
	}
	if !sealer.Enabled() {
		logger.Warnf("MSG_ENCRYPTION_KEY не задан или короче %d символов: sensitive-сообщения хранятся открытым текстом", seal.MinKeyLength)
	}

	hub := ws.NewHub(cfg.MaxWSConnections)
	notifier := push.NewNotifier(hub, push.NewClient(cfg.PushServiceURL))

	messaging := service.NewMessaging(store, sealer, attachments.New(cfg.UploadDir), notifier, service.MessagingConfig{
		StoreTimeout:       cfg.StoreTimeout,
		DedupDirectThreads: cfg.DedupDirectThreads,
		MaxAttachmentBytes: cfg.MaxAttachmentBytes,
	})
	presenceSvc := service.NewPresence(presence, notifier, cfg.StoreTimeout)
	hub.Bind(messaging, presenceSvc)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()
	defer func() {
		hubCancel()
		hubWg.Wait()
		logger.Info("hub stopped")
	}()

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      newRouter(cfg, messaging, presenceSvc, hub, checks),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	return nil
}

func newRouter(cfg *config.Config, messaging *service.Messaging, presence *service.Presence, hub *ws.Hub, checks map[string]handler.Pinger) http.Handler {
	msgH := handler.NewMessageHandler(messaging)
	presenceH := handler.NewPresenceHandler(presence)
	wsH := handler.NewWSHandler(hub, cfg.CORSAllowedOrigins)
	healthH := handler.NewHealthHandler(checks)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(middleware.RecoverJSON)
	// Не сжимать WebSocket — иначе ResponseWriter не реализует http.Hijacker и upgrade даёт 500.
	r.Use(func(next http.Handler) http.Handler {
		compressed := chimw.Compress(5)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			compressed.ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(middleware.SecureHeaders)
	r.Use(middleware.RateLimitAPI(cfg.RateLimitPerMinute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSAllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthH.Health)
	r.With(middleware.InternalOnly(cfg.InternalSecret)).Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerAuth(cfg.JWTSecret))
		r.Use(middleware.RateLimitUser(cfg.RateLimitPerMinute))
		r.Route("/api/messages", msgH.Routes)
		r.Route("/api/presence", presenceH.Routes)
		r.Get("/ws", wsH.ServeWS)
	})
	return r
}

func connectPostgres(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConnections)
	poolCfg.MinConns = 2
	return startup.ConnectDB(ctx, poolCfg, 60*time.Second)
}

// runMigrations применяет встроенные *.sql по порядку имён; скрипты идемпотентны (IF NOT EXISTS).
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	files, err := fs.Glob(migrations.Files, "*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)
	for _, f := range files {
		data, err := fs.ReadFile(migrations.Files, f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("run migration %s: %w", f, err)
		}
	}
	logger.Infof("migrations applied: %d", len(files))
	return nil
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "school"
		password = "school_secret"
		database = "school"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
