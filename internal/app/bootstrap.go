package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"notes-server/internal/auth"
	"notes-server/internal/db"
	"notes-server/internal/lockout"
	"notes-server/internal/maintenance"
	"notes-server/internal/note"
	"notes-server/internal/observability"
	"notes-server/internal/tag"
	"notes-server/internal/token"
	"notes-server/internal/user"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), envOrDefault("APP_ENV", "development"), os.Getenv("APP_RELEASE")); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(envIntOrDefault("DB_MAX_OPEN_CONNS", 10))
	database.SetMaxIdleConns(envIntOrDefault("DB_MAX_IDLE_CONNS", 5))
	database.SetConnMaxLifetime(envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30))
	database.SetConnMaxIdleTime(envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10))

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(context.Background(), database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	tracker, closeTracker, err := buildLockoutTracker(database, logger)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	tokens := token.NewService(jwtSecret, envMinutesOrDefault("TOKEN_TTL_MINUTES", 60), logger)

	users := user.NewRepository(database)
	authService := auth.NewService(users, tracker, tokens, logger)
	authHandler := auth.NewHandler(authService, os.Getenv("ADMIN_SECRET"))
	authenticator := auth.NewAuthenticator(tokens, users, logger)

	noteHandler := note.NewHandler(note.NewRepository(database))
	tagHandler := tag.NewHandler(tag.NewRepository(database))

	cleanupHandler := maintenance.NewCleanupHandler(
		tracker,
		logger,
		os.Getenv("CRON_SECRET"),
		envDaysOrDefault("LOGIN_ATTEMPT_RETENTION_DAYS", 30),
	)

	protected := func(h http.HandlerFunc) http.Handler {
		return auth.RequirePrincipal(h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/auth/unlock", authHandler.Unlock)
	mux.Handle("GET /api/auth/me", protected(authHandler.Me))
	mux.Handle("GET /api/notes", protected(noteHandler.List))
	mux.Handle("POST /api/notes", protected(noteHandler.Create))
	mux.Handle("GET /api/notes/{id}", protected(noteHandler.Get))
	mux.Handle("PATCH /api/notes/{id}", protected(noteHandler.Patch))
	mux.Handle("DELETE /api/notes/{id}", protected(noteHandler.Delete))
	mux.Handle("POST /api/notes/batch/archive", protected(noteHandler.BatchArchive))
	mux.Handle("POST /api/notes/batch/restore-archive", protected(noteHandler.BatchRestoreArchive))
	mux.Handle("POST /api/notes/batch/trash", protected(noteHandler.BatchTrash))
	mux.Handle("POST /api/notes/batch/restore-trash", protected(noteHandler.BatchRestoreTrash))
	mux.Handle("DELETE /api/notes/batch/permanent", protected(noteHandler.BatchDelete))
	mux.Handle("PUT /api/notes/{id}/tags", protected(noteHandler.SetTags))
	mux.Handle("POST /api/notes/{id}/tags/{tagID}", protected(noteHandler.AddTag))
	mux.Handle("DELETE /api/notes/{id}/tags/{tagID}", protected(noteHandler.RemoveTag))
	mux.Handle("GET /api/tags", protected(tagHandler.List))
	mux.Handle("POST /api/tags", protected(tagHandler.Create))
	mux.Handle("DELETE /api/tags/{id}", protected(tagHandler.Delete))
	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database))

	handler := observability.RecoverMiddleware(logger,
		observability.RequestLoggingMiddleware(logger,
			authenticator.Middleware(mux)))

	return &Runtime{
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			if closeTracker != nil {
				_ = closeTracker()
			}
			return database.Close()
		},
	}, nil
}

// buildLockoutTracker picks the failure-state store: the login_attempts
// table by default, Redis for multi-instance deployments that want counters
// off the primary database, memory for local development.
func buildLockoutTracker(database *sql.DB, logger *observability.Logger) (lockout.Tracker, func() error, error) {
	backend := strings.ToLower(envOrDefault("LOCKOUT_BACKEND", "postgres"))
	switch backend {
	case "postgres":
		return lockout.NewPostgresStore(database), nil, nil
	case "redis":
		redisURL, err := mustEnv("REDIS_URL")
		if err != nil {
			return nil, nil, err
		}
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(context.Background()).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		return lockout.NewRedisStore(client), client.Close, nil
	case "memory":
		logger.Warn("lockout_backend_memory", map[string]any{
			"note": "failure counters reset on restart and are not shared across instances",
		})
		return lockout.NewMemoryStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown LOCKOUT_BACKEND: %s", backend)
	}
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envDaysOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * 24 * time.Hour
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
