package api

import (
	"net/http"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"

	"notes-server/internal/app"
)

var (
	buildOnce sync.Once
	runtime   *app.Runtime
	buildErr  error
)

// Handler is the serverless entrypoint. The runtime is built lazily on the
// first request and reused while the instance stays warm; migrations are
// left to deploys rather than cold starts.
func Handler(w http.ResponseWriter, r *http.Request) {
	buildOnce.Do(func() {
		runtime, buildErr = app.Build(app.Options{
			LoadDotEnv:    false,
			RunMigrations: app.EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", false),
		})
	})

	if buildErr != nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	runtime.Handler.ServeHTTP(w, r)
}
