package app

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/observability"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/platform/httpx"
	"github.com/steve-ongera/Mangunas-Supermarket-POS-System/internal/shared"
)

// OperatorHeader carries the authenticated operator id, set by the
// upstream auth layer. Requests without it are treated as anonymous.
const OperatorHeader = "X-Operator-ID"

// OperatorNameHeader optionally carries the operator display name.
const OperatorNameHeader = "X-Operator-Name"

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack installs the default middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
	})

	operatorMiddleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if idStr := r.Header.Get(OperatorHeader); idStr != "" {
				if id, err := strconv.ParseInt(idStr, 10, 64); err == nil && id > 0 {
					op := shared.Operator{ID: id, Name: r.Header.Get(OperatorNameHeader)}
					r = r.WithContext(shared.ContextWithOperator(r.Context(), op))
				}
			}
			next.ServeHTTP(w, r)
		})
	}

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	return []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		cfg.Metrics.Middleware,
		operatorMiddleware,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(120, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
	}
}

// RequireOperator rejects requests that did not pass through the auth
// layer. The M-Pesa callback route must not use it.
func RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := shared.OperatorFromContext(r.Context()); !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "operator identity required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
