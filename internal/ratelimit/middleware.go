package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"certwallet/pkg/platform/httputil"
	"certwallet/pkg/requestcontext"
)

type Limiter interface {
	Allow(ctx context.Context, key string, limit Limit) (*Result, error)
}

type Middleware struct {
	limiter Limiter
	limits  map[EndpointClass]Limit
	logger  *slog.Logger
}

func NewMiddleware(limiter Limiter, read, write Limit, logger *slog.Logger) *Middleware {
	return &Middleware{
		limiter: limiter,
		limits:  map[EndpointClass]Limit{ClassRead: read, ClassWrite: write},
		logger:  logger,
	}
}

// Handler limits each caller per endpoint class. The caller is the
// authenticated subject, else the client IP. Limiter errors fail open.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		class := classify(r)
		limit := m.limits[class]
		if limit.Requests <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		caller := requestcontext.Subject(ctx)
		if caller == "" {
			caller = "ip:" + requestcontext.ClientIP(ctx)
		}
		result, err := m.limiter.Allow(ctx, string(class)+":"+caller, limit)
		if err != nil {
			m.logger.ErrorContext(ctx, "rate limit check failed",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
		if !result.Allowed {
			m.logger.InfoContext(ctx, "rate limit exceeded",
				"class", class,
				"subject", requestcontext.Subject(ctx),
				"request_id", requestcontext.RequestID(ctx),
			)
			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
			httputil.WriteJSON(w, http.StatusTooManyRequests, ExceededResponse{
				Error:      "rate_limit_exceeded",
				Message:    "Too many requests. Please try again later.",
				RetryAfter: result.RetryAfter,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func classify(r *http.Request) EndpointClass {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ClassRead
	default:
		return ClassWrite
	}
}
