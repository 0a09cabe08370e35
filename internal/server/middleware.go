package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/yousuf/tracemap/internal/logging"
)

// requestLogger logs method, path, status and duration for every request.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logging.WithRequest(r.Context(), logger).Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

// createLoggingMiddleware creates middleware that logs all MCP method calls
func createLoggingMiddleware(logger *slog.Logger) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(
			ctx context.Context,
			method string,
			req mcp.Request,
		) (mcp.Result, error) {
			start := time.Now()
			sessionID := req.GetSession().ID()

			result, err := next(ctx, method, req)

			duration := time.Since(start)
			if err != nil {
				logger.Warn("mcp call failed",
					"session", sessionID, "method", method, "duration", duration, "error", err)
			} else {
				logger.Debug("mcp call",
					"session", sessionID, "method", method, "duration", duration)
			}

			return result, err
		}
	}
}
