package httpserver

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/ai-resume-matcher/internal/domain"
	obsctx "github.com/fairyhunter13/ai-resume-matcher/internal/observability"
)

const requestIDHeader = "X-Request-Id"

// maxRequestIDLen bounds client-supplied request ids; longer or non-printable ids are replaced.
const maxRequestIDLen = 128

// Recoverer turns a handler panic into the INTERNAL error envelope.
// http.ErrAbortHandler is re-raised so net/http can abort the connection.
func Recoverer() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
					panic(rec)
				}
				writeError(w, r, fmt.Errorf("%w: panic in %s %s: %v", domain.ErrInternal, r.Method, r.URL.Path, rec), nil)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID keeps a well-formed X-Request-Id from the client or mints a ULID,
// echoes it on the response and binds it to the request logger.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if !validRequestID(id) {
				id = newReqID()
				r.Header.Set(requestIDHeader, id)
			}
			w.Header().Set(requestIDHeader, id)

			ctx := obsctx.ContextWithRequestID(r.Context(), id)
			args := []any{slog.String("request_id", id)}
			if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
				args = append(args, slog.String("trace_id", sc.TraceID().String()))
			}
			ctx = obsctx.ContextWithLogger(ctx, slog.Default().With(args...))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		if c > unicode.MaxASCII || !unicode.IsPrint(c) || c == ' ' {
			return false
		}
	}
	return true
}

var timeoutBody = `{"error":{"code":"UPSTREAM_TIMEOUT","message":"request timed out","details":null}}`

// TimeoutMiddleware answers 503 with the error envelope once d elapses.
// Handlers see the deadline on their context and should stop early.
func TimeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, timeoutBody)
	}
}

var securityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Content-Security-Policy", "default-src 'none'"},
	{"Referrer-Policy", "no-referrer"},
	{"Cache-Control", "no-store"},
}

// SecurityHeaders sets response headers for a JSON-only API. HSTS belongs to the TLS edge.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, h := range securityHeaders {
			w.Header().Set(h[0], h[1])
		}
		next.ServeHTTP(w, r)
	})
}

// LoggerFrom is the request-scoped logger, or the default logger.
func LoggerFrom(r *http.Request) *slog.Logger {
	return obsctx.LoggerFromContext(r.Context())
}

// MaxBody caps request bodies at kb kilobytes. Bodies that declare a larger
// Content-Length are refused before any handler runs.
func MaxBody(kb int64) func(http.Handler) http.Handler {
	limit := kb * 1024
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if kb <= 0 || r.Body == nil {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > limit {
				writeTooLarge(w, limit)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

func writeTooLarge(w http.ResponseWriter, limit int64) {
	writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: apiError{
		Code: "PAYLOAD_TOO_LARGE", Message: "request body too large", Details: map[string]any{"limit_bytes": limit},
	}})
}

var (
	reqIDMu      sync.Mutex
	reqIDEntropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0) //nolint:gosec // ids, not secrets
)

func newReqID() string {
	reqIDMu.Lock()
	defer reqIDMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), reqIDEntropy).String()
}

// AccessLog writes one record per request, at warn for 4xx and error for 5xx.
// The route label is the chi pattern so it lines up with the HTTP metrics.
func AccessLog() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			LoggerFrom(r).LogAttrs(r.Context(), accessLevel(status), "http request",
				slog.String("method", r.Method),
				slog.String("route", routePattern(r)),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

func accessLevel(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
