package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/workpass-app/workpass/internal/server/auth"
)

type contextKey int

const (
	identityKey contextKey = iota
	requestIDKey
)

// IdentityFromContext returns the Identity the middleware resolved for this
// request. It is always present below withIdentity.
func IdentityFromContext(ctx context.Context) *auth.Identity {
	id, _ := ctx.Value(identityKey).(*auth.Identity)
	return id
}

// RequestIDFromContext returns the request id assigned by logRequests.
func RequestIDFromContext(ctx context.Context) string {
	rid, _ := ctx.Value(requestIDKey).(string)
	return rid
}

// withIdentity resolves the token cookie into an Identity before the
// handler runs and applies the resulting cookie change after. A store
// failure during resolution is a hard 500; the token is never silently
// treated as anonymous in that case.
func (s *Server) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := ""
		if c, err := r.Cookie(cookieName); err == nil {
			tokenStr = c.Value
		}

		identity, err := s.svc.Identity(r.Context(), tokenStr)
		if err != nil {
			s.log.Error(r.Context(), "identity resolution failed",
				"request_id", RequestIDFromContext(r.Context()), "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		tw := &tokenWriter{ResponseWriter: w, identity: identity, maxAge: s.cookieMaxAge}
		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(tw, r.WithContext(ctx))
		// a handler that writes nothing still gets its cookie change out,
		// headers are not flushed until the middleware returns
		tw.applyCookie()
	})
}

// tokenWriter injects the pending token cookie into the response headers
// before the first body byte goes out.
type tokenWriter struct {
	http.ResponseWriter
	identity *auth.Identity
	maxAge   time.Duration
	applied  bool
}

func (w *tokenWriter) applyCookie() {
	if w.applied {
		return
	}
	w.applied = true

	resp := w.identity.Response()
	if resp == nil {
		return
	}
	if resp.Delete {
		http.SetCookie(w.ResponseWriter, &http.Cookie{
			Name:     cookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
		return
	}
	http.SetCookie(w.ResponseWriter, &http.Cookie{
		Name:     cookieName,
		Value:    resp.Token,
		Path:     "/",
		MaxAge:   int(w.maxAge / time.Second),
		HttpOnly: true,
	})
}

func (w *tokenWriter) WriteHeader(code int) {
	w.applyCookie()
	w.ResponseWriter.WriteHeader(code)
}

func (w *tokenWriter) Write(b []byte) (int, error) {
	w.applyCookie()
	return w.ResponseWriter.Write(b)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// logRequests assigns each request an id and writes one access-log line.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey, rid)
		w.Header().Set("X-Request-Id", rid)

		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		s.log.Info(ctx, "request",
			"request_id", rid,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
