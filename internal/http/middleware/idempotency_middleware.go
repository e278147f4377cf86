package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sandeepkv93/storefront-inventory-service/internal/http/response"
	"github.com/sandeepkv93/storefront-inventory-service/internal/observability"
	"github.com/sandeepkv93/storefront-inventory-service/internal/service"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "X-Idempotency-Replayed"
	maxIdempotencyKey = 128

	// Bounds the cleanup calls made after the client has gone away.
	idempotencyStoreTimeout = 2 * time.Second
)

type IdempotencyMiddleware struct {
	store service.IdempotencyStore
	ttl   time.Duration
}

func NewIdempotencyMiddleware(store service.IdempotencyStore, ttl time.Duration) *IdempotencyMiddleware {
	return &IdempotencyMiddleware{store: store, ttl: ttl}
}

// Middleware makes retries carrying the same Idempotency-Key observe the first
// outcome. Requests without the header pass through untouched. A 503 from the
// wrapped handler means nothing was written, so the key is released for a
// retry. Every other response, including an unknown commit outcome, is recorded
// and replayed.
func (m *IdempotencyMiddleware) Middleware(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if key == "" {
				observability.RecordIdempotencyEvent(ctx, scope, "no_key")
				next.ServeHTTP(w, r)
				return
			}
			if !validIdempotencyKey(key) {
				observability.RecordIdempotencyEvent(ctx, scope, "invalid_key")
				response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid Idempotency-Key header", nil)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				observability.RecordIdempotencyEvent(ctx, scope, "read_error")
				response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			fingerprint := fingerprintRequest(r, scope, body)
			audit := observability.AuditInput{
				EventName:  "idempotency.check",
				TargetType: "idempotency_key",
				TargetID:   shortHash(key),
				Action:     "check",
			}

			begin, err := m.store.Begin(ctx, scope, key, fingerprint, m.ttl)
			if err != nil {
				observability.RecordIdempotencyEvent(ctx, scope, "store_error")
				audit.Outcome, audit.Reason = "failure", "store_error"
				observability.EmitAudit(r, audit, "scope", scope, "error", err.Error())
				response.SetRetryAfter(w, time.Second)
				response.Error(w, r, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "idempotency check failed", nil)
				return
			}

			switch begin.State {
			case service.IdempotencyStateConflict:
				observability.RecordIdempotencyEvent(ctx, scope, "conflict")
				audit.Outcome, audit.Reason = "rejected", "fingerprint_conflict"
				observability.EmitAudit(r, audit, "scope", scope)
				response.Error(w, r, http.StatusConflict, "CONFLICT", "idempotency key reused with a different request", nil)
				return
			case service.IdempotencyStateInProgress:
				observability.RecordIdempotencyEvent(ctx, scope, "in_progress")
				audit.Outcome, audit.Reason = "rejected", "request_in_progress"
				observability.EmitAudit(r, audit, "scope", scope)
				response.SetRetryAfter(w, time.Second)
				response.Error(w, r, http.StatusConflict, "CONFLICT", "request with this idempotency key is in progress", nil)
				return
			case service.IdempotencyStateReplay:
				observability.RecordIdempotencyEvent(ctx, scope, "replayed")
				audit.EventName, audit.Action = "idempotency.replay", "replay"
				audit.Outcome, audit.Reason = "success", "cached_response"
				observability.EmitAudit(r, audit, "scope", scope)
				writeCachedResponse(w, begin.Cached)
				return
			}

			rec := newCaptureWriter(w)
			m.serveOrRelease(next, rec, r, scope, key, fingerprint)
			if rec.statusCode == 0 {
				rec.statusCode = http.StatusOK
			}

			if rec.statusCode == http.StatusServiceUnavailable {
				observability.RecordIdempotencyEvent(ctx, scope, "released")
				m.release(ctx, scope, key, fingerprint)
				return
			}

			storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), idempotencyStoreTimeout)
			defer cancel()

			observability.RecordIdempotencyEvent(ctx, scope, "created")
			if err := m.store.Complete(storeCtx, scope, key, fingerprint, service.CachedHTTPResponse{
				StatusCode:  rec.statusCode,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			}, m.ttl); err != nil {
				observability.RecordIdempotencyEvent(ctx, scope, "store_error")
				audit.EventName, audit.Action = "idempotency.complete", "complete"
				audit.Outcome, audit.Reason = "failure", "store_error"
				observability.EmitAudit(r, audit, "scope", scope, "error", err.Error())
			}
		})
	}
}

// serveOrRelease frees the reservation if the handler panics, then re-panics
// for the recoverer further out. Otherwise the key would answer "in progress"
// until it expires.
func (m *IdempotencyMiddleware) serveOrRelease(next http.Handler, w http.ResponseWriter, r *http.Request, scope, key, fingerprint string) {
	defer func() {
		if p := recover(); p != nil {
			observability.RecordIdempotencyEvent(r.Context(), scope, "panic_released")
			m.release(r.Context(), scope, key, fingerprint)
			panic(p)
		}
	}()
	next.ServeHTTP(w, r)
}

func (m *IdempotencyMiddleware) release(ctx context.Context, scope, key, fingerprint string) {
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), idempotencyStoreTimeout)
	defer cancel()
	if err := m.store.Release(storeCtx, scope, key, fingerprint); err != nil {
		slog.WarnContext(ctx, "idempotency key release failed", "scope", scope, "key_hash", shortHash(key), "error", err)
	}
}

func validIdempotencyKey(key string) bool {
	if len(key) > maxIdempotencyKey {
		return false
	}
	for i := 0; i < len(key); i++ {
		if c := key[i]; c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}

func writeCachedResponse(w http.ResponseWriter, cached *service.CachedHTTPResponse) {
	if cached == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if cached.ContentType != "" {
		w.Header().Set("Content-Type", cached.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(cached.StatusCode)
	if len(cached.Body) > 0 {
		_, _ = w.Write(cached.Body)
	}
}

// fingerprintRequest binds a key to the route, the client address and the body.
func fingerprintRequest(r *http.Request, scope string, body []byte) string {
	routePattern := r.URL.Path
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			routePattern = pattern
		}
	}
	raw := strings.Join([]string{
		scope,
		r.Method,
		routePattern,
		r.URL.Path,
		"ip:" + observability.ClientIP(r),
		hex.EncodeToString(hashBytes(body)),
	}, "\n")
	return hex.EncodeToString(hashBytes([]byte(raw)))
}

func hashBytes(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

func shortHash(v string) string {
	return hex.EncodeToString(hashBytes([]byte(v)))[:12]
}

type captureWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func newCaptureWriter(w http.ResponseWriter) *captureWriter {
	return &captureWriter{ResponseWriter: w}
}

func (w *captureWriter) WriteHeader(statusCode int) {
	if w.statusCode == 0 {
		w.statusCode = statusCode
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *captureWriter) Write(p []byte) (int, error) {
	if w.statusCode == 0 {
		w.statusCode = http.StatusOK
	}
	w.body.Write(p)
	return w.ResponseWriter.Write(p)
}
