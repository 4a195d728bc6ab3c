package idempotency

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/electrocart/api/internal/platform/auth"
	"github.com/electrocart/api/internal/platform/httpx"
	"github.com/electrocart/api/internal/platform/requestctx"
)

const (
	// HeaderKey is the request header carrying the client-chosen key.
	HeaderKey = "Idempotency-Key"
	// HeaderReplay marks responses served from a stored record.
	HeaderReplay = "X-Idempotent-Replay"

	maxKeyLength = 200
)

type middlewareConfig struct {
	retention time.Duration
	clock     func() time.Time
}

// MiddlewareOption customises middleware behaviour.
type MiddlewareOption func(*middlewareConfig)

// WithRetention configures how long completed records are replayable.
func WithRetention(retention time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if retention > 0 {
			cfg.retention = retention
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// Middleware makes the wrapped mutating endpoint safe to retry. Requests
// without an Idempotency-Key header pass straight through; with one, the
// first request records its response and identical retries replay it. The
// key is scoped to the authenticated user so two customers reusing the same
// key never collide.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	cfg := middlewareConfig{
		retention: DefaultRetention,
		clock:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(HeaderKey))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			if len(key) > maxKeyLength {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_idempotency_key", "idempotency key is too long", http.StatusBadRequest))
				return
			}

			body, err := bufferBody(r)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
				return
			}

			uid := requesterUID(r)
			scoped := key + "|" + uid
			fingerprint := fingerprintOf(r.Method, r.URL.Path, uid, string(body))
			now := cfg.clock().UTC()
			logger := requestctx.Logger(ctx)

			claim, err := store.Claim(ctx, scoped, fingerprint, now, cfg.retention)
			if err == ErrFingerprintMismatch {
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "idempotency key was already used for a different request", http.StatusConflict))
				return
			}
			if err != nil {
				logger.Error("idempotency claim failed", zap.Error(err))
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_unavailable", "unable to process idempotency key", http.StatusServiceUnavailable))
				return
			}

			switch claim.State {
			case StateReplay:
				writeReplay(w, claim.Record)
				return
			case StateInFlight:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "another request with this idempotency key is still running", http.StatusConflict))
				return
			}

			recorder := newRecorder(w)
			next.ServeHTTP(recorder, r)

			if err := store.Complete(ctx, scoped, fingerprint, recorder.status(), recorder.contentType(), recorder.body.Bytes(), cfg.clock().UTC(), cfg.retention); err != nil {
				logger.Warn("idempotency record not persisted", zap.Error(err))
				if err := store.Release(ctx, scoped); err != nil {
					logger.Warn("idempotency release failed", zap.Error(err))
				}
			}
			recorder.flush()
		})
	}
}

func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func requesterUID(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity != nil && identity.UID != "" {
		return identity.UID
	}
	return "anonymous"
}

func writeReplay(w http.ResponseWriter, record Record) {
	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set(HeaderReplay, "true")
	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(record.ResponseBody) > 0 {
		_, _ = w.Write(record.ResponseBody)
	}
}

// recorder buffers the handler response so it can be persisted before being
// sent to the client.
type recorder struct {
	parent     http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func newRecorder(parent http.ResponseWriter) *recorder {
	return &recorder{parent: parent}
}

func (r *recorder) Header() http.Header {
	return r.parent.Header()
}

func (r *recorder) WriteHeader(status int) {
	if r.statusCode == 0 && status > 0 {
		r.statusCode = status
	}
}

func (r *recorder) Write(data []byte) (int, error) {
	if r.statusCode == 0 {
		r.statusCode = http.StatusOK
	}
	return r.body.Write(data)
}

func (r *recorder) status() int {
	if r.statusCode == 0 {
		return http.StatusOK
	}
	return r.statusCode
}

func (r *recorder) contentType() string {
	return r.parent.Header().Get("Content-Type")
}

func (r *recorder) flush() {
	r.parent.WriteHeader(r.status())
	if r.body.Len() > 0 {
		_, _ = r.parent.Write(r.body.Bytes())
	}
}
