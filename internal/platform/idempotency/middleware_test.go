package idempotency

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/electrocart/api/internal/platform/auth"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newCheckoutStub(calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"orderId":"01ARZ3NDEKTSV4RRFFQ69G5FAV"}`))
	})
}

func authedRequest(method, target, body, uid string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid, Roles: []string{auth.RoleCustomer}}))
}

func TestMiddlewarePassesThroughWithoutKey(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore())(newCheckoutStub(&calls))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authedRequest(http.MethodPost, "/checkout", `{}`, "user-1"))

	assert.Equal(t, 1, calls)
	assert.Empty(t, rr.Header().Get(HeaderReplay))
}

func TestMiddlewareReplaysStoredResponse(t *testing.T) {
	calls := 0
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	handler := Middleware(NewMemoryStore(), WithClock(fixedClock(now)))(newCheckoutStub(&calls))

	first := httptest.NewRecorder()
	req := authedRequest(http.MethodPost, "/checkout", `{"name":"Aoki"}`, "user-1")
	req.Header.Set(HeaderKey, "k-123")
	handler.ServeHTTP(first, req)

	second := httptest.NewRecorder()
	retry := authedRequest(http.MethodPost, "/checkout", `{"name":"Aoki"}`, "user-1")
	retry.Header.Set(HeaderKey, "k-123")
	handler.ServeHTTP(second, retry)

	assert.Equal(t, 1, calls, "retry must not reach the handler")
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(HeaderReplay))
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestMiddlewareRejectsReusedKeyWithDifferentBody(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore())(newCheckoutStub(&calls))

	first := httptest.NewRecorder()
	req := authedRequest(http.MethodPost, "/checkout", `{"name":"Aoki"}`, "user-1")
	req.Header.Set(HeaderKey, "k-123")
	handler.ServeHTTP(first, req)

	second := httptest.NewRecorder()
	conflicting := authedRequest(http.MethodPost, "/checkout", `{"name":"Suzuki"}`, "user-1")
	conflicting.Header.Set(HeaderKey, "k-123")
	handler.ServeHTTP(second, conflicting)

	assert.Equal(t, 1, calls)
	require.Equal(t, http.StatusConflict, second.Code)

	var body struct {
		Code string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &body))
	assert.Equal(t, "idempotency_key_conflict", body.Code)
}

func TestMiddlewareScopesKeysToUser(t *testing.T) {
	calls := 0
	handler := Middleware(NewMemoryStore())(newCheckoutStub(&calls))

	for _, uid := range []string{"user-1", "user-2"} {
		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/checkout", `{}`, uid)
		req.Header.Set(HeaderKey, "shared-key")
		handler.ServeHTTP(rr, req)
		assert.Equalf(t, http.StatusCreated, rr.Code, "uid %s", uid)
	}

	assert.Equal(t, 2, calls, "each user works with an independent key")
}

func TestMiddlewareReportsInFlightKey(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	req := authedRequest(http.MethodPost, "/checkout", `{}`, "user-1")
	req.Header.Set(HeaderKey, "k-busy")

	// Claim the scoped key directly, as a concurrent request would.
	fingerprint := fingerprintOf(http.MethodPost, "/checkout", "user-1", `{}`)
	_, err := store.Claim(req.Context(), "k-busy|user-1", fingerprint, now, DefaultRetention)
	require.NoError(t, err)

	calls := 0
	handler := Middleware(store)(newCheckoutStub(&calls))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Zero(t, calls, "handler must not run while the key is in flight")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestMemoryStoreReclaimsExpiredKeys(t *testing.T) {
	store := NewMemoryStore()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	require.NoError(t, store.Complete(ctx, "k|u", "fp", http.StatusCreated, "application/json", []byte(`{}`), start, time.Hour))

	claim, err := store.Claim(ctx, "k|u", "other-fp", start.Add(2*time.Hour), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, StateNew, claim.State)
}
