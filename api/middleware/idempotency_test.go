package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/closetapp/marketplace-backend/pkg/enums"
	pkgerrors "github.com/closetapp/marketplace-backend/pkg/errors"
	pkgredis "github.com/closetapp/marketplace-backend/pkg/redis"
	"github.com/closetapp/marketplace-backend/pkg/types"
)

const purchasePattern = "/api/v1/listings/{listingId}/purchase"

func newIdempotentRouter(t *testing.T, status int, calls *atomic.Int32) (http.Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := pkgredis.NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = store.Close() })

	buyer := uuid.New()
	r := chi.NewRouter()
	r.Use(RequestID(nil))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(WithIdentity(req.Context(), buyer, enums.UserRoleMember, "")))
		})
	})
	r.With(Idempotency(store, nil)).Post(purchasePattern, func(w http.ResponseWriter, _ *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]int32{"call": n})
	})
	r.Post("/api/v1/other", func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	return r, mr
}

func purchaseRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/listings/"+uuid.NewSHA1(uuid.Nil, []byte("l")).String()+"/purchase", strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return req
}

func TestRouteTTLSelection(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		pattern string
		want    time.Duration
		ok      bool
	}{
		{"purchase", http.MethodPost, purchasePattern, criticalIdempotencyTTL, true},
		{"order cancel", http.MethodPost, "/api/v1/orders/{orderId}/cancel", criticalIdempotencyTTL, true},
		{"create listing", http.MethodPost, "/api/v1/listings", defaultIdempotencyTTL, true},
		{"listing feed", http.MethodGet, "/api/v1/listings", 0, false},
		{"status change", http.MethodPatch, "/api/v1/listings/{listingId}/status", 0, false},
	}

	for _, tt := range tests {
		ttl, ok := routeTTL(tt.method, tt.pattern)
		if ok != tt.ok {
			t.Fatalf("%s: expected ok=%v got %v", tt.name, tt.ok, ok)
		}
		if ok && ttl != tt.want {
			t.Fatalf("%s: expected ttl=%v got %v", tt.name, tt.want, ttl)
		}
	}
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	var calls atomic.Int32
	router, _ := newIdempotentRouter(t, http.StatusCreated, &calls)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, purchaseRequest("", `{"payment_method":"pix"}`))

	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Zero(t, calls.Load())
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	var calls atomic.Int32
	router, _ := newIdempotentRouter(t, http.StatusCreated, &calls)

	first := httptest.NewRecorder()
	router.ServeHTTP(first, purchaseRequest("key-1", `{"payment_method":"pix"}`))
	second := httptest.NewRecorder()
	router.ServeHTTP(second, purchaseRequest("key-1", `{"payment_method":"pix"}`))

	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, first.Body.String(), second.Body.String())
	require.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	require.Equal(t, first.Header().Get(requestIDHeader), second.Header().Get("Idempotent-Original-Request-Id"))
	require.NotEqual(t, first.Header().Get(requestIDHeader), second.Header().Get(requestIDHeader))
	require.Equal(t, int32(1), calls.Load())
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	var calls atomic.Int32
	router, _ := newIdempotentRouter(t, http.StatusCreated, &calls)

	router.ServeHTTP(httptest.NewRecorder(), purchaseRequest("key-1", `{"payment_method":"pix"}`))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, purchaseRequest("key-1", `{"payment_method":"boleto"}`))

	require.Equal(t, http.StatusConflict, resp.Code)
	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, string(pkgerrors.CodeIdempotency), body.Error.Code)
	require.Equal(t, int32(1), calls.Load())
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	var calls atomic.Int32
	router, mr := newIdempotentRouter(t, http.StatusCreated, &calls)

	// Simulate a first request still running by leaving only the claim marker.
	router.ServeHTTP(httptest.NewRecorder(), purchaseRequest("key-1", `{}`))
	for _, key := range mr.Keys() {
		mr.Set(key, inFlightMarker)
	}

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, purchaseRequest("key-1", `{}`))
	require.Equal(t, http.StatusConflict, resp.Code)
	require.Equal(t, int32(1), calls.Load())
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	var calls atomic.Int32
	router, mr := newIdempotentRouter(t, http.StatusServiceUnavailable, &calls)

	router.ServeHTTP(httptest.NewRecorder(), purchaseRequest("key-1", `{}`))
	require.Empty(t, mr.Keys())

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, purchaseRequest("key-1", `{}`))
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	require.Equal(t, int32(2), calls.Load())
}

func TestIdempotencyIgnoresOtherRoutes(t *testing.T) {
	var calls atomic.Int32
	router, mr := newIdempotentRouter(t, http.StatusOK, &calls)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/other", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Empty(t, mr.Keys())
}

func TestIdempotencyWithoutStorePassesThrough(t *testing.T) {
	handler := Idempotency(nil, nil)(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/listings", nil)
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{"/api/v1/listings"}
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
}
