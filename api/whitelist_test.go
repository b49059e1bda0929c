package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func whitelistHandler(ips ...string) http.Handler {
	wl := NewWhitelist(ips, nil)
	return wl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestWhitelistAllowsListedIP(t *testing.T) {
	handler := whitelistHandler("203.0.113.7")

	req := httptest.NewRequest(http.MethodGet, "/workflows", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWhitelistRejectsUnlistedIP(t *testing.T) {
	handler := whitelistHandler("203.0.113.7")

	req := httptest.NewRequest(http.MethodGet, "/workflows", nil)
	req.RemoteAddr = "198.51.100.9:51234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Access denied from IP")
}

func TestWhitelistAlwaysAllowsLoopback(t *testing.T) {
	handler := whitelistHandler("203.0.113.7")

	for _, addr := range []string{"127.0.0.1:9999", "[::1]:9999"} {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, addr)
	}
}

func TestWhitelistUsesForwardedForFirstEntry(t *testing.T) {
	handler := whitelistHandler("203.0.113.7")

	req := httptest.NewRequest(http.MethodGet, "/workflows", nil)
	req.RemoteAddr = "10.0.0.1:51234"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWhitelistUsesRealIPHeader(t *testing.T) {
	handler := whitelistHandler("203.0.113.7")

	req := httptest.NewRequest(http.MethodGet, "/workflows", nil)
	req.RemoteAddr = "10.0.0.1:51234"
	req.Header.Set("X-Real-IP", "198.51.100.9")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestClientIPFallsBackToPeerAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.4:1234"
	assert.Equal(t, "192.0.2.4", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(req))
}
