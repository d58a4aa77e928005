package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/accord-chat/accord/internal/auth"
	"github.com/accord-chat/accord/internal/config"
	"github.com/accord-chat/accord/internal/events"
	"github.com/accord-chat/accord/internal/gateway"
	"github.com/accord-chat/accord/internal/permissions"
	"github.com/accord-chat/accord/internal/store"
)

// newTestServer wires a server around an unconnected store; only routes that
// never touch the database are exercised.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Mode:   config.ModeMain,
		Server: config.ServerConfig{AllowedOrigins: []string{"*"}},
	}
	st := store.New(nil)
	gw := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	return NewServer(cfg, st, auth.NewService(st), permissions.NewResolver(st),
		events.NewBus(), nil, nil, gateway.NewSessionRegistry(), gw, "1.2.3-test")
}

func get(h http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := get(s.Handler(), "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want ok", rec.Body.String())
	}
}

func TestVersionEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := get(s.Handler(), "/api/v1/version", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Data["version"] != "1.2.3-test" {
		t.Errorf("version = %q, want 1.2.3-test", body.Data["version"])
	}
	if body.Data["api_version"] != "v1" {
		t.Errorf("api_version = %q, want v1", body.Data["api_version"])
	}
}

func TestGatewayInfoDerivesWsURL(t *testing.T) {
	s := newTestServer(t)
	rec := get(s.Handler(), "/api/v1/gateway", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Data["url"] != "ws://example.com/ws" {
		t.Errorf("url = %q, want ws://example.com/ws", body.Data["url"])
	}
}

func TestMissingAuthorizationIsUnauthorized(t *testing.T) {
	s := newTestServer(t)
	rec := get(s.Handler(), "/api/v1/users/@me", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	var body struct {
		Error errorBody `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Error.Code != "unauthorized" {
		t.Errorf("error code = %q, want unauthorized", body.Error.Code)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t)

	rec := get(s.Handler(), "/healthz", map[string]string{"X-Request-ID": "req-42"})
	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("echoed id = %q, want req-42", got)
	}

	rec = get(s.Handler(), "/healthz", nil)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("generated request id missing")
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/version", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("allow-origin = %q", got)
	}
}
