package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/celerix-dev/celerix-aci/internal/api"
	"github.com/celerix-dev/celerix-aci/internal/engine"
	"github.com/celerix-dev/celerix-aci/pkg/services"
)

func newTestRouter(logs *bytes.Buffer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	reg := services.Default()
	h := &api.Handler{
		Store:    engine.NewMemStore(nil, reg, nil),
		Registry: reg,
		Sessions: api.NewSessions("", ""),
	}
	return NewRouter(h, zerolog.New(logs))
}

func TestRouter_Routes(t *testing.T) {
	var logs bytes.Buffer
	r := newTestRouter(&logs)

	req, _ := http.NewRequest("GET", "/registry", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(logs.String(), `"path":"/registry"`) {
		t.Errorf("Request was not logged: %s", logs.String())
	}

	req, _ = http.NewRequest("GET", "/data/Media%20Data%20Service/Media", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}

	req, _ = http.NewRequest("GET", "/nowhere", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestRouter_CORS(t *testing.T) {
	r := newTestRouter(&bytes.Buffer{})

	req, _ := http.NewRequest("OPTIONS", "/signin", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Missing CORS header")
	}
}

func TestServe_Shutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, "127.0.0.1:0", http.NotFoundHandler(), time.Second)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
}
