package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp() *App {
	return New(Options{WorkerID: 3, Logger: testLogger()})
}

func serve(a *App, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth_FlipsOnce(t *testing.T) {
	a := newTestApp()

	if rec := serve(a, httptest.NewRequest(http.MethodGet, "/health", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 before cluster healthy, got %d", rec.Code)
	}

	a.BecomeHealthy()
	a.BecomeHealthy()

	if rec := serve(a, httptest.NewRequest(http.MethodGet, "/health", nil)); rec.Code != http.StatusOK {
		t.Errorf("expected 200 after cluster healthy, got %d", rec.Code)
	}
	if !a.Healthy() {
		t.Error("Healthy() should report true")
	}
}

func TestBecomeHealthy_Concurrent(t *testing.T) {
	a := newTestApp()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.BecomeHealthy()
		}()
	}
	wg.Wait()

	if !a.Healthy() {
		t.Error("expected healthy")
	}
}

func TestRoot_ShowsWorkerID(t *testing.T) {
	a := newTestApp()

	rec := serve(a, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "worker 3") {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestCrossOriginGuard(t *testing.T) {
	tests := []struct {
		name   string
		method string
		origin string
		want   int
	}{
		{"get without origin", http.MethodGet, "", http.StatusOK},
		{"post same origin", http.MethodPost, "http://example.com", http.StatusMethodNotAllowed},
		{"post foreign origin", http.MethodPost, "http://evil.test", http.StatusForbidden},
		{"post without origin", http.MethodPost, "", http.StatusForbidden},
		{"delete foreign origin", http.MethodDelete, "https://example.com", http.StatusForbidden},
		{"patch same origin", http.MethodPatch, "http://example.com", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestApp()
			req := httptest.NewRequest(tt.method, "http://example.com/", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}

			rec := serve(a, req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
			if tt.want == http.StatusForbidden && !strings.Contains(rec.Body.String(), msgCrossSite) {
				t.Errorf("unexpected body %q", rec.Body.String())
			}
		})
	}
}

func TestSiteOrigin_ForwardedHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://10.0.0.5:8080/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Host", "app.example.com")

	if got := siteOrigin(req); got != "https://app.example.com" {
		t.Errorf("siteOrigin() = %q", got)
	}
}

func TestVersionHeader(t *testing.T) {
	a := newTestApp()

	rec := serve(a, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := rec.Header().Get(HeaderAppVersion); got != "1" {
		t.Errorf("expected version 1, got %q", got)
	}

	// a newer release is being served
	a.version.Store(2)

	stale := httptest.NewRequest(http.MethodGet, "/", nil)
	stale.Header.Set(HeaderAppVersion, "1")
	rec = serve(a, stale)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for stale client, got %d", rec.Code)
	}
	if got := rec.Header().Get(HeaderAppVersion); got != "2" {
		t.Errorf("expected version 2, got %q", got)
	}

	current := httptest.NewRequest(http.MethodGet, "/", nil)
	current.Header.Set(HeaderAppVersion, "2")
	if rec := serve(a, current); rec.Code != http.StatusOK {
		t.Errorf("expected 200 for current client, got %d", rec.Code)
	}
}

func TestStart_ServesAndShutsDown(t *testing.T) {
	a, err := Start(context.Background(), Options{Addr: "127.0.0.1:0", Logger: testLogger()})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	resp, err := http.Get("http://" + a.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	select {
	case err, ok := <-a.Err():
		if ok && err != nil {
			t.Errorf("unexpected serve error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Err channel not closed after shutdown")
	}
}

func TestStart_ReusePortSharesAddress(t *testing.T) {
	first, err := Start(context.Background(), Options{Addr: "127.0.0.1:0", ReusePort: true, Logger: testLogger()})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer first.Shutdown(context.Background())

	second, err := Start(context.Background(), Options{Addr: first.Addr().String(), ReusePort: true, WorkerID: 1, Logger: testLogger()})
	if err != nil {
		t.Fatalf("second worker could not share %s: %v", first.Addr(), err)
	}
	defer second.Shutdown(context.Background())
}

func TestStart_AddressInUse(t *testing.T) {
	first, err := Start(context.Background(), Options{Addr: "127.0.0.1:0", Logger: testLogger()})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer first.Shutdown(context.Background())

	if _, err := Start(context.Background(), Options{Addr: first.Addr().String(), Logger: testLogger()}); err == nil {
		t.Error("expected error binding a taken port without SO_REUSEPORT")
	}
}
