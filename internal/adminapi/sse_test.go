package adminapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSSEHandlerStreamsPublishedEvent(t *testing.T) {
	srv, _, _ := testServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.Engine().ServeHTTP(rec, req)
		close(done)
	}()

	// give the subscriber a moment to register before publishing.
	time.Sleep(50 * time.Millisecond)
	srv.bus.Publish("scan", "scan_results", map[string]any{"agent_ip": "10.0.0.99"})

	<-ctx.Done()
	<-done

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("expected SSE body to contain at least a keepalive or event frame")
	}
}
