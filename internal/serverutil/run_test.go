package serverutil

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestRunShutsDownOnCancel(t *testing.T) {
	srv := &http.Server{
		Addr:    "127.0.0.1:0",
		Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }),
	}
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- Run(ctx, srv, time.Second, ready) }()

	select {
	case <-ready:
	case err := <-done:
		t.Fatalf("run exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("server never became ready")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
}

func TestRunRequiresServer(t *testing.T) {
	if err := Run(context.Background(), nil, 0, nil); err == nil {
		t.Fatalf("expected error for nil server")
	}
}

func TestRunReportsListenError(t *testing.T) {
	srv := &http.Server{Addr: "bad-address"}
	if err := Run(context.Background(), srv, 0, nil); err == nil {
		t.Fatalf("expected listen error")
	}
}
