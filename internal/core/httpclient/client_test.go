package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewOutbound_DefaultTimeout(t *testing.T) {
	if c := NewOutbound(0); c.Timeout != DefaultTimeout {
		t.Fatalf("timeout=%s want %s", c.Timeout, DefaultTimeout)
	}
	if c := NewOutbound(2 * time.Second); c.Timeout != 2*time.Second {
		t.Fatalf("timeout=%s want 2s", c.Timeout)
	}
}

func TestNewOutbound_TimesOutSlowServer(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	resp, err := NewOutbound(50 * time.Millisecond).Get(srv.URL)
	if err == nil {
		_ = resp.Body.Close()
		t.Fatal("expected timeout error")
	}
}
