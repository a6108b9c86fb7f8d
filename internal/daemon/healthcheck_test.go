package daemon_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/hearthhub/hearthd/internal/daemon"
)

func serverHostPort(t *testing.T, srv *httptest.Server) (string, int) {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse test server URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse test server port: %v", err)
	}
	return u.Hostname(), port
}

func TestDefaultHealthChecker_ReturnsInstanceID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","instance_id":"inst_abc"}`))
	}))
	defer srv.Close()

	host, port := serverHostPort(t, srv)
	instanceID, ok := daemon.DefaultHealthChecker(host, port, time.Second)
	if !ok {
		t.Fatal("expected ok=true for a healthy endpoint")
	}
	if instanceID != "inst_abc" {
		t.Errorf("instanceID = %q, want %q", instanceID, "inst_abc")
	}
}

func TestDefaultHealthChecker_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	host, port := serverHostPort(t, srv)
	_, ok := daemon.DefaultHealthChecker(host, port, time.Second)
	if ok {
		t.Error("expected ok=false for a non-200 response")
	}
}

func TestDefaultHealthChecker_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	host, port := serverHostPort(t, srv)
	_, ok := daemon.DefaultHealthChecker(host, port, time.Second)
	if ok {
		t.Error("expected ok=false for a malformed response body")
	}
}

func TestDefaultHealthChecker_Unreachable(t *testing.T) {
	_, ok := daemon.DefaultHealthChecker("127.0.0.1", 1, 200*time.Millisecond)
	if ok {
		t.Error("expected ok=false for an unreachable port")
	}
}
