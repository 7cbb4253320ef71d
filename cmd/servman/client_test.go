package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/servman/servman/internal/config"
)

// newFakeDaemon serves a minimal daemon API and records requests.
func newFakeDaemon(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var paths []string
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	record := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			paths = append(paths, r.Method+" "+r.URL.Path)
			h(w, r)
		}
	}
	mux.HandleFunc("/api/server/status", record(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"running": false, "pid": nil, "port": nil})
	}))
	mux.HandleFunc("/api/server/start", record(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Port *int `json:"port"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		port := 8000
		if body.Port != nil {
			port = *body.Port
		}
		pid := 4242
		writeJSON(w, map[string]any{"running": true, "pid": pid, "port": port})
	}))
	mux.HandleFunc("/api/server/stop", record(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"running": false})
	}))
	mux.HandleFunc("/api/server/config", record(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			var cfg config.Config
			_ = json.NewDecoder(r.Body).Decode(&cfg)
			writeJSON(w, cfg)
			return
		}
		writeJSON(w, config.Default())
	}))
	mux.HandleFunc("/api/ports/8000", record(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"port": 8000, "listeners": []any{}})
	}))
	mux.HandleFunc("/api/server/env", record(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			writeJSON(w, map[string]string{"path": "/tmp/.env"})
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("KEY=1\n"))
	}))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &paths
}

func TestClientStatus(t *testing.T) {
	srv, _ := newFakeDaemon(t)
	c := NewAPIClient(srv.URL+"/api", time.Second)
	if !c.IsReachable() {
		t.Fatalf("daemon not reachable")
	}
	st, err := c.GetStatus()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Running {
		t.Fatalf("expected idle status, got %+v", st)
	}
}

func TestClientStartSendsPort(t *testing.T) {
	srv, _ := newFakeDaemon(t)
	c := NewAPIClient(srv.URL+"/api", time.Second)
	port := 9100
	st, err := c.StartServer(&port)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !st.Running || st.Port == nil || *st.Port != 9100 {
		t.Fatalf("unexpected status %+v", st)
	}
	// Without a port the daemon default applies.
	st, err = c.StartServer(nil)
	if err != nil {
		t.Fatalf("start default: %v", err)
	}
	if st.Port == nil || *st.Port != 8000 {
		t.Fatalf("default port status %+v", st)
	}
}

func TestClientConfigRoundTrip(t *testing.T) {
	srv, _ := newFakeDaemon(t)
	c := NewAPIClient(srv.URL+"/api", time.Second)
	cfg, err := c.GetConfig()
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	cfg.DefaultPort = 9400
	saved, err := c.SetConfig(cfg)
	if err != nil {
		t.Fatalf("set config: %v", err)
	}
	if saved.DefaultPort != 9400 {
		t.Fatalf("saved config %+v", saved)
	}
}

func TestClientPortCheck(t *testing.T) {
	srv, _ := newFakeDaemon(t)
	c := NewAPIClient(srv.URL+"/api", time.Second)
	out, err := c.CheckPort(8000)
	if err != nil {
		t.Fatalf("check port: %v", err)
	}
	if out.Port != 8000 || len(out.Listeners) != 0 {
		t.Fatalf("unexpected result %+v", out)
	}
}

func TestClientEnvRoundTrip(t *testing.T) {
	srv, paths := newFakeDaemon(t)
	c := NewAPIClient(srv.URL+"/api", time.Second)
	content, err := c.GetEnv()
	if err != nil {
		t.Fatalf("get env: %v", err)
	}
	if content != "KEY=1\n" {
		t.Fatalf("env content %q", content)
	}
	if err := c.SetEnv("KEY=2\n"); err != nil {
		t.Fatalf("set env: %v", err)
	}
	var sawPut bool
	for _, p := range *paths {
		if p == "PUT /api/server/env" {
			sawPut = true
		}
	}
	if !sawPut {
		t.Fatalf("PUT /server/env never issued: %v", *paths)
	}
}

func TestClientErrorPropagation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/server/start", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "entry missing"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewAPIClient(srv.URL+"/api", time.Second)
	_, err := c.StartServer(nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := err.Error(); got != "API error: entry missing" {
		t.Fatalf("error = %q", got)
	}
}

func TestClientDefaults(t *testing.T) {
	c := NewAPIClient("", 0)
	if c.baseURL != "http://localhost:9090/api" {
		t.Fatalf("default base URL = %q", c.baseURL)
	}
	if c.client.Timeout != 10*time.Second {
		t.Fatalf("default timeout = %v", c.client.Timeout)
	}
}
