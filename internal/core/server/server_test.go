package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohammed-shakir/catalog-importer/internal/catalog"
	"github.com/mohammed-shakir/catalog-importer/internal/core/config"
	"github.com/mohammed-shakir/catalog-importer/internal/core/health"
	"github.com/mohammed-shakir/catalog-importer/internal/footprint"
	"github.com/mohammed-shakir/catalog-importer/internal/importer"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// newStack wires a real importer against a fake catalog behind the server.
func newStack(t *testing.T, checks map[string]health.Check) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var adds atomic.Int32
	cat := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/add/product") {
			n := adds.Add(1)
			_, _ = fmt.Fprintf(w, `{"id":"prod-%d"}`, n)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(cat.Close)

	cc, err := catalog.New(quiet(), nil, cat.URL)
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	imp, err := importer.New(footprint.NewEmbedded(), cc, importer.Options{Logger: quiet()})
	if err != nil {
		t.Fatalf("importer.New: %v", err)
	}

	cfg := config.FromEnv()
	srv := httptest.NewServer(NewHandler(cfg, quiet(), Deps{Importer: imp, Checks: checks}))
	t.Cleanup(srv.Close)
	return srv, &adds
}

func TestServer_ImportProducts(t *testing.T) {
	srv, adds := newStack(t, nil)

	body := `[
	  {"name":"a","footprint":{"type":"Polygon","coordinates":[[[0,0],[0,1],[1,1],[1,0],[0,0]]]}},
	  {"name":"b","footprint":{"type":"Point","coordinates":[0,0]}}
	]`
	resp, err := http.Post(srv.URL+"/import/products", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}

	var out struct {
		Summary  importer.Summary   `json:"summary"`
		Outcomes []importer.Outcome `json:"outcomes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Summary.Succeeded != 1 || out.Summary.Failed != 1 {
		t.Fatalf("summary %+v", out.Summary)
	}
	if out.Outcomes[0].ID != "prod-1" || out.Outcomes[1].ErrorKind != "GeometryTypeError" {
		t.Fatalf("outcomes %+v", out.Outcomes)
	}
	if adds.Load() != 1 {
		t.Fatalf("adds=%d want 1", adds.Load())
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID")
	}
}

func TestServer_RoutesAndProbes(t *testing.T) {
	srv, _ := newStack(t, map[string]health.Check{
		"catalog": func(context.Context) error { return nil },
	})

	cases := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/readyz", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodPost, "/import/collections", "{}", http.StatusNotImplemented},
		{http.MethodPost, "/import/products", "not json", http.StatusBadRequest},
		{http.MethodGet, "/import/products", "", http.StatusMethodNotAllowed},
	}
	client := &http.Client{Timeout: 5 * time.Second}
	for _, c := range cases {
		req, _ := http.NewRequest(c.method, srv.URL+c.path, strings.NewReader(c.body))
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", c.method, c.path, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != c.want {
			t.Fatalf("%s %s status=%d want %d", c.method, c.path, resp.StatusCode, c.want)
		}
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := config.FromEnv()
	cfg.Addr = "127.0.0.1:0"
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, quiet(), Deps{}) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
