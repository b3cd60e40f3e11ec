package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type catalogRecorder struct {
	mu      sync.Mutex
	paths   []string
	bodies  []string
	headers []http.Header

	validateStatus int
	validateBody   string
	addStatus      int
	addBody        string
	delay          time.Duration
}

func (c *catalogRecorder) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	_ = r.Body.Close()

	c.mu.Lock()
	c.paths = append(c.paths, r.URL.Path)
	c.bodies = append(c.bodies, string(body))
	c.headers = append(c.headers, r.Header.Clone())
	c.mu.Unlock()

	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-r.Context().Done():
			return
		}
	}

	switch {
	case strings.HasSuffix(r.URL.Path, "/validate/product"):
		w.WriteHeader(c.validateStatus)
		_, _ = w.Write([]byte(c.validateBody))
	case strings.HasSuffix(r.URL.Path, "/add/product"):
		w.WriteHeader(c.addStatus)
		_, _ = w.Write([]byte(c.addBody))
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, rec *catalogRecorder, base string, opts ...Option) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := New(logger, srv.Client(), srv.URL+base, opts...)
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	return c, srv
}

func TestClient_ValidateAndAdd_JoinBasePath(t *testing.T) {
	rec := &catalogRecorder{validateStatus: 200, addStatus: 200, addBody: `{"productId": 17}`}
	c, _ := newTestClient(t, rec, "/api/")

	body := []byte(`{"name":"p1"}`)
	if err := c.ValidateProduct(context.Background(), body); err != nil {
		t.Fatalf("ValidateProduct: %v", err)
	}
	id, err := c.AddProduct(context.Background(), body)
	if err != nil {
		t.Fatalf("AddProduct: %v", err)
	}
	if id != "17" {
		t.Fatalf("id=%q want 17", id)
	}

	want := []string{"/api/validate/product", "/api/add/product"}
	if strings.Join(rec.paths, ",") != strings.Join(want, ",") {
		t.Fatalf("paths=%v want %v", rec.paths, want)
	}
	for i, b := range rec.bodies {
		if b != string(body) {
			t.Fatalf("request %d body=%q", i, b)
		}
	}
	if ct := rec.headers[0].Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type=%q", ct)
	}
	if rec.headers[0].Get("Authorization") != "" {
		t.Fatalf("no token source configured, Authorization must be empty")
	}
}

func TestClient_ValidateRejected(t *testing.T) {
	rec := &catalogRecorder{validateStatus: 400, validateBody: `["footprint.type | should be 'MultiPolygon'"]`}
	c, _ := newTestClient(t, rec, "")

	err := c.ValidateProduct(context.Background(), []byte(`{}`))
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err=%v want *ValidationError", err)
	}
	if ve.Status != 400 || !strings.Contains(ve.Body, "should be 'MultiPolygon'") {
		t.Fatalf("unexpected validation error %+v", ve)
	}
	if !errors.Is(err, ErrRejected) || errors.Is(err, ErrTransport) {
		t.Fatalf("classification wrong for %v", err)
	}
	if !strings.Contains(err.Error(), "should be 'MultiPolygon'") {
		t.Fatalf("message must carry the server text: %q", err.Error())
	}
}

func TestClient_AddRejected(t *testing.T) {
	rec := &catalogRecorder{addStatus: 500, addBody: "A database error has occurred"}
	c, _ := newTestClient(t, rec, "")

	_, err := c.AddProduct(context.Background(), []byte(`{}`))
	var pe *PersistError
	if !errors.As(err, &pe) || pe.Status != 500 {
		t.Fatalf("err=%v want *PersistError{500}", err)
	}
}

func TestClient_TimeoutIsTransportError(t *testing.T) {
	rec := &catalogRecorder{validateStatus: 200, delay: 2 * time.Second}
	c, _ := newTestClient(t, rec, "", WithRequestTimeout(50*time.Millisecond))

	err := c.ValidateProduct(context.Background(), []byte(`{}`))
	var te *TransportError
	if !errors.As(err, &te) || te.Phase != PhaseValidate {
		t.Fatalf("err=%v want *TransportError in validate phase", err)
	}
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("errors.Is(ErrTransport) must hold for %v", err)
	}
}

func TestClient_UnreachableIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(nil, nil, url)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.AddProduct(context.Background(), []byte(`{}`))
	var te *TransportError
	if !errors.As(err, &te) || te.Phase != PhasePersist {
		t.Fatalf("err=%v want *TransportError in persist phase", err)
	}
}

func TestClient_BearerToken(t *testing.T) {
	ts, err := NewHMACTokenSource("s3cret", "catalog-importer", time.Minute, "importer")
	if err != nil {
		t.Fatalf("token source: %v", err)
	}
	rec := &catalogRecorder{validateStatus: 200}
	c, _ := newTestClient(t, rec, "", WithTokenSource(ts))

	if err := c.ValidateProduct(context.Background(), []byte(`{}`)); err != nil {
		t.Fatalf("ValidateProduct: %v", err)
	}
	h := rec.headers[0].Get("Authorization")
	raw, ok := strings.CutPrefix(h, "Bearer ")
	if !ok {
		t.Fatalf("Authorization=%q want Bearer token", h)
	}

	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte("s3cret"), nil
	})
	if err != nil || !tok.Valid {
		t.Fatalf("token did not verify: %v", err)
	}
	if claims.Subject != "catalog-importer" || len(claims.Roles) != 1 || claims.Roles[0] != "importer" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestHMACTokenSource_ReusesUntilNearExpiry(t *testing.T) {
	ts, err := NewHMACTokenSource("k", "sub", 2*time.Minute)
	if err != nil {
		t.Fatalf("token source: %v", err)
	}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	a, _ := ts.Token(now)
	b, _ := ts.Token(now.Add(time.Minute))
	if a != b {
		t.Fatalf("token should be reused while far from expiry")
	}
	c, _ := ts.Token(now.Add(2*time.Minute - 10*time.Second))
	if c == a {
		t.Fatalf("token should be refreshed inside the refresh margin")
	}

	if _, err := NewHMACTokenSource("", "sub", time.Minute); err == nil {
		t.Fatalf("empty secret must be rejected")
	}
}

func TestNew_RejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "ftp://catalog", "://nope"} {
		if _, err := New(nil, nil, u); err == nil {
			t.Fatalf("expected error for %q", u)
		}
	}
}

func TestExtractID(t *testing.T) {
	cases := map[string]string{
		`{"id":"0b8e5d6c-7c5a-4c1e-9c7e-2f7e4b1c9a10"}`: "0b8e5d6c-7c5a-4c1e-9c7e-2f7e4b1c9a10",
		`{"productId":12345678901234}`:                 "12345678901234",
		`{"product_id":"abc"}`:                         "abc",
		`"plain-json-string"`:                          "plain-json-string",
		`42`:                                           "42",
		`  9f1c  `:                                     "9f1c",
		``:                                             "",
		`{"status":"ok"}`:                              `{"status":"ok"}`,
	}
	for in, want := range cases {
		if got := ExtractID([]byte(in)); got != want {
			t.Fatalf("ExtractID(%q)=%q want %q", in, got, want)
		}
	}
}
