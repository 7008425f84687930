package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

var testCreds = Credentials{Restricted: "anon-key", Elevated: "service-key"}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, testCreds, opts...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c
}

func TestNew_Valid(t *testing.T) {
	c, err := New("https://example.supabase.co/", testCreds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.BaseURL() != "https://example.supabase.co" {
		t.Errorf("expected trailing slash trimmed, got %q", c.BaseURL())
	}
	if c.Host() != "example.supabase.co" {
		t.Errorf("expected host 'example.supabase.co', got %q", c.Host())
	}
}

func TestNew_BadScheme(t *testing.T) {
	_, err := New("ftp://example.com", testCreds)
	if err == nil {
		t.Error("expected error for non-http scheme")
	}
}

func TestNew_NoHost(t *testing.T) {
	_, err := New("https://", testCreds)
	if err == nil {
		t.Error("expected error for missing host")
	}
}

func TestNew_MissingKeys(t *testing.T) {
	_, err := New("https://example.com", Credentials{Restricted: "a"})
	if err == nil {
		t.Error("expected error when elevated key is missing")
	}
	_, err = New("https://example.com", Credentials{Elevated: "b"})
	if err == nil {
		t.Error("expected error when restricted key is missing")
	}
}

func TestNew_NegativeRateLimit(t *testing.T) {
	_, err := New("https://example.com", testCreds, WithRateLimit(-1))
	if err == nil {
		t.Error("expected error for negative rate limit")
	}
}

func TestNew_NegativeTimeout(t *testing.T) {
	_, err := New("https://example.com", testCreds, WithTimeout(-time.Second))
	if err == nil {
		t.Error("expected error for negative timeout")
	}
}

func TestNew_NilLogger(t *testing.T) {
	_, err := New("https://example.com", testCreds, WithLogger(nil))
	if err == nil {
		t.Error("expected error for nil logger")
	}
}

func TestDo_RestrictedHeaders(t *testing.T) {
	var got http.Header
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	})

	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/rest/v1/"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Get("apikey") != "anon-key" {
		t.Errorf("expected apikey 'anon-key', got %q", got.Get("apikey"))
	}
	if got.Get("Authorization") != "Bearer anon-key" {
		t.Errorf("expected bearer anon-key, got %q", got.Get("Authorization"))
	}
	if got.Get("Prefer") != "" {
		t.Errorf("expected no Prefer header, got %q", got.Get("Prefer"))
	}
}

func TestDo_ElevatedHeadersAndPrefer(t *testing.T) {
	var got http.Header
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusCreated)
	})

	resp, err := c.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/rest/v1/table_snapshots_index",
		Key:    Elevated,
		Prefer: "resolution=merge-duplicates",
		Body:   map[string]any{"a": 1},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("expected 201, got %d", resp.StatusCode)
	}
	if got.Get("apikey") != "service-key" {
		t.Errorf("expected apikey 'service-key', got %q", got.Get("apikey"))
	}
	if got.Get("Authorization") != "Bearer service-key" {
		t.Errorf("expected bearer service-key, got %q", got.Get("Authorization"))
	}
	if got.Get("Prefer") != "resolution=merge-duplicates" {
		t.Errorf("expected Prefer header, got %q", got.Get("Prefer"))
	}
	if got.Get("Content-Type") != "application/json" {
		t.Errorf("expected JSON content type, got %q", got.Get("Content-Type"))
	}
}

func TestDo_PathQueryAndBody(t *testing.T) {
	var (
		path  string
		query url.Values
		body  map[string]any
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		query = r.URL.Query()
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		w.Write([]byte(`[{"id":1}]`))
	})

	resp, err := c.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "rest/v1/staffTable",
		Query:  url.Values{"select": {"count"}, "limit": {"1"}},
		Body:   map[string]any{"test": true},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "/rest/v1/staffTable" {
		t.Errorf("expected path '/rest/v1/staffTable', got %q", path)
	}
	if query.Get("select") != "count" || query.Get("limit") != "1" {
		t.Errorf("unexpected query %v", query)
	}
	if body["test"] != true {
		t.Errorf("expected body test=true, got %v", body)
	}

	var rows []map[string]any
	if err := resp.JSON(&rows); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("expected 1 row, got %d", len(rows))
	}
}

func TestDo_ErrorStatusIsNotAnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})

	resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", resp.StatusCode)
	}
}

func TestDo_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := New(url, testCreds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/rest/v1/"})
	if err == nil {
		t.Fatal("expected transport error")
	}
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
	if Classify(err) != KindTransport {
		t.Errorf("expected KindTransport, got %v", Classify(err))
	}
}

func TestDo_PerRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	_, err := c.Do(context.Background(), Request{
		Method:  http.MethodPost,
		Path:    "/functions/v1/slow",
		Timeout: 50 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestDo_CancelledContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/"})
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDo_RateLimited(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}, WithRateLimit(20))

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	// burst of 1 at 20/s: the 2nd and 3rd requests wait ~50ms each
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("expected pacing, requests finished in %v", elapsed)
	}
}

func TestExpect_Accepted(t *testing.T) {
	resp := &Response{StatusCode: http.StatusCreated}
	if err := Expect(resp, http.StatusOK, http.StatusCreated); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestExpect_Rejected(t *testing.T) {
	resp := &Response{StatusCode: http.StatusBadGateway, Body: []byte("upstream down")}
	err := Expect(resp, http.StatusOK)
	if err == nil {
		t.Fatal("expected error")
	}
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %T", err)
	}
	if se.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", se.StatusCode)
	}
	if err.Error() != "HTTP 502: upstream down" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
