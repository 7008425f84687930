package function

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kylerisse/snapcheck/pkg/backend"
	"github.com/kylerisse/snapcheck/pkg/check"
)

func newClient(t *testing.T, handler http.HandlerFunc) *backend.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := backend.New(srv.URL, backend.Credentials{Restricted: "anon", Elevated: "service"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c
}

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

func TestNew_Defaults(t *testing.T) {
	chk, err := New(newClient(t, respond(200, "{}")), "snapshot_staff_table_daily")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chk.timeout != DefaultTimeout {
		t.Errorf("expected default timeout, got %v", chk.timeout)
	}
	if chk.key != backend.Restricted {
		t.Errorf("expected restricted key by default, got %v", chk.key)
	}
	if chk.payload["test"] != true {
		t.Errorf("expected default payload, got %v", chk.payload)
	}
}

func TestNew_EmptyName(t *testing.T) {
	_, err := New(newClient(t, respond(200, "{}")), "")
	if err == nil {
		t.Error("expected error for empty function name")
	}
}

func TestNew_WithTimeoutZero(t *testing.T) {
	_, err := New(newClient(t, respond(200, "{}")), "f", WithTimeout(0))
	if err == nil {
		t.Error("expected error for zero timeout")
	}
}

func TestRun_Success(t *testing.T) {
	var (
		gotPath string
		gotKey  string
		gotBody map[string]any
	)
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("apikey")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"success":true,"message":"Snapshot created for 2026-10-19"}`))
	})

	chk, _ := New(client, "snapshot_staff_table_daily")
	result := chk.Run(context.Background())
	if !result.Success {
		t.Fatalf("expected success, got %v", result.Err)
	}
	if gotPath != "/functions/v1/snapshot_staff_table_daily" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotKey != "anon" {
		t.Errorf("expected restricted key, got %q", gotKey)
	}
	if gotBody["test"] != true {
		t.Errorf("expected {\"test\":true} payload, got %v", gotBody)
	}
	if !strings.Contains(strings.Join(result.Details, "\n"), "Snapshot created for 2026-10-19") {
		t.Errorf("expected response message in details, got %v", result.Details)
	}
}

func TestRun_SuccessWithoutMessage(t *testing.T) {
	client := newClient(t, respond(http.StatusOK, "ok"))
	chk, _ := New(client, "f")

	result := chk.Run(context.Background())
	if !result.Success {
		t.Fatalf("expected success, got %v", result.Err)
	}
	if !strings.Contains(strings.Join(result.Details, "\n"), "Response: Success") {
		t.Errorf("expected fallback message, got %v", result.Details)
	}
}

func TestRun_ElevatedKey(t *testing.T) {
	var gotKey string
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("apikey")
		w.WriteHeader(http.StatusOK)
	})

	chk, _ := New(client, "f", WithElevatedKey(true))
	chk.Run(context.Background())
	if gotKey != "service" {
		t.Errorf("expected elevated key, got %q", gotKey)
	}
}

func TestRun_ConstraintError(t *testing.T) {
	client := newClient(t, respond(http.StatusInternalServerError,
		`{"error":"there is no unique or exclusion constraint matching the ON CONFLICT specification"}`))
	chk, _ := New(client, "f")

	result := chk.Run(context.Background())
	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Err.Error(), "500") {
		t.Errorf("expected status in error, got %q", result.Err.Error())
	}
	if !strings.Contains(result.Err.Error(), "unique or exclusion constraint") {
		t.Errorf("expected body text in error, got %q", result.Err.Error())
	}
	if !strings.Contains(result.Hint, "schema fix") {
		t.Errorf("expected constraint hint, got %q", result.Hint)
	}
}

func TestRun_RLSError(t *testing.T) {
	client := newClient(t, respond(http.StatusInternalServerError,
		`{"error":"new row violates row-level security policy"}`))
	chk, _ := New(client, "f")

	result := chk.Run(context.Background())
	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Hint, "row-level security") {
		t.Errorf("expected RLS hint, got %q", result.Hint)
	}
}

func TestRun_NotDeployed(t *testing.T) {
	client := newClient(t, respond(http.StatusNotFound, `{"message":"Function not found"}`))
	chk, _ := New(client, "f")

	result := chk.Run(context.Background())
	if result.Success {
		t.Fatal("expected failure")
	}
	if !errors.Is(result.Err, backend.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", result.Err)
	}
	if !strings.Contains(result.Err.Error(), "not deployed") {
		t.Errorf("expected 'not deployed' message, got %q", result.Err.Error())
	}
}

func TestRun_Timeout(t *testing.T) {
	release := make(chan struct{})
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	chk, _ := New(client, "f", WithTimeout(50*time.Millisecond))
	start := time.Now()
	result := chk.Run(context.Background())
	if result.Success {
		t.Fatal("expected failure on timeout")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("expected bounded wait, took %v", elapsed)
	}
	if !strings.Contains(result.Err.Error(), "did not respond within 50ms") {
		t.Errorf("expected timeout message, got %q", result.Err.Error())
	}
}

func TestDiagnose_Unknown(t *testing.T) {
	if diagnose("boom") != "" {
		t.Error("expected no hint for an unrecognized body")
	}
}

func TestFactory_FullConfig(t *testing.T) {
	chk, err := Factory(map[string]any{
		"function": "snapshot_staff_table_daily",
		"timeout":  "10s",
		"payload":  map[string]any{"dry_run": true},
		"elevated": true,
	}, check.Deps{Client: newClient(t, respond(200, "{}"))})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := chk.(*Check)
	if c.timeout != 10*time.Second {
		t.Errorf("expected timeout 10s, got %v", c.timeout)
	}
	if c.payload["dry_run"] != true {
		t.Errorf("expected payload override, got %v", c.payload)
	}
	if c.key != backend.Elevated {
		t.Error("expected elevated key")
	}
}

func TestFactory_MissingFunction(t *testing.T) {
	_, err := Factory(map[string]any{}, check.Deps{Client: newClient(t, respond(200, "{}"))})
	if err == nil {
		t.Error("expected error for missing function")
	}
}

func TestFactory_InvalidTimeout(t *testing.T) {
	_, err := Factory(map[string]any{"function": "f", "timeout": "soon"}, check.Deps{Client: newClient(t, respond(200, "{}"))})
	if err == nil {
		t.Error("expected error for invalid timeout")
	}
}

func TestFactory_WrongElevatedType(t *testing.T) {
	_, err := Factory(map[string]any{"function": "f", "elevated": "yes"}, check.Deps{Client: newClient(t, respond(200, "{}"))})
	if err == nil {
		t.Error("expected error for non-bool elevated")
	}
}

func TestCheckInterface(t *testing.T) {
	var _ check.Check = &Check{}
}
