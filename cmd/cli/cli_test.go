// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAPIClientSendsAuthAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/threads" {
			t.Errorf("path = %s, want /threads", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("authorization = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("content type = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"thread_id":"abc"}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer srv.Close()

	// Trailing slash on the base URL must not produce a double slash.
	client := newAPIClient(srv.URL+"/", "tok-123")

	var out struct {
		ThreadID string `json:"thread_id"`
	}
	in := map[string]any{"template_name": "default"}
	if err := client.do(context.Background(), http.MethodPost, "/threads", in, &out); err != nil {
		t.Fatalf("do: %v", err)
	}
	if out.ThreadID != "abc" {
		t.Fatalf("thread_id = %q, want %q", out.ThreadID, "abc")
	}
}

func TestAPIClientOmitsAuthWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Header["Authorization"]; ok {
			t.Error("unexpected Authorization header")
		}
		if _, err := w.Write([]byte(`{}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer srv.Close()

	client := newAPIClient(srv.URL, "")
	if err := client.do(context.Background(), http.MethodGet, "/healthz", nil, nil); err != nil {
		t.Fatalf("do: %v", err)
	}
}

func TestAPIClientSurfacesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no events to append", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := newAPIClient(srv.URL, "")
	err := client.do(context.Background(), http.MethodPost, "/threads/x/events", map[string]any{}, nil)
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if !strings.Contains(err.Error(), "no events to append") {
		t.Fatalf("error should carry the response body, got %q", err)
	}
}

func TestThreadsCmdSubcommands(t *testing.T) {
	var addr, token string
	cmd := threadsCmd(&addr, &token)

	for _, name := range []string{"cancel", "create", "events", "status", "steps"} {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("missing subcommand %q", name)
		}
	}
}

func TestThreadsCreateCmdFlags(t *testing.T) {
	var addr, token string
	cmd := threadsCreateCmd(&addr, &token)

	for _, name := range []string{"template", "total-steps", "webhook-url"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Fatalf("missing flag %q", name)
		}
	}
	if err := cmd.Args(cmd, []string{"extra"}); err == nil {
		t.Fatal("expected args validation error for positional args")
	}
}

func TestThreadsEventsCmdFlags(t *testing.T) {
	var addr, token string
	cmd := threadsEventsCmd(&addr, &token)

	for _, name := range []string{"step", "status", "progress", "step-number", "total-steps"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Fatalf("missing flag %q", name)
		}
	}
	if err := cmd.Args(cmd, nil); err == nil {
		t.Fatal("expected args validation error for missing thread id")
	}
}

func TestThreadsStepsCmdShape(t *testing.T) {
	var addr, token string
	cmd := threadsStepsCmd(&addr, &token)

	if cmd.Flags().Lookup("next") == nil {
		t.Fatal("expected --next flag")
	}
	if err := cmd.Args(cmd, []string{"a", "b"}); err == nil {
		t.Fatal("expected args validation error for too many args")
	}
}

func TestTemplatesLintValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	doc := `templates:
  - name: deploy
    steps:
      - id: build
        name: Build artifact
        kind: execution
      - id: release
        name: Release artifact
        kind: completion
        dependencies: [build]
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write template file: %v", err)
	}

	cmd := templatesLintCmd()
	if err := cmd.RunE(cmd, []string{path}); err != nil {
		t.Fatalf("lint valid file: %v", err)
	}
}

func TestTemplatesLintRejectsCycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	doc := `templates:
  - name: broken
    steps:
      - id: a
        name: A
        kind: execution
        dependencies: [b]
      - id: b
        name: B
        kind: execution
        dependencies: [a]
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write template file: %v", err)
	}

	cmd := templatesLintCmd()
	err := cmd.RunE(cmd, []string{path})
	if err == nil {
		t.Fatal("expected lint to fail on a dependency cycle")
	}
	if !strings.Contains(err.Error(), "failed validation") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTemplatesLintMissingFile(t *testing.T) {
	cmd := templatesLintCmd()
	if err := cmd.RunE(cmd, []string{filepath.Join(t.TempDir(), "absent.yaml")}); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestEnvOr(t *testing.T) {
	t.Setenv("AGENTCTL_TEST_ADDR", "http://example:9999")
	if got := envOr("AGENTCTL_TEST_ADDR", "fallback"); got != "http://example:9999" {
		t.Fatalf("envOr = %q, want env value", got)
	}
	if got := envOr("AGENTCTL_TEST_UNSET", "fallback"); got != "fallback" {
		t.Fatalf("envOr = %q, want fallback", got)
	}
}
