package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/autoproducer/internal/errors"
	"github.com/Iron-Ham/autoproducer/internal/production"
)

func newServer(t *testing.T, generate func(req generateRequest) (int, string)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/version", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"version":"0.5.1"}`))
	})
	mux.HandleFunc("POST /api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		code, text := generate(req)
		if code != http.StatusOK {
			http.Error(w, text, code)
			return
		}
		_ = json.NewEncoder(w).Encode(generateResponse{Response: text, Done: true})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient("", "")
	if c.BaseURL != DefaultBaseURL || c.Model != DefaultModel {
		t.Errorf("client = %+v", c)
	}
	if NewClient("http://h:1/", "m").BaseURL != "http://h:1" {
		t.Error("trailing slash should be trimmed")
	}
}

func TestPing(t *testing.T) {
	srv := newServer(t, nil)
	v, err := NewClient(srv.URL, "").Ping(context.Background(), time.Second)
	if err != nil || v != "0.5.1" {
		t.Errorf("Ping() = %q, %v", v, err)
	}
}

func TestPingUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if _, err := NewClient(url, "").Ping(context.Background(), time.Second); err == nil {
		t.Error("expected error for closed server")
	}
}

func TestPingTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(block)
		srv.Close()
	})

	_, err := NewClient(srv.URL, "").Ping(context.Background(), 30*time.Millisecond)
	if !errors.Is(err, errors.ErrTimeout) {
		t.Errorf("err = %v, want timeout", err)
	}
}

func TestGenerateIdeasJSON(t *testing.T) {
	srv := newServer(t, func(req generateRequest) (int, string) {
		if req.Format != "json" || req.Stream || req.Model != "m" {
			t.Errorf("unexpected request %+v", req)
		}
		if !strings.Contains(req.Prompt, `"History"`) || !strings.Contains(req.Prompt, `"daily"`) {
			t.Errorf("prompt missing topic or channel: %s", req.Prompt)
		}
		if !strings.Contains(req.Prompt, "Lost empires") {
			t.Errorf("prompt missing channel description: %s", req.Prompt)
		}
		return http.StatusOK, `{"ideas":[{"title":"The Silk Road"},{"title":" "},{"title":"Byzantium"},{"title":"Petra"}]}`
	})

	ideas, err := NewClient(srv.URL, "m").GenerateIdeas(context.Background(),
		production.Brief{Topic: "History", Channel: "daily", Description: "Lost empires", Count: 2})
	if err != nil {
		t.Fatalf("GenerateIdeas: %v", err)
	}
	if len(ideas) != 2 || ideas[0].Title != "The Silk Road" || ideas[1].Title != "Byzantium" {
		t.Errorf("ideas = %+v", ideas)
	}
}

func TestParseIdeasLineFallback(t *testing.T) {
	ideas := parseIdeas("1. Rome\n\n- Athens\n* Sparta", 0)
	want := []string{"Rome", "Athens", "Sparta"}
	if len(ideas) != len(want) {
		t.Fatalf("ideas = %+v", ideas)
	}
	for i, w := range want {
		if ideas[i].Title != w {
			t.Errorf("ideas[%d] = %q, want %q", i, ideas[i].Title, w)
		}
	}
}

func TestWriteScripts(t *testing.T) {
	srv := newServer(t, func(req generateRequest) (int, string) {
		return http.StatusOK, "  narration for prompt  "
	})

	scripts, err := NewClient(srv.URL, "").WriteScripts(context.Background(),
		[]production.Idea{{Title: "A"}, {Title: "B"}})
	if err != nil {
		t.Fatalf("WriteScripts: %v", err)
	}
	if len(scripts) != 2 || scripts[1].Title != "B" || scripts[0].Body != "narration for prompt" {
		t.Errorf("scripts = %+v", scripts)
	}
}

func TestWriteScriptsAPIError(t *testing.T) {
	srv := newServer(t, func(generateRequest) (int, string) {
		return http.StatusInternalServerError, "model not loaded"
	})

	_, err := NewClient(srv.URL, "").WriteScripts(context.Background(), []production.Idea{{Title: "A"}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("err = %v, want APIError 500", err)
	}
}
