package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pdfrag/internal/domain"
)

func TestCompose(t *testing.T) {
	var gotPrompt, gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		gotModel = req.Model
		if len(req.Messages) == 1 && req.Messages[0].Role == "user" {
			gotPrompt = req.Messages[0].Content
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  Keep records for seven years.  "}}]}`)
	}))
	defer srv.Close()
	t.Setenv("TEST_CHAT_KEY", "sk-test")

	c, err := New(Config{BaseURL: srv.URL + "/v1", APIKeyEnv: "TEST_CHAT_KEY", Model: "gpt-test", MaxRetries: -1})
	if err != nil {
		t.Fatal(err)
	}
	ctxs := []domain.ScoredResult{{Record: domain.EmbeddingRecord{SourceFile: "retention.pdf", Content: "Records are kept for seven years."}}}
	got, err := c.Compose(context.Background(), "How long are records kept?", ctxs)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if got != "Keep records for seven years." {
		t.Fatalf("answer = %q", got)
	}
	if gotModel != "gpt-test" {
		t.Fatalf("model = %q", gotModel)
	}
	if !strings.Contains(gotPrompt, "Source: retention.pdf") || !strings.Contains(gotPrompt, "Question: How long are records kept?") {
		t.Fatalf("prompt = %q", gotPrompt)
	}
}

func TestComposeProviderDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":{"message":"overloaded"}}`)
	}))
	defer srv.Close()
	t.Setenv("TEST_CHAT_KEY", "sk-test")
	c, _ := New(Config{BaseURL: srv.URL + "/v1", APIKeyEnv: "TEST_CHAT_KEY", MaxRetries: -1})
	if _, err := c.Compose(context.Background(), "q", nil); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("err = %v", err)
	}
}
