package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatWithChain_FallsBackOnError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var body struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Model == "primary-model" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"boom"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	}))
	defer srv.Close()

	client := NewClient("test", "key", srv.URL)
	resp, usedModel, err := ChatWithChain(context.Background(), client, []string{"primary-model", "fallback-model"}, []Message{{Role: "user", Content: "hi"}}, 100, 0.2)
	if err != nil {
		t.Fatalf("ChatWithChain: %v", err)
	}
	if usedModel != "fallback-model" {
		t.Fatalf("usedModel = %q, want fallback-model", usedModel)
	}
	if resp.Content != "ok" {
		t.Fatalf("Content = %q, want ok", resp.Content)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestChatWithChain_ExhaustsToModelUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient("test", "key", srv.URL)
	_, _, err := ChatWithChain(context.Background(), client, []string{"a", "b"}, []Message{{Role: "user", Content: "hi"}}, 100, 0.2)
	if err == nil {
		t.Fatal("expected error")
	}
}
