package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func geminiOK(text string) string {
	resp := map[string]interface{}{
		"candidates": []map[string]interface{}{
			{
				"content": map[string]interface{}{
					"parts": []map[string]string{{"text": text}},
					"role":  "model",
				},
				"finishReason": "STOP",
			},
		},
		"usageMetadata": map[string]int{"totalTokenCount": 42},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*GeminiClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewGeminiClientWithConfig(GeminiConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "gemini-2.5-flash",
		Timeout: 5 * time.Second,
	})
	return client, srv
}

func TestGeminiClient_Complete(t *testing.T) {
	var gotBody GeminiRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(geminiOK("const x = 1;")))
	})

	out, err := client.Complete(context.Background(), "write code")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out != "const x = 1;" {
		t.Errorf("got %q", out)
	}
	if len(gotBody.Contents) != 1 || gotBody.Contents[0].Parts[0].Text != "write code" {
		t.Errorf("request body mismatch: %+v", gotBody)
	}
	if gotBody.SystemInstruction != nil {
		t.Error("Complete should not set a system instruction")
	}
}

func TestGeminiClient_SystemInstruction(t *testing.T) {
	var gotBody GeminiRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(geminiOK("ok")))
	})

	if _, err := client.CompleteWithSystem(context.Background(), "be terse", "hi"); err != nil {
		t.Fatalf("CompleteWithSystem failed: %v", err)
	}
	if gotBody.SystemInstruction == nil || gotBody.SystemInstruction.Parts[0].Text != "be terse" {
		t.Errorf("system instruction not forwarded: %+v", gotBody.SystemInstruction)
	}
}

func TestGeminiClient_RetriesOnRateLimit(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(geminiOK("after retry")))
	})

	out, err := client.Complete(context.Background(), "p")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out != "after retry" {
		t.Errorf("got %q", out)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestGeminiClient_NonRetryableStatus(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad prompt"}}`))
	})

	_, err := client.Complete(context.Background(), "p")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "400") {
		t.Errorf("error should carry the status: %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("400 must not be retried, calls = %d", calls)
	}
}

func TestGeminiClient_APIError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"code":500,"message":"internal","status":"INTERNAL"}}`))
	})

	_, err := client.Complete(context.Background(), "p")
	if err == nil || !strings.Contains(err.Error(), "internal") {
		t.Errorf("expected API error, got %v", err)
	}
}

func TestGeminiClient_EmptyResponseIsError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[],"role":"model"},"finishReason":"MAX_TOKENS"}]}`))
	})

	_, err := client.Complete(context.Background(), "p")
	if err == nil {
		t.Fatal("empty completion must be an error, never a silent success")
	}
	if !strings.Contains(err.Error(), "MAX_TOKENS") {
		t.Errorf("error should name the finish reason: %v", err)
	}
}

func TestGeminiClient_MissingAPIKey(t *testing.T) {
	client := NewGeminiClient("")
	if _, err := client.Complete(context.Background(), "p"); err == nil {
		t.Error("expected error with no API key")
	}
}
