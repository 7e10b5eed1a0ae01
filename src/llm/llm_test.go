package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func withServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	prevDelay := initialDelay
	initialDelay = time.Millisecond
	t.Cleanup(func() {
		initialDelay = prevDelay
		config = nil
	})
	Init(&Config{APIKey: "test_api_key", Model: "gemini-test", BaseURL: srv.URL})
	return srv
}

func writeText(w http.ResponseWriter, text string) {
	_ = json.NewEncoder(w).Encode(GenerateResponse{
		Candidates: []Candidate{{Content: Content{Parts: []Part{{Text: text}}}}},
	})
}

func TestPingNotInitialized(t *testing.T) {
	config = nil
	if err := Ping(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Expected ErrNotInitialized, got %v", err)
	}
}

func TestQueryVisionValidation(t *testing.T) {
	config = nil
	if _, err := QueryVision(context.Background(), "aGVsbG8="); err == nil {
		t.Error("Expected error when not initialized")
	}

	Init(&Config{APIKey: "", Model: "test_model"})
	if _, err := QueryVision(context.Background(), "aGVsbG8="); err == nil {
		t.Error("Expected error with missing API key")
	}

	Init(&Config{APIKey: "test_api_key", Model: ""})
	if _, err := QueryVision(context.Background(), "aGVsbG8="); err == nil {
		t.Error("Expected error with missing model")
	}

	Init(&Config{APIKey: "test_api_key", Model: "test_model"})
	if _, err := QueryVision(context.Background(), ""); err == nil {
		t.Error("Expected error with empty image")
	}
	config = nil
}

func TestQueryVisionRequestShape(t *testing.T) {
	withServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/models/gemini-test:generateContent" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test_api_key" {
			t.Errorf("api key header = %q", got)
		}
		var req GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		parts := req.Contents[0].Parts
		if len(parts) != 2 || parts[0].Text != Prompt || parts[1].InlineData == nil {
			t.Fatalf("unexpected parts: %+v", parts)
		}
		if parts[1].InlineData.MimeType != "image/png" || parts[1].InlineData.Data != "aGVsbG8=" {
			t.Errorf("unexpected inline data: %+v", parts[1].InlineData)
		}
		if req.GenerationConfig.MaxOutputTokens != 256 || req.GenerationConfig.Temperature != 0.1 {
			t.Errorf("unexpected generation config: %+v", req.GenerationConfig)
		}
		writeText(w, "```latex\nE = mc^2\n```")
	})

	latex, err := QueryVision(context.Background(), "aGVsbG8=")
	if err != nil {
		t.Fatalf("QueryVision: %v", err)
	}
	if latex != "E = mc^2" {
		t.Errorf("latex = %q", latex)
	}
}

func TestQueryVisionStatusMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		want      error
		wantCalls int32
	}{
		{"unauthorized", http.StatusUnauthorized, ErrInvalidAPIKey, 1},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited, 1},
		{"server error retried", http.StatusServiceUnavailable, ErrServer, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			withServer(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"code":1,"message":"nope","status":"X"}}`))
			})
			_, err := QueryVision(context.Background(), "aGVsbG8=")
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if got := atomic.LoadInt32(&calls); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestQueryVisionBadRequestMessage(t *testing.T) {
	withServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"image too small"}}`))
	})
	_, err := QueryVision(context.Background(), "aGVsbG8=")
	if err == nil || err.Error() != "image too small" {
		t.Errorf("err = %v, want API message", err)
	}
}

func TestQueryVisionRecoversAfterServerError(t *testing.T) {
	var calls int32
	withServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeText(w, `\frac{a}{b}`)
	})
	latex, err := QueryVision(context.Background(), "aGVsbG8=")
	if err != nil || latex != `\frac{a}{b}` {
		t.Errorf("got %q, %v", latex, err)
	}
}

func TestPing(t *testing.T) {
	withServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/models/gemini-test" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"name":"models/gemini-test"}`))
	})
	if err := Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestExtractLatex(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"x^2", "x^2"},
		{"  \\alpha  \n", "\\alpha"},
		{"```latex\n\\sum_i x_i\n```", "\\sum_i x_i"},
		{"```\na+b\n```", "a+b"},
		{"```LaTeX a+b```", "a+b"},
	}
	for _, tt := range tests {
		resp := &GenerateResponse{Candidates: []Candidate{{Content: Content{Parts: []Part{{Text: tt.in}}}}}}
		got, err := ExtractLatex(resp)
		if err != nil || got != tt.want {
			t.Errorf("ExtractLatex(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}

	for _, resp := range []*GenerateResponse{
		nil,
		{},
		{Candidates: []Candidate{{}}},
		{Candidates: []Candidate{{Content: Content{Parts: []Part{{Text: "```latex\n```"}}}}}},
	} {
		if _, err := ExtractLatex(resp); !errors.Is(err, ErrNoLatex) {
			t.Errorf("ExtractLatex(%+v) err = %v, want ErrNoLatex", resp, err)
		}
	}
}
