// Package llm talks to the Gemini generateContent API to turn an equation
// image into LaTeX.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1"
	Prompt         = "Extract the mathematical equation from this image and convert it to LaTeX format. Return only the LaTeX code, without any explanations or markdown formatting."

	maxRetries      = 3
	maxOutputTokens = 256
	temperature     = 0.1
)

var (
	ErrNotInitialized = errors.New("LLM client not initialized")
	ErrInvalidAPIKey  = errors.New("invalid API key")
	ErrRateLimited    = errors.New("rate limit exceeded")
	ErrServer         = errors.New("server error")
	ErrNoLatex        = errors.New("no LaTeX in response")
)

// initialDelay is the first retry backoff; tests shorten it.
var initialDelay = 1 * time.Second

type Config struct {
	APIKey string
	Model  string
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string
	Client  *http.Client
}

var config *Config

func Init(cfg *Config) {
	config = cfg
}

// Gemini API structures
type GenerateRequest struct {
	Contents         []Content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}

type Content struct {
	Parts []Part `json:"parts"`
}

type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inline_data,omitempty"`
}

type InlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type GenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens"`
	Temperature     float64 `json:"temperature"`
}

type GenerateResponse struct {
	Candidates []Candidate `json:"candidates"`
}

type Candidate struct {
	Content Content `json:"content"`
}

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func validConfig() error {
	if config == nil {
		return ErrNotInitialized
	}
	if config.APIKey == "" {
		return fmt.Errorf("API key is required")
	}
	if config.Model == "" {
		return fmt.Errorf("model is required")
	}
	return nil
}

func baseURL() string {
	if config.BaseURL != "" {
		return strings.TrimRight(config.BaseURL, "/")
	}
	return DefaultBaseURL
}

func httpClient() *http.Client {
	if config.Client != nil {
		return config.Client
	}
	return &http.Client{Timeout: 45 * time.Second}
}

// QueryVision sends a base64 PNG to the configured model and returns the
// extracted LaTeX. Server errors are retried with a growing delay; client
// errors are returned immediately.
func QueryVision(ctx context.Context, pngBase64 string) (string, error) {
	if err := validConfig(); err != nil {
		return "", err
	}
	if pngBase64 == "" {
		return "", fmt.Errorf("invalid base64 image data provided")
	}

	request := GenerateRequest{
		Contents: []Content{{
			Parts: []Part{
				{Text: Prompt},
				{InlineData: &InlineData{MimeType: "image/png", Data: pngBase64}},
			},
		}},
		GenerationConfig: GenerationConfig{MaxOutputTokens: maxOutputTokens, Temperature: temperature},
	}
	body, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", baseURL(), config.Model)

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(initialDelay) * (1.5 * float64(attempt)))
			log.Printf("llm: retrying in %s after: %v", delay, lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		var response GenerateResponse
		err := doJSON(ctx, http.MethodPost, url, body, &response)
		if err != nil {
			lastErr = err
			if retryable(ctx, err) {
				continue
			}
			return "", err
		}
		return ExtractLatex(&response)
	}

	return "", fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
}

// Ping checks that the key is accepted and the model exists.
func Ping(ctx context.Context) error {
	if err := validConfig(); err != nil {
		return err
	}
	url := fmt.Sprintf("%s/models/%s", baseURL(), config.Model)
	var model struct {
		Name string `json:"name"`
	}
	if err := doJSON(ctx, http.MethodGet, url, nil, &model); err != nil {
		return err
	}
	log.Printf("llm: ping ok, model %s", model.Name)
	return nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, ErrServer) {
		return true
	}
	var apiErr *statusError
	return !errors.As(err, &apiErr)
}

type statusError struct {
	status  int
	kind    error
	message string
}

func (e *statusError) Error() string {
	if e.kind != nil {
		return fmt.Sprintf("%v: %s", e.kind, e.message)
	}
	return e.message
}

func (e *statusError) Unwrap() error { return e.kind }

func doJSON(ctx context.Context, method, url string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", config.APIKey)

	resp, err := httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusErr(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func statusErr(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	message := fmt.Sprintf("API request failed with status %d", resp.StatusCode)
	var parsed apiErrorBody
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error.Message != "" {
		message = parsed.Error.Message
	} else if text := strings.TrimSpace(string(raw)); text != "" {
		message = fmt.Sprintf("%s: %s", message, text)
	}

	e := &statusError{status: resp.StatusCode, message: message}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		e.kind = ErrInvalidAPIKey
	case resp.StatusCode == http.StatusTooManyRequests:
		e.kind = ErrRateLimited
	case resp.StatusCode >= 500:
		e.kind = ErrServer
	}
	return e
}

var (
	fenceOpen  = regexp.MustCompile("(?i)^```(?:latex)?\\s*\\n?")
	fenceClose = regexp.MustCompile("\\n?```\\s*$")
)

// ExtractLatex returns the first candidate's first text part, trimmed and
// with surrounding markdown code fences removed.
func ExtractLatex(resp *GenerateResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: response has no candidates", ErrNoLatex)
	}
	parts := resp.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: candidate has no content parts", ErrNoLatex)
	}
	latex := strings.TrimSpace(parts[0].Text)
	latex = fenceOpen.ReplaceAllString(latex, "")
	latex = fenceClose.ReplaceAllString(latex, "")
	latex = strings.TrimSpace(latex)
	if latex == "" {
		return "", fmt.Errorf("%w: extracted text is empty", ErrNoLatex)
	}
	return latex, nil
}
