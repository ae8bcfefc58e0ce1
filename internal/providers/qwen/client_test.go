package qwen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestGenerateImagePayloadAndDownload(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	client, err := NewClient(Options{
		APIKey:       "test",
		Model:        "qwen-image-plus",
		PromptExtend: true,
		HTTPClient:   &http.Client{Transport: transport},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	transport.setJSONResponse("/api/v1/services/aigc/multimodal-generation/generation", map[string]any{
		"output": map[string]any{
			"choices": []any{
				map[string]any{
					"message": map[string]any{
						"content": []any{
							map[string]any{"image": "https://example.com/generated/out.png"},
						},
					},
				},
			},
		},
		"usage":      map[string]any{"width": 1664, "height": 928},
		"request_id": "req-123",
	})
	transport.setBinaryResponse("https://example.com/generated/out.png", []byte{0x89, 'P', 'N', 'G'})

	asset, err := client.GenerateImage(context.Background(), ImageRequest{
		Prompt:         "  a cat on a windowsill ",
		NegativePrompt: "blurry",
		Size:           "1664*928",
		Seed:           42,
	})
	if err != nil {
		t.Fatalf("generate image: %v", err)
	}
	if asset.URL != "https://example.com/generated/out.png" {
		t.Fatalf("url = %q", asset.URL)
	}
	if !bytes.Equal(asset.Data, []byte{0x89, 'P', 'N', 'G'}) {
		t.Fatalf("unexpected image data: %v", asset.Data)
	}
	if asset.Format != "image/png" || asset.Width != 1664 || asset.Height != 928 {
		t.Fatalf("unexpected asset metadata: %+v", asset)
	}
	if got := transport.lastAuth; got != "Bearer test" {
		t.Fatalf("authorization = %q", got)
	}

	var payload map[string]any
	if err := json.Unmarshal(transport.lastBody, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["model"] != "qwen-image-plus" {
		t.Fatalf("model = %v", payload["model"])
	}
	params := payload["parameters"].(map[string]any)
	if params["size"] != "1664*928" {
		t.Fatalf("size = %v", params["size"])
	}
	if params["negative_prompt"] != "blurry" {
		t.Fatalf("negative_prompt = %v", params["negative_prompt"])
	}
	if params["prompt_extend"] != true {
		t.Fatalf("prompt_extend = %v", params["prompt_extend"])
	}
	if params["watermark"] != false {
		t.Fatalf("watermark = %v", params["watermark"])
	}
	if params["seed"] != float64(42) {
		t.Fatalf("seed = %v", params["seed"])
	}
	input := payload["input"].(map[string]any)
	messages := input["messages"].([]any)
	content := messages[0].(map[string]any)["content"].([]any)
	if text := content[0].(map[string]any)["text"]; text != "a cat on a windowsill" {
		t.Fatalf("text = %v", text)
	}
}

func TestGenerateImageDefaultSize(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	client, _ := NewClient(Options{APIKey: "k", HTTPClient: &http.Client{Transport: transport}})
	_, _ = client.GenerateImage(context.Background(), ImageRequest{Prompt: "x"})

	var payload map[string]any
	if err := json.Unmarshal(transport.lastBody, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if size := payload["parameters"].(map[string]any)["size"]; size != "1328*1328" {
		t.Fatalf("size = %v, want 1328*1328", size)
	}
}

func TestGenerateImageMissingKey(t *testing.T) {
	client, _ := NewClient(Options{})
	if client.HasCredentials() {
		t.Fatalf("client without key reports credentials")
	}
	if _, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "x"}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestGenerateImageEmptyPrompt(t *testing.T) {
	client, _ := NewClient(Options{APIKey: "k"})
	if _, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "   "}); err == nil {
		t.Fatalf("expected error for empty prompt")
	}
}

func TestGenerateImageAPIError(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	transport.responses["/api/v1/services/aigc/multimodal-generation/generation"] = responseStub{
		status: http.StatusBadRequest,
		body:   []byte(`{"code":"InvalidParameter","message":"size is invalid"}`),
	}
	client, _ := NewClient(Options{APIKey: "k", HTTPClient: &http.Client{Transport: transport}})

	_, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "x"})
	if err == nil || !strings.Contains(err.Error(), "size is invalid (InvalidParameter)") {
		t.Fatalf("unexpected error: %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest || apiErr.Temporary() {
		t.Fatalf("expected permanent APIError, got %#v", err)
	}
}

func TestGenerateImageErrorCodeInBody(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	transport.setJSONResponse("/api/v1/services/aigc/multimodal-generation/generation", map[string]any{
		"code":    "InternalError.Algo",
		"message": "algorithm failed",
	})
	client, _ := NewClient(Options{APIKey: "k", HTTPClient: &http.Client{Transport: transport}})

	_, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "x"})
	if !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		transient    bool
		unauthorized bool
	}{
		{"server error", &APIError{Status: 503}, true, false},
		{"internal code", &APIError{Status: 200, Code: "InternalError"}, true, false},
		{"rate limited", &APIError{Status: 429, Code: "Throttling"}, false, false},
		{"bad key", &APIError{Status: 401, Code: "InvalidApiKey"}, false, true},
		{"missing key", ErrMissingAPIKey, false, true},
		{"wrapped timeout text", errors.New("qwen: http request: context deadline exceeded (Client.Timeout exceeded)"), true, false},
		{"plain", errors.New("qwen: empty image url"), false, false},
		{"nil", nil, false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.transient {
				t.Fatalf("IsTransient = %v, want %v", got, tc.transient)
			}
			if tc.err == nil {
				return
			}
			if got := IsUnauthorized(tc.err); got != tc.unauthorized {
				t.Fatalf("IsUnauthorized = %v, want %v", got, tc.unauthorized)
			}
		})
	}
}

func TestGenerateImageDownloadTooLarge(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	transport.setJSONResponse("/api/v1/services/aigc/multimodal-generation/generation", map[string]any{
		"output": map[string]any{"choices": []any{map[string]any{"message": map[string]any{
			"content": []any{map[string]any{"image": "https://example.com/big.png"}},
		}}}},
	})
	transport.setBinaryResponse("https://example.com/big.png", bytes.Repeat([]byte{1}, 64))
	client, _ := NewClient(Options{APIKey: "k", HTTPClient: &http.Client{Transport: transport}, MaxDownloadBytes: 16})

	if _, err := client.GenerateImage(context.Background(), ImageRequest{Prompt: "x"}); err == nil {
		t.Fatalf("expected size limit error")
	}
}

type captureTransport struct {
	responses map[string]responseStub
	lastBody  []byte
	lastAuth  string
}

type responseStub struct {
	status int
	header http.Header
	body   []byte
}

func (c *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method == http.MethodPost {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		c.lastBody = body
		c.lastAuth = req.Header.Get("Authorization")
		if stub, ok := c.responses[req.URL.Path]; ok {
			return stub.toResponse(), nil
		}
	}
	if req.Method == http.MethodGet {
		if stub, ok := c.responses[req.URL.String()]; ok {
			return stub.toResponse(), nil
		}
	}
	return &http.Response{
		StatusCode: http.StatusNotFound,
		Body:       io.NopCloser(strings.NewReader("not found")),
	}, nil
}

func (c *captureTransport) setJSONResponse(path string, payload any) {
	body, _ := json.Marshal(payload)
	c.responses[path] = responseStub{
		status: http.StatusOK,
		header: http.Header{"Content-Type": []string{"application/json"}},
		body:   body,
	}
}

func (c *captureTransport) setBinaryResponse(url string, data []byte) {
	c.responses[url] = responseStub{
		status: http.StatusOK,
		header: http.Header{"Content-Type": []string{"image/png"}},
		body:   data,
	}
}

func (s responseStub) toResponse() *http.Response {
	header := http.Header{}
	for k, values := range s.header {
		cloned := make([]string, len(values))
		copy(cloned, values)
		header[k] = cloned
	}
	return &http.Response{
		StatusCode: s.status,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(s.body)),
	}
}
