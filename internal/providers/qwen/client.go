// Package qwen is a client for DashScope's Qwen text-to-image endpoint. It
// downloads the produced image so callers always receive bytes.
package qwen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	_ "image/jpeg"
	_ "image/png"

	"github.com/rs/zerolog"

	"promptbatch/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("qwen: api key is required")

const (
	defaultBaseURL     = "https://dashscope-intl.aliyuncs.com/api/v1"
	defaultModel       = "qwen-image-plus"
	defaultSize        = "1328*1328"
	defaultMaxDownload = 20 << 20
	generationPath     = "/services/aigc/multimodal-generation/generation"
)

type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	DefaultSize string
	// PromptExtend lets DashScope rewrite the prompt before rendering.
	PromptExtend   bool
	Watermark      bool
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
	// MaxDownloadBytes caps the downloaded image size. Zero uses 20 MiB.
	MaxDownloadBytes int64
}

type Client struct {
	apiKey       string
	baseURL      string
	model        string
	defaultSize  string
	promptExtend bool
	watermark    bool
	httpClient   *http.Client
	log          zerolog.Logger
	maxDownload  int64
}

type ImageRequest struct {
	Prompt         string
	NegativePrompt string
	// Size is a DashScope size token such as "1328*1328".
	Size      string
	Seed      int
	RequestID string
}

type ImageAsset struct {
	URL    string
	Data   []byte
	Format string
	Width  int
	Height int
}

func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("qwen: invalid base url: %w", err)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 45 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	size := strings.TrimSpace(opts.DefaultSize)
	if size == "" {
		size = defaultSize
	}
	logger := *infra.NopLogger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	maxDownload := opts.MaxDownloadBytes
	if maxDownload <= 0 {
		maxDownload = defaultMaxDownload
	}
	return &Client{
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      baseURL,
		model:        model,
		defaultSize:  size,
		promptExtend: opts.PromptExtend,
		watermark:    opts.Watermark,
		httpClient:   httpClient,
		log:          logger.With().Str("provider", "qwen").Str("model", model).Logger(),
		maxDownload:  maxDownload,
	}, nil
}

func (c *Client) Model() string {
	return c.model
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

type generationRequest struct {
	Model      string     `json:"model"`
	Input      input      `json:"input"`
	Parameters parameters `json:"parameters"`
}

type input struct {
	Messages []message `json:"messages"`
}

type message struct {
	Role    string        `json:"role"`
	Content []messagePart `json:"content"`
}

type messagePart struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

type parameters struct {
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Size           string `json:"size,omitempty"`
	PromptExtend   *bool  `json:"prompt_extend,omitempty"`
	Watermark      bool   `json:"watermark"`
	Seed           *int   `json:"seed,omitempty"`
}

type generationResponse struct {
	Output struct {
		Choices []struct {
			Message message `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Usage struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"usage"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// GenerateImage renders one image for req and downloads it.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (*ImageAsset, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	body, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.call(ctx, body)
	if err != nil {
		return nil, err
	}
	imageURL := resp.imageURL()
	if imageURL == "" {
		return nil, errors.New("qwen: empty image url")
	}

	data, format, err := c.download(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	width, height := resp.Usage.Width, resp.Usage.Height
	if width == 0 || height == 0 {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			width, height = cfg.Width, cfg.Height
		}
	}
	c.log.Debug().
		Str("request_id", req.RequestID).
		Str("dashscope_request_id", resp.RequestID).
		Str("size", body.Parameters.Size).
		Int("bytes", len(data)).
		Msg("qwen: image generated")
	return &ImageAsset{URL: imageURL, Data: data, Format: format, Width: width, Height: height}, nil
}

func (c *Client) buildRequest(req ImageRequest) (generationRequest, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return generationRequest{}, errors.New("qwen: prompt is required")
	}
	params := parameters{
		NegativePrompt: strings.TrimSpace(req.NegativePrompt),
		Size:           strings.TrimSpace(req.Size),
		Watermark:      c.watermark,
	}
	if params.Size == "" {
		params.Size = c.defaultSize
	}
	if c.promptExtend {
		extend := true
		params.PromptExtend = &extend
	}
	if req.Seed > 0 {
		seed := req.Seed
		params.Seed = &seed
	}
	return generationRequest{
		Model: c.model,
		Input: input{Messages: []message{{
			Role:    "user",
			Content: []messagePart{{Text: prompt}},
		}}},
		Parameters: params,
	}, nil
}

func (c *Client) call(ctx context.Context, body generationRequest) (*generationResponse, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("qwen: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+generationPath, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("qwen: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("qwen: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("qwen: read response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Code, apiErr.Message = "", strings.TrimSpace(string(data))
		}
		return nil, apiErr
	}

	var decoded generationResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("qwen: decode response: %w", err)
	}
	if decoded.Code != "" {
		return nil, &APIError{Status: resp.StatusCode, Code: decoded.Code, Message: decoded.Message}
	}
	return &decoded, nil
}

func (r *generationResponse) imageURL() string {
	for _, choice := range r.Output.Choices {
		for _, part := range choice.Message.Content {
			if u := strings.TrimSpace(part.Image); u != "" {
				return u
			}
		}
	}
	return ""
}

func (c *Client) download(ctx context.Context, imageURL string) ([]byte, string, error) {
	parsed, err := url.Parse(imageURL)
	if err != nil || parsed.Scheme == "" {
		return nil, "", fmt.Errorf("qwen: invalid image url: %s", imageURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("qwen: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("qwen: download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, "", &APIError{Status: resp.StatusCode, Message: "image download failed"}
	}
	if resp.ContentLength > c.maxDownload {
		return nil, "", fmt.Errorf("qwen: image exceeds %d bytes", c.maxDownload)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxDownload+1))
	if err != nil {
		return nil, "", fmt.Errorf("qwen: read image: %w", err)
	}
	switch {
	case int64(len(data)) > c.maxDownload:
		return nil, "", fmt.Errorf("qwen: image exceeds %d bytes", c.maxDownload)
	case len(data) == 0:
		return nil, "", errors.New("qwen: empty image body")
	}
	format := resp.Header.Get("Content-Type")
	if format == "" {
		format = "image/png"
	}
	return data, format, nil
}
