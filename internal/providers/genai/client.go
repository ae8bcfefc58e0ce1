// Package genai talks to the Gemini image model over its REST API. Without
// an API key it renders placeholder PNGs instead, so a batch still produces
// something viewable offline.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
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

var errNoImage = errors.New("genai: response carried no image")

const (
	defaultBaseURL  = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel    = "gemini-2.5-flash-image"
	defaultMaxBytes = 20 << 20
	maxQuantity     = 4
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
	// MaxFileBytes caps images fetched by file URI. Zero uses 20 MiB.
	MaxFileBytes int64
}

// Client generates images with Gemini. Placeholders are rendered only when no
// key is configured; once a key is set, remote failures are returned as is.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	log        zerolog.Logger
	maxFile    int64
}

type ImageRequest struct {
	Prompt      string
	Quantity    int
	AspectRatio string
	RequestID   string
}

type ImageAsset struct {
	URL    string
	Format string
	Width  int
	Height int
	Data   []byte
}

func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("genai: invalid base url: %w", err)
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	logger := *infra.NopLogger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	maxFile := opts.MaxFileBytes
	if maxFile <= 0 {
		maxFile = defaultMaxBytes
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		log:        logger.With().Str("provider", "gemini").Str("model", model).Logger(),
		maxFile:    maxFile,
	}, nil
}

func (c *Client) Model() string {
	return c.model
}

// HasCredentials reports whether remote calls will be attempted.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// GenerateImages returns up to req.Quantity images (1 to 4).
func (c *Client) GenerateImages(ctx context.Context, req ImageRequest) ([]ImageAsset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := clampQuantity(req.Quantity)
	if !c.HasCredentials() {
		return c.placeholders(req, n)
	}

	assets, err := c.generateRemote(ctx, req, n)
	if err != nil {
		return nil, fmt.Errorf("genai: %w", err)
	}
	if len(assets) == 0 {
		return nil, errNoImage
	}
	return assets, nil
}

type contentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts,omitempty"`
}

type part struct {
	Text       string   `json:"text,omitempty"`
	InlineData *blob    `json:"inlineData,omitempty"`
	FileData   *fileRef `json:"fileData,omitempty"`
}

type blob struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type fileRef struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type contentResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (c *Client) generateRemote(ctx context.Context, req ImageRequest, n int) ([]ImageAsset, error) {
	body := contentRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: promptText(req)}},
		}},
		GenerationConfig: &generationConfig{ResponseModalities: []string{"IMAGE"}},
	}
	if aspect := strings.TrimSpace(req.AspectRatio); aspect != "" {
		body.GenerationConfig.ImageConfig = &imageConfig{AspectRatio: aspect}
	}

	var resp contentResponse
	if err := c.post(ctx, "/models/"+url.PathEscape(c.model)+":generateContent", body, &resp); err != nil {
		return nil, err
	}

	assets := make([]ImageAsset, 0, n)
	for _, candidate := range resp.Candidates {
		for _, p := range candidate.Content.Parts {
			if len(assets) == n {
				return assets, nil
			}
			asset, ok, err := c.assetFromPart(ctx, p, req.AspectRatio)
			if err != nil {
				c.log.Debug().Err(err).Str("request_id", req.RequestID).Msg("genai: skip image part")
				continue
			}
			if ok {
				assets = append(assets, asset)
			}
		}
	}
	c.log.Debug().Str("request_id", req.RequestID).Int("quantity", len(assets)).Msg("genai: remote images received")
	return assets, nil
}

// assetFromPart extracts an image from an inline or file part. Text parts
// report ok == false.
func (c *Client) assetFromPart(ctx context.Context, p part, aspect string) (ImageAsset, bool, error) {
	var asset ImageAsset
	switch {
	case p.InlineData != nil && p.InlineData.Data != "":
		data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
		if err != nil {
			return ImageAsset{}, false, fmt.Errorf("decode inline data: %w", err)
		}
		asset = ImageAsset{Data: data, Format: p.InlineData.MimeType}
	case p.FileData != nil && p.FileData.FileURI != "":
		data, mime, err := c.fetchFile(ctx, p.FileData.FileURI)
		if err != nil {
			return ImageAsset{}, false, err
		}
		asset = ImageAsset{URL: p.FileData.FileURI, Data: data, Format: p.FileData.MimeType}
		if asset.Format == "" {
			asset.Format = mime
		}
	default:
		return ImageAsset{}, false, nil
	}
	if len(asset.Data) == 0 {
		return ImageAsset{}, false, errors.New("empty image part")
	}
	if asset.Format == "" {
		asset.Format = "image/png"
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(asset.Data)); err == nil {
		asset.Width, asset.Height = cfg.Width, cfg.Height
	} else {
		asset.Width, asset.Height = canvasSize(aspect)
	}
	return asset, true, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}

func (c *Client) fetchFile(ctx context.Context, uri string) ([]byte, string, error) {
	target := uri
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(uri, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create file request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, "", statusError(resp)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxFile+1))
	if err != nil {
		return nil, "", fmt.Errorf("read file: %w", err)
	}
	if int64(len(data)) > c.maxFile {
		return nil, "", fmt.Errorf("file exceeds %d bytes", c.maxFile)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("gemini status %d: %s", resp.StatusCode, apiErr.Error.Message)
	}
	if msg := strings.TrimSpace(string(data)); msg != "" {
		return fmt.Errorf("gemini status %d: %s", resp.StatusCode, msg)
	}
	return fmt.Errorf("gemini status %d", resp.StatusCode)
}

func promptText(req ImageRequest) string {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = "Create an image"
	}
	if aspect := strings.TrimSpace(req.AspectRatio); aspect != "" {
		prompt += "\nAspect ratio: " + aspect
	}
	return prompt
}

func clampQuantity(n int) int {
	return min(max(n, 1), maxQuantity)
}
