package image

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"mime"
	"strings"

	"github.com/rs/zerolog"

	"promptbatch/internal/infra"
	"promptbatch/internal/providers/qwen"
)

var errQwenNotConfigured = errors.New("qwen generator not configured")

type qwenImageClient interface {
	GenerateImage(context.Context, qwen.ImageRequest) (*qwen.ImageAsset, error)
	HasCredentials() bool
	Model() string
}

// QwenGenerator renders images with DashScope's Qwen model. It hands the
// request to fallback only when no API key is configured; with a key, every
// DashScope failure is returned after a single attempt.
type QwenGenerator struct {
	client   qwenImageClient
	fallback Generator
	log      zerolog.Logger
}

func NewQwenGenerator(client qwenImageClient, fallback Generator, logger *infra.Logger) *QwenGenerator {
	l := *infra.NopLogger()
	if logger != nil {
		l = *logger
	}
	return &QwenGenerator{client: client, fallback: fallback, log: l.With().Str("provider", "qwen").Logger()}
}

func (g *QwenGenerator) Generate(ctx context.Context, req GenerateRequest) ([]Asset, error) {
	if g == nil || g.client == nil {
		return nil, errQwenNotConfigured
	}
	if !g.client.HasCredentials() {
		return g.useFallback(ctx, req, qwen.ErrMissingAPIKey)
	}

	n := max(req.Quantity, 1)
	size := AspectRatioSize(req.AspectRatio)
	assets := make([]Asset, 0, n)
	for i := range n {
		prompt := variationPrompt(req.Prompt, n, i)
		asset, err := g.client.GenerateImage(ctx, qwen.ImageRequest{
			Prompt:         prompt,
			NegativePrompt: strings.TrimSpace(req.NegativePrompt),
			Size:           size,
			Seed:           seedFor(req.RequestID, prompt, size, i),
			RequestID:      req.RequestID,
		})
		if errors.Is(err, qwen.ErrMissingAPIKey) {
			return g.useFallback(ctx, req, err)
		}
		if err != nil {
			g.log.Warn().Err(err).
				Str("request_id", req.RequestID).
				Bool("transient", qwen.IsTransient(err)).
				Bool("unauthorized", qwen.IsUnauthorized(err)).
				Msg("qwen: generation failed")
			return nil, err
		}
		assets = append(assets, Asset{
			URL:    asset.URL,
			Format: normalizeFormat(asset.Format),
			Width:  asset.Width,
			Height: asset.Height,
			Data:   asset.Data,
		})
	}
	return assets, nil
}

func (g *QwenGenerator) String() string {
	if g == nil || g.client == nil {
		return "qwen"
	}
	return g.client.Model()
}

var _ Generator = (*QwenGenerator)(nil)

func (g *QwenGenerator) useFallback(ctx context.Context, req GenerateRequest, cause error) ([]Asset, error) {
	if g.fallback == nil {
		if errors.Is(cause, qwen.ErrMissingAPIKey) {
			return nil, fmt.Errorf("qwen generator missing credentials: %w", cause)
		}
		return nil, cause
	}
	g.log.Warn().Err(cause).Str("request_id", req.RequestID).Str("fallback", fmt.Sprint(g.fallback)).Msg("qwen: using fallback generator")
	return g.fallback.Generate(ctx, req)
}

// seedFor derives a stable positive seed so retries of the same request
// render the same image.
func seedFor(parts ...any) int {
	h := fnv.New32a()
	for _, p := range parts {
		fmt.Fprintf(h, "%v|", p)
	}
	return int(h.Sum32()%(math.MaxInt32-1)) + 1
}

func normalizeFormat(contentType string) string {
	mt, _, err := mime.ParseMediaType(strings.TrimSpace(contentType))
	if err != nil || !strings.HasPrefix(mt, "image/") {
		return "image/png"
	}
	if mt == "image/jpg" {
		return "image/jpeg"
	}
	return mt
}

func variationPrompt(prompt string, total, index int) string {
	prompt = strings.TrimSpace(prompt)
	if total <= 1 {
		return prompt
	}
	if prompt == "" {
		return fmt.Sprintf("Variation #%d.", index+1)
	}
	return fmt.Sprintf("%s\nVariation #%d.", prompt, index+1)
}
