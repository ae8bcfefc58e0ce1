package image

import (
	"context"
	"errors"

	"promptbatch/internal/providers/genai"
)

var errGeminiNotConfigured = errors.New("gemini generator not configured")

// GeminiGenerator puts the Gemini client behind Generator. Without a key the
// client renders placeholders, which makes this the offline provider too.
type GeminiGenerator struct {
	client *genai.Client
}

func NewGeminiGenerator(client *genai.Client) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

func (g *GeminiGenerator) Generate(ctx context.Context, req GenerateRequest) ([]Asset, error) {
	if g == nil || g.client == nil {
		return nil, errGeminiNotConfigured
	}
	rendered, err := g.client.GenerateImages(ctx, genai.ImageRequest{
		Prompt:      req.Prompt,
		Quantity:    req.Quantity,
		AspectRatio: req.AspectRatio,
		RequestID:   req.RequestID,
	})
	if err != nil {
		return nil, err
	}
	assets := make([]Asset, 0, len(rendered))
	for _, a := range rendered {
		assets = append(assets, Asset(a))
	}
	return assets, nil
}

func (g *GeminiGenerator) String() string {
	if g == nil || g.client == nil {
		return "gemini"
	}
	return g.client.Model()
}

var _ Generator = (*GeminiGenerator)(nil)
