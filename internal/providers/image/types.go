// Package image defines the provider-neutral generation contract and the
// adapters that put Qwen and Gemini behind it.
package image

import (
	"context"
	"strings"

	"promptbatch/internal/domain"
)

// GenerateRequest is what the generation service asks of a provider for one
// job.
type GenerateRequest struct {
	Prompt         string
	Quantity       int
	AspectRatio    string
	RequestID      string
	NegativePrompt string
}

// Asset is one rendered image. Providers that only hand back a URL leave Data
// empty and the service fetches nothing.
type Asset struct {
	URL    string
	Format string
	Width  int
	Height int
	Data   []byte
}

type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) ([]Asset, error)
}

// dashscopeSizes are the width*height tokens DashScope accepts per ratio.
var dashscopeSizes = map[domain.AspectRatio]string{
	domain.AspectSquare:    "1328*1328",
	domain.AspectLandscape: "1664*928",
	domain.AspectPortrait:  "928*1664",
	domain.AspectClassic:   "1472*1104",
	domain.AspectTall:      "1140*1472",
}

// AspectRatioSize returns the DashScope size for aspect, defaulting to the
// square canvas.
func AspectRatioSize(aspect string) string {
	if size, ok := dashscopeSizes[domain.AspectRatio(strings.TrimSpace(aspect))]; ok {
		return size
	}
	return dashscopeSizes[domain.DefaultAspectRatio]
}
