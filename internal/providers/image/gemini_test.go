package image

import (
	"context"
	"errors"
	"testing"

	"promptbatch/internal/providers/genai"
)

func TestGeminiGeneratorOfflinePlaceholders(t *testing.T) {
	client, err := genai.NewClient(genai.Options{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	gen := NewGeminiGenerator(client)

	assets, err := gen.Generate(context.Background(), GenerateRequest{Prompt: "lighthouse", Quantity: 2, AspectRatio: "16:9", RequestID: "r1"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("got %d assets, want 2", len(assets))
	}
	for _, a := range assets {
		if len(a.Data) == 0 || a.Format != "image/png" || a.Width <= a.Height {
			t.Fatalf("unexpected placeholder asset: format=%q %dx%d", a.Format, a.Width, a.Height)
		}
	}
	if gen.String() != client.Model() {
		t.Fatalf("String() = %q", gen.String())
	}
}

func TestGeminiGeneratorNotConfigured(t *testing.T) {
	var gen *GeminiGenerator
	if _, err := gen.Generate(context.Background(), GenerateRequest{Prompt: "x"}); !errors.Is(err, errGeminiNotConfigured) {
		t.Fatalf("expected errGeminiNotConfigured, got %v", err)
	}
}
