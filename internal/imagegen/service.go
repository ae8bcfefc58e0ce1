// Package imagegen turns one prompt into one stored image and hands back a
// reference the panel can render and download.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"promptbatch/internal/domain"
	"promptbatch/internal/infra"
	"promptbatch/internal/providers/image"
	"promptbatch/internal/storage"
)

// Options configures the Service.
type Options struct {
	Provider     image.Generator
	ProviderName string
	Store        storage.Store
	// PublicBaseURL prefixes stored keys to form image references.
	PublicBaseURL string
	Logger        *infra.Logger
	Now           func() time.Time
}

// Service implements the batch controller's Generator.
type Service struct {
	provider     image.Generator
	providerName string
	store        storage.Store
	baseURL      string
	logger       zerolog.Logger
	now          func() time.Time
}

// NewService validates the options and builds a Service.
func NewService(opts Options) (*Service, error) {
	if opts.Provider == nil {
		return nil, errors.New("imagegen: provider is required")
	}
	if opts.Store == nil {
		return nil, errors.New("imagegen: store is required")
	}
	logger := *infra.NopLogger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	name := strings.TrimSpace(opts.ProviderName)
	if name == "" {
		name = fmt.Sprint(opts.Provider)
	}
	return &Service{
		provider:     opts.Provider,
		providerName: name,
		store:        opts.Store,
		baseURL:      strings.TrimRight(opts.PublicBaseURL, "/"),
		logger:       logger,
		now:          now,
	}, nil
}

// Generate requests a single image for prompt and persists it.
func (s *Service) Generate(ctx context.Context, prompt string, aspect domain.AspectRatio) (domain.ImageReference, error) {
	requestID := uuid.NewString()
	assets, err := s.provider.Generate(ctx, image.GenerateRequest{
		Prompt:      prompt,
		Quantity:    1,
		AspectRatio: string(aspect),
		RequestID:   requestID,
	})
	if err != nil {
		return "", err
	}
	if len(assets) == 0 {
		return "", errors.New("imagegen: provider returned no image")
	}
	asset := assets[0]

	if len(asset.Data) == 0 {
		ref := strings.TrimSpace(asset.URL)
		if ref == "" {
			return "", errors.New("imagegen: provider returned an empty asset")
		}
		return ref, nil
	}

	mime := strings.TrimSpace(asset.Format)
	if mime == "" {
		mime = "image/png"
	}
	key := storageKey(s.now(), requestID, mime)
	savedKey, err := s.store.Write(ctx, key, asset.Data, mime)
	if err != nil {
		return "", fmt.Errorf("imagegen: persist image: %w", err)
	}

	s.logger.Debug().
		Str("provider", s.providerName).
		Str("request_id", requestID).
		Str("storage_key", savedKey).
		Int("bytes", len(asset.Data)).
		Msg("imagegen: stored generated image")

	return s.baseURL + "/" + savedKey, nil
}

func storageKey(at time.Time, id, mime string) string {
	ext := extensionForMIME(mime)
	if ext == "" {
		ext = ".png"
	}
	return filepath.ToSlash(filepath.Join("batches", at.UTC().Format("2006/01/02"), id+ext))
}

func extensionForMIME(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}
