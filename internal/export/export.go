// Package export resolves image references into bytes for download and
// bundles a finished batch into a zip archive.
package export

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"promptbatch/internal/domain"
	"promptbatch/internal/infra"
	"promptbatch/internal/storage"
	"promptbatch/pkg/zip"
)

// ErrUnsupportedReference is returned for references that are neither data
// URIs, stored assets nor http(s) URLs.
var ErrUnsupportedReference = errors.New("export: unsupported image reference")

// Filename names the downloaded file after the job's 1-based position.
func Filename(index int) string {
	return fmt.Sprintf("batch-image-%d.png", index+1)
}

// Options configures an Exporter.
type Options struct {
	Store storage.Store
	// StorageBaseURL is the public prefix under which Store keys are served.
	StorageBaseURL string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	// MaxBytes caps remote downloads. Zero uses 32 MiB.
	MaxBytes int64
}

// Exporter fetches image bytes for opaque references.
type Exporter struct {
	store      storage.Store
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
	maxBytes   int64
}

// NewExporter builds an Exporter. Store may be nil, in which case stored
// references are fetched over HTTP like any other URL.
func NewExporter(opts Options) *Exporter {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := *infra.NopLogger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	return &Exporter{
		store:      opts.Store,
		baseURL:    strings.TrimRight(opts.StorageBaseURL, "/"),
		httpClient: client,
		logger:     logger,
		maxBytes:   maxBytes,
	}
}

// Fetch returns the bytes and content type behind ref. The content itself is
// not validated.
func (e *Exporter) Fetch(ctx context.Context, ref domain.ImageReference) ([]byte, string, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return nil, "", ErrUnsupportedReference
	case strings.HasPrefix(ref, "data:"):
		return decodeDataURI(ref)
	case e.store != nil && e.baseURL != "" && strings.HasPrefix(ref, e.baseURL+"/"):
		key, err := url.PathUnescape(strings.TrimPrefix(ref, e.baseURL+"/"))
		if err != nil {
			return nil, "", fmt.Errorf("export: decode key: %w", err)
		}
		return e.store.Read(ctx, key)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return e.download(ctx, ref)
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedReference, ref)
	}
}

// Archive zips the image of every done job, named by position. Jobs whose
// image cannot be fetched are skipped. It returns domain.ErrJobNotReady when
// no image could be added.
func (e *Exporter) Archive(ctx context.Context, jobs []domain.Job) ([]byte, int, error) {
	assets := make([]zip.Asset, 0, len(jobs))
	for _, job := range jobs {
		if job.Status != domain.JobStatusDone || job.Result == "" {
			continue
		}
		data, _, err := e.Fetch(ctx, job.Result)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, 0, ctxErr
			}
			e.logger.Warn().Err(err).Str("job_id", job.ID).Int("index", job.Index).Msg("export: skip image")
			continue
		}
		asset := zip.Asset{Filename: Filename(job.Index), Data: data}
		if job.CompletedAt != nil {
			asset.Modified = *job.CompletedAt
		}
		assets = append(assets, asset)
	}
	if len(assets) == 0 {
		return nil, 0, domain.ErrJobNotReady
	}
	archive, err := zip.ArchiveAssets(assets)
	if err != nil {
		return nil, 0, err
	}
	return archive, len(assets), nil
}

func (e *Exporter) download(ctx context.Context, target string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("export: build request: %w", err)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("export: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("export: download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("export: read body: %w", err)
	}
	if int64(len(data)) > e.maxBytes {
		return nil, "", fmt.Errorf("export: image exceeds %d bytes", e.maxBytes)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

// decodeDataURI handles data:[<mediatype>][;base64],<data>.
func decodeDataURI(ref string) ([]byte, string, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return nil, "", fmt.Errorf("%w: malformed data uri", ErrUnsupportedReference)
	}
	contentType := "text/plain"
	isBase64 := false
	params := strings.Split(meta, ";")
	if params[0] != "" {
		contentType = params[0]
	}
	for _, p := range params[1:] {
		if strings.EqualFold(p, "base64") {
			isBase64 = true
		}
	}
	if isBase64 {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, "", fmt.Errorf("export: decode data uri: %w", err)
		}
		return data, contentType, nil
	}
	decoded, err := url.PathUnescape(payload)
	if err != nil {
		return nil, "", fmt.Errorf("export: decode data uri: %w", err)
	}
	return []byte(decoded), contentType, nil
}
