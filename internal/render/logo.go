package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif" // decoders for image.Decode
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	// maxLogoBytes caps how much of a remote logo is read.
	maxLogoBytes = 2 << 20
	// maxLogoSide caps the declared dimensions decoded into memory.
	maxLogoSide = 4096
)

// LogoFetcher loads a gym logo.  Implementations return nil on any failure;
// a missing logo never fails the render it is attached to.
type LogoFetcher interface {
	Fetch(ctx context.Context, url string) image.Image
}

// HTTPLogoFetcher downloads logos over HTTP with a bounded timeout.
type HTTPLogoFetcher struct {
	client *http.Client
	log    *zap.Logger
}

// NewHTTPLogoFetcher returns a fetcher whose requests give up after timeout.
func NewHTTPLogoFetcher(timeout time.Duration, log *zap.Logger) *HTTPLogoFetcher {
	return &HTTPLogoFetcher{
		client: &http.Client{Timeout: timeout},
		log:    log.Named("logo"),
	}
}

func (f *HTTPLogoFetcher) Fetch(ctx context.Context, url string) image.Image {
	img, err := f.fetch(ctx, url)
	if err != nil {
		f.log.Info("logo unavailable, rendering without it", zap.String("url", url), zap.Error(err))
		return nil
	}
	return img
}

func (f *HTTPLogoFetcher) fetch(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxLogoBytes))
	if err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Width > maxLogoSide || cfg.Height > maxLogoSide {
		return nil, fmt.Errorf("logo too large: %dx%d", cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return img, nil
}
