package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jaennil/guide_helper/backend/tiletree/internal/domain"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tiletree/pkg/metrics"
)

const userAgent = "GuideHelper/1.0 (https://github.com/jaennil/guide_helper)"

// fetcher performs the HTTP GET shared by every remote source.
type fetcher struct {
	name       string
	httpClient *http.Client
	logger     logger.Logger
}

func newFetcher(name string, client *http.Client, l logger.Logger) fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return fetcher{name: name, httpClient: client, logger: l}
}

func (f *fetcher) get(ctx context.Context, url string) ([]byte, error) {
	f.logger.Debug("fetching from upstream", "source", f.name, "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.NewError(domain.ErrFormat, "build request", err)
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	metrics.SourceFetches.WithLabelValues(f.name).Inc()
	resp, err := f.httpClient.Do(req)
	metrics.SourceFetchLatency.WithLabelValues(f.name).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, domain.NewError(domain.ErrTransientFetch, "fetch "+f.name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusNoContent:
		return nil, domain.Errorf(domain.ErrOutOfRange, "fetch "+f.name, "upstream returned status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		f.logger.Warn("upstream returned non-200", "source", f.name, "status", resp.StatusCode)
		return nil, domain.Errorf(domain.ErrTransientFetch, "fetch "+f.name, "upstream returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewError(domain.ErrTransientFetch, "read "+f.name, err)
	}
	if len(data) == 0 {
		return nil, domain.Errorf(domain.ErrOutOfRange, "fetch "+f.name, "empty payload for %s", url)
	}
	return data, nil
}

func fetchURL(ctx context.Context, f *fetcher, req Request) ([]byte, error) {
	if req.URL == "" {
		return nil, domain.NewError(domain.ErrFormat, "fetch "+f.name, fmt.Errorf("request for %v has no url", req.Tile))
	}
	return f.get(ctx, req.URL)
}
