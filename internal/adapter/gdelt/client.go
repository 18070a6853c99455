// Package gdelt fetches raw GKG record lines from the GDELT v2 file feed.
//
// The feed publishes a master list of zipped CSV files every 15 minutes. One
// batch pulls the list, selects the most recent GKG files, downloads and
// decompresses each in memory, and returns the concatenated record lines.
// Per-file failures are logged and skipped so a single bad download does not
// sink the whole batch.
package gdelt

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/signalatlas/vibe-etl/internal/config"
	"github.com/signalatlas/vibe-etl/internal/observability"
)

const (
	gkgSuffix   = ".gkg.csv.zip"
	maxAttempts = 3
	baseBackoff = 2 * time.Second
)

// Client downloads GKG files from the GDELT feed.
// It implements pipeline.Source.
type Client struct {
	httpClient *http.Client
	masterURL  string
	blocks     int
	maxRecords int
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a Client for the configured master list and limits.
func NewClient(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		masterURL:  cfg.MasterURL,
		blocks:     cfg.Blocks,
		maxRecords: cfg.MaxEvents,
		logger:     logger,
		metrics:    metrics,
	}
}

// FetchRecords returns the raw tab-delimited record lines for one batch,
// capped at the configured maximum when one is set.
func (c *Client) FetchRecords(ctx context.Context) ([]string, error) {
	urls, err := c.latestFileURLs(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch master list: %w", err)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("no %s entries in master list", gkgSuffix)
	}

	var lines []string
	for _, url := range urls {
		if c.maxRecords > 0 && len(lines) >= c.maxRecords {
			c.logger.Info("record cap reached, stopping downloads", "max_records", c.maxRecords)
			break
		}

		fileLines, err := c.fetchFile(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.metrics.SourceFiles.WithLabelValues("error").Inc()
			c.logger.Warn("skipping source file", "url", url, "error", err)
			continue
		}
		c.metrics.SourceFiles.WithLabelValues("success").Inc()

		lines = append(lines, fileLines...)
	}

	if c.maxRecords > 0 && len(lines) > c.maxRecords {
		lines = lines[:c.maxRecords]
	}

	c.logger.Info("source fetch complete", "files", len(urls), "records", len(lines))
	return lines, nil
}

// latestFileURLs pulls the master list and selects the last blocks GKG URLs.
// Master list lines have three whitespace-separated columns; the URL is last.
func (c *Client) latestFileURLs(ctx context.Context) ([]string, error) {
	body, err := c.get(ctx, c.masterURL)
	if err != nil {
		return nil, err
	}

	var urls []string
	for _, line := range strings.Split(string(body), "\n") {
		if !strings.Contains(line, gkgSuffix) {
			continue
		}
		cols := strings.Fields(line)
		if len(cols) == 0 {
			continue
		}
		urls = append(urls, cols[len(cols)-1])
	}

	if len(urls) > c.blocks {
		urls = urls[len(urls)-c.blocks:]
	}
	return urls, nil
}

// fetchFile downloads one zip archive and returns its record lines.
func (c *Client) fetchFile(ctx context.Context, url string) ([]string, error) {
	data, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	return recordLines(data)
}

// get performs a GET with bounded retry. Backoff doubles per attempt to keep
// retry storms short during feed outages.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	backoff := baseBackoff
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		body, err := c.getOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		c.logger.Warn("request failed", "url", url, "attempt", attempt, "error", err)
		if attempt < maxAttempts {
			if !sleepWithContext(ctx, backoff) {
				return nil, ctx.Err()
			}
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) getOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// recordLines decompresses a single-entry zip archive into its non-empty lines.
func recordLines(data []byte) ([]string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	if len(reader.File) == 0 {
		return nil, fmt.Errorf("empty zip archive")
	}

	f, err := reader.File[0].Open()
	if err != nil {
		return nil, fmt.Errorf("open zip entry: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read zip entry: %w", err)
	}

	var lines []string
	for _, line := range strings.Split(string(content), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, strings.TrimRight(line, "\r"))
		}
	}
	return lines, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
