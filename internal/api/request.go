package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// IsNoData reports whether status is one the archive uses for "no data
// exists for this instrument and year".
func IsNoData(status int) bool {
	return status == http.StatusNotFound || status == http.StatusInternalServerError
}

// HistoryURL returns the archive URL for one instrument and year.
func (c *Client) HistoryURL(figi string, year int) string {
	q := url.Values{}
	q.Set("figi", figi)
	q.Set("year", strconv.Itoa(year))
	return c.baseURL + "?" + q.Encode()
}

// GetHistory requests the archive for one instrument and year.
//
// Only the status line and headers have been read when GetHistory returns;
// the caller owns resp.Body and must close it. Non-2xx statuses are
// returned as responses, not errors. The error is non-nil only when no
// response was received.
func (c *Client) GetHistory(ctx context.Context, figi string, year int) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for request slot: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.HistoryURL(figi, year), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/zip")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	c.logger.Debug("history response",
		"figi", figi,
		"year", year,
		"status", resp.StatusCode,
		"content_length", resp.ContentLength,
	)

	return resp, nil
}
