// Package fetcher retrieves the current textual content of a monitored URL.
// HTML responses are reduced to their visible text before hashing so that
// markup-only churn does not register as a document change.
package fetcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	apperrors "github.com/policywatch/policywatch/internal/errors"
)

// maxBodyBytes caps how much of a response is read; legal documents beyond
// this size are truncated rather than failing the check.
const maxBodyBytes = 5 << 20

// ContentFetcher returns the current text of a document URL or a FetchError.
type ContentFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// HTTPFetcher is the production ContentFetcher. Each fetch gets its own
// deadline so one unreachable host cannot stall a whole cycle.
type HTTPFetcher struct {
	client  *http.Client
	logger  *slog.Logger
	timeout time.Duration
}

func NewHTTPFetcher(client *http.Client, logger *slog.Logger, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client:  client,
		logger:  logger,
		timeout: timeout,
	}
}

func (f *HTTPFetcher) Fetch(parentCtx context.Context, target string) (string, error) {
	ctx, cancel := context.WithTimeout(parentCtx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", apperrors.NewFetchError(target, apperrors.FetchUnreachable, 0, err)
	}
	req.Header.Set("User-Agent", "policywatch/1.0 (+document change monitoring)")

	resp, err := f.client.Do(req)
	if err != nil {
		kind := apperrors.FetchUnreachable
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = apperrors.FetchTimeout
		}
		f.logger.Warn("HTTP request failed", slog.String("url", target), slog.Any("error", err))
		return "", apperrors.NewFetchError(target, kind, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		f.logger.Warn("Unhealthy HTTP status code",
			slog.String("url", target),
			slog.Int("statusCode", resp.StatusCode),
		)
		return "", apperrors.NewFetchError(target, apperrors.FetchHTTPError, resp.StatusCode,
			errors.New(http.StatusText(resp.StatusCode)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", apperrors.NewFetchError(target, apperrors.FetchUnreachable, resp.StatusCode, err)
	}

	content := string(body)
	if isHTML(resp.Header.Get("Content-Type"), content) {
		text, extractErr := extractText(content)
		if extractErr != nil {
			f.logger.Warn("HTML text extraction failed, keeping raw body",
				slog.String("url", target), slog.Any("error", extractErr))
		} else {
			content = text
		}
	}

	return normalizeWhitespace(content), nil
}

func isHTML(contentType, body string) bool {
	if strings.Contains(contentType, "text/html") {
		return true
	}
	trimmed := strings.TrimSpace(body)
	lower := strings.ToLower(trimmed)
	return strings.HasPrefix(lower, "<!doctype html") || strings.HasPrefix(lower, "<html")
}

// extractText strips markup, scripts and styles, returning visible text only.
func extractText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript").Remove()
	return doc.Text(), nil
}

// normalizeWhitespace collapses runs of whitespace so that reflowed markup
// hashes identically.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
