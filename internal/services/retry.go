package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultMaxRetries = 3
	defaultBackoff    = 500 * time.Millisecond
)

// doWithRetry retries with exponential backoff, honouring Retry-After when
// Spotify sends one. Idempotent requests are retried on network errors, 429
// and 5xx; other methods only on 429, which Spotify answers before doing any
// work, so a playlist is never created twice.
func doWithRetry(client *http.Client, req *http.Request, maxRetries int, baseBackoff time.Duration) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if baseBackoff <= 0 {
		baseBackoff = defaultBackoff
	}

	if req.Body != nil && req.GetBody == nil {
		bodyBytes, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		_ = req.Body.Close()
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(bodyBytes)), nil
		}
	}

	ctx := req.Context()
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("request canceled: %w", err)
		}

		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("reset request body: %w", err)
			}
			req.Body = body
		}

		resp, err := client.Do(req)
		retryAfter, retry := shouldRetry(req.Method, resp, err)
		if !retry {
			return resp, err
		}

		attemptNum := attempt + 1
		if err != nil {
			slog.WarnContext(ctx, "spotify request failed, retrying",
				slog.Int("attempt", attemptNum), slog.Int("max", maxRetries), slog.String("error", err.Error()))
		} else {
			slog.WarnContext(ctx, "spotify request failed, retrying",
				slog.Int("attempt", attemptNum), slog.Int("max", maxRetries), slog.Int("status", resp.StatusCode))
		}

		if attempt == maxRetries-1 {
			if err != nil {
				return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
			}
			// Hand the final response back so the caller can report its status.
			return resp, nil
		}
		if resp != nil {
			_ = resp.Body.Close()
		}

		backoff := baseBackoff * time.Duration(1<<attempt)
		if retryAfter > 0 {
			backoff = retryAfter
		}

		if err := sleepWithContext(ctx, backoff); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts", maxRetries)
}

func shouldRetry(method string, resp *http.Response, err error) (time.Duration, bool) {
	idempotent := method == http.MethodGet || method == http.MethodHead
	if err != nil {
		return 0, idempotent
	}
	if resp == nil {
		return 0, false
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return parseRetryAfter(resp), true
	}
	if idempotent && resp.StatusCode >= http.StatusInternalServerError {
		return parseRetryAfter(resp), true
	}

	return 0, false
}

func parseRetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}

	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if when, err := http.ParseTime(retryAfter); err == nil {
		until := time.Until(when)
		if until > 0 {
			return until
		}
	}

	return 0
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
