package github

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// doWithRetry sends req up to MaxAttempts times with exponential backoff.
// 5xx and 429 responses and transport errors are retried; every other status
// is returned to the caller as-is. Requests with a body must carry GetBody so
// the body can be replayed on retry (http.NewRequest sets it for common
// reader types).
func (c *Client) doWithRetry(ctx context.Context, req *http.Request, out **http.Response) error {
	attempts := c.retryCfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	interval := c.retryCfg.InitialInterval
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		attemptReq := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return fmt.Errorf("rewind request body: %w", err)
			}
			attemptReq.Body = body
		}

		resp, err := c.httpClient.Do(attemptReq)
		if err != nil {
			lastErr = err
		} else if !retryableStatus(resp.StatusCode) {
			*out = resp
			return nil
		} else {
			lastErr = &APIError{StatusCode: resp.StatusCode}
			if attempt == attempts {
				// Leave the body open so the caller can decode the payload.
				*out = resp
				break
			}
			resp.Body.Close()
		}

		if attempt == attempts {
			break
		}

		delay := jitter(interval)
		c.logger.Debug("retrying request",
			slog.String("method", req.Method),
			slog.String("url", req.URL.Redacted()),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("cause", lastErr.Error()),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		interval = time.Duration(float64(interval) * c.retryCfg.Multiplier)
		if c.retryCfg.MaxInterval > 0 && interval > c.retryCfg.MaxInterval {
			interval = c.retryCfg.MaxInterval
		}
	}

	return fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

// jitter spreads d by +/-25% so concurrent stages do not retry in lockstep.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return d
	}
	f := float64(binary.BigEndian.Uint64(buf[:])>>11) / (1 << 53) // [0,1)
	factor := 0.75 + f*0.5
	return time.Duration(float64(d) * factor)
}
