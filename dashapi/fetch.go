package dashapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/briangreenhill/mldash/cache"
	"github.com/briangreenhill/mldash/internal/metrics"
)

// maxResponseSize caps how much of a response body is read
const maxResponseSize = 32 << 20

// request describes one logical backend call. path is the cache-key form of
// the endpoint: "/api/dataset?page=1&pageSize=100".
type request struct {
	method string
	path   string
	body   any
	retry  bool

	// timeout bounds each attempt; zero means Config.RequestTimeout
	timeout time.Duration
}

// do resolves a request through the in-flight registry and the retry loop and
// returns the raw JSON body. Failures are *ClassifiedError, except for the
// caller's own ctx ending, which returns ctx.Err().
func (c *Client) do(ctx context.Context, r request) (json.RawMessage, error) {
	var payload []byte
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", r.path, err)
		}
		payload = b
	}

	fullURL := c.baseURL.String() + r.path
	sig := cache.Signature(r.method, fullURL, payload)
	endpoint := cache.EndpointOf(r.path)

	raw, shared, err := c.inflight.Join(ctx, sig, func(ctx context.Context) (json.RawMessage, error) {
		return c.fetch(ctx, r, fullURL, payload)
	})
	if shared {
		metrics.IncShared(endpoint)
	}
	return raw, err
}

// fetch performs the network calls for one logical request, retrying
// recoverable failures with a linear backoff.
func (c *Client) fetch(ctx context.Context, r request, fullURL string, payload []byte) (json.RawMessage, error) {
	endpoint := cache.EndpointOf(r.path)
	reqID := uuid.NewString()
	log := c.logger.With().
		Str("request_id", reqID).
		Str("method", r.method).
		Str("endpoint", endpoint).
		Logger()

	timeout := r.timeout
	if timeout <= 0 {
		timeout = c.cfg.RequestTimeout
	}

	maxRetries := uint64(c.cfg.MaxRetries)
	if !r.retry {
		maxRetries = 0
	}

	var (
		attempt int
		last    *ClassifiedError
		result  json.RawMessage
	)
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		delay := c.cfg.RetryDelayBase * time.Duration(attempt+1)
		log.Warn().Err(last).Int("attempt", attempt).Dur("delay", delay).Msg("retrying backend call")
		metrics.IncRetry(endpoint)
		if c.onRetry != nil {
			c.onRetry(endpoint, attempt, delay, last)
		}
		attempt++
		return delay, false
	})

	started := time.Now()
	err := retry.Do(ctx, retry.WithMaxRetries(maxRetries, backoff), func(ctx context.Context) error {
		actx, cancel := context.WithTimeout(ctx, timeout)
		raw, ce := c.attempt(actx, r.method, fullURL, payload, reqID)
		cancel()
		if ce == nil {
			result = raw
			return nil
		}
		last = ce
		log.Debug().Err(ce).Int("attempt", attempt).Msg("backend call failed")
		if ce.Recoverable() {
			return retry.RetryableError(ce)
		}
		return ce
	})

	if err == nil {
		metrics.ObserveRequest(r.method, endpoint, "ok", time.Since(started))
		log.Debug().Int("attempts", attempt+1).Dur("took", time.Since(started)).Msg("backend call ok")
		return result, nil
	}

	var ce *ClassifiedError
	if !errors.As(err, &ce) {
		ce = Classify(nil, nil, err)
	}
	switch {
	case r.retry && ce.Recoverable():
		ce = exhausted(ce)
	case !r.retry && timedOut(ce):
		// the backend may still be acting on it; offering a retry would run it twice
		ce = &ClassifiedError{Kind: KindHTTPOther, Message: MsgTimedOut, Err: ce}
	}
	metrics.ObserveRequest(r.method, endpoint, ce.Kind.String(), time.Since(started))
	log.Error().Err(ce).Int("attempts", attempt+1).Msg("backend call failed")
	return nil, ce
}

// timedOut reports whether ce is a deadline hit while waiting on the backend
func timedOut(ce *ClassifiedError) bool {
	if errors.Is(ce, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(ce, &ne) && ne.Timeout()
}

// attempt issues a single HTTP call
func (c *Client) attempt(ctx context.Context, method, fullURL string, payload []byte, reqID string) (json.RawMessage, *ClassifiedError) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, &ClassifiedError{Kind: KindHTTPOther, Message: "Invalid request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, Classify(nil, nil, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, Classify(nil, nil, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, Classify(resp, b, nil)
	}

	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(b) {
		return nil, &ClassifiedError{
			Kind:       KindHTTPOther,
			Message:    MsgInvalidResponse,
			StatusCode: resp.StatusCode,
			Err:        errors.New("response body is not valid JSON"),
		}
	}
	return json.RawMessage(b), nil
}

// decode unmarshals a successful payload into T
func decode[T any](path string, raw json.RawMessage) (*T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &ClassifiedError{Kind: KindHTTPOther, Message: MsgInvalidResponse, Err: fmt.Errorf("decode %s: %w", path, err)}
	}
	return &out, nil
}
