package embed

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/Aman-CERP/codecontext/internal/errors"
)

// newTransport returns a pooled transport sized for the orchestrator's parallelism.
// IdleConnTimeout is short because index runs are short-lived.
func newTransport(pool int) *http.Transport {
	if pool <= 0 {
		pool = DefaultParallelism
	}
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        pool,
		MaxIdleConnsPerHost: pool,
		MaxConnsPerHost:     pool * 2,
		IdleConnTimeout:     10 * time.Second,
	}
}

// postJSON sends body to url and decodes a 200 response into out.
// The request timeout is applied per call through the context, never on the
// client, so a caller's cancellation always wins over the provider deadline.
// Every failure comes back as a coded provider error.
func postJSON(ctx context.Context, client *http.Client, url string, timeout time.Duration, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.New(errors.ErrCodeProviderBadRequest, "failed to encode request", err)
	}

	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.New(errors.ErrCodeProviderBadRequest, "failed to create request", err).WithDetail("url", url)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return classifyTransportError(ctx, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return classifyStatus(url, resp.StatusCode, string(bytes.TrimSpace(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.New(errors.ErrCodeProviderBadResponse, "failed to decode provider response", err).
			WithDetail("url", url)
	}
	return nil
}

// classifyTransportError separates caller cancellation from provider
// timeouts and connection failures. A provider that cannot be dialed at all
// (nothing listening, unknown host) is terminal; a connection dropped
// mid-request is retried.
func classifyTransportError(ctx context.Context, url string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.New(errors.ErrCodeProviderTimeout, "provider request timed out", err).WithDetail("url", url)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.New(errors.ErrCodeProviderTimeout, "provider request timed out", err).WithDetail("url", url)
	}
	if isDialError(err) {
		return errors.New(errors.ErrCodeProviderUnreachable, "provider unreachable", err).
			WithDetail("url", url).
			WithSuggestion("check that the embedding provider is running and the endpoint is correct")
	}
	return errors.New(errors.ErrCodeProviderUnavailable, "provider connection failed", err).
		WithDetail("url", url)
}

// isDialError reports whether err happened before a connection existed.
func isDialError(err error) bool {
	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return stderrors.As(err, &opErr) && opErr.Op == "dial"
}

// classifyStatus maps an HTTP status to a provider error.
// 429 and 5xx are transient; other 4xx are permanent.
func classifyStatus(url string, status int, body string) error {
	msg := fmt.Sprintf("provider returned %d", status)
	if body != "" {
		msg += ": " + body
	}

	var e *errors.Error
	switch {
	case status == http.StatusTooManyRequests:
		e = errors.New(errors.ErrCodeProviderRateLimited, msg, nil)
	case status >= 500:
		e = errors.New(errors.ErrCodeProviderUnavailable, msg, nil)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e = errors.New(errors.ErrCodeProviderAuth, msg, nil).
			WithSuggestion("check embeddings.api_key")
	case status == http.StatusNotFound:
		e = errors.New(errors.ErrCodeProviderBadRequest, msg, nil).
			WithSuggestion("check embeddings.endpoint and embeddings.model")
	default:
		e = errors.New(errors.ErrCodeProviderBadRequest, msg, nil)
	}
	return e.WithDetail("url", url).WithDetail("status", fmt.Sprint(status))
}
