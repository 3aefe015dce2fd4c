package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"agent-foundry/internal/domain"
	"agent-foundry/internal/infra/config"
)

const (
	maxResponseBody = 10 << 20
	// maxErrorDetail caps how much of a failed response lands in the error text.
	maxErrorDetail = 512
)

const (
	defaultConnTimeout = 30 * time.Second
	defaultRespTimeout = 120 * time.Second

	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 20
	defaultIdleConnTimeout     = 120 * time.Second
)

// doJSONRequest POSTs body and returns the response body. Any status other
// than 200 is classified by mapHTTPError.
func doJSONRequest(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build backend request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBackend, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrBackend, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(resp.StatusCode, data)
	}
	return data, nil
}

// mapHTTPError turns a backend status into the matching sentinel.
func mapHTTPError(status int, body []byte) error {
	if len(body) > maxErrorDetail {
		body = append(body[:maxErrorDetail:maxErrorDetail], "..."...)
	}
	sentinel := domain.ErrBackend
	switch status {
	case http.StatusTooManyRequests:
		sentinel = domain.ErrRateLimit
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = domain.ErrAuthInvalid
	case http.StatusRequestEntityTooLarge:
		sentinel = domain.ErrContextOverflow
	}
	return fmt.Errorf("%w: status %d: %s", sentinel, status, bytes.TrimSpace(body))
}

func positiveOr[T int | time.Duration](v, def T) T {
	if v > 0 {
		return v
	}
	return def
}

// NewPooledTransport builds the keep-alive transport shared by one backend.
// Unset pool fields fall back to small defaults suited to a few hosts.
func NewPooledTransport(connTimeout, respTimeout time.Duration, pool config.PoolConfig) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: respTimeout,
		MaxIdleConns:          positiveOr(pool.MaxIdleConns, defaultMaxIdleConns),
		MaxIdleConnsPerHost:   positiveOr(pool.MaxIdleConnsPerHost, defaultMaxIdleConnsPerHost),
		MaxConnsPerHost:       positiveOr(pool.MaxConnsPerHost, defaultMaxConnsPerHost),
		IdleConnTimeout:       positiveOr(pool.IdleConnTimeout, defaultIdleConnTimeout),
		ForceAttemptHTTP2:     true,
	}
}

// NewHTTPClient returns the client for one backend. Its timeouts are the
// only deadline a chat turn has.
func NewHTTPClient(cfg config.ProviderConfig) *http.Client {
	conn := positiveOr(cfg.ConnTimeout, defaultConnTimeout)
	resp := positiveOr(cfg.RespTimeout, defaultRespTimeout)
	return &http.Client{
		Transport: NewPooledTransport(conn, resp, cfg.Pool),
		Timeout:   conn + resp,
	}
}
