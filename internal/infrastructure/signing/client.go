// Package signing is the HTTP adapter for the external signing authority.
package signing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	domainsigning "github.com/erp/ledger/internal/domain/signing"
	"github.com/erp/ledger/internal/infrastructure/config"
	"go.uber.org/zap"
)

// maxArtifactSize bounds the response body read from the authority
const maxArtifactSize = 64 << 20

// Client posts canonical content to the signing authority
type Client struct {
	endpoint     string
	apiKey       string
	apiKeyHeader string
	contentType  string
	timeout      time.Duration
	httpClient   *http.Client
	logger       *zap.Logger
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the client logger
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Client. A missing or invalid endpoint is a
// configuration error.
func NewClient(cfg *config.SigningConfig, opts ...ClientOption) (*Client, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, shared.ErrConfiguration.WithCause(errors.New("signing endpoint is required"))
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, shared.ErrConfiguration.WithCause(fmt.Errorf("invalid signing endpoint %q", cfg.Endpoint))
	}

	c := &Client{
		endpoint:     cfg.Endpoint,
		apiKey:       cfg.APIKey,
		apiKeyHeader: cfg.APIKeyHeader,
		contentType:  cfg.ContentType,
		timeout:      cfg.Timeout,
		httpClient:   &http.Client{},
		logger:       zap.NewNop(),
	}
	if c.apiKeyHeader == "" {
		c.apiKeyHeader = "X-API-Key"
	}
	if c.contentType == "" {
		c.contentType = "application/xml"
	}
	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Sign sends content to the authority and normalizes the answer into an
// Artifact. The configured timeout applies on top of any deadline ctx
// already carries.
func (c *Client) Sign(ctx context.Context, content []byte) (*domainsigning.Artifact, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.endpoint, bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("signing: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", c.contentType)
	req.Header.Set("Accept", "application/json, application/xml, application/octet-stream")
	if c.apiKey != "" {
		req.Header.Set(c.apiKeyHeader, c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, callCtx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactSize))
	if err != nil {
		return nil, c.transportError(ctx, callCtx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("Signing authority rejected request",
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", time.Since(start)),
		)
		return nil, domainsigning.NewUpstreamError(resp.StatusCode, body)
	}

	decoded, err := decodeResponse(resp.Header, body)
	if err != nil {
		return nil, domainsigning.NewMalformedResponseError(err)
	}
	artifact, err := decoded.artifact()
	if err != nil {
		return nil, domainsigning.NewMalformedResponseError(err)
	}

	c.logger.Debug("Content signed",
		zap.Int("size", len(artifact.Bytes)),
		zap.String("content_type", artifact.ContentType),
		zap.Duration("elapsed", time.Since(start)),
	)
	return artifact, nil
}

// transportError classifies a failed round trip. A cancelled caller gets
// its own error back; any expired deadline is a signing timeout.
func (c *Client) transportError(parent, callCtx context.Context, err error) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return fmt.Errorf("signing request cancelled: %w", parent.Err())
	}
	var netErr net.Error
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		c.logger.Warn("Signing authority timed out", zap.Duration("timeout", c.timeout))
		return domainsigning.NewTimeoutError(err)
	}
	c.logger.Warn("Signing authority unreachable", zap.Error(err))
	return domainsigning.NewTransportError(err)
}

// Ensure Client implements Signer
var _ domainsigning.Signer = (*Client)(nil)
