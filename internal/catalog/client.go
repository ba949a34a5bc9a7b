package catalog

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when the remote source has no catalog document.
var ErrNotFound = errors.New("catalog: not found")

// Source fetches a catalog document from somewhere other than the local disk.
type Source interface {
	Fetch(ctx context.Context) (*Document, error)
}

// HTTPSource implements Source over HTTP.
type HTTPSource struct {
	endpoint *url.URL
	client   *http.Client
	retries  uint64
	logger   zerolog.Logger
}

// NewHTTPSource constructs an HTTP-backed catalog source.
func NewHTTPSource(rawURL string, timeout time.Duration, logger zerolog.Logger) (*HTTPSource, error) {
	parsed, err := url.Parse(strings.TrimRight(rawURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse catalog url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("parse catalog url: unsupported scheme %q", parsed.Scheme)
	}
	return &HTTPSource{
		endpoint: parsed,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		retries: 3,
		logger:  logger.With().Str("component", "catalog-source").Logger(),
	}, nil
}

// Fetch downloads and decodes the catalog, retrying transient failures.
func (s *HTTPSource) Fetch(ctx context.Context) (*Document, error) {
	var doc *Document
	op := func() error {
		d, err := s.fetchOnce(ctx)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return backoff.Permanent(err)
			}
			s.logger.Debug().Err(err).Msg("catalog fetch attempt failed")
			return err
		}
		doc = d
		return nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.retries),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *HTTPSource) fetchOnce(ctx context.Context) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var payload Document
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode catalog response: %w", err)
		}
		return &payload, nil
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("catalog: upstream returned %d", resp.StatusCode)
	}
}
