// internal/source/http.go
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxErrorBody = 512

// restClient holds what every REST-backed source needs.
type restClient struct {
	desc    Descriptor
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func newRESTClient(desc Descriptor, httpClient *http.Client, logger *zap.Logger) restClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	var limiter *rate.Limiter
	if desc.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(desc.RatePerSecond), 1)
	}
	return restClient{
		desc:    desc,
		client:  httpClient,
		limiter: limiter,
		logger:  logger.With(zap.String("source", desc.Name)),
	}
}

// Descriptor returns the source description.
func (c restClient) Descriptor() Descriptor {
	return c.desc
}

// getJSON performs one bounded GET and decodes the body into out.
func (c restClient) getJSON(ctx context.Context, method, url string, out any) error {
	callCtx, cancel := c.desc.withTimeout(ctx)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(callCtx); err != nil {
			// Wait refuses early when the deadline cannot be met.
			if callCtx.Err() == nil {
				return NewError(fmt.Errorf("%w: %v", ErrRateLimit, err), c.desc.Name, method)
			}
			return NewError(classify(callCtx, err), c.desc.Name, method)
		}
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, url, nil)
	if err != nil {
		return NewError(fmt.Errorf("%w: create request: %v", ErrTransport, err), c.desc.Name, method)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("request failed", zap.String("method", method), zap.Error(err))
		return NewError(classify(callCtx, err), c.desc.Name, method)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return NewError(ErrRateLimit, c.desc.Name, method)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return NewError(fmt.Errorf("%w: unexpected status code: %d, body: %s", ErrTransport, resp.StatusCode, string(body)),
			c.desc.Name, method)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if callCtx.Err() != nil {
			return NewError(classify(callCtx, err), c.desc.Name, method)
		}
		return NewError(fmt.Errorf("%w: decode response: %v", ErrInvalidResponse, err), c.desc.Name, method)
	}
	return nil
}
