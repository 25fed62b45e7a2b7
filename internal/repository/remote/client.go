package remote

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/withterm/term-sub003/internal/config"
	"github.com/withterm/term-sub003/internal/errs"
	"github.com/withterm/term-sub003/internal/metrics"
)

// Client talks to the remote metrics ingest service: it signs every request
// with an HMAC-SHA256 over the body using the configured API key, and
// throttles outbound requests client-side via a token bucket so a slow
// remote doesn't get hammered by a backlog drain (spec §6).
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	apiKey     string
}

// NewClient builds a Client from cfg.
func NewClient(cfg *config.RemoteRepositoryConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.UploadRatePerSec), int(cfg.UploadRatePerSec)+1),
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
	}
}

// IngestResponse is the remote service's reply to a batch upload: how many
// of the posted documents it accepted versus rejected, and why (spec §6,
// §4.G point 3). A rejection is not retried (spec §9 "worker stats
// accounting" design note: rejection implies a non-transient problem with
// that particular document, not a transient server failure).
type IngestResponse struct {
	Accepted int      `json:"accepted"`
	Rejected int      `json:"rejected"`
	Errors   []string `json:"errors"`
}

// Ingest uploads a batch of documents as a bare JSON array. It blocks on the
// client-side rate limiter before sending, then classifies a non-2xx
// response into errs' retryable taxonomy (429 -> RateLimitedError, 5xx ->
// ServerError, 401 -> ErrAuthentication, other 4xx -> InvalidRequestError)
// or, on success, decodes the
// accepted/rejected counts (spec §6 "Ingest API").
func (c *Client) Ingest(ctx context.Context, docs []metrics.Document) (*IngestResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: waiting for upload rate limiter: %v", errs.ErrNetwork, err)
	}

	body, err := json.Marshal(docs)
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling ingest request: %v", errs.ErrSerialization, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/metrics", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building ingest request: %v", errs.ErrNetwork, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Term-Api-Key", c.apiKey)
	req.Header.Set("X-Term-Signature", sign(c.apiKey, body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: sending ingest request: %v", errs.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if err := classify(resp); err != nil {
		return nil, err
	}

	var ingestResp IngestResponse
	if err := json.NewDecoder(resp.Body).Decode(&ingestResp); err != nil {
		return nil, fmt.Errorf("%w: decoding ingest response: %v", errs.ErrSerialization, err)
	}

	return &ingestResp, nil
}

func classify(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := 0
		if v := resp.Header.Get("Retry-After"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				retryAfter = n
			}
		}

		return &errs.RateLimitedError{RetryAfterSeconds: retryAfter}
	case resp.StatusCode == http.StatusUnauthorized:
		return errs.ErrAuthentication
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &errs.InvalidRequestError{Message: readBody(resp)}
	case resp.StatusCode >= 500:
		return &errs.ServerError{Status: resp.StatusCode, Message: readBody(resp)}
	default:
		return fmt.Errorf("%w: unexpected status %d", errs.ErrNetwork, resp.StatusCode)
	}
}

func readBody(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return ""
	}

	return string(data)
}

// sign returns the hex-encoded HMAC-SHA256 of body keyed by apiKey.
func sign(apiKey string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(apiKey))
	mac.Write(body)

	return hex.EncodeToString(mac.Sum(nil))
}
