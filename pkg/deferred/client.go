// Package deferred recovers pre-install attribution: on the very first
// launch the device fingerprint is checked against backend click records,
// and a match replays the clicked link through the deep link pipeline.
package deferred

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultAPIHost is the deferred attribution endpoint.
const DefaultAPIHost = "https://link.paylisher.com/v1/deferred-deeplink"

// ErrInvalidURL means the check URL could not be built.
var ErrInvalidURL = errors.New("deferred: invalid url")

// HTTPError is a non-2xx response from the attribution API. The fingerprint
// prefix is carried for log correlation with the backend.
type HTTPError struct {
	StatusCode  int
	Fingerprint string
}

func (e *HTTPError) Error() string {
	fp := e.Fingerprint
	if len(fp) > 16 {
		fp = fp[:16]
	}
	return fmt.Sprintf("deferred: http status %d for fingerprint %s...", e.StatusCode, fp)
}

// DecodeError wraps a JSON decode failure of the attribution response.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("deferred: decode response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Response is the backend's answer to an attribution check.
type Response struct {
	// Status is "match" or "no_match".
	Status string `json:"status"`

	// URL is the clicked deep link, present on match.
	URL string `json:"url,omitempty"`

	// CampaignKey of the clicked link, when known.
	CampaignKey string `json:"campaign_key,omitempty"`

	// JID is the journey id recorded at click time.
	JID string `json:"jid,omitempty"`

	// ClickTimestamp is when the link was clicked, ISO 8601.
	ClickTimestamp string `json:"click_timestamp,omitempty"`

	// AttributionWindow is the backend's matching window in seconds.
	AttributionWindow int64 `json:"attribution_window,omitempty"`

	// Metadata is free-form campaign metadata.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IsMatch reports whether the response attributes the install to a click.
func (r *Response) IsMatch() bool {
	return r.Status == "match"
}

// MetadataString returns a metadata value as a string.
func (r *Response) MetadataString(key string) (string, bool) {
	v, ok := r.Metadata[key].(string)
	return v, ok
}

// Client calls the deferred attribution API.
type Client struct {
	host       string
	apiKey     string
	sdkVersion string
	client     *http.Client
}

// NewClient creates a Client. An empty host selects DefaultAPIHost.
func NewClient(apiKey, sdkVersion, host string, timeout time.Duration) *Client {
	if host == "" {
		host = DefaultAPIHost
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		host:       strings.TrimSuffix(host, "/"),
		apiKey:     apiKey,
		sdkVersion: sdkVersion,
		client:     &http.Client{Timeout: timeout},
	}
}

// Check queries the backend for a click matching fingerprint via
// GET {host}?fingerprint={hash}.
func (c *Client) Check(ctx context.Context, fp string) (*Response, error) {
	endpoint := c.host + "?fingerprint=" + url.QueryEscape(fp)
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, ErrInvalidURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, ErrInvalidURL
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-SDK-Version", "paylisher-go/"+c.sdkVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deferred: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Fingerprint: fp}
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &DecodeError{Err: err}
	}
	return &out, nil
}
