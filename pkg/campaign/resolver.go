package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maypok86/otter"
)

// ErrInvalidURL means the campaign URL could not be built from the key.
var ErrInvalidURL = errors.New("campaign: invalid url")

// HTTPError is a non-2xx response from the campaign API.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("campaign: http status %d", e.StatusCode)
}

// DecodeError wraps a JSON decode failure of the campaign payload.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("campaign: decode response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

const (
	cacheSize = 256
	cacheTTL  = 5 * time.Minute
)

// Resolver fetches campaign records by key. Responses are held in a small
// TTL cache so a burst of links carrying the same key costs one request.
type Resolver struct {
	baseURL string
	client  *http.Client
	cache   otter.Cache[string, *Payload]
}

// NewResolver creates a Resolver against the given API base URL.
func NewResolver(baseURL string, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cache, err := otter.MustBuilder[string, *Payload](cacheSize).
		Cost(func(_ string, _ *Payload) uint32 { return 1 }).
		WithTTL(cacheTTL).
		Build()
	if err != nil {
		panic("campaign: failed to create cache: " + err.Error())
	}
	return &Resolver{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		cache:   cache,
	}
}

// Resolve fetches the campaign record for key via GET {base}/campaign/{key}.
func (r *Resolver) Resolve(ctx context.Context, key string) (*Payload, error) {
	if cached, ok := r.cache.Get(key); ok {
		return cached, nil
	}

	endpoint := r.baseURL + "/campaign/" + url.PathEscape(key)
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, ErrInvalidURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, ErrInvalidURL
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("campaign: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode}
	}

	var payload Payload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &DecodeError{Err: err}
	}

	r.cache.Set(key, &payload)
	return &payload, nil
}
