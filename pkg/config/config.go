package config

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
)

// Attribution window presets. The window bounds how long after a link click
// an install may still be attributed to that click.
const (
	ShortAttributionWindow    = time.Hour
	DefaultAttributionWindow  = 24 * time.Hour
	ExtendedAttributionWindow = 7 * 24 * time.Hour
)

// DefaultPendingTimeout is how long a deep link may wait for authentication
// before it is dropped.
const DefaultPendingTimeout = 300 * time.Second

// Config is the top-level SDK configuration set by the host application.
type Config struct {
	// APIKey authenticates the SDK against the Paylisher backend.
	APIKey string `env:"PAYLISHER_API_KEY"`

	// Host is the collector endpoint events are delivered to.
	Host string `env:"PAYLISHER_HOST"`

	// CampaignHost is the campaign resolution API base URL.
	CampaignHost string `env:"PAYLISHER_CAMPAIGN_HOST"`

	// SDKVersion is reported in the X-SDK-Version header.
	SDKVersion string

	// StoragePath is the SQLite file backing attribution state and the
	// event spool. Empty means in-memory only (state lost on exit).
	StoragePath string `env:"PAYLISHER_STORAGE_PATH"`

	// RequestTimeout bounds every backend HTTP call.
	RequestTimeout time.Duration `env:"PAYLISHER_REQUEST_TIMEOUT"`

	// FlushAt is the batch size that triggers a queue flush.
	FlushAt int `env:"PAYLISHER_FLUSH_AT"`

	// FlushInterval is the maximum time between queue flushes.
	FlushInterval time.Duration `env:"PAYLISHER_FLUSH_INTERVAL"`

	// MetricsEnabled registers Prometheus instrumentation for the SDK.
	MetricsEnabled bool `env:"PAYLISHER_METRICS_ENABLED"`

	DeepLink *DeepLinkConfig
	Deferred *DeferredConfig
}

// New returns a Config with defaults applied for the given API key.
func New(apiKey string) *Config {
	return &Config{
		APIKey:         apiKey,
		Host:           "https://collect.paylisher.com",
		CampaignHost:   "https://api.paylisher.com",
		SDKVersion:     "1.0.0",
		RequestTimeout: 10 * time.Second,
		FlushAt:        20,
		FlushInterval:  30 * time.Second,
		DeepLink:       NewDeepLinkConfig(),
		Deferred:       NewDeferredConfig(),
	}
}

// FromEnv overlays environment variables onto c.
func (c *Config) FromEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("config: parse env: %w", err)
	}
	return nil
}

// DeepLinkConfig is the operator-set deep link policy.
type DeepLinkConfig struct {
	// CaptureEvents enables automatic deep link event capture.
	CaptureEvents bool

	// AutoHandle enables the pending-auth state machine for links whose
	// destination requires authentication.
	AutoHandle bool

	// CustomSchemes lists the custom URL schemes the app handles.
	// Informational; parsing does not restrict itself to them.
	CustomSchemes []string

	// UniversalLinkDomains lists the universal link domains the app handles.
	UniversalLinkDomains []string

	// DebugLogging enables verbose diagnostics.
	DebugLogging bool

	// PendingTimeout is how long a pending deep link waits for auth.
	PendingTimeout time.Duration

	// AdditionalEventProperties are merged into every deep link event.
	AdditionalEventProperties map[string]any

	mu                       sync.RWMutex
	authRequiredDestinations []string
}

func NewDeepLinkConfig() *DeepLinkConfig {
	return &DeepLinkConfig{
		CaptureEvents:  true,
		AutoHandle:     true,
		PendingTimeout: DefaultPendingTimeout,
	}
}

// SetAuthRequiredDestinations replaces the auth-required destination list.
func (c *DeepLinkConfig) SetAuthRequiredDestinations(destinations []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authRequiredDestinations = slices.Clone(destinations)
}

// AddAuthRequiredDestination adds a destination to the auth-required list.
func (c *DeepLinkConfig) AddAuthRequiredDestination(destination string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !slices.Contains(c.authRequiredDestinations, destination) {
		c.authRequiredDestinations = append(c.authRequiredDestinations, destination)
	}
}

// RemoveAuthRequiredDestination removes a destination from the list.
func (c *DeepLinkConfig) RemoveAuthRequiredDestination(destination string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authRequiredDestinations = slices.DeleteFunc(c.authRequiredDestinations,
		func(d string) bool { return d == destination })
}

// DestinationRequiresAuth reports whether destination is on the
// auth-required list.
func (c *DeepLinkConfig) DestinationRequiresAuth(destination string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Contains(c.authRequiredDestinations, destination)
}

// DeferredConfig configures deferred deep link attribution.
type DeferredConfig struct {
	// Enabled turns on the first-launch deferred check. Off by default;
	// must be opted into.
	Enabled bool

	// AttributionWindow bounds click-to-install attribution.
	AttributionWindow time.Duration

	// IncludeAdvertisingID adds the advertising identifier to the
	// fingerprint when tracking authorization has been granted.
	IncludeAdvertisingID bool

	// DebugLogging enables verbose diagnostics.
	DebugLogging bool

	// AutoHandle feeds a matched URL through the deep link manager after
	// the success callback.
	AutoHandle bool

	// AdditionalEventProperties are merged into every attribution event.
	AdditionalEventProperties map[string]any

	// APIHost overrides the deferred attribution endpoint.
	APIHost string

	// APITimeout bounds the attribution check request.
	APITimeout time.Duration
}

func NewDeferredConfig() *DeferredConfig {
	return &DeferredConfig{
		AttributionWindow:    DefaultAttributionWindow,
		IncludeAdvertisingID: true,
		AutoHandle:           true,
		APITimeout:           10 * time.Second,
	}
}

// WithEnabled enables the deferred check. Chainable.
func (c *DeferredConfig) WithEnabled(enabled bool) *DeferredConfig {
	c.Enabled = enabled
	return c
}

// WithAttributionWindow sets the attribution window. Chainable.
func (c *DeferredConfig) WithAttributionWindow(window time.Duration) *DeferredConfig {
	c.AttributionWindow = window
	return c
}

// WithAdvertisingID toggles advertising-id inclusion. Chainable.
func (c *DeferredConfig) WithAdvertisingID(include bool) *DeferredConfig {
	c.IncludeAdvertisingID = include
	return c
}

// WithAutoHandle toggles automatic hand-off to the deep link manager.
func (c *DeferredConfig) WithAutoHandle(auto bool) *DeferredConfig {
	c.AutoHandle = auto
	return c
}

// WithAPIHost overrides the deferred attribution endpoint. Chainable.
func (c *DeferredConfig) WithAPIHost(host string) *DeferredConfig {
	c.APIHost = host
	return c
}

// ForTesting returns a config suited to exercising the deferred flow:
// enabled, short window, no advertising id, verbose.
func ForTesting() *DeferredConfig {
	c := NewDeferredConfig()
	c.Enabled = true
	c.AttributionWindow = ShortAttributionWindow
	c.IncludeAdvertisingID = false
	c.DebugLogging = true
	return c
}

// ForProduction returns a production deferred config: enabled, 24h window.
func ForProduction() *DeferredConfig {
	c := NewDeferredConfig()
	c.Enabled = true
	return c
}

// AttributionWindowHours returns the window in whole hours.
func (c *DeferredConfig) AttributionWindowHours() int64 {
	return int64(c.AttributionWindow / time.Hour)
}

// AttributionWindowDays returns the window in whole days.
func (c *DeferredConfig) AttributionWindowDays() int64 {
	return c.AttributionWindowHours() / 24
}
