// Package paylisher is the composition root of the SDK: it wires storage,
// the event queue, the attribution managers and the callback dispatcher
// into one client. Host applications construct a Client at startup and
// hold it for the process lifetime.
package paylisher

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/paylisher/paylisher-go/internal/dispatch"
	"github.com/paylisher/paylisher-go/internal/fingerprint"
	"github.com/paylisher/paylisher-go/internal/journey"
	"github.com/paylisher/paylisher-go/internal/launch"
	"github.com/paylisher/paylisher-go/internal/metrics"
	"github.com/paylisher/paylisher-go/internal/queue"
	"github.com/paylisher/paylisher-go/internal/storage"
	"github.com/paylisher/paylisher-go/pkg/campaign"
	"github.com/paylisher/paylisher-go/pkg/config"
	"github.com/paylisher/paylisher-go/pkg/deeplink"
	"github.com/paylisher/paylisher-go/pkg/deferred"
	"github.com/paylisher/paylisher-go/pkg/event"
)

// Option customizes Client construction.
type Option func(*options)

type options struct {
	device        *fingerprint.DeviceInfo
	advertisingID fingerprint.AdvertisingIDFunc
	registerer    prometheus.Registerer
	extraSinks    []queue.Sink
}

// WithDeviceInfo supplies the device signals used for fingerprinting.
// Without it the client falls back to best-effort process info.
func WithDeviceInfo(info fingerprint.DeviceInfo) Option {
	return func(o *options) { o.device = &info }
}

// WithAdvertisingID supplies the advertising identifier source. fn is only
// consulted when the deferred config opts into advertising-id inclusion.
func WithAdvertisingID(fn fingerprint.AdvertisingIDFunc) Option {
	return func(o *options) { o.advertisingID = fn }
}

// WithRegisterer overrides the Prometheus registerer used when metrics are
// enabled. Defaults to prometheus.DefaultRegisterer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithSink adds an extra delivery sink alongside the collector sink.
func WithSink(s queue.Sink) Option {
	return func(o *options) { o.extraSinks = append(o.extraSinks, s) }
}

// Client is the SDK entry point.
type Client struct {
	cfg *config.Config

	store      storage.Store
	db         *storage.DB
	registry   *event.Registry
	journeys   *journey.Context
	launches   *launch.Detector
	dispatcher *dispatch.Dispatcher
	metrics    *metrics.Metrics

	httpSink *queue.HTTPSink
	sinks    []queue.Sink

	deeplinks *deeplink.Manager
	deferreds *deferred.Manager
}

// New constructs a fully wired Client. The returned client has already
// started its delivery worker and its deep link manager; Close releases
// everything.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("paylisher: nil config")
	}
	if cfg.DeepLink == nil {
		cfg.DeepLink = config.NewDeepLinkConfig()
	}
	if cfg.Deferred == nil {
		cfg.Deferred = config.NewDeferredConfig()
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{
		cfg:        cfg,
		registry:   event.NewRegistry(),
		dispatcher: dispatch.New(),
	}

	if cfg.StoragePath != "" {
		db, err := storage.Open(cfg.StoragePath)
		if err != nil {
			c.dispatcher.Close()
			return nil, err
		}
		c.db = db
		c.store = db
	} else {
		log.Printf("paylisher: no storage path, attribution state will not survive restarts")
		c.store = storage.NewMemoryStore()
	}

	if cfg.MetricsEnabled {
		reg := o.registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		c.metrics = metrics.New(reg)
	}

	c.httpSink = queue.NewHTTPSink(queue.HTTPConfig{
		Endpoint:      cfg.Host + "/batch",
		APIKey:        cfg.APIKey,
		SDKVersion:    cfg.SDKVersion,
		FlushAt:       cfg.FlushAt,
		FlushInterval: cfg.FlushInterval,
		Timeout:       cfg.RequestTimeout,
	}, c.spoolDB(), c.metrics)
	c.sinks = append([]queue.Sink{c.httpSink}, o.extraSinks...)
	for _, s := range c.sinks {
		if err := s.Start(context.Background()); err != nil {
			c.shutdown()
			return nil, fmt.Errorf("paylisher: start sink %s: %w", s.Name(), err)
		}
	}

	c.journeys = journey.NewContext(c.store, cfg.DeepLink.DebugLogging)
	c.launches = launch.NewDetector(c.store)
	fingerprints := fingerprint.NewGenerator(c.store, o.advertisingID)

	device := fingerprint.Host()
	if o.device != nil {
		device = *o.device
	}

	resolver := campaign.NewResolver(cfg.CampaignHost, cfg.RequestTimeout)
	c.deeplinks = deeplink.NewManager(cfg.DeepLink, c, c.journeys, resolver, c.dispatcher, c.metrics)
	c.deeplinks.Initialize()

	deferredClient := deferred.NewClient(cfg.APIKey, cfg.SDKVersion,
		cfg.Deferred.APIHost, cfg.Deferred.APITimeout)
	c.deferreds = deferred.NewManager(cfg.Deferred, deferredClient, c, c.journeys,
		c.launches, fingerprints, device, c.deeplinks, c.dispatcher, c.metrics)

	return c, nil
}

func (c *Client) spoolDB() *sql.DB {
	if c.db != nil {
		return c.db.Handle()
	}
	return nil
}

// Capture records an event. Registered properties and the active journey id
// are merged in; explicit properties win on conflict.
func (c *Client) Capture(name string, properties event.Properties) {
	props := event.Properties{}
	props.Merge(properties)
	c.registry.Apply(props)
	if jid, ok := c.journeys.ID(); ok {
		if _, exists := props["jid"]; !exists {
			props["jid"] = jid
		}
	}

	e := event.New(name, time.Now(), props)
	for _, s := range c.sinks {
		if err := s.Enqueue(e); err != nil {
			log.Printf("paylisher: enqueue to %s: %v", s.Name(), err)
		}
	}
}

// Register attaches a property to every future event.
func (c *Client) Register(key string, value any) {
	c.registry.Register(key, value)
}

// RegisterOnce attaches a property to every future event unless one was
// already registered under the key.
func (c *Client) RegisterOnce(key string, value any) bool {
	return c.registry.RegisterOnce(key, value)
}

// Unregister removes a registered property.
func (c *Client) Unregister(key string) {
	c.registry.Unregister(key)
}

// DeepLinks exposes the deep link manager.
func (c *Client) DeepLinks() *deeplink.Manager { return c.deeplinks }

// Deferred exposes the deferred attribution manager.
func (c *Client) Deferred() *deferred.Manager { return c.deferreds }

// Journey exposes the journey context.
func (c *Client) Journey() *journey.Context { return c.journeys }

// Launches exposes the first-launch detector.
func (c *Client) Launches() *launch.Detector { return c.launches }

// HandleURL feeds an incoming URL to the deep link pipeline.
func (c *Client) HandleURL(rawURL string) bool {
	return c.deeplinks.HandleURL(rawURL)
}

// CheckDeferred runs the once-per-install deferred attribution check.
func (c *Client) CheckDeferred(cb deferred.Callbacks) {
	c.deferreds.Check(cb)
}

// Reset clears per-user attribution state on logout: the journey and any
// link pending auth. Install state and queued events are kept.
func (c *Client) Reset() {
	c.journeys.Clear()
	c.deeplinks.ClearPending()
}

// Flush synchronously drains the event queue to the collector.
func (c *Client) Flush() {
	c.httpSink.Flush()
}

// Close flushes and releases the client. The client must not be used after
// Close.
func (c *Client) Close() error {
	return c.shutdown()
}

func (c *Client) shutdown() error {
	var firstErr error
	for _, s := range c.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.dispatcher.Close()
	if c.db != nil {
		if err := c.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
