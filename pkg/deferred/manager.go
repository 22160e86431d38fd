package deferred

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/paylisher/paylisher-go/internal/dispatch"
	"github.com/paylisher/paylisher-go/internal/fingerprint"
	"github.com/paylisher/paylisher-go/internal/journey"
	"github.com/paylisher/paylisher-go/internal/launch"
	"github.com/paylisher/paylisher-go/internal/metrics"
	"github.com/paylisher/paylisher-go/pkg/config"
	"github.com/paylisher/paylisher-go/pkg/deeplink"
	"github.com/paylisher/paylisher-go/pkg/event"
)

// ErrMatchWithoutURL means the backend reported a match but sent no URL.
var ErrMatchWithoutURL = errors.New("deferred: match found but url is empty")

// Callbacks receives the outcome of an attribution check. All fields are
// optional and run on the dispatcher goroutine.
type Callbacks struct {
	// Success fires on a match, with the parsed clicked link.
	Success func(link *deeplink.DeepLink)

	// NoMatch fires when the install is organic, the feature is disabled
	// or this is not the first launch.
	NoMatch func()

	// Error fires on fingerprint, transport, decode or parse failure.
	Error func(err error)
}

// Manager orchestrates the deferred check: first-launch gate, fingerprint,
// backend query, match hand-off. A Manager checks at most once per process;
// later Check calls are silent no-ops.
type Manager struct {
	cfg          *config.DeferredConfig
	client       *Client
	emitter      event.Emitter
	journey      *journey.Context
	launches     *launch.Detector
	fingerprints *fingerprint.Generator
	device       fingerprint.DeviceInfo
	deeplinks    *deeplink.Manager
	dispatcher   *dispatch.Dispatcher
	metrics      *metrics.Metrics

	mu         sync.Mutex
	isChecking bool
	hasChecked bool
}

// NewManager wires a Manager. deeplinks may be nil, which disables
// auto-handling; metrics may be nil.
func NewManager(cfg *config.DeferredConfig, client *Client, emitter event.Emitter,
	jc *journey.Context, launches *launch.Detector, fingerprints *fingerprint.Generator,
	device fingerprint.DeviceInfo, deeplinks *deeplink.Manager,
	dispatcher *dispatch.Dispatcher, m *metrics.Metrics) *Manager {
	if cfg == nil {
		cfg = config.NewDeferredConfig()
	}
	return &Manager{
		cfg:          cfg,
		client:       client,
		emitter:      emitter,
		journey:      jc,
		launches:     launches,
		fingerprints: fingerprints,
		device:       device,
		deeplinks:    deeplinks,
		dispatcher:   dispatcher,
		metrics:      m,
	}
}

// Check runs the deferred attribution check, once per process lifetime. The
// fingerprint and network work run on a background goroutine; callbacks are
// delivered via the dispatcher.
func (m *Manager) Check(cb Callbacks) {
	m.mu.Lock()
	if m.isChecking || m.hasChecked {
		m.mu.Unlock()
		m.logf("already checked or checking")
		return
	}
	m.isChecking = true
	m.mu.Unlock()

	if !m.cfg.Enabled {
		m.logf("disabled in config")
		m.finish()
		m.dispatchNoMatch(cb)
		return
	}

	if !m.launches.IsFirstLaunch() {
		m.logf("not first launch, skipping")
		m.finish()
		m.metrics.IncDeferredCheck("skipped")
		m.dispatchNoMatch(cb)
		return
	}

	m.logf("first launch detected, starting check")
	go m.run(cb)
}

func (m *Manager) run(cb Callbacks) {
	ctx := context.Background()

	fp, err := m.fingerprints.Full(ctx, m.device, m.cfg.IncludeAdvertisingID)
	if err != nil {
		m.finish()
		m.fail(cb, fmt.Errorf("deferred: fingerprint: %w", err))
		return
	}
	m.logf("fingerprint generated: %.16s...", fp)

	resp, err := m.client.Check(ctx, fp)
	m.finish()
	if err != nil {
		m.fail(cb, err)
		return
	}

	if !resp.IsMatch() {
		m.logf("no match found")
		m.metrics.IncDeferredCheck("no_match")
		m.capture(event.DeferredCheck, event.Properties{
			"is_first_launch": true,
			"status":          "no_match",
		})
		m.dispatchNoMatch(cb)
		return
	}

	m.handleMatch(resp, cb)
}

func (m *Manager) handleMatch(resp *Response, cb Callbacks) {
	m.logf("match found (url: %s, campaign: %s, jid: %s)", resp.URL, resp.CampaignKey, resp.JID)

	if resp.URL == "" {
		m.fail(cb, ErrMatchWithoutURL)
		return
	}

	dl, err := deeplink.Parse(resp.URL)
	if err != nil {
		m.fail(cb, fmt.Errorf("deferred: parse match url: %w", err))
		return
	}

	// The click-time jid wins over anything already in the journey; it is
	// written before the deep link pipeline runs so later propagation
	// cannot race past it.
	if resp.JID != "" {
		m.journey.Set(resp.JID, journey.SourceDeferredDeepLink)
	}

	m.metrics.IncDeferredCheck("match")
	m.captureMatch(resp, dl)

	if cb.Success != nil {
		m.dispatcher.Do(func() { cb.Success(dl) })
	}

	if m.cfg.AutoHandle && m.deeplinks != nil {
		m.logf("auto-handling matched link")
		m.deeplinks.HandleURL(resp.URL)
	}
}

// captureMatch emits the attribution event. The campaign key additionally
// rides in a $set_once session property so session-level analytics can
// filter on it.
func (m *Manager) captureMatch(resp *Response, dl *deeplink.DeepLink) {
	props := event.Properties{
		"url":             resp.URL,
		"campaign_key":    resp.CampaignKey,
		"jid":             resp.JID,
		"source":          journey.SourceDeferredDeepLink,
		"destination":     dl.Destination,
		"is_first_launch": true,
	}
	if resp.AttributionWindow > 0 {
		props["attribution_window_seconds"] = resp.AttributionWindow
	}
	if resp.ClickTimestamp != "" {
		props["click_timestamp"] = resp.ClickTimestamp
	}
	if resp.Metadata != nil {
		props["metadata"] = resp.Metadata
	}
	if resp.CampaignKey != "" {
		props["$set_once"] = map[string]any{"deeplink_key": resp.CampaignKey}
	}
	m.capture(event.DeferredMatch, props)
}

func (m *Manager) fail(cb Callbacks, err error) {
	log.Printf("deferred: check failed: %v", err)
	m.metrics.IncDeferredCheck("error")
	m.capture(event.DeferredError, event.Properties{
		"is_first_launch": true,
		"status":          "error",
		"error_message":   err.Error(),
		"error_type":      errorType(err),
	})
	if cb.Error != nil {
		m.dispatcher.Do(func() { cb.Error(err) })
	}
}

func errorType(err error) string {
	var httpErr *HTTPError
	var decodeErr *DecodeError
	switch {
	case errors.As(err, &httpErr):
		return "http_error"
	case errors.As(err, &decodeErr):
		return "decode_error"
	case errors.Is(err, ErrInvalidURL):
		return "invalid_url"
	case errors.Is(err, fingerprint.ErrNoComponents):
		return "fingerprint_error"
	case errors.Is(err, ErrMatchWithoutURL):
		return "match_without_url"
	default:
		return "network_error"
	}
}

func (m *Manager) finish() {
	m.mu.Lock()
	m.isChecking = false
	m.hasChecked = true
	m.mu.Unlock()
}

// HasChecked reports whether the once-per-process check already ran.
func (m *Manager) HasChecked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasChecked
}

// ResetForTesting clears the check flags and the persisted first-launch
// state so the next Check runs the full flow again. Testing only.
func (m *Manager) ResetForTesting() {
	m.mu.Lock()
	m.isChecking = false
	m.hasChecked = false
	m.mu.Unlock()
	m.launches.Reset()
}

func (m *Manager) dispatchNoMatch(cb Callbacks) {
	if cb.NoMatch != nil {
		m.dispatcher.Do(cb.NoMatch)
	}
}

func (m *Manager) capture(name string, props event.Properties) {
	for k, v := range m.cfg.AdditionalEventProperties {
		if _, exists := props[k]; !exists {
			props[k] = v
		}
	}
	m.emitter.Capture(name, props)
}

func (m *Manager) logf(format string, args ...any) {
	if m.cfg.DebugLogging {
		log.Printf("deferred: "+format, args...)
	}
}
