package deeplink

import (
	"context"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/paylisher/paylisher-go/internal/dispatch"
	"github.com/paylisher/paylisher-go/internal/journey"
	"github.com/paylisher/paylisher-go/internal/metrics"
	"github.com/paylisher/paylisher-go/pkg/campaign"
	"github.com/paylisher/paylisher-go/pkg/config"
	"github.com/paylisher/paylisher-go/pkg/event"
)

// Manager runs the deep link pipeline: parse, journey adoption, async
// campaign resolution, auth gating and event capture. At most one link is
// pending auth at a time; a newer pending link silently replaces the older
// one.
type Manager struct {
	cfg        *config.DeepLinkConfig
	emitter    event.Emitter
	journey    *journey.Context
	resolver   *campaign.Resolver
	dispatcher *dispatch.Dispatcher
	metrics    *metrics.Metrics

	mu           sync.Mutex
	handler      Handler
	initialized  bool
	last         *DeepLink
	pending      *DeepLink
	pendingSince time.Time
	pendingTimer *time.Timer

	now func() time.Time
}

// NewManager wires a Manager. resolver and metrics may be nil; emitter,
// journey context and dispatcher must not be.
func NewManager(cfg *config.DeepLinkConfig, emitter event.Emitter, jc *journey.Context,
	resolver *campaign.Resolver, dispatcher *dispatch.Dispatcher, m *metrics.Metrics) *Manager {
	if cfg == nil {
		cfg = config.NewDeepLinkConfig()
	}
	return &Manager{
		cfg:        cfg,
		emitter:    emitter,
		journey:    jc,
		resolver:   resolver,
		dispatcher: dispatcher,
		metrics:    m,
		now:        time.Now,
	}
}

// Initialize arms the manager. URLs handed over before Initialize are
// rejected.
func (m *Manager) Initialize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = true
	m.logf("initialized (autoHandle: %t, captureEvents: %t)",
		m.cfg.AutoHandle, m.cfg.CaptureEvents)
}

// SetHandler installs the lifecycle callbacks.
func (m *Manager) SetHandler(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// HandleURL feeds a URL through the pipeline. It returns true when the URL
// parsed into a deep link and was accepted, false when the manager is not
// initialized or the URL is malformed. Campaign resolution, when a key is
// present, runs asynchronously; the Opened event waits for its outcome so
// the resolved campaign rides along on it.
func (m *Manager) HandleURL(rawURL string) bool {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		log.Printf("deeplink: HandleURL before Initialize, dropping %s", rawURL)
		return false
	}
	h := m.handler
	m.mu.Unlock()

	dl, err := Parse(rawURL)
	if err != nil {
		m.logf("parse failed: %v", err)
		m.captureFailed(rawURL, err)
		if h.Failed != nil {
			m.dispatcher.Do(func() { h.Failed(rawURL, err) })
		}
		return false
	}

	m.mu.Lock()
	m.last = dl
	m.mu.Unlock()

	m.logf("received %s", dl)

	if dl.JID != "" {
		m.journey.Set(dl.JID, journey.SourceDeepLink)
	}

	requiresAuth := m.requiresAuth(dl)

	if dl.CampaignKey != "" && m.resolver != nil {
		go m.resolveThenCaptureOpened(dl, requiresAuth)
	} else if m.cfg.CaptureEvents {
		m.captureOpened(dl, requiresAuth)
	}

	if m.cfg.AutoHandle && requiresAuth {
		m.setPending(dl)
		if h.RequiresAuth != nil {
			m.dispatcher.Do(func() {
				h.RequiresAuth(dl, func(success bool) {
					if success {
						m.CompletePending()
					} else {
						m.ClearPending()
					}
				})
			})
		}
	}

	if h.Received != nil {
		m.dispatcher.Do(func() { h.Received(dl, requiresAuth) })
	}
	return true
}

func (m *Manager) requiresAuth(dl *DeepLink) bool {
	return m.cfg.DestinationRequiresAuth(dl.Destination) || dl.AuthParamRequired
}

// resolveThenCaptureOpened resolves the campaign key, attaches the payload,
// adopts the campaign's jid and only then emits the Opened event.
func (m *Manager) resolveThenCaptureOpened(dl *DeepLink, requiresAuth bool) {
	payload, err := m.resolver.Resolve(context.Background(), dl.CampaignKey)
	if err != nil {
		m.logf("campaign resolution failed for %s: %v", dl.CampaignKey, err)
		m.metrics.IncResolutionError()
		m.capture(event.DeepLinkResolveFailed, event.Properties{
			"campaign_key": dl.CampaignKey,
			"error":        err.Error(),
		})
	} else {
		m.mu.Lock()
		dl.Campaign = payload
		m.mu.Unlock()

		props := payload.Properties()
		props["campaign_key"] = dl.CampaignKey
		m.capture(event.DeepLinkResolved, props)

		if payload.JID != "" {
			m.journey.Set(payload.JID, journey.SourceCampaignResolution)
		}
	}

	if m.cfg.CaptureEvents {
		m.captureOpened(dl, requiresAuth)
	}
}

// setPending parks dl behind auth, silently replacing any link already
// waiting there and restarting the timeout clock.
func (m *Manager) setPending(dl *DeepLink) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pendingTimer != nil {
		m.pendingTimer.Stop()
	}
	if m.pending != nil {
		m.logf("pending link replaced: %s -> %s", m.pending.Destination, dl.Destination)
	}

	m.pending = dl
	m.pendingSince = m.now()
	timeout := m.cfg.PendingTimeout
	if timeout <= 0 {
		timeout = config.DefaultPendingTimeout
	}
	m.pendingTimer = time.AfterFunc(timeout, func() { m.expirePending(dl, timeout) })
	m.logf("pending auth: %s (timeout: %s)", dl.Destination, timeout)
}

// expirePending fires on timeout. The identity check makes a stale timer
// whose link was already completed, cancelled or replaced a no-op.
func (m *Manager) expirePending(dl *DeepLink, timeout time.Duration) {
	m.mu.Lock()
	if m.pending != dl {
		m.mu.Unlock()
		return
	}
	waited := m.now().Sub(m.pendingSince)
	m.clearPendingLocked()
	m.mu.Unlock()

	m.logf("pending link timed out: %s", dl.Destination)
	if m.cfg.CaptureEvents {
		m.capture(event.DeepLinkTimeout, m.linkProperties(dl, event.Properties{
			"full_url":        dl.URL.String(),
			"timeout_seconds": timeout.Seconds(),
			"waited_seconds":  waited.Seconds(),
		}))
	}
}

// CompletePending resumes the pending link after successful auth: it emits
// the Completed event and re-delivers the link via Received with
// requiresAuth false.
func (m *Manager) CompletePending() {
	m.mu.Lock()
	dl := m.pending
	if dl == nil {
		m.mu.Unlock()
		m.logf("CompletePending with nothing pending")
		return
	}
	waited := m.now().Sub(m.pendingSince)
	h := m.handler
	m.clearPendingLocked()
	m.mu.Unlock()

	m.logf("pending link completed: %s (waited: %s)", dl.Destination, waited)
	if m.cfg.CaptureEvents {
		m.capture(event.DeepLinkCompleted, m.linkProperties(dl, event.Properties{
			"was_pending":      true,
			"time_to_complete": waited.Seconds(),
		}))
	}
	if h.Received != nil {
		m.dispatcher.Do(func() { h.Received(dl, false) })
	}
}

// CancelPending drops the pending link, emitting the Cancelled event. No
// callback fires.
func (m *Manager) CancelPending() {
	m.mu.Lock()
	dl := m.pending
	if dl == nil {
		m.mu.Unlock()
		return
	}
	waited := m.now().Sub(m.pendingSince)
	m.clearPendingLocked()
	m.mu.Unlock()

	m.logf("pending link cancelled: %s", dl.Destination)
	if m.cfg.CaptureEvents {
		m.capture(event.DeepLinkCancelled, m.linkProperties(dl, event.Properties{
			"full_url":           dl.URL.String(),
			"time_before_cancel": waited.Seconds(),
		}))
	}
}

// ClearPending drops the pending link without emitting anything. Used on
// auth failure and logout.
func (m *Manager) ClearPending() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending != nil {
		m.logf("pending link cleared: %s", m.pending.Destination)
	}
	m.clearPendingLocked()
}

func (m *Manager) clearPendingLocked() {
	if m.pendingTimer != nil {
		m.pendingTimer.Stop()
		m.pendingTimer = nil
	}
	m.pending = nil
	m.pendingSince = time.Time{}
}

// HasPending reports whether a link is waiting for auth.
func (m *Manager) HasPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending != nil
}

// PendingDestination returns the destination of the pending link.
func (m *Manager) PendingDestination() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return "", false
	}
	return m.pending.Destination, true
}

// Last returns the most recently handled link.
func (m *Manager) Last() *DeepLink {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *Manager) captureOpened(dl *DeepLink, requiresAuth bool) {
	props := m.linkProperties(dl, event.Properties{
		"full_url":      dl.URL.String(),
		"auth_required": requiresAuth,
		"parameters":    dl.Parameters,
	})
	if dl.JID != "" {
		props["jid"] = dl.JID
	}
	if dl.Source != "" {
		props["source"] = dl.Source
	}
	props["has_campaign_key"] = dl.CampaignKey != ""
	if dl.CampaignKey != "" {
		props["campaign_key"] = dl.CampaignKey
	}

	m.mu.Lock()
	resolved := dl.Campaign
	m.mu.Unlock()
	props["campaign_resolved"] = resolved != nil
	if resolved != nil {
		props.Merge(resolved.Properties())
	}

	m.capture(event.DeepLinkOpened, props)
}

func (m *Manager) captureFailed(rawURL string, parseErr error) {
	if !m.cfg.CaptureEvents {
		return
	}
	props := event.Properties{
		"url":            rawURL,
		"failure_reason": "parse_error",
		"error_message":  parseErr.Error(),
		"scheme":         "unknown",
	}
	if u, err := url.Parse(rawURL); err == nil {
		if u.Scheme != "" {
			props["scheme"] = u.Scheme
		}
		if u.Host != "" {
			props["attempted_destination"] = u.Host
		} else if seg := lastPathSegment(u.Path); seg != "" {
			props["attempted_destination"] = seg
		}
	}
	m.capture(event.DeepLinkFailed, props)
}

// lastPathSegment returns the last non-empty path segment, for reporting a
// best-effort destination on URLs without a host.
func lastPathSegment(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			return segments[i]
		}
	}
	return ""
}

// linkProperties is the shared base of every lifecycle event: destination,
// scheme, campaign id when present, plus the operator extras.
func (m *Manager) linkProperties(dl *DeepLink, extra event.Properties) event.Properties {
	props := event.Properties{
		"destination": dl.Destination,
		"scheme":      dl.Scheme,
	}
	if dl.CampaignID != "" {
		props["campaign_id"] = dl.CampaignID
	}
	props.Merge(extra)
	return props
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
		log.Printf("deeplink: "+format, args...)
	}
}
