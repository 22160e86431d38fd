// Package journey manages the attribution-session identifier (jid): a
// TTL-bound, persisted value correlating in-app activity back to a
// campaign or link click.
package journey

import (
	"log"
	"sync"
	"time"

	"github.com/paylisher/paylisher-go/internal/storage"
)

// TTL is how long a journey stays active after being set.
const TTL = 7 * 24 * time.Hour

// expiryWarning is how close to the TTL a journey counts as expiring soon.
const expiryWarning = 24 * time.Hour

// Attribution source tags, in ascending precedence order as applied by the
// managers: a deep link URL sets "deeplink", a resolved campaign overwrites
// with "campaign_resolution", and a deferred match is written first of all
// with "deferred_deeplink".
const (
	SourceDeepLink           = "deeplink"
	SourceCampaignResolution = "campaign_resolution"
	SourceDeferredDeepLink   = "deferred_deeplink"
)

// Metadata describes the active journey.
type Metadata struct {
	ID        string
	Source    string
	Age       time.Duration
	StartedAt time.Time
}

// Context holds the process-wide journey state. One live instance per
// process; the persisted copy survives restarts.
type Context struct {
	mu      sync.Mutex
	store   storage.Store
	current string
	debug   bool
	now     func() time.Time
}

// NewContext loads the persisted journey, enforcing the TTL: an expired
// journey reads as absent and its stored record is cleared.
func NewContext(store storage.Store, debug bool) *Context {
	c := &Context{store: store, debug: debug, now: time.Now}
	c.load()
	return c
}

func (c *Context) load() {
	c.mu.Lock()
	defer c.mu.Unlock()

	jid, ok := c.store.GetString(storage.KeyJourneyID)
	ts, tsOK := c.store.GetFloat64(storage.KeyJourneyIDTimestamp)
	if !ok || !tsOK || jid == "" {
		return
	}

	elapsed := c.now().Sub(time.Unix(int64(ts), 0))
	if elapsed > TTL {
		c.logf("jid expired (elapsed: %dd)", int(elapsed.Hours()/24))
		c.clearLocked()
		return
	}

	c.current = jid
	c.logf("jid restored: %s (active: %dh)", jid, int(elapsed.Hours()))
}

// Set overwrites the journey id with the given source tag. Empty ids are
// rejected.
func (c *Context) Set(jid, source string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if jid == "" {
		c.logf("attempted to set empty jid")
		return
	}
	if c.current != "" && c.current != jid {
		c.logf("jid changed: %s -> %s", c.current, jid)
	}

	c.current = jid
	c.store.SetString(storage.KeyJourneyID, jid)
	c.store.SetFloat64(storage.KeyJourneyIDTimestamp, float64(c.now().Unix()))
	c.store.SetString(storage.KeyJourneySource, source)
}

// ID returns the active journey id.
func (c *Context) ID() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.current != ""
}

// HasActive reports whether a journey is active.
func (c *Context) HasActive() bool {
	_, ok := c.ID()
	return ok
}

// Source returns the active journey's attribution source tag.
func (c *Context) Source() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == "" {
		return "", false
	}
	src, ok := c.store.GetString(storage.KeyJourneySource)
	if !ok {
		return "unknown", true
	}
	return src, ok
}

// Metadata returns the active journey's id, source and age.
func (c *Context) Metadata() (Metadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts, tsOK := c.store.GetFloat64(storage.KeyJourneyIDTimestamp)
	if c.current == "" || !tsOK {
		return Metadata{}, false
	}
	started := time.Unix(int64(ts), 0)
	src, ok := c.store.GetString(storage.KeyJourneySource)
	if !ok {
		src = "unknown"
	}
	return Metadata{
		ID:        c.current,
		Source:    src,
		Age:       c.now().Sub(started),
		StartedAt: started,
	}, true
}

// AgeHours returns the journey age in whole hours.
func (c *Context) AgeHours() (int64, bool) {
	md, ok := c.Metadata()
	if !ok {
		return 0, false
	}
	return int64(md.Age / time.Hour), true
}

// ExpiringSoon reports whether the journey is within 24 hours of its TTL.
func (c *Context) ExpiringSoon() bool {
	md, ok := c.Metadata()
	if !ok {
		return false
	}
	remaining := TTL - md.Age
	return remaining > 0 && remaining < expiryWarning
}

// Clear drops the journey (logout, manual clear, or expiry).
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != "" {
		c.logf("jid cleared: %s", c.current)
	}
	c.clearLocked()
}

func (c *Context) clearLocked() {
	c.current = ""
	c.store.Remove(storage.KeyJourneyID)
	c.store.Remove(storage.KeyJourneyIDTimestamp)
	c.store.Remove(storage.KeyJourneySource)
}

func (c *Context) logf(format string, args ...any) {
	if c.debug {
		log.Printf("journey: "+format, args...)
	}
}
