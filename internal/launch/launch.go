// Package launch tracks whether the app has run before and when it was
// installed. Deferred attribution only ever applies to the very first
// launch, so the first-launch read is deliberately destructive.
package launch

import (
	"sync"
	"time"

	"github.com/paylisher/paylisher-go/internal/storage"
)

// Detector is the persistent one-shot first-launch gate.
type Detector struct {
	mu    sync.Mutex
	store storage.Store
	now   func() time.Time
}

func NewDetector(store storage.Store) *Detector {
	return &Detector{store: store, now: time.Now}
}

// IsFirstLaunch returns true exactly once per installation. The first call
// flips the persisted flag and stamps the install timestamp as a side
// effect; every later call, including after a process restart on the same
// store, returns false.
func (d *Detector) IsFirstLaunch() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if launched, _ := d.store.GetFloat64(storage.KeyHasLaunched); launched != 0 {
		return false
	}
	d.store.SetFloat64(storage.KeyHasLaunched, 1)
	d.store.SetFloat64(storage.KeyInstallTimestamp, float64(d.now().Unix()))
	return true
}

// HasLaunchedBefore is the non-destructive read of the same flag.
func (d *Detector) HasLaunchedBefore() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	launched, _ := d.store.GetFloat64(storage.KeyHasLaunched)
	return launched != 0
}

// InstallTime returns the recorded install timestamp, or the zero time if
// none was stamped yet.
func (d *Detector) InstallTime() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.installTimeLocked()
}

func (d *Detector) installTimeLocked() time.Time {
	ts, ok := d.store.GetFloat64(storage.KeyInstallTimestamp)
	if !ok || ts <= 0 {
		return time.Time{}
	}
	return time.Unix(int64(ts), 0)
}

// SetInstallTime overrides the recorded install timestamp.
func (d *Detector) SetInstallTime(t time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.store.SetFloat64(storage.KeyInstallTimestamp, float64(t.Unix()))
}

// SinceInstall returns the elapsed time since install, or 0 when no install
// timestamp is recorded.
func (d *Detector) SinceInstall() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	installed := d.installTimeLocked()
	if installed.IsZero() {
		return 0
	}
	return d.now().Sub(installed)
}

// SinceInstallHours returns whole hours since install.
func (d *Detector) SinceInstallHours() int64 {
	return int64(d.SinceInstall() / time.Hour)
}

// SinceInstallDays returns whole days since install.
func (d *Detector) SinceInstallDays() int64 {
	return d.SinceInstallHours() / 24
}

// WithinAttributionWindow reports whether the install happened within the
// given window: 0 < elapsed <= window.
func (d *Detector) WithinAttributionWindow(window time.Duration) bool {
	elapsed := d.SinceInstall()
	return elapsed > 0 && elapsed <= window
}

// Reset clears the launch state so the next IsFirstLaunch call reports
// true again. Testing only.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.store.Remove(storage.KeyHasLaunched)
	d.store.Remove(storage.KeyInstallTimestamp)
}

// State dumps the launch bookkeeping for debug logging.
func (d *Detector) State() map[string]any {
	var installUnix int64
	if t := d.InstallTime(); !t.IsZero() {
		installUnix = t.Unix()
	}
	return map[string]any{
		"has_launched":             d.HasLaunchedBefore(),
		"install_timestamp":        installUnix,
		"time_since_install_hours": d.SinceInstallHours(),
		"time_since_install_days":  d.SinceInstallDays(),
	}
}
