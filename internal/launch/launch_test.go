package launch

import (
	"testing"
	"time"

	"github.com/paylisher/paylisher-go/internal/storage"
)

func TestIsFirstLaunch(t *testing.T) {
	store := storage.NewMemoryStore()
	d := NewDetector(store)

	if !d.IsFirstLaunch() {
		t.Fatal("first call should report first launch")
	}
	if d.IsFirstLaunch() {
		t.Error("second call should not report first launch")
	}
	if !d.HasLaunchedBefore() {
		t.Error("flag should be persisted")
	}

	// A new detector on the same store sees the flag.
	if NewDetector(store).IsFirstLaunch() {
		t.Error("restart on the same store should not report first launch")
	}
}

func TestInstallTimestamp(t *testing.T) {
	d := NewDetector(storage.NewMemoryStore())

	if !d.InstallTime().IsZero() {
		t.Error("install time should be zero before first launch")
	}

	before := time.Now().Add(-time.Second)
	d.IsFirstLaunch()
	installed := d.InstallTime()
	if installed.Before(before) || installed.After(time.Now().Add(time.Second)) {
		t.Errorf("install time %v should be about now", installed)
	}
}

func TestSinceInstall(t *testing.T) {
	store := storage.NewMemoryStore()
	base := time.Now()
	d := &Detector{store: store, now: func() time.Time { return base }}
	d.IsFirstLaunch()

	d.now = func() time.Time { return base.Add(49 * time.Hour) }

	if h := d.SinceInstallHours(); h != 49 {
		t.Errorf("hours = %d", h)
	}
	if days := d.SinceInstallDays(); days != 2 {
		t.Errorf("days = %d", days)
	}
}

func TestSinceInstall_NoTimestamp(t *testing.T) {
	d := NewDetector(storage.NewMemoryStore())
	if d.SinceInstall() != 0 {
		t.Error("elapsed should be 0 without an install timestamp")
	}
}

func TestWithinAttributionWindow(t *testing.T) {
	store := storage.NewMemoryStore()
	base := time.Now()
	d := &Detector{store: store, now: func() time.Time { return base }}

	t.Run("no install timestamp", func(t *testing.T) {
		if d.WithinAttributionWindow(24 * time.Hour) {
			t.Error("no timestamp should never be within the window")
		}
	})

	d.IsFirstLaunch()
	d.now = func() time.Time { return base.Add(10 * time.Hour) }

	t.Run("inside window", func(t *testing.T) {
		if !d.WithinAttributionWindow(24 * time.Hour) {
			t.Error("10h elapsed should be within a 24h window")
		}
	})

	t.Run("outside window", func(t *testing.T) {
		if d.WithinAttributionWindow(time.Hour) {
			t.Error("10h elapsed should be outside a 1h window")
		}
	})
}

func TestSetInstallTime(t *testing.T) {
	d := NewDetector(storage.NewMemoryStore())
	want := time.Now().Add(-72 * time.Hour).Truncate(time.Second)
	d.SetInstallTime(want)

	if !d.InstallTime().Equal(want) {
		t.Errorf("install time = %v, want %v", d.InstallTime(), want)
	}
	if d.SinceInstallDays() != 3 {
		t.Errorf("days = %d", d.SinceInstallDays())
	}
}

func TestReset(t *testing.T) {
	d := NewDetector(storage.NewMemoryStore())
	d.IsFirstLaunch()

	d.Reset()

	if d.HasLaunchedBefore() {
		t.Error("reset should clear the launch flag")
	}
	if !d.IsFirstLaunch() {
		t.Error("reset should allow a fresh first launch")
	}
}

func TestState(t *testing.T) {
	d := NewDetector(storage.NewMemoryStore())

	state := d.State()
	if state["has_launched"] != false {
		t.Errorf("has_launched = %v", state["has_launched"])
	}
	if state["install_timestamp"] != int64(0) {
		t.Errorf("install_timestamp = %v", state["install_timestamp"])
	}

	d.IsFirstLaunch()
	state = d.State()
	if state["has_launched"] != true {
		t.Errorf("has_launched = %v", state["has_launched"])
	}
	if state["install_timestamp"] == int64(0) {
		t.Error("install_timestamp should be stamped")
	}
}
