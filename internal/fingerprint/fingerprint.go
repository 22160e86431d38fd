// Package fingerprint derives the device identifiers used for deferred
// attribution matching. Two algorithms exist and they are not interchangeable:
// V1 must byte-match the backend's click-time computation, while Full is a
// richer hash used where no backend coordination is required.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/paylisher/paylisher-go/internal/storage"
)

// ErrNoComponents is returned when no device signal at all is available to
// hash.
var ErrNoComponents = errors.New("fingerprint: no device components available")

// DeviceInfo carries the raw device signals a fingerprint is derived from.
// Host applications supply their own values; Host() gives a best-effort
// default for the current process.
type DeviceInfo struct {
	Model     string // e.g. "iPhone"
	Name      string // e.g. "iPhone 13 Pro"
	OSVersion string // e.g. "17.2"

	ScreenWidth  int
	ScreenHeight int
	ScreenScale  float64

	Timezone string // IANA id, e.g. "Europe/Istanbul"
	Language string // 2-letter code, e.g. "tr"
	Locale   string // full identifier, e.g. "tr_TR"
}

// Host derives best-effort device info from the running process.
func Host() DeviceInfo {
	name, _ := os.Hostname()
	locale := processLocale()
	return DeviceInfo{
		Model:     runtime.GOOS + "/" + runtime.GOARCH,
		Name:      name,
		OSVersion: runtime.Version(),
		Timezone:  time.Now().Location().String(),
		Language:  languageCode(locale),
		Locale:    locale,
	}
}

func processLocale() string {
	for _, key := range []string{"LC_ALL", "LANG"} {
		if v := os.Getenv(key); v != "" {
			if i := strings.IndexByte(v, '.'); i > 0 {
				v = v[:i]
			}
			return v
		}
	}
	return "en_US"
}

func languageCode(locale string) string {
	if i := strings.IndexAny(locale, "_-"); i > 0 {
		return locale[:i]
	}
	if locale == "" {
		return "en"
	}
	return locale
}

// V1 computes the click-matching fingerprint from public device signals
// only. The backend computes the same hash from the click-time HTTP request,
// so component order, casing and normalization are frozen: any change here
// requires a coordinated backend change or attribution breaks silently.
//
// Components, joined with "|": model, OS version, "minxmax" of the screen
// bounds (order-invariant under rotation), IANA timezone, 2-letter language
// code. SHA-256, lowercase hex.
func V1(info DeviceInfo) string {
	w, h := info.ScreenWidth, info.ScreenHeight
	lo, hi := min(w, h), max(w, h)

	lang := info.Language
	if lang == "" {
		lang = "en"
	}

	combined := strings.Join([]string{
		info.Model,
		info.OSVersion,
		fmt.Sprintf("%dx%d", lo, hi),
		info.Timezone,
		lang,
	}, "|")

	sum := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(sum[:])
}

// AdvertisingIDFunc returns the advertising identifier when, and only when,
// the user has granted tracking authorization. ok=false means the id is
// omitted from the fingerprint; it is never replaced with a placeholder.
// The call may block while an authorization prompt is pending, hence the
// context.
type AdvertisingIDFunc func(ctx context.Context) (id string, ok bool)

const zeroUUID = "00000000-0000-0000-0000-000000000000"

// Generator derives the full (rich) fingerprint variant.
type Generator struct {
	store         storage.Store
	advertisingID AdvertisingIDFunc
}

// NewGenerator creates a Generator. advertisingID may be nil when the host
// has no advertising identifier source.
func NewGenerator(store storage.Store, advertisingID AdvertisingIDFunc) *Generator {
	return &Generator{store: store, advertisingID: advertisingID}
}

// VendorID returns the persistent per-install vendor identifier, creating
// it on first use.
func (g *Generator) VendorID() string {
	if id, ok := g.store.GetString(storage.KeyVendorID); ok && id != "" {
		return id
	}
	id := uuid.New().String()
	g.store.SetString(storage.KeyVendorID, id)
	return id
}

// Full computes the rich fingerprint. Unlike V1 it is allowed to change
// across authorization-state changes; it is not used for click matching.
func (g *Generator) Full(ctx context.Context, info DeviceInfo, includeAdvertisingID bool) (string, error) {
	var components []string

	if id := g.VendorID(); id != "" {
		components = append(components, id)
	}

	if includeAdvertisingID && g.advertisingID != nil {
		if id, ok := g.advertisingID(ctx); ok && id != "" && id != zeroUUID {
			components = append(components, id)
		}
	}

	for _, c := range []string{info.Model, info.Name, info.OSVersion} {
		if c != "" {
			components = append(components, c)
		}
	}
	if info.ScreenWidth > 0 || info.ScreenHeight > 0 {
		components = append(components, fmt.Sprintf("%dx%d", info.ScreenWidth, info.ScreenHeight))
	}
	for _, c := range []string{info.Timezone, info.Locale} {
		if c != "" {
			components = append(components, c)
		}
	}
	if info.ScreenScale > 0 {
		components = append(components, fmt.Sprintf("%.1f", info.ScreenScale))
	}

	if len(components) == 0 {
		return "", ErrNoComponents
	}

	sum := sha256.Sum256([]byte(strings.Join(components, "|")))
	return hex.EncodeToString(sum[:]), nil
}
