package fingerprint

import (
	"context"
	"testing"

	"github.com/paylisher/paylisher-go/internal/storage"
)

var testInfo = DeviceInfo{
	Model:        "iPhone",
	Name:         "iPhone 13 Pro",
	OSVersion:    "17.2",
	ScreenWidth:  390,
	ScreenHeight: 844,
	ScreenScale:  3.0,
	Timezone:     "Europe/Istanbul",
	Language:     "tr",
	Locale:       "tr_TR",
}

func TestV1_KnownVector(t *testing.T) {
	// sha256("iPhone|17.2|390x844|Europe/Istanbul|tr"). The components and
	// their order are a backend contract; this vector pins them.
	const want = "0e91842a14dae57f0f7645e51008851fbc871ff8d26374c658812009e4735c4c"
	if got := V1(testInfo); got != want {
		t.Errorf("V1 = %s, want %s", got, want)
	}
}

func TestV1_RotationInvariant(t *testing.T) {
	rotated := testInfo
	rotated.ScreenWidth, rotated.ScreenHeight = rotated.ScreenHeight, rotated.ScreenWidth
	if V1(testInfo) != V1(rotated) {
		t.Error("swapping screen dimensions must not change the hash")
	}
}

func TestV1_LanguageDefault(t *testing.T) {
	// sha256("iPhone|17.2|390x844|Europe/Istanbul|en")
	const want = "cae70bf4da12a0735168b1a89b156e149a6ae1ff1e334d8f42b291c5677cf733"
	info := testInfo
	info.Language = ""
	if got := V1(info); got != want {
		t.Errorf("V1 with empty language = %s, want %s", got, want)
	}
}

func TestV1_IgnoresFullOnlyFields(t *testing.T) {
	stripped := testInfo
	stripped.Name = ""
	stripped.Locale = ""
	stripped.ScreenScale = 0
	if V1(testInfo) != V1(stripped) {
		t.Error("V1 must only depend on its five components")
	}
}

func TestVendorID(t *testing.T) {
	store := storage.NewMemoryStore()
	g := NewGenerator(store, nil)

	id := g.VendorID()
	if id == "" {
		t.Fatal("vendor id should be generated")
	}
	if g.VendorID() != id {
		t.Error("vendor id should be stable")
	}
	// Persisted: a new generator on the same store sees the same id.
	if NewGenerator(store, nil).VendorID() != id {
		t.Error("vendor id should survive generator recreation")
	}
	// A different store means a different install.
	if NewGenerator(storage.NewMemoryStore(), nil).VendorID() == id {
		t.Error("distinct stores should get distinct vendor ids")
	}
}

func TestFull_Deterministic(t *testing.T) {
	g := NewGenerator(storage.NewMemoryStore(), nil)

	a, err := g.Full(context.Background(), testInfo, false)
	if err != nil {
		t.Fatalf("Full: %v", err)
	}
	b, err := g.Full(context.Background(), testInfo, false)
	if err != nil {
		t.Fatalf("Full: %v", err)
	}
	if a != b {
		t.Error("same inputs should give the same hash")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}

func TestFull_AdvertisingID(t *testing.T) {
	store := storage.NewMemoryStore()

	authorized := NewGenerator(store, func(ctx context.Context) (string, bool) {
		return "ad-id-123", true
	})
	denied := NewGenerator(store, func(ctx context.Context) (string, bool) {
		return "", false
	})
	zero := NewGenerator(store, func(ctx context.Context) (string, bool) {
		return "00000000-0000-0000-0000-000000000000", true
	})

	withID, err := authorized.Full(context.Background(), testInfo, true)
	if err != nil {
		t.Fatal(err)
	}
	withoutID, err := authorized.Full(context.Background(), testInfo, false)
	if err != nil {
		t.Fatal(err)
	}
	deniedHash, err := denied.Full(context.Background(), testInfo, true)
	if err != nil {
		t.Fatal(err)
	}
	zeroHash, err := zero.Full(context.Background(), testInfo, true)
	if err != nil {
		t.Fatal(err)
	}

	if withID == withoutID {
		t.Error("including the advertising id should change the hash")
	}
	if deniedHash != withoutID {
		t.Error("denied authorization should hash as if no id was requested")
	}
	if zeroHash != withoutID {
		t.Error("the all-zero id must be treated as absent")
	}
}

func TestHost(t *testing.T) {
	info := Host()
	if info.Model == "" || info.OSVersion == "" {
		t.Errorf("host info should have model and os version: %+v", info)
	}
	if V1(info) == "" {
		t.Error("host info should hash")
	}
}

func TestLanguageCode(t *testing.T) {
	tests := []struct {
		locale string
		want   string
	}{
		{"tr_TR", "tr"},
		{"en-US", "en"},
		{"de", "de"},
		{"", "en"},
	}
	for _, tt := range tests {
		if got := languageCode(tt.locale); got != tt.want {
			t.Errorf("languageCode(%q) = %q, want %q", tt.locale, got, tt.want)
		}
	}
}
