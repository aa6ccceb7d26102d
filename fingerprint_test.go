package sessionkit

import (
	"testing"
	"time"
)

func TestFingerprintDigestShape(t *testing.T) {
	fp := newFingerprint(FingerprintConfig{
		Enabled:  true,
		Locale:   "en-US",
		Timezone: "America/New_York",
		Display:  "2560x1440",
	}, "sessionkit/1")

	digest := fp.Digest()
	if len(digest) != 64 {
		t.Fatalf("digest length = %d, want 64 hex chars", len(digest))
	}
	for _, r := range digest {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			t.Fatalf("digest contains non-hex rune %q", r)
		}
	}
}

func TestFingerprintDigestStable(t *testing.T) {
	fp := Fingerprint{
		InstanceID: "11111111-2222-3333-4444-555555555555",
		UserAgent:  "sessionkit/1",
		Locale:     "en-US",
		Timezone:   "UTC",
		Display:    "1920x1080",
		CreatedAt:  time.Unix(1700000000, 0).UTC(),
	}

	first := fp.Digest()
	for i := 0; i < 10; i++ {
		if got := fp.Digest(); got != first {
			t.Fatalf("digest changed between calls: %q vs %q", got, first)
		}
	}
}

func TestFingerprintUniquePerInstance(t *testing.T) {
	cfg := FingerprintConfig{Enabled: true, Locale: "en", Timezone: "UTC", Display: "any"}

	a := newFingerprint(cfg, "sessionkit/1")
	b := newFingerprint(cfg, "sessionkit/1")

	if a.InstanceID == b.InstanceID {
		t.Fatal("two instances share an instance id")
	}
	if a.Digest() == b.Digest() {
		t.Fatal("two instances share a digest")
	}
}

func TestFingerprintAttributeChangesDigest(t *testing.T) {
	base := Fingerprint{
		InstanceID: "fixed",
		UserAgent:  "sessionkit/1",
		Locale:     "en-US",
		Timezone:   "UTC",
		Display:    "1920x1080",
		CreatedAt:  time.Unix(1700000000, 0).UTC(),
	}

	moved := base
	moved.Timezone = "Asia/Tokyo"

	if base.Digest() == moved.Digest() {
		t.Fatal("timezone change did not alter the digest")
	}
}

func TestFingerprintUnknownDefaults(t *testing.T) {
	fp := newFingerprint(FingerprintConfig{Enabled: true}, "sessionkit/1")

	if fp.Locale != "unknown" || fp.Timezone != "unknown" || fp.Display != "unknown" {
		t.Fatalf("unset attributes = %q/%q/%q, want unknown", fp.Locale, fp.Timezone, fp.Display)
	}
	if fp.InstanceID == "" {
		t.Fatal("instance id not populated")
	}
	if fp.CreatedAt.IsZero() {
		t.Fatal("creation time not populated")
	}
}
