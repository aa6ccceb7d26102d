package sessionkit

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Fingerprint identifies one client instance for the life of a session. The
// digest anchors session continuity: the backend echoes the fingerprint it
// bound the cookie to, and a refresh whose echo differs from the one
// recorded at login forces a logout.
type Fingerprint struct {
	InstanceID string
	UserAgent  string
	Locale     string
	Timezone   string
	Display    string
	CreatedAt  time.Time
}

func newFingerprint(cfg FingerprintConfig, userAgent string) Fingerprint {
	return Fingerprint{
		InstanceID: uuid.NewString(),
		UserAgent:  userAgent,
		Locale:     orUnknown(cfg.Locale),
		Timezone:   orUnknown(cfg.Timezone),
		Display:    orUnknown(cfg.Display),
		CreatedAt:  time.Now().UTC(),
	}
}

// Digest renders the canonical SHA-256 hex digest of the fingerprint.
func (f Fingerprint) Digest() string {
	canonical := strings.Join([]string{
		f.InstanceID,
		f.UserAgent,
		f.Locale,
		f.Timezone,
		f.Display,
		strconv.FormatInt(f.CreatedAt.Unix(), 10),
	}, "|")
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

func orUnknown(v string) string {
	if strings.TrimSpace(v) == "" {
		return "unknown"
	}
	return v
}
