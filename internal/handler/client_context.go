package handler

import (
	"encoding/hex"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-engine/internal/model"
	"golang.org/x/crypto/blake2b"
)

// fingerprintHeader carries the exam client's device fingerprint.
const fingerprintHeader = "X-Device-Fingerprint"

// Fingerprinter digests client-supplied device fingerprints so the raw
// value is never stored.
type Fingerprinter struct {
	key []byte
}

// NewFingerprinter creates a Fingerprinter keyed with key. An empty key
// yields an unkeyed digest.
func NewFingerprinter(key string) *Fingerprinter {
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256([]byte(key))
		return &Fingerprinter{key: sum[:]}
	}
	return &Fingerprinter{key: []byte(key)}
}

// Digest returns the hex BLAKE2b-256 of raw, or "" when raw is empty.
func (f *Fingerprinter) Digest(raw string) string {
	if raw == "" {
		return ""
	}
	h, err := blake2b.New256(f.key)
	if err != nil {
		return ""
	}
	h.Write([]byte(raw))
	return hex.EncodeToString(h.Sum(nil))
}

// clientContext captures the request origin recorded on a new attempt.
func (f *Fingerprinter) clientContext(c *gin.Context) model.ClientContext {
	return model.ClientContext{
		IPAddress:         c.ClientIP(),
		UserAgent:         truncate(c.Request.UserAgent(), 512),
		DeviceFingerprint: f.Digest(c.GetHeader(fingerprintHeader)),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
