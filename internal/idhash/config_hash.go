package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"options-spread-lab/internal/config"
)

// ComputeConfigHash fingerprints a strategy parameter table.
// Formula: SHA256(name=value|name=value|...) in table order.
// Returns hex-encoded hash (64 characters).
func ComputeConfigHash(params []config.Parameter) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = p.Name + "=" + p.Value
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}
