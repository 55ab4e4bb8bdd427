package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ComputeEventID computes a deterministic event id using SHA256.
// Formula: SHA256(lower(wallet)|lower(tx_hash))
// Returns hex-encoded hash (64 characters).
func ComputeEventID(wallet string, txHash string) string {
	data := fmt.Sprintf("%s|%s",
		strings.ToLower(wallet),
		strings.ToLower(txHash),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeRowID computes a deterministic report row id using SHA256.
// Formula: SHA256(event_id|method)
// Each accounting method yields its own row for the same event.
func ComputeRowID(eventID string, method string) string {
	hash := sha256.Sum256([]byte(eventID + "|" + method))
	return hex.EncodeToString(hash[:])
}
