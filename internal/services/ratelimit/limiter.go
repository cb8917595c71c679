// Package ratelimit names the fixed-window request limiters and identifies
// the client a request is counted against.
//
// Each limiter name has its own window and budget, so a client may be inside
// the general limit while blocked on order creation. Fixed windows let a
// burst straddling a boundary reach up to twice the nominal rate.
package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
)

// Limiter names
const (
	General = "general"
	Order   = "order"
	UTR     = "utr"
	Admin   = "admin"
	Auth    = "auth"
)

// Key is the storage key of clientKey's counter in the named limiter.
func Key(name, clientKey string) string {
	return name + ":" + clientKey
}

// ClientKey identifies a client by IP. Without an IP, or when the IP is a
// private or loopback address (typically an untrusted proxy hop), the user
// agent is folded in so clients behind one hop do not share a bucket.
func ClientKey(ip, userAgent string) string {
	if ip == "" {
		return "ua:" + shortHash(userAgent)
	}
	if parsed := net.ParseIP(ip); parsed != nil && (parsed.IsLoopback() || parsed.IsPrivate()) {
		return ip + "|" + shortHash(userAgent)
	}
	return ip
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
