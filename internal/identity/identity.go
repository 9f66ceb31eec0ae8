// Package identity derives the content-addressed UUIDs used throughout the
// control plane as cluster names, API path segments, and index keys (§3.2).
package identity

import (
	"crypto/md5" //nolint:gosec // content-addressing, not a security boundary
	"encoding/hex"
	"strconv"
)

// Endpoint computes endpoint_uuid = md5(lbPort ∥ urlPrefix ∥ "\n").
func Endpoint(lbPort, urlPrefix string) string {
	return hash(lbPort + urlPrefix + "\n")
}

// Server computes server_uuid = md5(address ∥ decimal(port) ∥ "\n").
func Server(address string, port int) string {
	return hash(address + strconv.Itoa(port) + "\n")
}

func hash(s string) string {
	sum := md5.Sum([]byte(s)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}
