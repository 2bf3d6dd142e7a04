package utils

import (
	"fmt"
	"regexp"
	"strings"
)

var addressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// NormalizeAddress validates a 20-byte hex address and returns it lowercased.
// Addresses are compared case-insensitively everywhere downstream.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !addressRe.MatchString(addr) {
		return "", fmt.Errorf("invalid address %q: want 0x-prefixed 40 hex chars", addr)
	}
	return strings.ToLower(addr), nil
}

// IsAddress reports whether addr looks like a 20-byte hex address.
func IsAddress(addr string) bool {
	return addressRe.MatchString(strings.TrimSpace(addr))
}
