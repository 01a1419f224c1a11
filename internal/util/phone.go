package util

import "strings"

// StripNANPPrefix drops a leading "+1" country code from an E.164 number.
// Anything else is returned unchanged.
func StripNANPPrefix(raw string) string {
	return strings.TrimPrefix(raw, "+1")
}
