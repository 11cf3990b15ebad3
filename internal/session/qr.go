package session

import "strings"

const base64Chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/="

// CleanQRPayload normalizes a gateway QR payload to a data-URI image.
// The gateway returns either a bare base64 string or a ready data URI
// depending on its version; anything that is neither is discarded.
func CleanQRPayload(raw string) *string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	if strings.HasPrefix(trimmed, "data:image/") {
		return &trimmed
	}
	if !isBase64(trimmed) {
		return nil
	}
	uri := "data:image/png;base64," + trimmed
	return &uri
}

func isBase64(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune(base64Chars, r) {
			return false
		}
	}
	return true
}
