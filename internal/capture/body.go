package capture

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DefaultMaxBodyBytes caps stored response bodies.
const DefaultMaxBodyBytes = 100 * 1024

const binaryPlaceholder = "[binary content]"

// DecodeBody turns a Network.getResponseBody result into the string stored
// in the record. Base64 payloads over maxBytes become a placeholder naming
// the decoded size; plain text over maxBytes is cut and marked. Invalid
// UTF-8 is replaced, never rejected. ok is false when there is no body.
func DecodeBody(body string, base64Encoded bool, maxBytes int) (string, bool) {
	if body == "" {
		return "", false
	}

	if base64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return binaryPlaceholder, true
		}
		if maxBytes > 0 && len(decoded) > maxBytes {
			return fmt.Sprintf("[truncated: %d bytes]", len(decoded)), true
		}
		if len(decoded) == 0 {
			return "", false
		}
		return strings.ToValidUTF8(string(decoded), "\uFFFD"), true
	}

	out, truncated, originalSize := truncateStringBytes(body, maxBytes)
	out = strings.ToValidUTF8(out, "\uFFFD")
	if truncated {
		out += fmt.Sprintf("\n[truncated: %d bytes total]", originalSize)
	}
	return out, true
}
