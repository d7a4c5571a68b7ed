// Package watermark provides the backends that persist the code of the last
// forwarded order.
package watermark

import (
	"strings"
)

// DefaultLabel prefixes the stored code
const DefaultLabel = "En son oluşturulan sipariş kodu"

// encode renders the single stored line
func encode(label, code string) string {
	return label + ":" + code
}

// decode returns the text after the first colon, trimmed.
// A value without a colon has no code.
func decode(raw string) string {
	_, code, found := strings.Cut(raw, ":")
	if !found {
		return ""
	}
	return strings.TrimSpace(code)
}
