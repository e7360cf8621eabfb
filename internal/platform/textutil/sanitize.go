package textutil

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// CleanText strips markup from customer-supplied free text and collapses
// surrounding whitespace. The result is safe to embed in notification
// payloads and stored records.
func CleanText(value string) string {
	value = strictPolicy.Sanitize(value)
	value = html.UnescapeString(value)
	return strings.TrimSpace(value)
}

// CleanStringMap sanitises every value of the map and trims keys, removing
// entries whose key becomes empty.
func CleanStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]string, len(values))
	for key, value := range values {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		result[trimmedKey] = CleanText(value)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
