// Package sanitize strips markup from caller-supplied content. Listings and
// bids accept arbitrary strings from untrusted agents; everything rendered
// back out must be plain text.
package sanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// strict removes every HTML element and attribute, leaving text content.
var strict = bluemonday.StrictPolicy()

// HTML strips all markup from s, returning plain text.
func HTML(s string) string {
	return strings.TrimSpace(strict.Sanitize(s))
}

// Metadata sanitizes every string value inside an arbitrary JSON-shaped value,
// depth-first. Maps and slices are walked recursively; non-string scalars
// (numbers, bools, nil) pass through unchanged. The input is not mutated.
func Metadata(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return HTML(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = Metadata(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = Metadata(item)
		}
		return out
	default:
		return v
	}
}

// MetadataMap applies Metadata to a decoded JSON object.
func MetadataMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	return Metadata(m).(map[string]interface{})
}
