package utils

import (
	"net/http"
)

// HeaderOrDefault returns the first value of the named header, or the
// given default when the header is absent. An empty default means an
// empty present value is returned as-is; absence is what triggers the
// fallback.
func HeaderOrDefault(headers http.Header, name, def string) string {
	if values, ok := headers[http.CanonicalHeaderKey(name)]; ok && len(values) > 0 {
		return values[0]
	}
	return def
}
