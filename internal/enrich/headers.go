package enrich

import (
	"net/http"
	"strings"
)

const (
	MarkerHeader = "x-tierpeak-apollo-middleman"
	MarkerValue  = "1"
)

// FilterHeaders keeps x-* and Content-Type headers and stamps the marker.
// Names are matched case-insensitively.
func FilterHeaders(h http.Header) http.Header {
	out := make(http.Header, len(h)+1)
	for k, vs := range h {
		lk := strings.ToLower(k)
		if !strings.HasPrefix(lk, "x-") && lk != "content-type" {
			continue
		}
		out[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	out.Set(MarkerHeader, MarkerValue)
	return out
}
