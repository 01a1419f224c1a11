package enrich

import (
	"net/http"

	"github.com/tierpeak/apollo-middleman/internal/upstream"
)

// Result is everything needed to write the reply to the caller.
type Result struct {
	StatusCode int
	StatusText string
	Header     http.Header
	Body       []byte
	Outcome    Outcome
	Phone      string
}

// Assemble mirrors the upstream status onto the chosen body and filtered headers.
func Assemble(res *upstream.Response, out Output) Result {
	h := FilterHeaders(res.Header)
	if out.JSON && h.Get("Content-Type") == "" {
		h.Set("Content-Type", "application/json")
	}

	return Result{
		StatusCode: res.StatusCode,
		StatusText: res.StatusText,
		Header:     h,
		Body:       out.Body,
		Outcome:    out.Outcome,
		Phone:      out.Phone,
	}
}

// Failure is a reply produced by the proxy itself rather than mirrored from upstream.
func Failure(status int, msg string, outcome Outcome) Result {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set(MarkerHeader, MarkerValue)

	body, _ := marshal(map[string]string{"error": msg})

	return Result{
		StatusCode: status,
		StatusText: http.StatusText(status),
		Header:     h,
		Body:       body,
		Outcome:    outcome,
	}
}
