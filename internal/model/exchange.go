package model

import "time"

// Exchange is the journal record of one proxied people-match call. Bodies are never stored.
type Exchange struct {
	ID             string    `json:"id"              db:"id"`
	Method         string    `json:"method"          db:"method"`
	UpstreamStatus int       `json:"upstream_status" db:"upstream_status"` // 0 when unreachable
	Outcome        string    `json:"outcome"         db:"outcome"`
	PhoneFound     bool      `json:"phone_found"     db:"phone_found"`
	RequestBytes   int       `json:"request_bytes"   db:"request_bytes"`
	ResponseBytes  int       `json:"response_bytes"  db:"response_bytes"`
	LatencyMs      int64     `json:"latency_ms"      db:"latency_ms"`
	CreatedAt      time.Time `json:"created_at"      db:"created_at"`
}
