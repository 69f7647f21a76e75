package constants

import "time"

// TimestampFormat is used for every timestamp the API returns.
const TimestampFormat = time.RFC3339

// Rate limiting defaults. The global limit applies per client IP to every
// route; the signup limit is stricter and applies to POST /v1/waitlist only.
const (
	DefaultRateLimitRequests = 100
	DefaultRateLimitWindow   = time.Minute

	DefaultSignupRateLimit  = 30
	DefaultSignupRateWindow = time.Minute
)
