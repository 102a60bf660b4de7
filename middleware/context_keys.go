package middleware

// contextKey defines a type for context keys to avoid collisions.
type contextKey string

const (
	// SessionIDKey holds the session ID proven by the request's token.
	SessionIDKey contextKey = "session_id"
	// RequestIDKey holds the request's correlation ID.
	RequestIDKey contextKey = "request_id"
)
