package session

// Session is the server-held record issued on full login success. The caller
// only ever holds SessionID; everything else stays on this side.
type Session struct {
	SessionID string
	AccountID string
	Role      string

	// CreatedAt and ExpiresAt are Unix milliseconds.
	CreatedAt int64
	ExpiresAt int64
}
