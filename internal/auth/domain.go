package auth

import "time"

const (
	// stampSessionKey holds the password generation the session was signed in with.
	stampSessionKey = "auth_stamp"

	// LoginPath is where anonymous requesters are sent.
	LoginPath = "/session/new"
	// RootPath is where signed-in requesters land.
	RootPath = "/"
)

// SessionRecord is the audit row kept for every signed-in session.
type SessionRecord struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
	IP        string
	UserAgent string
}
