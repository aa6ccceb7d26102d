package transport

// User is the account identity the backend returns on login, refresh, and
// profile reads.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
}

// Session is the decoded body of a successful login or refresh response.
type Session struct {
	User User `json:"user"`

	// Fingerprint echoes the session fingerprint the backend bound the
	// cookie to, when the backend tracks one.
	Fingerprint string `json:"sessionFingerprint,omitempty"`

	// RateLimited marks a refresh that succeeded but was answered from
	// the backend's cooldown window; callers should treat the session as
	// live but skip optional follow-up traffic.
	RateLimited bool `json:"rateLimited,omitempty"`
}

type loginRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Fingerprint string `json:"sessionFingerprint,omitempty"`
}

type profileResponse struct {
	User User `json:"user"`
}
