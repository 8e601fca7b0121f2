package session

import "time"

// SafetyWindow is how close to expiry an access token may get before
// it is renewed ahead of use. Renewing early absorbs clock skew
// between us and the Blue cloud.
const SafetyWindow = 5 * time.Minute

// Credentials is the current access/refresh token pair for a Blue
// account. ExpiresAt is always derived from the server-reported
// lifetime at issuance, never guessed.
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Empty reports whether no session has been established yet.
func (c Credentials) Empty() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// NearExpiry reports whether the access token is within the safety
// window of its expiry (inclusive) at the given instant.
func (c Credentials) NearExpiry(now time.Time) bool {
	return !c.ExpiresAt.After(now.Add(SafetyWindow))
}
