package domain

import "time"

// Token holds the credential pair for one named API profile.
// There is at most one token per APIName; the refresher mutates it in place.
type Token struct {
	APIName       string
	AccessToken   string
	RefreshToken  string
	AccessExpiry  time.Time
	RefreshExpiry time.Time
	UpdatedAt     time.Time
}

// NearExpiry reports whether the access token's remaining life is below
// the refresh threshold.
func (t *Token) NearExpiry(now time.Time, threshold time.Duration) bool {
	return t.AccessExpiry.Sub(now) < threshold
}

// RefreshExpired reports whether the refresh token itself is no longer
// usable. A refresh call cannot recover from this; re-authorization is
// required.
func (t *Token) RefreshExpired(now time.Time) bool {
	return !t.RefreshExpiry.IsZero() && !now.Before(t.RefreshExpiry)
}
