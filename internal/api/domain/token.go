package domain

import "time"

// TokenPair is the result of a successful login, federated callback or
// refresh. Both values are compact JWTs.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// Session is a TokenPair together with the user it was issued for.
type Session struct {
	User   User
	Tokens TokenPair
}
