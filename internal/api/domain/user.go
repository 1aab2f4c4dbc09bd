package domain

import "time"

// User is a local identity. Password users carry a PasswordHash; federated
// users carry Provider and ProviderSubject instead (or both once linked).
type User struct {
	ID              string
	FullName        string
	Email           string // lowercased
	Username        string // lowercased
	PasswordHash    string // argon2id PHC string, empty for federated-only users
	Provider        string // e.g. "google"
	ProviderSubject string // the provider's stable "sub"

	// RefreshTokenHash is the fingerprint of the one refresh token that is
	// currently valid for this user. Empty means logged out.
	RefreshTokenHash string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PublicUser is what leaves the process: no password, no refresh slot.
type PublicUser struct {
	ID        string    `json:"id"`
	FullName  string    `json:"fullName"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Provider  string    `json:"provider,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Sanitized strips secrets from u.
func (u User) Sanitized() PublicUser {
	return PublicUser{
		ID:        u.ID,
		FullName:  u.FullName,
		Email:     u.Email,
		Username:  u.Username,
		Provider:  u.Provider,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// HasPassword reports whether the user can log in with a password.
func (u User) HasPassword() bool { return u.PasswordHash != "" }
