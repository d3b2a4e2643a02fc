package domain

import "time"

// Kind classifies an account's lifecycle class. The classes are mutually
// exclusive: an account is exactly one of anonymous, temporary or permanent.
type Kind string

const (
	KindAnonymous Kind = "anonymous"
	KindTemporary Kind = "temporary"
	KindPermanent Kind = "permanent"
)

// Valid reports whether k is a known account kind.
func (k Kind) Valid() bool {
	switch k {
	case KindAnonymous, KindTemporary, KindPermanent:
		return true
	}
	return false
}

// Account is a platform identity keyed by username.
type Account struct {
	Username    string    `json:"username"`
	Secret      string    `json:"secret"`
	Kind        Kind      `json:"kind"`
	Linked      string    `json:"linked,omitempty"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PublicAccount is the projection exposed to batch and public reads.
// It never carries the secret.
type PublicAccount struct {
	Username    string `json:"username"`
	Linked      string `json:"linked,omitempty"`
	DisplayName string `json:"displayName"`
}

// Public returns the public projection of the account.
func (a Account) Public() PublicAccount {
	return PublicAccount{
		Username:    a.Username,
		Linked:      a.Linked,
		DisplayName: a.DisplayName,
	}
}

// StalerThan reports whether the account was created more than age before now.
func (a Account) StalerThan(now time.Time, age time.Duration) bool {
	if a.CreatedAt.IsZero() {
		return false
	}
	return now.UTC().Sub(a.CreatedAt.UTC()) > age
}
