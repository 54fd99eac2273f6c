// Package domain contains entities and the checks that guard them
package domain

import (
	"errors"
	"strings"
	"time"
)

const (
	MaxIdentityLen    = 36
	MaxDisplayNameLen = 64
)

var (
	ErrIdentityEmpty       = errors.New("username empty")
	ErrIdentityTooLong     = errors.New("username too long")
	ErrIdentityReserved    = errors.New("username reserved")
	ErrDisplayNameRequired = errors.New("display name required")
	ErrDisplayNameTooLong  = errors.New("display name too long")
)

// Identity is the name a client picks at auth time. It keys every registry.
type Identity string

// GroupIdentity is the pseudo-receiver meaning "everyone but the sender".
const GroupIdentity Identity = "GROUP"

// ParseIdentity trims and checks a client supplied username.
func ParseIdentity(raw string) (Identity, error) {
	s := strings.TrimSpace(raw)
	if len(s) == 0 {
		return "", ErrIdentityEmpty
	}
	if len(s) > MaxIdentityLen {
		return "", ErrIdentityTooLong
	}
	if Identity(s) == GroupIdentity {
		return "", ErrIdentityReserved
	}
	return Identity(s), nil
}

func (id Identity) String() string { return string(id) }

// Profile is what gets persisted for an identity on every successful auth.
type Profile struct {
	DisplayName string `json:"displayName"`
	Geo         Geo    `json:"geo"`
}

// NewProfile is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewProfile(displayName string, geo Geo) (Profile, error) {
	name := strings.TrimSpace(displayName)
	if len(name) == 0 {
		return Profile{}, ErrDisplayNameRequired
	}
	if len(name) > MaxDisplayNameLen {
		return Profile{}, ErrDisplayNameTooLong
	}
	return Profile{DisplayName: name, Geo: geo}, nil
}

// UserRecord is a persisted identity as the identity store returns it.
type UserRecord struct {
	Identity  Identity  `json:"username"`
	Profile   Profile   `json:"profile"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	LastSeen  time.Time `json:"lastSeen"`
}
