package core

import (
	"context"
	"time"

	"github.com/dkeye/Relay/internal/domain"
)

type SortOrder int

const (
	SortByLastSeen SortOrder = iota
	SortByName
)

// IdentityStore persists profiles. It is only touched from the auth and
// admin paths, never while routing messages or calls.
type IdentityStore interface {
	Upsert(ctx context.Context, id domain.Identity, p domain.Profile, at time.Time) error
	MarkInactive(ctx context.Context, id domain.Identity, at time.Time) error
	Delete(ctx context.Context, id domain.Identity) error
	ListAll(ctx context.Context, order SortOrder) ([]domain.UserRecord, error)
}

// GeoLocator resolves a remote address. Any error means unknown region.
type GeoLocator interface {
	Lookup(ctx context.Context, addr string) (domain.Geo, error)
}

// CredentialChecker decides once, at auth, whether a connection is an admin.
type CredentialChecker interface {
	IsPrivileged(id domain.Identity, secret string) bool
}
