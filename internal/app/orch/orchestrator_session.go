package orch

import (
	"context"
	"errors"

	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
)

type Role int

const (
	RoleNone Role = iota
	RoleUser
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAdmin:
		return "admin"
	default:
		return "pending"
	}
}

type AuthRequest struct {
	SessionID   core.SessionID
	Conn        core.SignalConnection
	RemoteAddr  string
	Username    string
	DisplayName string
	Secret      string
}

type AuthResult struct {
	Role     Role
	Identity domain.Identity
	Geo      domain.Geo
}

// Authenticate binds a connection to an identity, or to the admin set when
// the credentials are privileged. Geolocation and persistence complete
// before the registry is touched; their failures only degrade.
func (o *Orchestrator) Authenticate(ctx context.Context, req AuthRequest) (AuthResult, error) {
	id, err := domain.ParseIdentity(req.Username)
	if err != nil {
		return AuthResult{}, err
	}

	if o.Creds != nil && o.Creds.IsPrivileged(id, req.Secret) {
		o.Registry.AddAdmin(req.SessionID, req.Conn)
		o.Router.Send(req.Conn, core.AuthSuccess{Type: core.KindAuthSuccess, Username: string(id), IsAdmin: true})
		o.Router.Send(req.Conn, o.AdminUserList(ctx, 0))
		log.Info().Str("module", "orch").Str("sid", string(req.SessionID)).Str("username", string(id)).Msg("admin authenticated")
		return AuthResult{Role: RoleAdmin, Identity: id}, nil
	}

	if o.Registry.Online(id) {
		return AuthResult{}, domain.ErrAlreadyTaken
	}

	geo := o.locate(ctx, req.RemoteAddr)
	profile, err := domain.NewProfile(req.DisplayName, geo)
	if err != nil {
		return AuthResult{}, err
	}
	if o.Store != nil {
		if err := o.Store.Upsert(ctx, id, profile, o.now()); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("username", string(id)).Msg("profile upsert failed, continuing")
		}
	}

	sess := &app.Session{
		ID:       req.SessionID,
		Identity: id,
		Profile:  profile,
		Conn:     req.Conn,
		JoinedAt: o.now(),
	}
	if err := o.Registry.Register(sess); err != nil {
		return AuthResult{}, err
	}

	o.Router.Send(req.Conn, core.AuthSuccess{
		Type:     core.KindAuthSuccess,
		Username: string(id),
		Country:  geo.Region,
	})
	o.Router.Broadcast(core.Presence{Type: core.KindUserJoined, Username: string(id)}, id)
	o.refreshAdmins(ctx)
	return AuthResult{Role: RoleUser, Identity: id, Geo: geo}, nil
}

func (o *Orchestrator) locate(ctx context.Context, addr string) domain.Geo {
	if o.Geo == nil {
		return domain.Geo{}
	}
	geo, err := o.Geo.Lookup(ctx, addr)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("addr", addr).Msg("geo lookup failed, region unknown")
		return domain.Geo{}
	}
	return geo
}

// Leave is the natural disconnect of the connection sid that owned id.
func (o *Orchestrator) Leave(ctx context.Context, id domain.Identity, sid core.SessionID) {
	if _, ok := o.Registry.Release(id, sid); !ok {
		return
	}
	o.depart(ctx, id, sid)
	if o.Store != nil {
		if err := o.Store.MarkInactive(ctx, id, o.now()); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("username", string(id)).Msg("mark inactive failed")
		}
	}
	o.refreshAdmins(ctx)
}

// LeaveAdmin drops an admin observer.
func (o *Orchestrator) LeaveAdmin(sid core.SessionID) {
	o.Registry.RemoveAdmin(sid)
}

// Evict forcibly removes id and closes its connection. Returns false when
// id was not online.
func (o *Orchestrator) Evict(ctx context.Context, id domain.Identity) bool {
	s, ok := o.Registry.Unregister(id)
	if !ok {
		return false
	}
	o.depart(ctx, id, s.ID)
	s.Conn.Close()
	log.Info().Str("module", "orch").Str("sid", string(s.ID)).Str("username", string(id)).Msg("evicted")
	return true
}

// depart runs after the registry entry is gone.
func (o *Orchestrator) depart(_ context.Context, id domain.Identity, sid core.SessionID) {
	o.Calls.OnDeparture(id, sid)
	o.Router.Broadcast(core.Presence{Type: core.KindUserLeft, Username: string(id)}, "")
}

// IsAuthError tells the dispatcher which failures are answered with
// auth_error without closing the connection.
func IsAuthError(err error) bool {
	return errors.Is(err, domain.ErrIdentityEmpty) ||
		errors.Is(err, domain.ErrIdentityTooLong) ||
		errors.Is(err, domain.ErrIdentityReserved) ||
		errors.Is(err, domain.ErrDisplayNameRequired) ||
		errors.Is(err, domain.ErrDisplayNameTooLong)
}
