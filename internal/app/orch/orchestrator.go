package orch

import (
	"time"

	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

// Orchestrator owns the lifecycle flows that touch more than one of
// registry, call coordinator, router and the external collaborators.
type Orchestrator struct {
	Registry *app.Registry
	Calls    *app.Calls
	Router   *app.Router
	Store    core.IdentityStore
	Geo      core.GeoLocator
	Creds    core.CredentialChecker

	now func() time.Time
}

type Options struct {
	Policy      app.Policy
	CallTimeout time.Duration
	RegionCheck bool
	Store       core.IdentityStore
	Geo         core.GeoLocator
	Creds       core.CredentialChecker
}

func New(opts Options) *Orchestrator {
	reg := app.NewRegistry()
	router := app.NewRouter(reg, opts.Policy)
	return &Orchestrator{
		Registry: reg,
		Calls:    app.NewCalls(reg, router, opts.CallTimeout, opts.RegionCheck),
		Router:   router,
		Store:    opts.Store,
		Geo:      opts.Geo,
		Creds:    opts.Creds,
		now:      time.Now,
	}
}

// Roster is the list_users answer: online identities with their call state.
func (o *Orchestrator) Roster() []core.UserDTO {
	ids := o.Registry.Snapshot()
	out := make([]core.UserDTO, 0, len(ids))
	for _, id := range ids {
		dto := core.UserDTO{
			Username:  string(id),
			CallState: o.Calls.State(id),
			CallType:  o.Calls.Kind(id),
		}
		if s, ok := o.Registry.Lookup(id); ok {
			dto.DisplayName = s.Profile.DisplayName
		}
		out = append(out, dto)
	}
	return out
}

func (o *Orchestrator) UserList() core.UserList {
	return core.UserList{Type: core.KindUserList, Users: o.Roster()}
}

// PublicUserList is the roster served without authentication: names and
// call state only, no profile data.
func (o *Orchestrator) PublicUserList() core.UserList {
	roster := o.Roster()
	for i := range roster {
		roster[i].DisplayName = ""
	}
	return core.UserList{Type: core.KindUserList, Users: roster}
}

// Online reports whether a private chat with id can be enabled.
func (o *Orchestrator) Online(id domain.Identity) bool {
	return o.Registry.Online(id)
}

// Owns reports whether id is still registered to the connection sid.
func (o *Orchestrator) Owns(id domain.Identity, sid core.SessionID) bool {
	s, ok := o.Registry.Lookup(id)
	return ok && s.ID == sid
}
