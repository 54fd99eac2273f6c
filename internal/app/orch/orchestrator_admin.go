package orch

import (
	"context"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
)

// AdminUsers joins persisted records with live presence.
func (o *Orchestrator) AdminUsers(ctx context.Context) []core.AdminUserDTO {
	if o.Store == nil {
		return []core.AdminUserDTO{}
	}
	recs, err := o.Store.ListAll(ctx, core.SortByLastSeen)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("list users failed")
		return []core.AdminUserDTO{}
	}
	out := make([]core.AdminUserDTO, 0, len(recs))
	for _, r := range recs {
		out = append(out, core.AdminUserDTO{
			Username:    string(r.Identity),
			DisplayName: r.Profile.DisplayName,
			Country:     r.Profile.Geo.Region,
			Latitude:    r.Profile.Geo.Latitude,
			Longitude:   r.Profile.Geo.Longitude,
			Online:      o.Registry.Online(r.Identity),
			CallState:   o.Calls.State(r.Identity),
			LastSeen:    r.LastSeen,
			CreatedAt:   r.CreatedAt,
		})
	}
	return out
}

func (o *Orchestrator) AdminUserList(ctx context.Context, deleted int) core.AdminUserList {
	return core.AdminUserList{Type: core.KindAdminUserList, Users: o.AdminUsers(ctx), Deleted: deleted}
}

// AdminDelete evicts id if online and drops its record. The caller
// publishes the refreshed list.
func (o *Orchestrator) AdminDelete(ctx context.Context, id domain.Identity) int {
	evicted := o.Evict(ctx, id)
	deleted := 0
	if o.Store != nil {
		if err := o.Store.Delete(ctx, id); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("username", string(id)).Msg("delete record failed")
		} else {
			deleted = 1
		}
	}
	log.Info().Str("module", "orch").Str("username", string(id)).Bool("evicted", evicted).Msg("admin delete")
	return deleted
}

// AdminDeleteInactive drops every record whose identity is offline.
func (o *Orchestrator) AdminDeleteInactive(ctx context.Context) int {
	if o.Store == nil {
		return 0
	}
	recs, err := o.Store.ListAll(ctx, core.SortByName)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("list users failed")
		return 0
	}
	n := 0
	for _, r := range recs {
		if o.Registry.Online(r.Identity) {
			continue
		}
		if err := o.Store.Delete(ctx, r.Identity); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("username", string(r.Identity)).Msg("delete record failed")
			continue
		}
		n++
	}
	log.Info().Str("module", "orch").Int("deleted", n).Msg("admin delete inactive")
	return n
}

// PublishAdminList pushes the current admin_user_list to every admin.
func (o *Orchestrator) PublishAdminList(ctx context.Context, deleted int) {
	if len(o.Registry.Admins()) == 0 {
		return
	}
	o.Router.BroadcastToAdmins(o.AdminUserList(ctx, deleted))
}

func (o *Orchestrator) refreshAdmins(ctx context.Context) {
	o.PublishAdminList(ctx, 0)
}
