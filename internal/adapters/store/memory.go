// Package store keeps user profiles for the auth and admin paths.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
)

// Memory is an in-process IdentityStore. Records outlive sessions but not
// the process.
type Memory struct {
	mu      sync.RWMutex
	records map[domain.Identity]*domain.UserRecord
}

func NewMemory() *Memory {
	return &Memory{records: make(map[domain.Identity]*domain.UserRecord)}
}

var _ core.IdentityStore = (*Memory)(nil)

func (m *Memory) Upsert(_ context.Context, id domain.Identity, p domain.Profile, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		rec = &domain.UserRecord{Identity: id, CreatedAt: at}
		m.records[id] = rec
		log.Debug().Str("module", "store.memory").Str("username", string(id)).Msg("created record")
	}
	rec.Profile = p
	rec.Active = true
	rec.LastSeen = at
	return nil
}

func (m *Memory) MarkInactive(_ context.Context, id domain.Identity, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[id]; ok {
		rec.Active = false
		rec.LastSeen = at
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, id domain.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	log.Debug().Str("module", "store.memory").Str("username", string(id)).Msg("deleted record")
	return nil
}

func (m *Memory) ListAll(_ context.Context, order core.SortOrder) ([]domain.UserRecord, error) {
	m.mu.RLock()
	out := make([]domain.UserRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, *rec)
	}
	m.mu.RUnlock()

	switch order {
	case core.SortByName:
		sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	default:
		sort.Slice(out, func(i, j int) bool {
			if out[i].LastSeen.Equal(out[j].LastSeen) {
				return out[i].Identity < out[j].Identity
			}
			return out[i].LastSeen.After(out[j].LastSeen)
		})
	}
	return out, nil
}
