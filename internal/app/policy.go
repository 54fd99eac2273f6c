package app

import (
	"fmt"

	"github.com/dkeye/Relay/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a recipient whose send queue is full.
type Policy interface {
	OnBackPressure(id domain.Identity) BackpressureAction
}

// DropPolicy keeps slow members and loses the frame. Relaying is best-effort.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(domain.Identity) BackpressureAction { return DropFrame }

// KickPolicy disconnects slow members.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(domain.Identity) BackpressureAction { return KickMember }

// PolicyByName maps the slow_consumer config value.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "drop":
		return DropPolicy{}, nil
	case "kick":
		return KickPolicy{}, nil
	}
	return nil, fmt.Errorf("unknown slow consumer policy %q", name)
}
