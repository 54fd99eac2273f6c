package domain

import "errors"

var (
	ErrAlreadyTaken    = errors.New("username already taken")
	ErrBusy            = errors.New("busy")
	ErrCountryMismatch = errors.New("country mismatch")
	ErrPeerOffline     = errors.New("peer offline")
	ErrInvalidTarget   = errors.New("invalid call target")
	ErrNoCall          = errors.New("no matching call")
	ErrRateLimited     = errors.New("rate limited")
)

// Reason maps a call error to the reason string carried on the wire.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrCountryMismatch):
		return "country_mismatch"
	case errors.Is(err, ErrPeerOffline):
		return "offline"
	case errors.Is(err, ErrInvalidTarget):
		return "invalid_target"
	case errors.Is(err, ErrNoCall):
		return "no_call"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	}
	return "failed"
}
