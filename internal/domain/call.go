package domain

import "errors"

type CallState int

const (
	CallIdle CallState = iota
	CallRinging
	CallActive
)

func (s CallState) String() string {
	switch s {
	case CallRinging:
		return "ringing"
	case CallActive:
		return "active"
	default:
		return "idle"
	}
}

func (s CallState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CallKind is what the caller asked for. Empty means unspecified.
type CallKind string

const (
	CallAudio CallKind = "audio"
	CallVideo CallKind = "video"
)

var ErrUnknownCallKind = errors.New("unknown call kind")

func ParseCallKind(raw string) (CallKind, error) {
	switch CallKind(raw) {
	case "", CallAudio, CallVideo:
		return CallKind(raw), nil
	}
	return "", ErrUnknownCallKind
}
