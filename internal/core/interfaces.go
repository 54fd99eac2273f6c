package core

import "errors"

// Frame is one encoded outbound envelope.
type Frame []byte

// SessionID identifies a single connection, authenticated or not.
type SessionID string

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend never blocks. It fails with ErrClosed once the connection
	// is closed and with ErrBackpressure when the send queue is full.
	TrySend(Frame) error
	Close()
}
