package core

import "errors"

// Frame is one encoded event ready for the wire.
type Frame []byte

// ConnectionID identifies one live transport session.
type ConnectionID string

var (
	ErrBackpressure     = errors.New("backpressure")
	ErrConnectionClosed = errors.New("connection closed")
)

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend never blocks. It returns ErrBackpressure when the outbound
	// buffer is full and ErrConnectionClosed after Close.
	TrySend(Frame) error
	Close()
}
