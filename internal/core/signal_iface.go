package core

import "errors"

var (
	ErrBackpressure = errors.New("backpressure: send buffer full")
	ErrConnClosed   = errors.New("connection closed")
)

// Frame is a raw payload pushed to one endpoint.
type Frame []byte

// Conn abstracts a signaling transport endpoint.
// Owned by the adapter; the adapter must Close() it.
// TrySend never blocks.
type Conn interface {
	TrySend(Frame) error
	Close()
}
