package core

// Frame is a single encoded envelope on the wire.
type Frame []byte

// SignalConnection abstracts one live transport endpoint of a user.
// Owned by the adapter; the adapter must Close() it. TrySend never blocks.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
