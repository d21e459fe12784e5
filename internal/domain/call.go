package domain

type CallKind string

const (
	CallAudio CallKind = "audio"
	CallVideo CallKind = "video"
)

func (k CallKind) Valid() bool {
	return k == CallAudio || k == CallVideo
}

// CallState is the relay-side view of a two-party call. A single session
// covers both the caller's ringing-out and the callee's ringing-in phase;
// which side is which follows from the recorded initiator.
type CallState int

const (
	CallRinging CallState = iota
	CallConnected
	CallRenegotiating
	CallEnded
)

func (s CallState) String() string {
	switch s {
	case CallRinging:
		return "ringing"
	case CallConnected:
		return "connected"
	case CallRenegotiating:
		return "renegotiating"
	case CallEnded:
		return "ended"
	}
	return "unknown"
}

// PairKey identifies the unordered pair of users in a call. A holds the
// lexicographically smaller id, so equal pairs compare equal regardless of
// who initiated.
type PairKey struct {
	A, B UserID
}

func NewPairKey(x, y UserID) PairKey {
	if y < x {
		x, y = y, x
	}
	return PairKey{A: x, B: y}
}

// CanonicalInitiator is the deterministic glare winner for this pair.
func (k PairKey) CanonicalInitiator() UserID { return k.A }

func (k PairKey) Has(u UserID) bool { return k.A == u || k.B == u }

// Other returns the peer of u within the pair.
func (k PairKey) Other(u UserID) UserID {
	if u == k.A {
		return k.B
	}
	return k.A
}

func (k PairKey) String() string { return string(k.A) + "|" + string(k.B) }
