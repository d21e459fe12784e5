package app

import "github.com/collabquest/relay/internal/domain"

// Presence is a read-only view derived from the Registry. It keeps no state
// of its own; every call recomputes from current membership so the answer is
// never stale.
type Presence struct {
	reg *Registry
}

func NewPresence(reg *Registry) *Presence {
	return &Presence{reg: reg}
}

func (p *Presence) IsOnline(userID domain.UserID) bool {
	return p.reg.IsOnline(userID)
}

func (p *Presence) OnlineUserIDs() []domain.UserID {
	return p.reg.OnlineUserIDs()
}
