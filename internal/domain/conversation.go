package domain

// Group is the collaborator's chat-group record. The relay only ever reads
// it to resolve fan-out targets.
type Group struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	AdminID UserID   `json:"admin_id"`
	Members []UserID `json:"members"`
}

// Recipients returns the member set minus the sender.
func (g *Group) Recipients(sender UserID) []UserID {
	out := make([]UserID, 0, len(g.Members))
	for _, m := range g.Members {
		if m == sender {
			continue
		}
		out = append(out, m)
	}
	return out
}
