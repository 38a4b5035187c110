package fabric

// Snapshot is the read-only view of a participant exposed by the admin
// surface: id, label, role, parent, children, last_seen.
type Snapshot struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Role     string   `json:"role"`
	Parent   *string  `json:"parent"`
	Children []string `json:"children"`
	LastSeen int64    `json:"last_seen"`
}

// buildSnapshot copies the current registry into a slice of Snapshot.
// It only ever runs on the dispatcher's own goroutine (invoked via the
// cmdSnapshot command), so the copy it returns can never be torn.
func (d *Dispatcher) buildSnapshot() []Snapshot {
	out := make([]Snapshot, 0, len(d.connectOrder))
	for _, id := range d.connectOrder {
		p, ok := d.participants[id]
		if !ok {
			continue
		}
		snap := Snapshot{
			ID:       p.ID.String(),
			Label:    p.Label,
			Role:     p.Role.String(),
			LastSeen: p.LastSeen.UnixNano(),
		}
		if p.HasParent {
			parent := p.Parent.String()
			snap.Parent = &parent
		}
		for _, childID := range p.Children {
			snap.Children = append(snap.Children, childID.String())
		}
		out = append(out, snap)
	}
	return out
}
