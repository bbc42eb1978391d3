package store

import "fmt"

// DefaultFacepileSize is how many avatars the header shows before collapsing
// the rest into a "+N" bubble.
const DefaultFacepileSize = 5

type Facepile struct {
	Visible []User `json:"visible"`
	Extra   int    `json:"extra"`
	Total   int    `json:"total"`
	Label   string `json:"label"`
}

// Facepile lists the viewers of the editor: the current user first, then the
// online peers in arrival order.
func (s *Store) Facepile(max int) Facepile {
	if max <= 0 {
		max = DefaultFacepileSize
	}

	s.mu.RLock()
	all := make([]User, 0, len(s.onlineUsers)+1)
	all = append(all, s.currentUser)
	all = append(all, s.onlineUsers...)
	s.mu.RUnlock()

	visible := all
	if len(visible) > max {
		visible = visible[:max]
	}

	label := fmt.Sprintf("%d people viewing", len(all))
	if len(all) == 1 {
		label = "1 person viewing"
	}

	return Facepile{
		Visible: visible,
		Extra:   len(all) - len(visible),
		Total:   len(all),
		Label:   label,
	}
}
