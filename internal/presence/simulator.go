package presence

import (
	"context"
	"time"

	"collabdocs/pkg/logger"
	"collabdocs/store"
)

// Simulator feeds a Listener with generated peers for demos: they join after
// JoinAfter and leave LeaveAfter later. It stands in for a transport when no
// browser is connected.
type Simulator struct {
	Listener   Listener
	Peers      int
	JoinAfter  time.Duration
	LeaveAfter time.Duration

	// NewUser defaults to store.GenerateUser.
	NewUser func() store.User
}

// Run blocks until the simulated peers have left or ctx is done. Peers that
// joined are always reported as left before Run returns.
func (s *Simulator) Run(ctx context.Context) error {
	newUser := s.NewUser
	if newUser == nil {
		newUser = store.GenerateUser
	}
	peers := make([]store.User, 0, s.Peers)
	for i := 0; i < s.Peers; i++ {
		peers = append(peers, newUser())
	}

	if !wait(ctx, s.JoinAfter) {
		return nil
	}
	for _, p := range peers {
		logger.Sugar.Debugf("Simulated peer %s (%s) joined", p.Name, p.ID)
		s.Listener.OnPeerJoined(p)
	}

	wait(ctx, s.LeaveAfter)
	for _, p := range peers {
		logger.Sugar.Debugf("Simulated peer %s (%s) left", p.Name, p.ID)
		s.Listener.OnPeerLeft(p.ID)
	}
	return nil
}

// wait reports whether d elapsed before ctx was done.
func wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
