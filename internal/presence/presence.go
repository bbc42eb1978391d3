// Package presence defines how connect and disconnect notifications reach
// the document store. Transports call a Listener; the store is one.
package presence

import "collabdocs/store"

// Listener consumes presence events from a transport.
type Listener interface {
	OnPeerJoined(u store.User)
	OnPeerLeft(userID string)
}

var _ Listener = (*store.Store)(nil)

// Funcs adapts plain functions to a Listener. Nil fields are skipped.
type Funcs struct {
	Joined func(store.User)
	Left   func(string)
}

func (f Funcs) OnPeerJoined(u store.User) {
	if f.Joined != nil {
		f.Joined(u)
	}
}

func (f Funcs) OnPeerLeft(userID string) {
	if f.Left != nil {
		f.Left(userID)
	}
}

// Fanout delivers every event to each listener in order.
type Fanout []Listener

func (f Fanout) OnPeerJoined(u store.User) {
	for _, l := range f {
		l.OnPeerJoined(u)
	}
}

func (f Fanout) OnPeerLeft(userID string) {
	for _, l := range f {
		l.OnPeerLeft(userID)
	}
}
