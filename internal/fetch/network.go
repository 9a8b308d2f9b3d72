package fetch

import "sync/atomic"

// Network reports connectivity. It gates remote fetches only; local reads
// never consult it.
type Network interface {
	Online() bool
}

// NetworkFunc adapts a function to Network.
type NetworkFunc func() bool

// Online implements Network.
func (f NetworkFunc) Online() bool { return f() }

// AlwaysOnline is the default Network.
var AlwaysOnline Network = NetworkFunc(func() bool { return true })

// Switch is a Network toggled by hand, for tests and the offline flag.
type Switch struct {
	offline atomic.Bool
}

// NewSwitch creates a Switch in the given state.
func NewSwitch(online bool) *Switch {
	s := &Switch{}
	s.Set(online)
	return s
}

// Online implements Network.
func (s *Switch) Online() bool { return !s.offline.Load() }

// Set changes connectivity.
func (s *Switch) Set(online bool) { s.offline.Store(!online) }
