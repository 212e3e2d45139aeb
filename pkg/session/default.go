package session

import (
	"errors"
	"sync/atomic"
)

// ErrNoActiveSession is returned by Active before Init.
var ErrNoActiveSession = errors.New("no active session")

var active atomic.Pointer[Session]

// Init makes s the process-wide default session, closing the previous one.
// The default is a convenience for the CLI; library code passes sessions
// explicitly.
func Init(s *Session) {
	if prev := active.Swap(s); prev != nil && prev != s {
		_ = prev.Close()
	}
}

// Active returns the default session.
func Active() (*Session, error) {
	s := active.Load()
	if s == nil {
		return nil, ErrNoActiveSession
	}
	return s, nil
}

// Reset closes and clears the default session.
func Reset() {
	if prev := active.Swap(nil); prev != nil {
		_ = prev.Close()
	}
}
