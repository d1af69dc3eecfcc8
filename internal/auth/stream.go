package auth

import "sync"

// Stream broadcasts auth-state changes to subscribers. The payload is the
// current user, or nil when the session ended.
type Stream struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(*User)
}

// NewStream creates an empty stream.
func NewStream() *Stream {
	return &Stream{subs: make(map[int]func(*User))}
}

// Subscribe registers a callback for auth-state changes and returns a
// disposer. The disposer is idempotent; dropping it without calling leaks
// nothing beyond the subscription itself, which Close releases.
func (s *Stream) Subscribe(fn func(*User)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Close drops all subscriptions.
func (s *Stream) Close() {
	s.mu.Lock()
	s.subs = make(map[int]func(*User))
	s.mu.Unlock()
}

func (s *Stream) publish(u *User) {
	s.mu.Lock()
	fns := make([]func(*User), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(u)
	}
}
