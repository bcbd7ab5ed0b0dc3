package cart

import "sync"

// SessionStore hands out one cart per interactive session. Carts themselves
// are single-owner; the store only guards the session map.
type SessionStore struct {
	mu    sync.Mutex
	carts map[string]*Cart
}

// NewSessionStore creates an empty session store
func NewSessionStore() *SessionStore {
	return &SessionStore{carts: make(map[string]*Cart)}
}

// Get returns the cart for a session, creating it on first use
func (s *SessionStore) Get(sessionID string) *Cart {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[sessionID]
	if !ok {
		c = New()
		s.carts[sessionID] = c
	}
	return c
}

// Drop discards a session's cart
func (s *SessionStore) Drop(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, sessionID)
}
