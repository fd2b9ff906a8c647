package plugin

import "sync"

// Services is a named lookup of handles one plugin exposes to others.
// Handles are untyped; callers probe them for the capabilities they need.
type Services struct {
	mu       sync.RWMutex
	services map[string]any
}

// NewServices creates an empty locator.
func NewServices() *Services {
	return &Services{services: make(map[string]any)}
}

// Provide publishes handle under id, replacing any previous handle.
func (s *Services) Provide(id string, handle any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.services == nil {
		s.services = make(map[string]any)
	}
	s.services[id] = handle
}

// Remove withdraws the handle published under id.
func (s *Services) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.services, id)
}

// Lookup returns the handle published under id.
func (s *Services) Lookup(id string) (any, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.services[id]
	if ok && h == nil {
		return nil, false
	}
	return h, ok
}

// LookupAs returns the handle under id if it implements T.
func LookupAs[T any](s *Services, id string) (T, bool) {
	var zero T
	h, ok := s.Lookup(id)
	if !ok {
		return zero, false
	}
	typed, ok := h.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
