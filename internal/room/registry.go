// internal/room/registry.go
package room

import (
	"math/rand"
	"strings"
	"sync"
)

// CodeAlphabet omits I and O so codes can be read aloud and typed without ambiguity.
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ"

// CodeLength is the number of letters in a room code.
const CodeLength = 4

// Registry maps room codes to live rooms. It never takes a room's lock;
// callers holding a room lock may call into the registry, never the reverse.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	newCode func() string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:   make(map[string]*Room),
		newCode: GenerateCode,
	}
}

// GenerateCode returns a random room code. It does not check for collisions.
func GenerateCode() string {
	var b strings.Builder
	b.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		b.WriteByte(CodeAlphabet[rand.Intn(len(CodeAlphabet))])
	}
	return b.String()
}

// NormalizeCode canonicalizes user-typed room codes.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Create draws codes until one is unused, builds the room with build and
// stores it. The room is fully formed before other goroutines can see it.
func (s *Registry) Create(build func(code string) *Room) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := s.newCode()
	for {
		if _, taken := s.rooms[code]; !taken {
			break
		}
		code = s.newCode()
	}
	r := build(code)
	s.rooms[code] = r
	return r
}

// Get looks a room up by code.
func (s *Registry) Get(code string) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[NormalizeCode(code)]
	return r, ok
}

// Remove deletes the entry for code if it still points at r. A code freed and
// reused by a newer room is left alone.
func (s *Registry) Remove(code string, r *Room) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.rooms[code]; ok && cur == r {
		delete(s.rooms, code)
		return true
	}
	return false
}

// Len returns the number of live rooms.
func (s *Registry) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// Rooms returns a copy of the live rooms so callers can lock each one
// without holding the registry.
func (s *Registry) Rooms() []*Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	return out
}
