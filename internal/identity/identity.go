// Package identity adapts the participant directory the engine reads providers and
// consumers from.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"sessionbook/backend/internal/domain"
)

var ErrUnknownParticipant = errors.New("unknown participant")

type Directory interface {
	GetParticipant(ctx context.Context, id string) (domain.Participant, error)
}

// Provider looks id up in d and requires it to be a provider.
func Provider(ctx context.Context, d Directory, id string) (domain.Provider, error) {
	p, err := d.GetParticipant(ctx, id)
	if err != nil {
		return domain.Provider{}, err
	}
	prov, ok := p.(domain.Provider)
	if !ok {
		return domain.Provider{}, fmt.Errorf("participant %s is a %s: %w", id, p.Kind(), ErrUnknownParticipant)
	}
	return prov, nil
}

// Static is an in-memory directory.
type Static struct {
	mu           sync.RWMutex
	participants map[string]domain.Participant
}

func NewStatic(ps ...domain.Participant) *Static {
	s := &Static{participants: make(map[string]domain.Participant, len(ps))}
	for _, p := range ps {
		s.participants[p.ParticipantID()] = p
	}
	return s
}

func (s *Static) Put(p domain.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[p.ParticipantID()] = p
}

func (s *Static) GetParticipant(ctx context.Context, id string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[id]
	if !ok {
		return nil, ErrUnknownParticipant
	}
	return p, nil
}

// Cached fronts a slower directory with a TTL cache. Lookup misses are not cached.
type Cached struct {
	next  Directory
	cache *cache.Cache
}

func NewCached(next Directory, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cached{next: next, cache: cache.New(ttl, 2*ttl)}
}

func (c *Cached) GetParticipant(ctx context.Context, id string) (domain.Participant, error) {
	if v, ok := c.cache.Get(id); ok {
		return v.(domain.Participant), nil
	}
	p, err := c.next.GetParticipant(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(id, p)
	return p, nil
}

// Invalidate drops id so the next lookup reaches the underlying directory.
func (c *Cached) Invalidate(id string) {
	c.cache.Delete(id)
}
