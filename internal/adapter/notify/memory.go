package notify

import (
	"context"
	"sync"

	"github.com/lorefall/lorefall-backend/internal/domain"
)

// MemorySink records notices in memory. Used by tests and local runs without
// a broker.
type MemorySink struct {
	mu      sync.Mutex
	notices []domain.CreditNotice
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Notify records the notice.
func (s *MemorySink) Notify(_ context.Context, notice domain.CreditNotice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, notice)
	return nil
}

// Notices returns a copy of everything recorded so far.
func (s *MemorySink) Notices() []domain.CreditNotice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.CreditNotice(nil), s.notices...)
}
