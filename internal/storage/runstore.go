package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/okarpenko/autoria-scraper/internal/types"
)

// ErrNoRuns is returned when no run summary has been stored yet.
var ErrNoRuns = errors.New("no runs recorded")

// RunStore persists run summaries so operators can inspect past runs.
type RunStore interface {
	SaveRun(ctx context.Context, summary *types.RunSummary) error
	LatestRun(ctx context.Context) (*types.RunSummary, error)
	RecentRuns(ctx context.Context, limit int) ([]types.RunSummary, error)
}

// MemoryRunStore keeps summaries in memory. The default when Redis is not
// configured, and the store used in tests.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs []types.RunSummary
	cap  int
}

// NewMemoryRunStore creates an in-memory store holding at most maxRuns
// summaries (oldest evicted first).
func NewMemoryRunStore(maxRuns int) *MemoryRunStore {
	if maxRuns <= 0 {
		maxRuns = 100
	}
	return &MemoryRunStore{cap: maxRuns}
}

func (s *MemoryRunStore) SaveRun(_ context.Context, summary *types.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, *summary)
	if len(s.runs) > s.cap {
		s.runs = s.runs[len(s.runs)-s.cap:]
	}
	return nil
}

func (s *MemoryRunStore) LatestRun(_ context.Context) (*types.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.runs) == 0 {
		return nil, ErrNoRuns
	}
	latest := s.runs[len(s.runs)-1]
	return &latest, nil
}

func (s *MemoryRunStore) RecentRuns(_ context.Context, limit int) ([]types.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.runs) {
		limit = len(s.runs)
	}
	out := make([]types.RunSummary, 0, limit)
	for i := len(s.runs) - 1; i >= len(s.runs)-limit; i-- {
		out = append(out, s.runs[i])
	}
	return out, nil
}
