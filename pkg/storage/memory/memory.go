// Package memory provides an in-memory implementation of transport.AnswerStore
// for testing and lightweight deployments. Answers are stored in memory and
// lost when the process restarts. A bounded LRU cache limits memory usage.
package memory

import (
	"context"
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rhuss/askdocs/pkg/api"
	"github.com/rhuss/askdocs/pkg/debug"
	"github.com/rhuss/askdocs/pkg/storage"
	"github.com/rhuss/askdocs/pkg/transport"
)

// DefaultMaxSize is the capacity used when New is given zero.
const DefaultMaxSize = 10000

// entry holds a stored answer and its owner.
type entry struct {
	answer   *api.Answer
	tenantID string
}

// Store is an in-memory AnswerStore with LRU eviction.
type Store struct {
	cache *lru.Cache[string, *entry]
}

// Ensure Store implements transport.AnswerStore at compile time.
var _ transport.AnswerStore = (*Store)(nil)

// New creates a new in-memory store holding at most maxSize answers.
// Zero or negative means DefaultMaxSize. When full, the least recently
// used answer is evicted.
func New(maxSize int) (*Store, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	cache, err := lru.NewWithEvict(maxSize, func(id string, _ *entry) {
		debug.Log("storage", "answer left the cache", "answer_id", id)
	})
	if err != nil {
		return nil, fmt.Errorf("creating answer cache: %w", err)
	}
	return &Store{cache: cache}, nil
}

// SaveAnswer stores an answer. Saving an ID twice returns ErrConflict.
func (s *Store) SaveAnswer(ctx context.Context, a *api.Answer) error {
	stored := *a
	if ok, _ := s.cache.ContainsOrAdd(a.ID, &entry{answer: &stored, tenantID: storage.GetTenant(ctx)}); ok {
		return storage.ErrConflict
	}
	return nil
}

// GetAnswer retrieves an answer by ID, scoped by tenant when a tenant is
// present in the context.
func (s *Store) GetAnswer(ctx context.Context, id string) (*api.Answer, error) {
	e, ok := s.cache.Get(id)
	if !ok || !storage.Visible(ctx, e.tenantID) {
		return nil, storage.ErrNotFound
	}
	a := *e.answer
	return &a, nil
}

// DeleteAnswer removes an answer.
func (s *Store) DeleteAnswer(ctx context.Context, id string) error {
	e, ok := s.cache.Peek(id)
	if !ok || !storage.Visible(ctx, e.tenantID) {
		return storage.ErrNotFound
	}
	s.cache.Remove(id)
	return nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close drops all stored answers.
func (s *Store) Close() error {
	s.cache.Purge()
	return nil
}

// Len returns the number of stored answers.
func (s *Store) Len() int {
	return s.cache.Len()
}

// ListAnswers returns a paginated list of stored answers filtered by
// tenant and optionally by model, with cursor-based pagination.
func (s *Store) ListAnswers(ctx context.Context, opts transport.ListOptions) (*api.AnswerList, error) {
	// Values does not touch recency, so listing never reorders eviction.
	var matches []*api.Answer
	for _, e := range s.cache.Values() {
		if !storage.Visible(ctx, e.tenantID) {
			continue
		}
		if opts.Model != "" && e.answer.Model != opts.Model {
			continue
		}
		matches = append(matches, e.answer)
	}

	// Sort by created_at. Default is desc (newest first).
	asc := opts.Order == "asc"
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].CreatedAt != matches[j].CreatedAt {
			return (matches[i].CreatedAt < matches[j].CreatedAt) == asc
		}
		return (matches[i].ID < matches[j].ID) == asc
	})

	// Apply cursor-based pagination.
	if opts.After != "" {
		if idx := indexOf(matches, opts.After); idx >= 0 {
			matches = matches[idx+1:]
		} else {
			matches = nil
		}
	} else if opts.Before != "" {
		if idx := indexOf(matches, opts.Before); idx > 0 {
			matches = matches[:idx]
		} else {
			matches = nil
		}
	}

	limit := storage.EffectiveLimit(opts.Limit)
	hasMore := len(matches) > limit
	if hasMore {
		matches = matches[:limit]
	}

	result := &api.AnswerList{
		Object:  "list",
		Data:    make([]*api.Answer, len(matches)),
		HasMore: hasMore,
	}
	for i, a := range matches {
		cp := *a
		result.Data[i] = &cp
	}
	if len(matches) > 0 {
		result.FirstID = matches[0].ID
		result.LastID = matches[len(matches)-1].ID
	}

	return result, nil
}

func indexOf(answers []*api.Answer, id string) int {
	for i, a := range answers {
		if a.ID == id {
			return i
		}
	}
	return -1
}
