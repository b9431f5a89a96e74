package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rhuss/askdocs/pkg/api"
	"github.com/rhuss/askdocs/pkg/storage"
	"github.com/rhuss/askdocs/pkg/transport"
)

func makeAnswer(id string, createdAt int64) *api.Answer {
	return &api.Answer{
		ID:        id,
		Object:    "answer",
		Status:    api.AnswerStatusCompleted,
		Model:     "test-model",
		Question:  "what is alpha?",
		Answer:    "alpha is first",
		Sources:   "###\n1. \"a.txt\"\nalpha",
		Usage:     &api.Usage{InputTokens: 5, OutputTokens: 2, TotalTokens: 7},
		CreatedAt: createdAt,
	}
}

func newStore(t *testing.T, maxSize int) *Store {
	t.Helper()
	s, err := New(maxSize)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestSaveAndGet(t *testing.T) {
	s := newStore(t, 0)
	ctx := context.Background()

	if err := s.SaveAnswer(ctx, makeAnswer("ans_test1", 1000)); err != nil {
		t.Fatalf("SaveAnswer failed: %v", err)
	}

	got, err := s.GetAnswer(ctx, "ans_test1")
	if err != nil {
		t.Fatalf("GetAnswer failed: %v", err)
	}
	if got.Model != "test-model" {
		t.Errorf("Model = %q, want %q", got.Model, "test-model")
	}
	if got.Answer != "alpha is first" || got.Question != "what is alpha?" {
		t.Errorf("transcript not preserved: %+v", got)
	}
}

func TestSaveCopiesAnswer(t *testing.T) {
	s := newStore(t, 0)
	ctx := context.Background()

	a := makeAnswer("ans_copy", 1000)
	s.SaveAnswer(ctx, a)
	a.Answer = "mutated"

	got, _ := s.GetAnswer(ctx, "ans_copy")
	if got.Answer != "alpha is first" {
		t.Errorf("stored answer changed with the caller's copy: %q", got.Answer)
	}
}

func TestGetNotFound(t *testing.T) {
	s := newStore(t, 0)

	_, err := s.GetAnswer(context.Background(), "ans_missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := newStore(t, 0)
	ctx := context.Background()

	s.SaveAnswer(ctx, makeAnswer("ans_del", 1000))

	if err := s.DeleteAnswer(ctx, "ans_del"); err != nil {
		t.Fatalf("DeleteAnswer failed: %v", err)
	}
	if _, err := s.GetAnswer(ctx, "ans_del"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteAnswer(ctx, "ans_del"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestDuplicateSave(t *testing.T) {
	s := newStore(t, 0)
	ctx := context.Background()

	a := makeAnswer("ans_dup", 1000)
	s.SaveAnswer(ctx, a)

	if err := s.SaveAnswer(ctx, a); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict for duplicate, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	s := newStore(t, 0)
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestLRUEviction(t *testing.T) {
	s := newStore(t, 3)
	ctx := context.Background()

	s.SaveAnswer(ctx, makeAnswer("ans_a", 1))
	s.SaveAnswer(ctx, makeAnswer("ans_b", 2))
	s.SaveAnswer(ctx, makeAnswer("ans_c", 3))

	// Touch ans_a so ans_b becomes the least recently used.
	if _, err := s.GetAnswer(ctx, "ans_a"); err != nil {
		t.Fatalf("expected ans_a to exist, got %v", err)
	}

	s.SaveAnswer(ctx, makeAnswer("ans_d", 4))

	if _, err := s.GetAnswer(ctx, "ans_b"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("expected ans_b to be evicted")
	}
	for _, id := range []string{"ans_a", "ans_c", "ans_d"} {
		if _, err := s.GetAnswer(ctx, id); err != nil {
			t.Errorf("expected %s to exist after eviction, got %v", id, err)
		}
	}
}

func TestDefaultCapacity(t *testing.T) {
	s := newStore(t, 0)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		s.SaveAnswer(ctx, makeAnswer(fmt.Sprintf("ans_%03d", i), int64(i)))
	}
	if s.Len() != 100 {
		t.Errorf("expected 100 entries, got %d", s.Len())
	}

	s.Close()
	if s.Len() != 0 {
		t.Errorf("Close should drop all answers, %d left", s.Len())
	}
}

func TestTenantIsolation(t *testing.T) {
	s := newStore(t, 0)

	ctxA := storage.SetTenant(context.Background(), "tenant-a")
	ctxB := storage.SetTenant(context.Background(), "tenant-b")
	ctxNone := context.Background()

	s.SaveAnswer(ctxA, makeAnswer("ans_a1", 1))

	if _, err := s.GetAnswer(ctxA, "ans_a1"); err != nil {
		t.Fatalf("tenant A should retrieve own answer: %v", err)
	}
	if _, err := s.GetAnswer(ctxB, "ans_a1"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("tenant B should not see tenant A's answer")
	}
	if _, err := s.GetAnswer(ctxNone, "ans_a1"); err != nil {
		t.Fatalf("no-tenant context should see all answers: %v", err)
	}

	if err := s.DeleteAnswer(ctxB, "ans_a1"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("tenant B should not delete tenant A's answer")
	}
	if err := s.DeleteAnswer(ctxA, "ans_a1"); err != nil {
		t.Fatalf("tenant A should delete own answer: %v", err)
	}
}

func TestListAnswers(t *testing.T) {
	s := newStore(t, 0)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		a := makeAnswer(fmt.Sprintf("ans_%d", i), int64(i))
		if i == 5 {
			a.Model = "other-model"
		}
		s.SaveAnswer(ctx, a)
	}
	s.SaveAnswer(storage.SetTenant(ctx, "tenant-x"), makeAnswer("ans_x", 99))

	tests := []struct {
		name    string
		ctx     context.Context
		opts    transport.ListOptions
		wantIDs []string
		hasMore bool
	}{
		{"default desc", storage.SetTenant(ctx, ""), transport.ListOptions{}, []string{"ans_x", "ans_5", "ans_4", "ans_3", "ans_2", "ans_1"}, false},
		{"asc with limit", ctx, transport.ListOptions{Order: "asc", Limit: 2}, []string{"ans_1", "ans_2"}, true},
		{"after cursor", ctx, transport.ListOptions{Order: "asc", After: "ans_2", Limit: 2}, []string{"ans_3", "ans_4"}, true},
		{"before cursor", ctx, transport.ListOptions{Order: "asc", Before: "ans_3"}, []string{"ans_1", "ans_2"}, false},
		{"unknown cursor", ctx, transport.ListOptions{After: "ans_nope"}, []string{}, false},
		{"model filter", ctx, transport.ListOptions{Model: "other-model"}, []string{"ans_5"}, false},
		{"tenant scoped", storage.SetTenant(ctx, "tenant-x"), transport.ListOptions{}, []string{"ans_x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := s.ListAnswers(tt.ctx, tt.opts)
			if err != nil {
				t.Fatalf("ListAnswers: %v", err)
			}
			if list.Object != "list" {
				t.Errorf("Object = %q, want list", list.Object)
			}
			if list.Data == nil {
				t.Fatal("Data must not be nil")
			}
			var got []string
			for _, a := range list.Data {
				got = append(got, a.ID)
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.wantIDs) {
				t.Errorf("ids = %v, want %v", got, tt.wantIDs)
			}
			if list.HasMore != tt.hasMore {
				t.Errorf("HasMore = %v, want %v", list.HasMore, tt.hasMore)
			}
			if len(tt.wantIDs) > 0 && (list.FirstID != tt.wantIDs[0] || list.LastID != tt.wantIDs[len(tt.wantIDs)-1]) {
				t.Errorf("FirstID/LastID = %q/%q", list.FirstID, list.LastID)
			}
		})
	}
}
