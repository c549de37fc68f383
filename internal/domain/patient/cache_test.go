package patient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/riskadvisor/internal/platform/cache"
)

type brokenKV struct{}

func (brokenKV) Get(context.Context, string) (string, error) {
	return "", errors.New("connection refused")
}
func (brokenKV) Set(context.Context, string, string, time.Duration) error {
	return errors.New("connection refused")
}
func (brokenKV) Delete(context.Context, string) error { return errors.New("connection refused") }

func TestCachedSummaryRepository_ReadThrough(t *testing.T) {
	ctx := context.Background()
	backing := newMockSummaryRepo()
	_ = backing.Upsert(ctx, validSummary("P001"))
	kv := cache.NewMemoryKVStore()
	repo := NewCachedSummaryRepository(backing, kv, time.Minute, zerolog.Nop())

	first, err := repo.Get(ctx, "P001")
	if err != nil {
		t.Fatalf("first Get: %v", err)
	}
	second, err := repo.Get(ctx, "P001")
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if backing.gets != 1 {
		t.Errorf("expected one backing read, got %d", backing.gets)
	}
	if !first.ClaimsHistory.TotalAmount.Equal(second.ClaimsHistory.TotalAmount) || second.RiskLevel != first.RiskLevel {
		t.Errorf("cached copy differs: %+v vs %+v", first, second)
	}
	if len(second.FamilyHistory) != 3 {
		t.Errorf("expected family history to survive caching, got %v", second.FamilyHistory)
	}
}

func TestCachedSummaryRepository_WriteEvicts(t *testing.T) {
	ctx := context.Background()
	backing := newMockSummaryRepo()
	_ = backing.Upsert(ctx, validSummary("P001"))
	kv := cache.NewMemoryKVStore()
	repo := NewCachedSummaryRepository(backing, kv, time.Minute, zerolog.Nop())

	if _, err := repo.Get(ctx, "P001"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	updated := validSummary("P001")
	updated.Age = 70
	if err := repo.Upsert(ctx, updated); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	got, err := repo.Get(ctx, "P001")
	if err != nil {
		t.Fatalf("Get after upsert: %v", err)
	}
	if got.Age != 70 {
		t.Errorf("expected fresh age 70, got %d", got.Age)
	}

	if err := repo.Delete(ctx, "P001"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := kv.Get(ctx, cacheKey("P001")); !errors.Is(err, cache.ErrCacheMiss) {
		t.Errorf("expected cache entry evicted, got %v", err)
	}
	if _, err := repo.Get(ctx, "P001"); err == nil {
		t.Error("expected not found after delete")
	}
}

func TestCachedSummaryRepository_DegradesWhenCacheFails(t *testing.T) {
	ctx := context.Background()
	backing := newMockSummaryRepo()
	_ = backing.Upsert(ctx, validSummary("P001"))
	repo := NewCachedSummaryRepository(backing, brokenKV{}, time.Minute, zerolog.Nop())

	if _, err := repo.Get(ctx, "P001"); err != nil {
		t.Fatalf("Get should fall back to backing store: %v", err)
	}
	if err := repo.Upsert(ctx, validSummary("P002")); err != nil {
		t.Fatalf("Upsert should ignore eviction failure: %v", err)
	}
}

func TestCachedSummaryRepository_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	backing := newMockSummaryRepo()
	_ = backing.Upsert(ctx, validSummary("P001"))
	kv := cache.NewMemoryKVStore()
	_ = kv.Set(ctx, cacheKey("P001"), "{not json", 0)
	repo := NewCachedSummaryRepository(backing, kv, time.Minute, zerolog.Nop())

	got, err := repo.Get(ctx, "P001")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.PatientID != "P001" || backing.gets != 1 {
		t.Errorf("expected fallback read, got %+v (gets=%d)", got, backing.gets)
	}
}
