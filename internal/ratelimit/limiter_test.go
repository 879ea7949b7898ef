package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lockwhz/ai-scan-service/models"
)

type memStore struct {
	rows    []models.RateLimitRecord
	readErr error
}

func (m *memStore) WindowUsage(_ context.Context, userID, function string, since time.Time) (int, time.Time, error) {
	if m.readErr != nil {
		return 0, time.Time{}, m.readErr
	}
	var sum int
	var oldest time.Time
	for _, r := range m.rows {
		if r.UserID != userID || r.FunctionName != function || r.WindowStart.Before(since) {
			continue
		}
		sum += r.RequestCount
		if oldest.IsZero() || r.WindowStart.Before(oldest) {
			oldest = r.WindowStart
		}
	}
	return sum, oldest, nil
}

func (m *memStore) InsertRateLimit(_ context.Context, rec models.RateLimitRecord) error {
	m.rows = append(m.rows, rec)
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestLimiter_ClosesAtLimitAndReopensAfterWindow(t *testing.T) {
	store := &memStore{}
	clk := &clock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	l := New(store, 5, time.Hour, "github-scanner").WithClock(clk.now)
	ctx := context.Background()

	first := clk.t
	for i := 0; i < 5; i++ {
		d := l.Check(ctx, "u1")
		if !d.Allowed {
			t.Fatalf("request %d denied early", i+1)
		}
		if d.Remaining != 5-i {
			t.Errorf("remaining = %d, want %d", d.Remaining, 5-i)
		}
		if err := l.Record(ctx, "u1"); err != nil {
			t.Fatalf("Record: %v", err)
		}
		clk.t = clk.t.Add(time.Minute)
	}

	d := l.Check(ctx, "u1")
	if d.Allowed || d.Remaining != 0 {
		t.Fatalf("expected denial at limit, got %+v", d)
	}
	if !d.ResetAt.Equal(first.Add(time.Hour)) {
		t.Errorf("resetAt = %v, want %v", d.ResetAt, first.Add(time.Hour))
	}

	if other := l.Check(ctx, "u2"); !other.Allowed {
		t.Error("limit must be per user")
	}

	clk.t = first.Add(time.Hour + 5*time.Minute)
	if d := l.Check(ctx, "u1"); !d.Allowed {
		t.Errorf("expected window to reopen, got %+v", d)
	}
}

func TestLimiter_FailsOpen(t *testing.T) {
	store := &memStore{readErr: errors.New("db down")}
	l := New(store, 5, time.Hour, "github-scanner")

	d := l.Check(context.Background(), "u1")
	if !d.Allowed || d.Remaining != 5 {
		t.Errorf("expected fail-open decision, got %+v", d)
	}
}

func TestLimiter_DuplicateRowsAreAdditive(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store := &memStore{rows: []models.RateLimitRecord{
		{UserID: "u1", FunctionName: "github-scanner", RequestCount: 3, WindowStart: now.Add(-10 * time.Minute)},
		{UserID: "u1", FunctionName: "github-scanner", RequestCount: 3, WindowStart: now.Add(-10 * time.Minute)},
		{UserID: "u1", FunctionName: "other", RequestCount: 9, WindowStart: now},
	}}
	l := New(store, 5, time.Hour, "github-scanner").WithClock(func() time.Time { return now })

	d := l.Check(context.Background(), "u1")
	if d.Allowed || d.Remaining != 0 {
		t.Errorf("expected denial with 6 counted requests, got %+v", d)
	}
}

type failingStore struct{ memStore }

func (f *failingStore) InsertRateLimit(context.Context, models.RateLimitRecord) error {
	return errors.New("insert failed")
}

func TestLimiter_RecordFailure(t *testing.T) {
	l := New(&failingStore{}, 5, time.Hour, "github-scanner")
	if err := l.Record(context.Background(), "u1"); !errors.Is(err, models.ErrPersistenceFailed) {
		t.Fatalf("expected ErrPersistenceFailed, got %v", err)
	}
}
