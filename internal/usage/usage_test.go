package usage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeStore struct {
	tier     string
	count    int
	tierErr  error
	gotMonth string
}

func (f *fakeStore) SubscriptionTier(context.Context, string) (string, error) {
	return f.tier, f.tierErr
}

func (f *fakeStore) MonthlyScanCount(_ context.Context, _ string, month string) (int, error) {
	f.gotMonth = month
	return f.count, nil
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name      string
		tier      string
		count     int
		wantTier  string
		wantLimit string
		wantCan   bool
	}{
		{"no subscription is trial", "", 4, TierTrial, "5", true},
		{"trial exhausted", TierTrial, 5, TierTrial, "5", false},
		{"pro", TierPro, 24, TierPro, "25", true},
		{"team unlimited", TierTeam, 10_000, TierTeam, "unlimited", true},
		{"unknown tier falls back to trial", "Enterprise", 6, "Enterprise", "5", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{tier: tt.tier, count: tt.count}
			svc := NewService(store)
			svc.now = func() time.Time { return time.Date(2024, 3, 31, 23, 0, 0, 0, time.UTC) }

			rep, err := svc.Check(context.Background(), "u1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rep.SubscriptionTier != tt.wantTier || rep.ScanLimit.String() != tt.wantLimit || rep.CanScan != tt.wantCan {
				t.Errorf("unexpected report: %+v", rep)
			}
			if rep.MonthYear != "2024-03" || store.gotMonth != "2024-03" {
				t.Errorf("month = %s / %s", rep.MonthYear, store.gotMonth)
			}
		})
	}
}

func TestReportJSON(t *testing.T) {
	raw, err := json.Marshal(Report{ScanLimit: LimitForTier(TierTeam), CanScan: true, MonthYear: "2024-03", SubscriptionTier: TierTeam})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"scan_limit":"unlimited"`) {
		t.Errorf("unexpected json: %s", raw)
	}
}

func TestCheck_StoreError(t *testing.T) {
	svc := NewService(&fakeStore{tierErr: errors.New("boom")})
	if _, err := svc.Check(context.Background(), "u1"); err == nil {
		t.Fatal("expected error")
	}
}
