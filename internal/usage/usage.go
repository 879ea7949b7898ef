// Package usage calcula a cota mensal de scans de um usuário a partir do plano de assinatura.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/lockwhz/ai-scan-service/models"
)

const (
	TierTrial = "Trial Tier"
	TierPro   = "Pro"
	TierTeam  = "Team"
)

// Store é implementada por db.RDSStore.
type Store interface {
	SubscriptionTier(ctx context.Context, userID string) (string, error)
	MonthlyScanCount(ctx context.Context, userID, monthYear string) (int, error)
}

// Report é o corpo de GET /api/v1/scan-usage.
type Report struct {
	CurrentScans     int              `json:"current_scans"`
	ScanLimit        models.ScanLimit `json:"scan_limit"`
	CanScan          bool             `json:"can_scan"`
	MonthYear        string           `json:"month_year"`
	SubscriptionTier string           `json:"subscription_tier"`
}

// LimitForTier: planos desconhecidos ou vazios caem no Trial.
func LimitForTier(tier string) models.ScanLimit {
	switch tier {
	case TierPro:
		return models.Limited(25)
	case TierTeam:
		return models.Unlimited()
	default:
		return models.Limited(5)
	}
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) Check(ctx context.Context, userID string) (*Report, error) {
	tier, err := s.store.SubscriptionTier(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("subscription tier: %w", err)
	}
	if tier == "" {
		tier = TierTrial
	}

	month := s.now().UTC().Format("2006-01")
	used, err := s.store.MonthlyScanCount(ctx, userID, month)
	if err != nil {
		return nil, fmt.Errorf("monthly scan count: %w", err)
	}

	limit := LimitForTier(tier)
	return &Report{
		CurrentScans:     used,
		ScanLimit:        limit,
		CanScan:          limit.Allows(used),
		MonthYear:        month,
		SubscriptionTier: tier,
	}, nil
}
