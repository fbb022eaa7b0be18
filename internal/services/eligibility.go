package services

import (
	"context"
	"time"

	"github.com/Nk110820004/freddie-backend-sub000/internal/models"
	"gorm.io/gorm"
)

// EligibilityService answers whether an outlet may be polled. Results are
// never cached; every batch asks again.
type EligibilityService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewEligibilityService(db *gorm.DB) *EligibilityService {
	return &EligibilityService{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// IsEligible requires automation on, onboarding done and a live subscription.
func IsEligible(outlet *models.Outlet, now time.Time) bool {
	if !outlet.AutomationEnabled || !outlet.OnboardingComplete {
		return false
	}
	if outlet.SubscriptionStatus != models.SubscriptionActive {
		return false
	}
	if outlet.SubscriptionExpiresAt != nil && !outlet.SubscriptionExpiresAt.After(now) {
		return false
	}
	return true
}

func (s *EligibilityService) ListEligible(ctx context.Context) ([]models.Outlet, error) {
	var candidates []models.Outlet
	err := s.db.WithContext(ctx).
		Where("automation_enabled = ? AND onboarding_complete = ? AND subscription_status = ?", true, true, models.SubscriptionActive).
		Order("id ASC").
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	now := s.now()
	eligible := candidates[:0]
	for _, o := range candidates {
		if IsEligible(&o, now) {
			eligible = append(eligible, o)
		}
	}
	return eligible, nil
}

// Check reloads the outlet and re-evaluates the gate.
func (s *EligibilityService) Check(ctx context.Context, outletID uint) (*models.Outlet, bool, error) {
	var outlet models.Outlet
	if err := s.db.WithContext(ctx).First(&outlet, outletID).Error; err != nil {
		return nil, false, err
	}
	return &outlet, IsEligible(&outlet, s.now()), nil
}
