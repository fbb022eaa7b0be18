package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/Nk110820004/freddie-backend-sub000/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		rating   int
		expected Branch
	}{
		{1, BranchManual},
		{2, BranchManual},
		{3, BranchManual},
		{4, BranchAuto},
		{5, BranchAuto},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("rating_%d", tt.rating), func(t *testing.T) {
			if got := Classify(tt.rating); got != tt.expected {
				t.Errorf("Classify(%d) = %q, expected %q", tt.rating, got, tt.expected)
			}
		})
	}
}

func TestIsEligible(t *testing.T) {
	past := testNow.Add(-time.Hour)
	future := testNow.Add(time.Hour)

	base := func() models.Outlet {
		return models.Outlet{
			AutomationEnabled:  true,
			OnboardingComplete: true,
			SubscriptionStatus: models.SubscriptionActive,
		}
	}

	tests := []struct {
		name     string
		mutate   func(o *models.Outlet)
		expected bool
	}{
		{"all gates open", func(o *models.Outlet) {}, true},
		{"automation off", func(o *models.Outlet) { o.AutomationEnabled = false }, false},
		{"onboarding incomplete", func(o *models.Outlet) { o.OnboardingComplete = false }, false},
		{"past due", func(o *models.Outlet) { o.SubscriptionStatus = models.SubscriptionPastDue }, false},
		{"cancelled", func(o *models.Outlet) { o.SubscriptionStatus = models.SubscriptionCancelled }, false},
		{"expired", func(o *models.Outlet) { o.SubscriptionExpiresAt = &past }, false},
		{"expires later", func(o *models.Outlet) { o.SubscriptionExpiresAt = &future }, true},
		{"expires exactly now", func(o *models.Outlet) { o.SubscriptionExpiresAt = &testNow }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := base()
			tt.mutate(&o)
			if got := IsEligible(&o, testNow); got != tt.expected {
				t.Errorf("IsEligible() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestEligibilityService_ListEligibleRechecksEveryCall(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	open := env.createOutlet(t, "open")
	env.createOutlet(t, "off", func(o *models.Outlet) { o.AutomationEnabled = false })
	expired := testNow.Add(-time.Minute)
	env.createOutlet(t, "expired", func(o *models.Outlet) { o.SubscriptionExpiresAt = &expired })

	outlets, err := env.eligibility.ListEligible(ctx)
	if err != nil {
		t.Fatalf("ListEligible() error: %v", err)
	}
	if len(outlets) != 1 || outlets[0].ID != open.ID {
		t.Fatalf("ListEligible() = %+v, expected only %q", outlets, open.Name)
	}

	env.db.Model(&models.Outlet{}).Where("id = ?", open.ID).Update("subscription_status", models.SubscriptionPastDue)

	outlets, err = env.eligibility.ListEligible(ctx)
	if err != nil {
		t.Fatalf("ListEligible() error: %v", err)
	}
	if len(outlets) != 0 {
		t.Errorf("ListEligible() after cancellation = %d outlets, expected 0", len(outlets))
	}

	_, ok, err := env.eligibility.Check(ctx, open.ID)
	if err != nil || ok {
		t.Errorf("Check() = %v, %v; expected ineligible", ok, err)
	}
}
