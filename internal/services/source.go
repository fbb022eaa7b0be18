package services

import (
	"context"
	"time"

	"github.com/Nk110820004/freddie-backend-sub000/internal/services/platform"
)

// ReviewSource is the review platform boundary.
type ReviewSource interface {
	ListReviews(ctx context.Context, locationID string, since time.Time) ([]platform.Review, error)
	PostReply(ctx context.Context, locationID, externalID, text string) error
}

var _ ReviewSource = (*platform.Client)(nil)

// withTimeout bounds one external call.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
