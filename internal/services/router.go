package services

import (
	"context"

	"github.com/Nk110820004/freddie-backend-sub000/internal/models"
)

// Router sends a freshly ingested (or resumed) review down its branch.
type Router struct {
	auto   *AutoReplyService
	manual *ManualQueueService
}

func NewRouter(auto *AutoReplyService, manual *ManualQueueService) *Router {
	return &Router{auto: auto, manual: manual}
}

func (r *Router) Route(ctx context.Context, review *models.Review, outlet *models.Outlet) (Branch, error) {
	branch := Classify(review.Rating)
	if branch == BranchAuto {
		return branch, r.auto.Handle(ctx, review, outlet)
	}
	return branch, r.manual.Enqueue(ctx, review, outlet)
}
