package services

import (
	"context"
	"errors"

	"github.com/Nk110820004/freddie-backend-sub000/internal/models"
	"github.com/Nk110820004/freddie-backend-sub000/internal/workflow"
	"gorm.io/gorm"
)

// ReviewService is the operator read surface over reviews and their
// workflow rows.
type ReviewService struct {
	db     *gorm.DB
	states *workflow.Store
}

func NewReviewService(db *gorm.DB, states *workflow.Store) *ReviewService {
	return &ReviewService{db: db, states: states}
}

type ReviewListRequest struct {
	Page      int    `form:"page" binding:"omitempty,min=1"`
	PageSize  int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	OutletID  uint   `form:"outlet_id"`
	Status    string `form:"status"`
	State     string `form:"state"`
	MinRating int    `form:"min_rating" binding:"omitempty,min=1,max=5"`
	MaxRating int    `form:"max_rating" binding:"omitempty,min=1,max=5"`
}

type ReviewListResponse struct {
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	Items    []models.Review `json:"items"`
}

func (s *ReviewService) List(ctx context.Context, req *ReviewListRequest) (*ReviewListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.Review{})
	if req.OutletID != 0 {
		query = query.Where("reviews.outlet_id = ?", req.OutletID)
	}
	if req.Status != "" {
		query = query.Where("reviews.status = ?", req.Status)
	}
	if req.MinRating != 0 {
		query = query.Where("reviews.rating >= ?", req.MinRating)
	}
	if req.MaxRating != 0 {
		query = query.Where("reviews.rating <= ?", req.MaxRating)
	}
	if req.State != "" {
		query = query.Joins("JOIN workflow_states ON workflow_states.review_id = reviews.id").
			Where("workflow_states.state = ?", req.State)
	}

	var total int64
	query.Count(&total)

	var items []models.Review
	offset := (req.Page - 1) * req.PageSize
	err := query.Order("reviews.created_at DESC").
		Offset(offset).Limit(req.PageSize).
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	return &ReviewListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    items,
	}, nil
}

type ReviewDetail struct {
	Review    *models.Review          `json:"review"`
	State     *models.WorkflowState   `json:"state"`
	QueueItem *models.ManualQueueItem `json:"queue_item,omitempty"`
}

func (s *ReviewService) Get(ctx context.Context, id uint) (*ReviewDetail, error) {
	var review models.Review
	if err := s.db.WithContext(ctx).Preload("Outlet").First(&review, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReviewNotFound
		}
		return nil, err
	}

	detail := &ReviewDetail{Review: &review}
	st, err := s.states.Get(ctx, id)
	if err != nil && !errors.Is(err, workflow.ErrNotFound) {
		return nil, err
	}
	detail.State = st

	var item models.ManualQueueItem
	err = s.db.WithContext(ctx).Where("review_id = ?", id).First(&item).Error
	switch {
	case err == nil:
		detail.QueueItem = &item
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}
	return detail, nil
}

type WorkflowStateListRequest struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	State    string `form:"state"`
}

type WorkflowStateListResponse struct {
	Total    int64                    `json:"total"`
	Page     int                      `json:"page"`
	PageSize int                      `json:"page_size"`
	Counts   map[workflow.State]int64 `json:"counts"`
	Items    []models.WorkflowState   `json:"items"`
}

func (s *ReviewService) ListStates(ctx context.Context, req *WorkflowStateListRequest) (*WorkflowStateListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}
	if req.State != "" {
		if _, err := workflow.ParseState(req.State); err != nil {
			return nil, err
		}
	}

	counts, err := s.states.CountByState(ctx)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Model(&models.WorkflowState{})
	if req.State != "" {
		query = query.Where("state = ?", req.State)
	}

	var total int64
	query.Count(&total)

	var items []models.WorkflowState
	err = query.Order("last_action_at DESC").
		Offset((req.Page - 1) * req.PageSize).Limit(req.PageSize).
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	return &WorkflowStateListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Counts:   counts,
		Items:    items,
	}, nil
}
