package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Nk110820004/freddie-backend-sub000/internal/metrics"
	"github.com/Nk110820004/freddie-backend-sub000/internal/models"
	"github.com/Nk110820004/freddie-backend-sub000/internal/services/platform"
	"github.com/Nk110820004/freddie-backend-sub000/internal/workflow"
	"github.com/Nk110820004/freddie-backend-sub000/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IngestStats summarises one outlet pass.
type IngestStats struct {
	OutletID       uint `json:"outlet_id"`
	Fetched        int  `json:"fetched"`
	Ingested       int  `json:"ingested"`
	Duplicates     int  `json:"duplicates"`
	AlreadyReplied int  `json:"already_replied"`
	Invalid        int  `json:"invalid"`
	Auto           int  `json:"auto"`
	Manual         int  `json:"manual"`
	RouteFailed    int  `json:"route_failed"`
}

func (s *IngestStats) Add(o *IngestStats) {
	if o == nil {
		return
	}
	s.Fetched += o.Fetched
	s.Ingested += o.Ingested
	s.Duplicates += o.Duplicates
	s.AlreadyReplied += o.AlreadyReplied
	s.Invalid += o.Invalid
	s.Auto += o.Auto
	s.Manual += o.Manual
	s.RouteFailed += o.RouteFailed
}

// IngestionService pulls new reviews for one outlet and creates the review
// and its PENDING workflow row together.
type IngestionService struct {
	db       *gorm.DB
	states   *workflow.Store
	source   ReviewSource
	router   *Router
	lookback time.Duration
	timeout  time.Duration
	now      func() time.Time
}

func NewIngestionService(db *gorm.DB, states *workflow.Store, source ReviewSource, router *Router, lookback, callTimeout time.Duration) *IngestionService {
	return &IngestionService{
		db:       db,
		states:   states,
		source:   source,
		router:   router,
		lookback: lookback,
		timeout:  callTimeout,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// IngestOutlet fetches everything since the outlet's watermark. The
// watermark only advances when the fetch and every insert succeeded;
// routing failures are left for the resume pass.
func (s *IngestionService) IngestOutlet(ctx context.Context, outlet *models.Outlet) (*IngestStats, error) {
	stats := &IngestStats{OutletID: outlet.ID}
	fetchStart := s.now()
	since := s.Watermark(ctx, outlet.ID)

	callCtx, cancel := withTimeout(ctx, s.timeout)
	candidates, err := s.source.ListReviews(callCtx, outlet.LocationID, since)
	cancel()
	if err != nil {
		metrics.OutletIngestions.WithLabelValues("fetch_failed").Inc()
		s.markFailure(ctx, outlet.ID, err)
		var apiErr *platform.APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			logger.Warn().Uint("outlet_id", outlet.ID).Int("status", apiErr.StatusCode).
				Msg("[Ingestion] platform rejected fetch, check outlet location settings")
		}
		return stats, fmt.Errorf("fetch reviews for outlet %d: %w", outlet.ID, err)
	}
	stats.Fetched = len(candidates)

	var insertErrs []string
	for i := range candidates {
		if ctx.Err() != nil {
			insertErrs = append(insertErrs, ctx.Err().Error())
			break
		}
		review, err := s.ingestOne(ctx, outlet, &candidates[i], stats)
		if err != nil {
			insertErrs = append(insertErrs, err.Error())
			logger.Error().Err(err).Uint("outlet_id", outlet.ID).Str("external_id", candidates[i].ExternalID).Msg("[Ingestion] insert failed")
			continue
		}
		if review == nil {
			continue
		}

		stats.Ingested++
		branch, err := s.router.Route(ctx, review, outlet)
		metrics.ReviewsIngested.WithLabelValues(string(branch)).Inc()
		if branch == BranchAuto {
			stats.Auto++
		} else {
			stats.Manual++
		}
		if err != nil {
			stats.RouteFailed++
			s.logRouteFailure(review, outlet, branch, err)
		}
	}

	if len(insertErrs) > 0 {
		err := fmt.Errorf("outlet %d: %d insert errors: %s", outlet.ID, len(insertErrs), strings.Join(insertErrs, "; "))
		metrics.OutletIngestions.WithLabelValues("insert_failed").Inc()
		s.markFailure(ctx, outlet.ID, err)
		return stats, err
	}

	s.markSuccess(ctx, outlet.ID, fetchStart)
	metrics.OutletIngestions.WithLabelValues("ok").Inc()
	logger.Info().Uint("outlet_id", outlet.ID).Time("since", since).Int("fetched", stats.Fetched).
		Int("ingested", stats.Ingested).Int("duplicates", stats.Duplicates).Int("already_replied", stats.AlreadyReplied).
		Msg("[Ingestion] outlet done")
	return stats, nil
}

// ingestOne returns the created review, or nil when the candidate was skipped.
func (s *IngestionService) ingestOne(ctx context.Context, outlet *models.Outlet, c *platform.Review, stats *IngestStats) (*models.Review, error) {
	if c.HasReply {
		// answered out-of-band; creating a workflow would double-reply
		stats.AlreadyReplied++
		metrics.IngestSkipped.WithLabelValues("already_replied").Inc()
		return nil, nil
	}
	if c.ExternalID == "" {
		stats.Invalid++
		metrics.IngestSkipped.WithLabelValues("no_external_id").Inc()
		logger.Warn().Uint("outlet_id", outlet.ID).Msg("[Ingestion] candidate without external id skipped")
		return nil, nil
	}
	if c.Rating < 1 || c.Rating > 5 {
		stats.Invalid++
		metrics.IngestSkipped.WithLabelValues("invalid_rating").Inc()
		logger.Warn().Uint("outlet_id", outlet.ID).Str("external_id", c.ExternalID).Int("rating", c.Rating).Msg("[Ingestion] rating out of range, skipped")
		return nil, nil
	}

	extID := c.ExternalID
	review := &models.Review{
		OutletID:     outlet.ID,
		Rating:       c.Rating,
		CustomerName: c.CustomerName,
		Body:         c.Body,
		ExternalID:   &extID,
		Status:       models.ReviewStatusPending,
	}
	if !c.CreatedAt.IsZero() {
		created := c.CreatedAt.UTC()
		review.SourceCreatedAt = &created
	}

	duplicate := false
	err := s.states.RunInTx(ctx, func(tx *gorm.DB, states *workflow.Store) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoNothing: true,
		}).Create(review)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			duplicate = true
			return nil
		}
		_, err := states.Create(ctx, review.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if duplicate {
		stats.Duplicates++
		metrics.IngestSkipped.WithLabelValues("duplicate").Inc()
		return nil, nil
	}

	review.Outlet = outlet
	return review, nil
}

func (s *IngestionService) logRouteFailure(review *models.Review, outlet *models.Outlet, branch Branch, err error) {
	var te *workflow.TransitionError
	if errors.As(err, &te) {
		logger.Error().Err(err).Uint("review_id", review.ID).Uint("outlet_id", outlet.ID).Msg("[Ingestion] illegal transition while routing")
		LogError("ingestion", "route", err.Error(), LogRef{OutletID: outlet.ID, ReviewID: review.ID},
			map[string]string{"branch": string(branch), "from": string(te.From), "to": string(te.To)})
		return
	}
	logger.Warn().Err(err).Uint("review_id", review.ID).Uint("outlet_id", outlet.ID).Str("branch", string(branch)).
		Msg("[Ingestion] routing incomplete, left for resume")
}

// Watermark returns the outlet's last fetch start, or now minus the
// initial lookback when no cursor exists.
func (s *IngestionService) Watermark(ctx context.Context, outletID uint) time.Time {
	var cursor models.IngestionCursor
	err := s.db.WithContext(ctx).Where("outlet_id = ?", outletID).First(&cursor).Error
	if err != nil || cursor.LastFetchedAt.IsZero() {
		return s.now().Add(-s.lookback)
	}
	return cursor.LastFetchedAt.UTC()
}

func (s *IngestionService) markSuccess(ctx context.Context, outletID uint, fetchStart time.Time) {
	var cursor models.IngestionCursor
	s.db.WithContext(ctx).Where(models.IngestionCursor{OutletID: outletID}).FirstOrInit(&cursor)
	cursor.LastFetchedAt = fetchStart
	cursor.LastSuccessAt = &fetchStart
	cursor.LastError = ""
	cursor.ConsecutiveFailures = 0
	if err := s.db.WithContext(ctx).Save(&cursor).Error; err != nil {
		logger.Warn().Err(err).Uint("outlet_id", outletID).Msg("[Ingestion] failed to advance watermark")
	}
}

func (s *IngestionService) markFailure(ctx context.Context, outletID uint, cause error) {
	var cursor models.IngestionCursor
	s.db.WithContext(ctx).Where(models.IngestionCursor{OutletID: outletID}).FirstOrInit(&cursor)
	if cursor.LastFetchedAt.IsZero() {
		cursor.LastFetchedAt = s.now().Add(-s.lookback)
	}
	cursor.LastError = truncate(cause.Error(), 500)
	cursor.ConsecutiveFailures++
	if err := s.db.WithContext(ctx).Save(&cursor).Error; err != nil {
		logger.Warn().Err(err).Uint("outlet_id", outletID).Msg("[Ingestion] failed to record cursor error")
	}
}
