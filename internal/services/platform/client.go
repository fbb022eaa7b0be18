// Package platform is the HTTP client for the review-source platform.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Nk110820004/freddie-backend-sub000/internal/config"
	"github.com/Nk110820004/freddie-backend-sub000/pkg/logger"
	"golang.org/x/time/rate"
)

// Review is one review as reported by the platform.
type Review struct {
	ExternalID   string
	Rating       int
	CustomerName string
	Body         string
	HasReply     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// APIError is a non-2xx response from the platform.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform returned status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether a later retry may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

var ErrInvalidLocation = errors.New("outlet has no platform location id")

type Client struct {
	baseURL  string
	token    string
	pageSize int
	http     *http.Client
	limiter  *rate.Limiter
}

func NewClient(cfg *config.PlatformConfig) *Client {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.APIToken,
		pageSize: cfg.PageSize,
		http:     &http.Client{Timeout: cfg.Timeout.Std()},
		limiter:  rate.NewLimiter(limit, burst),
	}
}

type wireReview struct {
	ReviewID string `json:"reviewId"`
	Reviewer struct {
		DisplayName string `json:"displayName"`
	} `json:"reviewer"`
	StarRating  json.RawMessage `json:"starRating"`
	Comment     string          `json:"comment"`
	CreateTime  time.Time       `json:"createTime"`
	UpdateTime  time.Time       `json:"updateTime"`
	ReviewReply *struct {
		Comment string `json:"comment"`
	} `json:"reviewReply"`
}

type listResponse struct {
	Reviews       []wireReview `json:"reviews"`
	NextPageToken string       `json:"nextPageToken"`
}

var starRatings = map[string]int{
	"ONE":   1,
	"TWO":   2,
	"THREE": 3,
	"FOUR":  4,
	"FIVE":  5,
}

// parseRating accepts a number or a star enum ("FOUR").
func parseRating(raw json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("unreadable rating %s", string(raw))
	}
	if v, ok := starRatings[strings.ToUpper(s)]; ok {
		return v, nil
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	return 0, fmt.Errorf("unknown rating %q", s)
}

// ListReviews returns reviews created at or after since. Pages are read
// newest first and paging stops once a page reaches past since.
func (c *Client) ListReviews(ctx context.Context, locationID string, since time.Time) ([]Review, error) {
	if locationID == "" {
		return nil, ErrInvalidLocation
	}

	var (
		out       []Review
		pageToken string
	)
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("orderBy", "updateTime desc")
		if c.pageSize > 0 {
			q.Set("pageSize", strconv.Itoa(c.pageSize))
		}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var resp listResponse
		endpoint := fmt.Sprintf("%s/%s/reviews?%s", c.baseURL, strings.Trim(locationID, "/"), q.Encode())
		if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
			return nil, err
		}

		reachedOld := false
		for _, w := range resp.Reviews {
			if w.UpdateTime.Before(since) && w.CreateTime.Before(since) {
				reachedOld = true
				continue
			}
			rating, err := parseRating(w.StarRating)
			if err != nil {
				logger.Warn().Err(err).Str("location", locationID).Str("review", w.ReviewID).Msg("[Platform] skipping review with bad rating")
				continue
			}
			out = append(out, Review{
				ExternalID:   w.ReviewID,
				Rating:       rating,
				CustomerName: w.Reviewer.DisplayName,
				Body:         w.Comment,
				HasReply:     w.ReviewReply != nil && strings.TrimSpace(w.ReviewReply.Comment) != "",
				CreatedAt:    w.CreateTime.UTC(),
				UpdatedAt:    w.UpdateTime.UTC(),
			})
		}

		logger.Debug().Str("location", locationID).Int("page", page).Int("reviews", len(resp.Reviews)).Msg("[Platform] fetched page")

		if resp.NextPageToken == "" || reachedOld {
			break
		}
		pageToken = resp.NextPageToken
	}
	return out, nil
}

// PostReply creates or replaces the public reply on a review.
func (c *Client) PostReply(ctx context.Context, locationID, externalID, text string) error {
	if locationID == "" {
		return ErrInvalidLocation
	}
	endpoint := fmt.Sprintf("%s/%s/reviews/%s/reply", c.baseURL, strings.Trim(locationID, "/"), url.PathEscape(externalID))
	return c.do(ctx, http.MethodPut, endpoint, map[string]string{"comment": text}, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 300)}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
