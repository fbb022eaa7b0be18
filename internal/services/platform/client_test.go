package platform

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Nk110820004/freddie-backend-sub000/internal/config"
)

func newTestClient(url string) *Client {
	return NewClient(&config.PlatformConfig{
		BaseURL:  url,
		APIToken: "tok",
		Timeout:  config.Duration(5 * time.Second),
		PageSize: 2,
	})
}

func TestParseRating(t *testing.T) {
	tests := []struct {
		raw      string
		expected int
		wantErr  bool
	}{
		{`5`, 5, false},
		{`"FOUR"`, 4, false},
		{`"one"`, 1, false},
		{`"3"`, 3, false},
		{`"STAR_RATING_UNSPECIFIED"`, 0, true},
		{`{}`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseRating(json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseRating(%s) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("parseRating(%s) = %d, expected %d", tt.raw, got, tt.expected)
			}
		})
	}
}

func TestListReviews_PaginatesAndStopsAtSince(t *testing.T) {
	since := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	pages := map[string]string{
		"": `{"reviews":[
			{"reviewId":"r1","reviewer":{"displayName":"Ana"},"starRating":"FIVE","comment":"Great","createTime":"2026-05-03T10:00:00Z","updateTime":"2026-05-03T10:00:00Z"},
			{"reviewId":"r2","reviewer":{"displayName":"Bo"},"starRating":"TWO","comment":"Slow","createTime":"2026-05-02T10:00:00Z","updateTime":"2026-05-02T10:00:00Z","reviewReply":{"comment":"Sorry!"}}
		],"nextPageToken":"p2"}`,
		"p2": `{"reviews":[
			{"reviewId":"r3","reviewer":{"displayName":"Cy"},"starRating":4,"createTime":"2026-05-01T08:00:00Z","updateTime":"2026-05-01T08:00:00Z"},
			{"reviewId":"r0","starRating":"ONE","createTime":"2026-04-20T08:00:00Z","updateTime":"2026-04-20T08:00:00Z"}
		],"nextPageToken":"p3"}`,
	}

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/accounts/1/locations/9/reviews" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		body, ok := pages[r.URL.Query().Get("pageToken")]
		if !ok {
			t.Errorf("unexpected page token %q", r.URL.Query().Get("pageToken"))
		}
		io.WriteString(w, body)
	}))
	defer srv.Close()

	reviews, err := newTestClient(srv.URL).ListReviews(context.Background(), "accounts/1/locations/9", since)
	if err != nil {
		t.Fatalf("ListReviews() error: %v", err)
	}

	if calls != 2 {
		t.Errorf("calls = %d, expected 2 (stop once a page reaches past since)", calls)
	}
	if len(reviews) != 3 {
		t.Fatalf("len(reviews) = %d, expected 3", len(reviews))
	}
	if reviews[0].ExternalID != "r1" || reviews[0].Rating != 5 || reviews[0].CustomerName != "Ana" {
		t.Errorf("reviews[0] = %+v", reviews[0])
	}
	if !reviews[1].HasReply {
		t.Error("reviews[1] should report an existing reply")
	}
	if reviews[2].Rating != 4 || reviews[2].Body != "" {
		t.Errorf("reviews[2] = %+v", reviews[2])
	}
}

func TestListReviews_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, "down")
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ListReviews(context.Background(), "locations/9", time.Time{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, expected *APIError", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable || !apiErr.Temporary() {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestListReviews_MissingLocation(t *testing.T) {
	_, err := newTestClient("http://unused").ListReviews(context.Background(), "", time.Time{})
	if !errors.Is(err, ErrInvalidLocation) {
		t.Errorf("error = %v, expected ErrInvalidLocation", err)
	}
}

func TestPostReply(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		io.WriteString(w, `{"comment":"Thanks"}`)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).PostReply(context.Background(), "locations/9", "r1", "Thanks")
	if err != nil {
		t.Fatalf("PostReply() error: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Errorf("method = %q, expected PUT", gotMethod)
	}
	if gotPath != "/locations/9/reviews/r1/reply" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody["comment"] != "Thanks" {
		t.Errorf("comment = %q, expected %q", gotBody["comment"], "Thanks")
	}
}
