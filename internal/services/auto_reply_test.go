package services

import (
	"errors"
	"testing"

	"github.com/Nk110820004/freddie-backend-sub000/internal/models"
	"github.com/Nk110820004/freddie-backend-sub000/internal/workflow"
)

func TestAutoReply_HappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	outlet := env.createOutlet(t, "bistro")
	review := env.seedReview(t, outlet, 5, "ext-1")

	if err := env.auto.Handle(ctx, review, outlet); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}

	if st := env.state(t, review.ID); st.State != string(workflow.Completed) {
		t.Errorf("state = %s, expected COMPLETED", st.State)
	}
	got := env.review(t, review.ID)
	if got.Status != models.ReviewStatusClosed {
		t.Errorf("review status = %q, expected closed", got.Status)
	}
	if got.AIReplyText != env.gen.text {
		t.Errorf("AIReplyText = %q, expected %q", got.AIReplyText, env.gen.text)
	}

	if len(env.source.posts) != 1 {
		t.Fatalf("posts = %d, expected 1", len(env.source.posts))
	}
	post := env.source.posts[0]
	if post.LocationID != outlet.LocationID || post.ExternalID != "ext-1" || post.Text != env.gen.text {
		t.Errorf("post = %+v", post)
	}

	req := env.gen.reqs[0]
	if req.Rating != 5 || req.OutletName != "bistro" || req.OutletCategory != "cafe" || req.Purpose != PurposeAutoReply {
		t.Errorf("generator request = %+v", req)
	}
}

func TestAutoReply_GenerationFailureStaysPending(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		err     error
		wantErr error
	}{
		{"provider error", "", errors.New("rate limited"), nil},
		{"empty text", "", nil, ErrGenerationEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.gen.text, env.gen.err = tt.text, tt.err
			outlet := env.createOutlet(t, "bistro")
			review := env.seedReview(t, outlet, 4, "ext-1")

			err := env.auto.Handle(t.Context(), review, outlet)
			if err == nil {
				t.Fatal("Handle() should fail")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, expected %v", err, tt.wantErr)
			}

			if st := env.state(t, review.ID); st.State != string(workflow.Pending) {
				t.Errorf("state = %s, expected PENDING", st.State)
			}
			got := env.review(t, review.ID)
			if got.Status != models.ReviewStatusPending || got.LastError == "" {
				t.Errorf("review = status %q last_error %q", got.Status, got.LastError)
			}
			if env.source.postCount() != 0 {
				t.Error("nothing should be posted when generation fails")
			}
		})
	}
}

func TestAutoReply_PostFailureThenRecovery(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	outlet := env.createOutlet(t, "bistro")
	review := env.seedReview(t, outlet, 5, "ext-1")

	env.source.postErr = errors.New("platform down")
	if err := env.auto.Handle(ctx, review, outlet); err == nil {
		t.Fatal("Handle() should fail when posting fails")
	}

	if st := env.state(t, review.ID); st.State != string(workflow.AutoReplied) {
		t.Fatalf("state = %s, expected AUTO_REPLIED", st.State)
	}
	got := env.review(t, review.ID)
	if got.Status != models.ReviewStatusAutoReplied || got.IsClosed() {
		t.Errorf("review status = %q, expected auto_replied and open", got.Status)
	}

	env.source.postErr = nil
	if err := env.auto.Handle(ctx, got, outlet); err != nil {
		t.Fatalf("second Handle() error: %v", err)
	}
	if env.gen.callCount() != 1 {
		t.Errorf("generator calls = %d, the stored reply should be reused", env.gen.callCount())
	}
	if st := env.state(t, review.ID); st.State != string(workflow.Completed) {
		t.Errorf("state = %s, expected COMPLETED", st.State)
	}
	if env.review(t, review.ID).Status != models.ReviewStatusClosed {
		t.Error("review should be closed after the post succeeds")
	}
}

func TestAutoReply_CompletedIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	outlet := env.createOutlet(t, "bistro")
	review := env.seedReview(t, outlet, 5, "ext-1")

	if err := env.auto.Handle(ctx, review, outlet); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if err := env.auto.Handle(ctx, env.review(t, review.ID), outlet); err != nil {
		t.Fatalf("Handle() on completed review error: %v", err)
	}
	if env.source.postCount() != 1 {
		t.Errorf("posts = %d, expected 1", env.source.postCount())
	}
}
