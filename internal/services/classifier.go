package services

// Branch is the workflow route chosen for a review.
type Branch string

const (
	BranchAuto   Branch = "auto"
	BranchManual Branch = "manual"
)

// AutoReplyMinRating is the lowest rating answered without a human.
const AutoReplyMinRating = 4

// Classify maps a rating to its branch: 4 and above auto, 3 and below manual.
func Classify(rating int) Branch {
	if rating >= AutoReplyMinRating {
		return BranchAuto
	}
	return BranchManual
}
