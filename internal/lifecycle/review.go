package lifecycle

import (
	"fmt"

	"bountyexpo/internal/model"
)

// ReviewAction is a poster decision on a completion submission.
type ReviewAction string

const (
	ReviewApprove         ReviewAction = "approve"
	ReviewReject          ReviewAction = "reject"
	ReviewRequestRevision ReviewAction = "request_revision"
)

// ValidateReview returns the status a submission moves to when action is applied.
// Only pending submissions can be reviewed.
func ValidateReview(current model.SubmissionStatus, action ReviewAction) (model.SubmissionStatus, error) {
	if current != model.SubmissionStatusPending {
		return "", fmt.Errorf("submission is %s; only pending submissions can be reviewed", current)
	}
	switch action {
	case ReviewApprove:
		return model.SubmissionStatusApproved, nil
	case ReviewReject:
		return model.SubmissionStatusRejected, nil
	case ReviewRequestRevision:
		return model.SubmissionStatusRevisionRequested, nil
	default:
		return "", fmt.Errorf("unknown review action %q", action)
	}
}

// IsFinal reports whether a submission status ends its review round.
func IsFinal(s model.SubmissionStatus) bool {
	return s == model.SubmissionStatusApproved || s == model.SubmissionStatusRejected
}
