package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"bountyexpo/internal/model"
)

func TestValidateReview(t *testing.T) {
	next, err := ValidateReview(model.SubmissionStatusPending, ReviewApprove)
	assert.NoError(t, err)
	assert.Equal(t, model.SubmissionStatusApproved, next)

	next, err = ValidateReview(model.SubmissionStatusPending, ReviewReject)
	assert.NoError(t, err)
	assert.Equal(t, model.SubmissionStatusRejected, next)

	next, err = ValidateReview(model.SubmissionStatusPending, ReviewRequestRevision)
	assert.NoError(t, err)
	assert.Equal(t, model.SubmissionStatusRevisionRequested, next)

	_, err = ValidateReview(model.SubmissionStatusPending, "shrug")
	assert.Error(t, err)

	for _, s := range []model.SubmissionStatus{
		model.SubmissionStatusApproved,
		model.SubmissionStatusRejected,
		model.SubmissionStatusRevisionRequested,
	} {
		for _, a := range []ReviewAction{ReviewApprove, ReviewReject, ReviewRequestRevision} {
			_, err := ValidateReview(s, a)
			assert.Error(t, err, "%s/%s", s, a)
		}
	}
}

func TestIsFinal(t *testing.T) {
	assert.True(t, IsFinal(model.SubmissionStatusApproved))
	assert.True(t, IsFinal(model.SubmissionStatusRejected))
	assert.False(t, IsFinal(model.SubmissionStatusPending))
	assert.False(t, IsFinal(model.SubmissionStatusRevisionRequested))
}
