package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bountyexpo/internal/model"
)

func TestValidateTable(t *testing.T) {
	legal := map[model.BountyStatus]map[Transition]model.BountyStatus{
		model.BountyStatusOpen: {
			TransitionAccept:  model.BountyStatusInProgress,
			TransitionArchive: model.BountyStatusArchived,
			TransitionCancel:  model.BountyStatusArchived,
		},
		model.BountyStatusInProgress: {
			TransitionComplete: model.BountyStatusCompleted,
			TransitionArchive:  model.BountyStatusArchived,
			TransitionCancel:   model.BountyStatusArchived,
			TransitionReopen:   model.BountyStatusOpen,
		},
		model.BountyStatusCompleted: {
			TransitionArchive: model.BountyStatusArchived,
		},
	}

	for _, status := range Statuses {
		for _, tr := range Transitions {
			res := Validate(status, tr)
			want, ok := legal[status][tr]
			if ok {
				assert.True(t, res.Legal, "%s/%s", status, tr)
				assert.Equal(t, want, res.NewStatus, "%s/%s", status, tr)
				assert.Empty(t, res.Reason)
			} else {
				assert.False(t, res.Legal, "%s/%s", status, tr)
				assert.Empty(t, res.NewStatus)
				assert.NotEmpty(t, res.Reason, "%s/%s", status, tr)
			}
		}
	}
}

func TestValidateUnknownInputs(t *testing.T) {
	res := Validate("paused", TransitionAccept)
	assert.False(t, res.Legal)
	assert.Contains(t, res.Reason, "unknown bounty status")

	res = Validate(model.BountyStatusOpen, "teleport")
	assert.False(t, res.Legal)
	assert.Contains(t, res.Reason, "unknown transition")
	assert.Contains(t, res.Reason, "accept")

	res = Validate("", "")
	assert.False(t, res.Legal)
	assert.NotEmpty(t, res.Reason)
}

func TestReasonsNameAlternatives(t *testing.T) {
	res := Validate(model.BountyStatusOpen, TransitionComplete)
	require.False(t, res.Legal)
	assert.Contains(t, res.Reason, "accept")
	assert.Contains(t, res.Reason, "archive")

	res = Validate(model.BountyStatusArchived, TransitionArchive)
	require.False(t, res.Legal)
	assert.Contains(t, res.Reason, "terminal")

	res = Validate(model.BountyStatusInProgress, TransitionDelete)
	require.False(t, res.Legal)
	assert.Contains(t, res.Reason, "hide")
}

func TestValidateIsDeterministic(t *testing.T) {
	for i := 0; i < 20; i++ {
		assert.Equal(t, Validate(model.BountyStatusInProgress, TransitionAccept), Validate(model.BountyStatusInProgress, TransitionAccept))
	}
}

func TestAllowed(t *testing.T) {
	assert.Equal(t, []Transition{TransitionAccept, TransitionArchive, TransitionCancel}, Allowed(model.BountyStatusOpen))
	assert.Empty(t, Allowed(model.BountyStatusArchived))
	assert.Empty(t, Allowed("nope"))
}
