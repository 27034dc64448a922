package checks

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/inkfold/prepress/common/models"
)

func TestAggregatePendingBlocksTransition(t *testing.T) {
	status, complete := AggregateUploadStatus([]models.PreflightStatus{
		models.PreflightOK,
		models.PreflightPending,
		models.PreflightError,
	}, false)

	assert.False(t, complete)
	assert.Equal(t, models.UploadProcessing, status)
}

func TestAggregateEmptySetIsIncomplete(t *testing.T) {
	_, complete := AggregateUploadStatus(nil, true)
	assert.False(t, complete)
}

func TestAggregateVerdicts(t *testing.T) {
	tests := []struct {
		name        string
		statuses    []models.PreflightStatus
		autoApprove bool
		want        models.UploadStatus
	}{
		{"any error blocks", []models.PreflightStatus{models.PreflightOK, models.PreflightError}, true, models.UploadBlocked},
		{"warning needs review", []models.PreflightStatus{models.PreflightOK, models.PreflightWarning}, true, models.UploadNeedsReview},
		{"clean with auto-approve", []models.PreflightStatus{models.PreflightOK, models.PreflightOK}, true, models.UploadReady},
		{"clean without auto-approve", []models.PreflightStatus{models.PreflightOK}, false, models.UploadPendingApproval},
		{"error outranks warning", []models.PreflightStatus{models.PreflightWarning, models.PreflightError}, false, models.UploadBlocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, complete := AggregateUploadStatus(tt.statuses, tt.autoApprove)
			assert.True(t, complete)
			assert.Equal(t, tt.want, status)
		})
	}
}

// The aggregation must not depend on which item finished last: every
// permutation of the same verdict multiset produces the same answer.
func TestAggregateOrderIndependent(t *testing.T) {
	statuses := []models.PreflightStatus{
		models.PreflightOK,
		models.PreflightWarning,
		models.PreflightError,
	}

	perms := [][]int{
		{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
	}
	for _, perm := range perms {
		shuffled := make([]models.PreflightStatus, len(perm))
		for i, j := range perm {
			shuffled[i] = statuses[j]
		}

		status, complete := AggregateUploadStatus(shuffled, false)
		assert.True(t, complete)
		assert.Equal(t, models.UploadBlocked, status)
		assert.Equal(t, models.PreflightError, OverallOf(shuffled))
	}
}

func TestOverallOf(t *testing.T) {
	assert.Equal(t, models.PreflightOK, OverallOf([]models.PreflightStatus{models.PreflightOK}))
	assert.Equal(t, models.PreflightWarning, OverallOf([]models.PreflightStatus{models.PreflightOK, models.PreflightWarning}))
	assert.Equal(t, models.PreflightError, OverallOf([]models.PreflightStatus{models.PreflightWarning, models.PreflightError, models.PreflightOK}))
}
