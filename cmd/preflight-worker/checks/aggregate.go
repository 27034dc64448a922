package checks

import "github.com/inkfold/prepress/common/models"

// AggregateUploadStatus derives the owning upload's status from the
// current multiset of item verdicts. It is a pure function re-run on every
// item completion, so the result does not depend on which item finished
// last and a stale concurrent recompute converges to the same answer.
//
// complete is false while any sibling is still pending; the upload status
// must not transition yet in that case.
func AggregateUploadStatus(statuses []models.PreflightStatus, autoApprove bool) (status models.UploadStatus, complete bool) {
	if len(statuses) == 0 {
		return models.UploadProcessing, false
	}

	hasError, hasWarning := false, false
	for _, s := range statuses {
		switch s {
		case models.PreflightPending:
			return models.UploadProcessing, false
		case models.PreflightError:
			hasError = true
		case models.PreflightWarning:
			hasWarning = true
		}
	}

	switch {
	case hasError:
		return models.UploadBlocked, true
	case hasWarning:
		return models.UploadNeedsReview, true
	case autoApprove:
		return models.UploadReady, true
	default:
		return models.UploadPendingApproval, true
	}
}

// OverallOf folds item verdicts into the summary's overall field
func OverallOf(statuses []models.PreflightStatus) models.PreflightStatus {
	overall := models.PreflightOK
	for _, s := range statuses {
		overall = overall.Worse(s)
	}
	return overall
}
