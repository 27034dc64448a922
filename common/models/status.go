package models

// PreflightStatus is the per-item verdict of the preflight pipeline
type PreflightStatus string

const (
	PreflightPending PreflightStatus = "pending"
	PreflightOK      PreflightStatus = "ok"
	PreflightWarning PreflightStatus = "warning"
	PreflightError   PreflightStatus = "error"
)

// severity orders verdicts: error > warning > ok. Pending never competes.
func (s PreflightStatus) severity() int {
	switch s {
	case PreflightError:
		return 3
	case PreflightWarning:
		return 2
	case PreflightOK:
		return 1
	default:
		return 0
	}
}

// Worse returns the more severe of two verdicts
func (s PreflightStatus) Worse(other PreflightStatus) PreflightStatus {
	if other.severity() > s.severity() {
		return other
	}
	return s
}

// UploadStatus is the lifecycle state of a customer submission.
// The pipeline only drives transitions among the processing subset;
// later states belong to the merchant review workflow.
type UploadStatus string

const (
	UploadDraft             UploadStatus = "draft"
	UploadUploaded          UploadStatus = "uploaded"
	UploadProcessing        UploadStatus = "processing"
	UploadNeedsReview       UploadStatus = "needs_review"
	UploadBlocked           UploadStatus = "blocked"
	UploadPendingApproval   UploadStatus = "pending_approval"
	UploadReady             UploadStatus = "ready"
	UploadApproved          UploadStatus = "approved"
	UploadRejected          UploadStatus = "rejected"
	UploadReuploadRequested UploadStatus = "reupload_requested"
	UploadPrinting          UploadStatus = "printing"
	UploadPrinted           UploadStatus = "printed"
	UploadShipped           UploadStatus = "shipped"
)

// ExportStatus is the lifecycle state of an export job
type ExportStatus string

const (
	ExportPending    ExportStatus = "pending"
	ExportProcessing ExportStatus = "processing"
	ExportCompleted  ExportStatus = "completed"
	ExportFailed     ExportStatus = "failed"
)
