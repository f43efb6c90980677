package pipeline

import "github.com/readleaf/readleaf/internal/store"

// Progress milestones reported while a job is active.
const (
	progressValidated  = 10
	progressConverted  = 30
	progressSegmented  = 40
	progressEnriched   = 60
	progressChecked    = 80
	progressSplitReady = 50
)

// StageMessage translates raw job state into a caller-facing message. It
// holds no state of its own; thresholds mirror the milestones above.
func StageMessage(status store.JobStatus, progress int) string {
	switch status {
	case store.JobQueued:
		return "waiting to start"
	case store.JobCompleted:
		return "processing complete"
	case store.JobFailed:
		return "processing failed"
	case store.JobActive:
		switch {
		case progress < 40:
			return "converting PDF to text"
		case progress < 60:
			return "splitting chapters"
		case progress < 80:
			return "checking chapter quality"
		default:
			return "storing chapters"
		}
	default:
		return "unknown"
	}
}

// JobView is the caller-facing status/progress/message triple.
type JobView struct {
	JobID         string          `json:"job_id"`
	DocumentID    string          `json:"document_id"`
	Status        store.JobStatus `json:"status"`
	Progress      int             `json:"progress"`
	Message       string          `json:"message"`
	FailureReason string          `json:"failure_reason,omitempty"`
}

// NewJobView builds the reporting shape for a stored job. Error details are
// only surfaced once the job is terminally failed; transient retry noise
// stays internal.
func NewJobView(job *store.Job) JobView {
	view := JobView{
		JobID:      job.ID,
		DocumentID: job.DocumentID,
		Status:     job.Status,
		Progress:   job.Progress,
		Message:    StageMessage(job.Status, job.Progress),
	}
	if job.Status == store.JobFailed {
		view.FailureReason = job.ErrorMessage
	}
	return view
}
