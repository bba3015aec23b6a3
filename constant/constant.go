package constant

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

type JobType string

const (
	JobTypeChunkedFinalize JobType = "chunked_finalize"
	JobTypeSimpleStore     JobType = "simple_store"
)

// MaxJobAttempts is the total number of tries a retryable job gets before it
// is surfaced as permanently failed. Cancelled outcomes are terminal and do
// not consume attempts.
const MaxJobAttempts = 3

// Cancel reasons recorded on terminally cancelled jobs.
const (
	CancelReasonIncompleteUpload   = "incomplete_upload"
	CancelReasonUploadNotFound     = "upload_not_found"
	CancelReasonCallRecordNotFound = "call_record_not_found"
)

type CallOutcome string

const (
	CallOutcomeConnected   CallOutcome = "CONNECTED"
	CallOutcomeNoAnswer    CallOutcome = "NO_ANSWER"
	CallOutcomeBusy        CallOutcome = "BUSY"
	CallOutcomeWrongNumber CallOutcome = "WRONG_NUMBER"
	CallOutcomeCallBack    CallOutcome = "CALL_BACK"
)

func (o CallOutcome) Valid() bool {
	switch o {
	case CallOutcomeConnected, CallOutcomeNoAnswer, CallOutcomeBusy,
		CallOutcomeWrongNumber, CallOutcomeCallBack:
		return true
	}
	return false
}

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}

type StorageMode string

const (
	StorageModeLocal StorageMode = "local"
	StorageModeMinio StorageMode = "minio"
)
