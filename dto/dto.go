package dto

import (
	"time"

	"github.com/google/uuid"
)

// Queue messages.

type FinalizeMessage struct {
	JobId          uuid.UUID `json:"jobId"`
	SessionId      uuid.UUID `json:"sessionId"`
	ExpectedChunks int       `json:"expectedChunks"`
	CallRecordId   uuid.UUID `json:"callRecordId"`
}

type SimpleStoreMessage struct {
	JobId        uuid.UUID `json:"jobId"`
	CallRecordId uuid.UUID `json:"callRecordId"`
	TempPath     string    `json:"tempPath"`
	FileName     string    `json:"fileName"`
}

// HTTP payloads.

const (
	ModeSimple    = "simple"
	ModeS3Confirm = "s3_confirm"
	ModeInit      = "init"
	ModeAppend    = "append"
	ModeFinalize  = "finalize"
)

type PresignRequest struct {
	ContentType string `json:"content_type" binding:"required"`
}

type PresignResponse struct {
	UploadURL string     `json:"upload_url"`
	ObjectKey string     `json:"object_key"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// UploadRequest is the JSON body of the mode-discriminated POST /recordings
// endpoint for every mode except "simple", which arrives as multipart.
// Bytes is base64 on the wire.
type UploadRequest struct {
	Mode           string `json:"mode" binding:"required"`
	CallRecordId   string `json:"call_record_id"`
	ObjectKey      string `json:"object_key"`
	ExpectedChunks int    `json:"expected_chunks"`
	SessionId      string `json:"session_id"`
	Index          *int   `json:"index"`
	Bytes          []byte `json:"bytes"`
}

type InitResponse struct {
	SessionId uuid.UUID `json:"session_id"`
}

type AcceptedResponse struct {
	JobId        uuid.UUID `json:"job_id"`
	CallRecordId uuid.UUID `json:"call_record_id"`
}

type CreateCallRequest struct {
	LeadId          string `json:"lead_id" binding:"required"`
	Outcome         string `json:"outcome" binding:"required"`
	DurationSeconds *int   `json:"duration_seconds"`
}

type JobResponse struct {
	JobId    uuid.UUID `json:"job_id"`
	Status   string    `json:"status"`
	Reason   string    `json:"reason,omitempty"`
	Attempts int       `json:"attempts"`
}
