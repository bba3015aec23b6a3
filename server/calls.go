package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"recording-service/constant"
	"recording-service/dto"
	"recording-service/entities"
	"recording-service/repository"
)

// CreateCall logs one call attempt. The record exists before any recording
// does; ingestion attaches the recording to it later.
func (h *Handler) CreateCall(c *gin.Context) {
	var req dto.CreateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lead_id and outcome are required"})
		return
	}
	leadId, err := uuid.Parse(req.LeadId)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lead id"})
		return
	}
	outcome := constant.CallOutcome(req.Outcome)
	if !outcome.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid outcome"})
		return
	}
	agentId, ok := agentFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no agent identity"})
		return
	}

	record := &entities.CallRecord{
		ID:              uuid.New(),
		LeadId:          leadId,
		AgentId:         agentId,
		Outcome:         outcome,
		DurationSeconds: req.DurationSeconds,
	}
	if err := h.repo.CreateCallRecord(c.Request.Context(), record); err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to create call record")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, record)
}

// GetJob reports an ingestion job's status, including the cancel reason of
// terminal jobs, so a client that never saw a confirmation can decide
// whether to re-run the upload.
func (h *Handler) GetJob(c *gin.Context) {
	jobId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}
	job, err := h.repo.FindJobById(c.Request.Context(), jobId)
	if errors.Is(err, repository.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to load job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if _, ok := h.authorizeRecord(c, job.CallRecordId.String()); !ok {
		return
	}

	c.JSON(http.StatusOK, dto.JobResponse{
		JobId:    job.ID,
		Status:   string(job.Status),
		Reason:   job.Reason,
		Attempts: job.Attempts,
	})
}
