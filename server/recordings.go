package server

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"recording-service/dto"
	"recording-service/entities"
	"recording-service/repository"
	"recording-service/service"
	"recording-service/storage"
)

type Handler struct {
	repo          repository.Repository
	ingest        service.IngestService
	sessions      service.SessionStore
	store         storage.Store
	issuer        storage.Issuer
	maxUploadSize int64
}

func NewHandler(
	repo repository.Repository,
	ingest service.IngestService,
	sessions service.SessionStore,
	store storage.Store,
	issuer storage.Issuer,
	maxUploadSize int64,
) *Handler {
	return &Handler{
		repo:          repo,
		ingest:        ingest,
		sessions:      sessions,
		store:         store,
		issuer:        issuer,
		maxUploadSize: maxUploadSize,
	}
}

// Register mounts all recording routes behind auth. The direct-upload sink
// exists only when the blob store is local; with object storage clients PUT
// straight to the presigned URL.
func (h *Handler) Register(r *gin.Engine, auth gin.HandlerFunc, localMode bool) {
	api := r.Group("/", auth)
	api.POST("/calls", h.CreateCall)
	api.GET("/jobs/:id", h.GetJob)
	api.POST("/recordings/presign", h.Presign)
	api.POST("/recordings", h.CreateRecording)
	api.GET("/recordings/:id", h.GetRecording)
	if localMode {
		api.PUT("/recordings/direct/*key", h.DirectPut)
	}
}

// authorizeRecord resolves the record and checks the caller owns it. It
// writes the response itself when authorization fails; nothing has been
// mutated by then.
func (h *Handler) authorizeRecord(c *gin.Context, idStr string) (*entities.CallRecord, bool) {
	recordId, err := uuid.Parse(idStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid call record id"})
		return nil, false
	}
	agentId, ok := agentFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no agent identity"})
		return nil, false
	}
	record, err := h.repo.FindCallRecordById(c.Request.Context(), recordId)
	if errors.Is(err, repository.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "call record not found"})
		return nil, false
	}
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to load call record")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return nil, false
	}
	if record.AgentId != agentId {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your call record"})
		return nil, false
	}
	return record, true
}

// Presign handles POST /recordings/presign.
func (h *Handler) Presign(c *gin.Context) {
	var req dto.PresignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content_type is required"})
		return
	}
	resp, err := h.ingest.Presign(c.Request.Context(), req.ContentType)
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to issue upload url")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CreateRecording handles the mode-discriminated POST /recordings endpoint.
// Simple uploads arrive as multipart; every other mode is JSON.
func (h *Handler) CreateRecording(c *gin.Context) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		h.simpleUpload(c)
		return
	}

	var req dto.UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	switch req.Mode {
	case dto.ModeS3Confirm:
		h.confirmRemote(c, req)
	case dto.ModeInit:
		h.initSession(c, req)
	case dto.ModeAppend:
		h.appendChunk(c, req)
	case dto.ModeFinalize:
		h.finalizeSession(c, req)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown mode"})
	}
}

func (h *Handler) simpleUpload(c *gin.Context) {
	if c.PostForm("mode") != dto.ModeSimple {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart uploads must use mode=simple"})
		return
	}
	record, ok := h.authorizeRecord(c, c.PostForm("call_record_id"))
	if !ok {
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if file.Size > h.maxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large"})
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open file"})
		return
	}
	defer f.Close()

	job, err := h.ingest.Simple(c.Request.Context(), record, f, file.Filename)
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to accept simple upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusAccepted, dto.AcceptedResponse{JobId: job.ID, CallRecordId: record.ID})
}

func (h *Handler) confirmRemote(c *gin.Context, req dto.UploadRequest) {
	if req.ObjectKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "object_key is required"})
		return
	}
	record, ok := h.authorizeRecord(c, req.CallRecordId)
	if !ok {
		return
	}

	err := h.ingest.ConfirmRemote(c.Request.Context(), record, req.ObjectKey)
	switch {
	case errors.Is(err, repository.ErrAlreadyAttached):
		c.JSON(http.StatusConflict, gin.H{"error": "recording already attached"})
	case errors.Is(err, repository.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "call record not found"})
	case err != nil:
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to confirm remote upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	default:
		c.JSON(http.StatusOK, gin.H{"call_record_id": record.ID, "attached": true})
	}
}

func (h *Handler) initSession(c *gin.Context, req dto.UploadRequest) {
	if req.ExpectedChunks < 1 || req.ExpectedChunks > 10_000 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected_chunks must be 1-10000"})
		return
	}
	record, ok := h.authorizeRecord(c, req.CallRecordId)
	if !ok {
		return
	}

	sessionId, err := h.sessions.Init(c.Request.Context(), record.ID, req.ExpectedChunks)
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to init upload session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, dto.InitResponse{SessionId: sessionId})
}

func (h *Handler) resolveSession(c *gin.Context, idStr string) (*entities.UploadSession, bool) {
	sessionId, err := uuid.Parse(idStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return nil, false
	}
	session, err := h.sessions.Get(c.Request.Context(), sessionId)
	if errors.Is(err, repository.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "upload session not found"})
		return nil, false
	}
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to load upload session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return nil, false
	}
	return session, true
}

func (h *Handler) appendChunk(c *gin.Context, req dto.UploadRequest) {
	if req.Index == nil || len(req.Bytes) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "index and bytes are required"})
		return
	}
	session, ok := h.resolveSession(c, req.SessionId)
	if !ok {
		return
	}
	if _, ok := h.authorizeRecord(c, session.CallRecordId.String()); !ok {
		return
	}

	err := h.sessions.Append(c.Request.Context(), session.ID, *req.Index, bytes.NewReader(req.Bytes), int64(len(req.Bytes)))
	switch {
	case errors.Is(err, repository.ErrSessionNotFound):
		// Cancelled between resolve and append.
		c.JSON(http.StatusNotFound, gin.H{"error": "upload session not found"})
	case errors.Is(err, service.ErrChunkOutOfRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": "chunk index out of range"})
	case err != nil:
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to append chunk")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	default:
		c.JSON(http.StatusOK, gin.H{"session_id": session.ID, "index": *req.Index})
	}
}

func (h *Handler) finalizeSession(c *gin.Context, req dto.UploadRequest) {
	session, ok := h.resolveSession(c, req.SessionId)
	if !ok {
		return
	}
	if req.ExpectedChunks > 0 && req.ExpectedChunks != session.ExpectedChunks {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected_chunks does not match session"})
		return
	}
	record, ok := h.authorizeRecord(c, session.CallRecordId.String())
	if !ok {
		return
	}

	job, err := h.ingest.EnqueueFinalize(c.Request.Context(), session)
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to enqueue finalize")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusAccepted, dto.AcceptedResponse{JobId: job.ID, CallRecordId: record.ID})
}

// DirectPut is the local-mode sink behind locally issued upload URLs.
func (h *Handler) DirectPut(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	loc, err := h.store.Put(c.Request.Context(), c.Request.Body, c.Request.ContentLength, key)
	if errors.Is(err, storage.ErrInvalidHint) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid object key"})
		return
	}
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("direct upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"object_key": loc.Key()})
}

var (
	errMalformedRange     = errors.New("malformed range")
	errUnsatisfiableRange = errors.New("range not satisfiable")
)

// parseRange interprets a Range header against a blob of the given size.
// Only single ranges are supported: a multi-range request is served as its
// first range. Malformed specs are reported separately so the caller can
// fall back to a full response, per RFC 9110's "may ignore" allowance.
func parseRange(header string, size int64) (start, end int64, err error) {
	spec, found := strings.CutPrefix(header, "bytes=")
	if !found {
		return 0, 0, errMalformedRange
	}
	if i := strings.IndexByte(spec, ','); i >= 0 {
		spec = spec[:i]
	}
	spec = strings.TrimSpace(spec)

	first, last, found := strings.Cut(spec, "-")
	if !found {
		return 0, 0, errMalformedRange
	}

	if first == "" {
		// Suffix form: the final N bytes.
		n, convErr := strconv.ParseInt(last, 10, 64)
		if convErr != nil || n <= 0 {
			return 0, 0, errMalformedRange
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, nil
	}

	start, convErr := strconv.ParseInt(first, 10, 64)
	if convErr != nil || start < 0 {
		return 0, 0, errMalformedRange
	}
	if start >= size {
		return 0, 0, errUnsatisfiableRange
	}

	end = size - 1
	if last != "" {
		end, convErr = strconv.ParseInt(last, 10, 64)
		if convErr != nil || end < start {
			return 0, 0, errMalformedRange
		}
		if end > size-1 {
			end = size - 1
		}
	}
	return start, end, nil
}

func contentTypeFor(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// GetRecording streams a stored recording. Remote blobs are answered with a
// redirect to a freshly presigned download URL; local blobs are streamed
// directly with byte-range support.
func (h *Handler) GetRecording(c *gin.Context) {
	record, ok := h.authorizeRecord(c, c.Param("id"))
	if !ok {
		return
	}
	if !record.HasRecording() {
		c.JSON(http.StatusNotFound, gin.H{"error": "no recording attached"})
		return
	}
	loc := storage.ParseLocation(*record.RecordingLocation)

	if loc.IsRemote() {
		url, _, err := h.issuer.DownloadURL(c.Request.Context(), loc.Key())
		if err != nil {
			zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to issue download url")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.Redirect(http.StatusFound, url)
		return
	}

	size, err := h.store.Size(c.Request.Context(), loc)
	if errors.Is(err, storage.ErrBlobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "recording blob missing"})
		return
	}
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to stat recording")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	contentType := contentTypeFor(loc.Key())
	c.Header("Accept-Ranges", "bytes")

	rangeHeader := c.GetHeader("Range")
	if rangeHeader != "" {
		start, end, rangeErr := parseRange(rangeHeader, size)
		if errors.Is(rangeErr, errUnsatisfiableRange) {
			c.Header("Content-Range", fmt.Sprintf("bytes */%d", size))
			c.Status(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		if rangeErr == nil {
			rc, readErr := h.store.OpenRange(c.Request.Context(), loc, start, end-start+1)
			if readErr != nil {
				zerolog.Ctx(c.Request.Context()).Error().Err(readErr).Msg("failed to open range")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
				return
			}
			defer rc.Close()
			c.Header("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
			c.DataFromReader(http.StatusPartialContent, end-start+1, contentType, rc, nil)
			return
		}
		// Malformed Range: ignore it and serve the full body.
	}

	rc, size, err := h.store.Open(c.Request.Context(), loc)
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to open recording")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	defer rc.Close()
	c.DataFromReader(http.StatusOK, size, contentType, rc, nil)
}
