package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"recording-service/constant"
	"recording-service/entities"
)

var (
	ErrRecordNotFound  = errors.New("call record not found")
	ErrAlreadyAttached = errors.New("recording already attached")
	ErrSessionNotFound = errors.New("upload session not found")
	ErrJobNotFound     = errors.New("job not found")
)

type Repository interface {
	CreateCallRecord(ctx context.Context, record *entities.CallRecord) error
	FindCallRecordById(ctx context.Context, id uuid.UUID) (*entities.CallRecord, error)
	// AttachRecording sets the record's recording location exactly once.
	// It returns ErrAlreadyAttached when a location is already present and
	// ErrRecordNotFound when the record does not exist.
	AttachRecording(ctx context.Context, id uuid.UUID, location string) error

	CreateJob(ctx context.Context, job *entities.Job) error
	FindJobById(ctx context.Context, id uuid.UUID) (*entities.Job, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status constant.JobStatus, reason string) error
	IncrementJobAttempts(ctx context.Context, id uuid.UUID) (int, error)

	CreateUploadSession(ctx context.Context, session *entities.UploadSession) error
	FindUploadSessionById(ctx context.Context, id uuid.UUID) (*entities.UploadSession, error)
	TouchUploadSession(ctx context.Context, id uuid.UUID) error
	DeleteUploadSession(ctx context.Context, id uuid.UUID) error
	UpsertUploadChunk(ctx context.Context, chunk *entities.UploadChunk) error
	GetUploadChunksBySessionId(ctx context.Context, sessionId uuid.UUID) ([]*entities.UploadChunk, error)
	CountUploadChunks(ctx context.Context, sessionId uuid.UUID) (int64, error)
	ListIdleSessions(ctx context.Context, before time.Time) ([]*entities.UploadSession, error)
}

type repo struct {
	db *gorm.DB
}

func NewRepo(db *sql.DB) Repository {
	gormDB, _ := gorm.Open(postgres.New(postgres.Config{
		Conn: db}),
		&gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		},
	)
	return &repo{
		db: gormDB,
	}
}

func (r *repo) getDB(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func (r *repo) CreateCallRecord(ctx context.Context, record *entities.CallRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.getDB(ctx).Create(record).Error
}

func (r *repo) FindCallRecordById(ctx context.Context, id uuid.UUID) (*entities.CallRecord, error) {
	record := &entities.CallRecord{}
	err := r.getDB(ctx).First(record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *repo) AttachRecording(ctx context.Context, id uuid.UUID, location string) error {
	res := r.getDB(ctx).Model(&entities.CallRecord{}).
		Where("id = ? AND (recording_location IS NULL OR recording_location = '')", id).
		Update("recording_location", location)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Missing row and already-attached row both hit this branch.
		record, err := r.FindCallRecordById(ctx, id)
		if err != nil {
			return err
		}
		if record.HasRecording() {
			return ErrAlreadyAttached
		}
		return ErrRecordNotFound
	}
	return nil
}

func (r *repo) CreateJob(ctx context.Context, job *entities.Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	return r.getDB(ctx).Create(job).Error
}

func (r *repo) FindJobById(ctx context.Context, id uuid.UUID) (*entities.Job, error) {
	job := &entities.Job{}
	err := r.getDB(ctx).First(job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (r *repo) UpdateJobStatus(ctx context.Context, id uuid.UUID, status constant.JobStatus, reason string) error {
	updates := map[string]interface{}{
		"status": status,
		"reason": reason,
	}
	return r.getDB(ctx).Model(&entities.Job{}).Where("id = ?", id).Updates(updates).Error
}

func (r *repo) IncrementJobAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	err := r.getDB(ctx).Model(&entities.Job{}).Where("id = ?", id).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error
	if err != nil {
		return 0, err
	}
	job, err := r.FindJobById(ctx, id)
	if err != nil {
		return 0, err
	}
	return job.Attempts, nil
}

func (r *repo) CreateUploadSession(ctx context.Context, session *entities.UploadSession) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	return r.getDB(ctx).Create(session).Error
}

func (r *repo) FindUploadSessionById(ctx context.Context, id uuid.UUID) (*entities.UploadSession, error) {
	session := &entities.UploadSession{}
	err := r.getDB(ctx).First(session, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (r *repo) TouchUploadSession(ctx context.Context, id uuid.UUID) error {
	return r.getDB(ctx).Model(&entities.UploadSession{}).Where("id = ?", id).
		UpdateColumn("updated_at", gorm.Expr("CURRENT_TIMESTAMP")).Error
}

func (r *repo) DeleteUploadSession(ctx context.Context, id uuid.UUID) error {
	if err := r.getDB(ctx).Where("session_id = ?", id).Delete(&entities.UploadChunk{}).Error; err != nil {
		return err
	}
	return r.getDB(ctx).Where("id = ?", id).Delete(&entities.UploadSession{}).Error
}

func (r *repo) UpsertUploadChunk(ctx context.Context, chunk *entities.UploadChunk) error {
	if chunk.ID == uuid.Nil {
		chunk.ID = uuid.New()
	}
	return r.getDB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "chunk_index"}},
		DoUpdates: clause.AssignmentColumns([]string{"location", "size_bytes", "updated_at"}),
	}).Create(chunk).Error
}

func (r *repo) GetUploadChunksBySessionId(ctx context.Context, sessionId uuid.UUID) ([]*entities.UploadChunk, error) {
	var chunks []*entities.UploadChunk
	err := r.getDB(ctx).Where("session_id = ?", sessionId).Order("chunk_index ASC").Find(&chunks).Error
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *repo) CountUploadChunks(ctx context.Context, sessionId uuid.UUID) (int64, error) {
	var count int64
	err := r.getDB(ctx).Model(&entities.UploadChunk{}).Where("session_id = ?", sessionId).Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) ListIdleSessions(ctx context.Context, before time.Time) ([]*entities.UploadSession, error) {
	var sessions []*entities.UploadSession
	err := r.getDB(ctx).Where("updated_at < ?", before).Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}
