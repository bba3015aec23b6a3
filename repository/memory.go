package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"recording-service/constant"
	"recording-service/entities"
)

// memoryRepo keeps everything in maps behind one mutex. It backs the test
// suites and lets the server run without Postgres in develop mode.
type memoryRepo struct {
	mu       sync.Mutex
	records  map[uuid.UUID]*entities.CallRecord
	jobs     map[uuid.UUID]*entities.Job
	sessions map[uuid.UUID]*entities.UploadSession
	chunks   map[uuid.UUID]map[int]*entities.UploadChunk
}

func NewMemory() Repository {
	return &memoryRepo{
		records:  make(map[uuid.UUID]*entities.CallRecord),
		jobs:     make(map[uuid.UUID]*entities.Job),
		sessions: make(map[uuid.UUID]*entities.UploadSession),
		chunks:   make(map[uuid.UUID]map[int]*entities.UploadChunk),
	}
}

func (m *memoryRepo) CreateCallRecord(ctx context.Context, record *entities.CallRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.CreatedAt = time.Now()
	record.UpdatedAt = record.CreatedAt
	cp := *record
	m.records[record.ID] = &cp
	return nil
}

func (m *memoryRepo) FindCallRecordById(ctx context.Context, id uuid.UUID) (*entities.CallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *record
	return &cp, nil
}

func (m *memoryRepo) AttachRecording(ctx context.Context, id uuid.UUID, location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	if record.HasRecording() {
		return ErrAlreadyAttached
	}
	record.RecordingLocation = &location
	record.UpdatedAt = time.Now()
	return nil
}

func (m *memoryRepo) CreateJob(ctx context.Context, job *entities.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memoryRepo) FindJobById(ctx context.Context, id uuid.UUID) (*entities.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *memoryRepo) UpdateJobStatus(ctx context.Context, id uuid.UUID, status constant.JobStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = status
	job.Reason = reason
	job.UpdatedAt = time.Now()
	return nil
}

func (m *memoryRepo) IncrementJobAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return 0, ErrJobNotFound
	}
	job.Attempts++
	job.UpdatedAt = time.Now()
	return job.Attempts, nil
}

func (m *memoryRepo) CreateUploadSession(ctx context.Context, session *entities.UploadSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	session.CreatedAt = time.Now()
	session.UpdatedAt = session.CreatedAt
	cp := *session
	m.sessions[session.ID] = &cp
	m.chunks[session.ID] = make(map[int]*entities.UploadChunk)
	return nil
}

func (m *memoryRepo) FindUploadSessionById(ctx context.Context, id uuid.UUID) (*entities.UploadSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *session
	return &cp, nil
}

func (m *memoryRepo) TouchUploadSession(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	session.UpdatedAt = time.Now()
	return nil
}

func (m *memoryRepo) DeleteUploadSession(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.chunks, id)
	return nil
}

func (m *memoryRepo) UpsertUploadChunk(ctx context.Context, chunk *entities.UploadChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byIndex, ok := m.chunks[chunk.SessionId]
	if !ok {
		return ErrSessionNotFound
	}
	if chunk.ID == uuid.Nil {
		chunk.ID = uuid.New()
	}
	chunk.UpdatedAt = time.Now()
	cp := *chunk
	byIndex[chunk.ChunkIndex] = &cp
	return nil
}

func (m *memoryRepo) GetUploadChunksBySessionId(ctx context.Context, sessionId uuid.UUID) ([]*entities.UploadChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byIndex := m.chunks[sessionId]
	chunks := make([]*entities.UploadChunk, 0, len(byIndex))
	for _, chunk := range byIndex {
		cp := *chunk
		chunks = append(chunks, &cp)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })
	return chunks, nil
}

func (m *memoryRepo) CountUploadChunks(ctx context.Context, sessionId uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.chunks[sessionId])), nil
}

func (m *memoryRepo) ListIdleSessions(ctx context.Context, before time.Time) ([]*entities.UploadSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var idle []*entities.UploadSession
	for _, session := range m.sessions {
		if session.UpdatedAt.Before(before) {
			cp := *session
			idle = append(idle, &cp)
		}
	}
	return idle, nil
}
