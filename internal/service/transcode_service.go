package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/clipforge/transcoder/internal/model"
)

const (
	TaskTypeTranscode = "transcode:process"
)

// ErrJobNotFound is returned when no job record exists for an id
var ErrJobNotFound = fmt.Errorf("job not found")

// TranscodeService handles transcode job management
type TranscodeService struct {
	redis       *redis.Client
	asynqClient *asynq.Client
}

func NewTranscodeService(redisClient *redis.Client, asynqClient *asynq.Client) *TranscodeService {
	return &TranscodeService{
		redis:       redisClient,
		asynqClient: asynqClient,
	}
}

// StartTranscode records a new job and queues it for the worker
func (s *TranscodeService) StartTranscode(ctx context.Context, payload *model.TranscodeJobPayload) (*model.StartTranscodeResponse, error) {
	jobID := uuid.New().String()
	now := time.Now()

	job := &model.Job{
		ID:        jobID,
		Type:      model.JobTypeTranscode,
		Status:    model.JobStatusQueued,
		Progress:  0,
		CreatedAt: now,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	job.Payload = payloadBytes

	if err := s.saveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	task, err := newTranscodeTask(jobID, payloadBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	// A transcoding run is not idempotent (the remote job is real money);
	// leave retries to the caller instead of asynq.
	_, err = s.asynqClient.Enqueue(task,
		asynq.Queue("transcode"),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.StartTranscodeResponse{
		JobID:  jobID,
		Status: model.JobStatusQueued,
	}, nil
}

// GetJob returns the stored job record
func (s *TranscodeService) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	return s.getJob(ctx, jobID)
}

// GetResult returns the result of a completed transcode job
func (s *TranscodeService) GetResult(ctx context.Context, jobID string) (*model.TranscodeResult, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status != model.JobStatusSucceeded {
		return nil, fmt.Errorf("job not completed")
	}

	var result model.TranscodeResult
	if err := json.Unmarshal(job.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}

	return &result, nil
}

// UpdateJobProgress updates job progress (called by worker)
func (s *TranscodeService) UpdateJobProgress(ctx context.Context, jobID string, progress int, step string) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Progress = progress
	job.CurrentStep = step

	if job.Status == model.JobStatusQueued {
		job.Status = model.JobStatusRunning
		now := time.Now()
		job.StartedAt = &now
	}

	return s.saveJob(ctx, job)
}

// SetRemoteJobID records the id assigned by the encoding service
func (s *TranscodeService) SetRemoteJobID(ctx context.Context, jobID, remoteJobID string) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.RemoteJobID = remoteJobID
	return s.saveJob(ctx, job)
}

// CompleteJob marks job as completed (called by worker)
func (s *TranscodeService) CompleteJob(ctx context.Context, jobID string, result *model.TranscodeResult) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	resultBytes, err := json.Marshal(result)
	if err != nil {
		return err
	}

	job.Status = model.JobStatusSucceeded
	job.Progress = 100
	job.Result = resultBytes
	now := time.Now()
	job.CompletedAt = &now

	return s.saveJob(ctx, job)
}

// FailJob marks job as failed (called by worker)
func (s *TranscodeService) FailJob(ctx context.Context, jobID string, errMsg string) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Status = model.JobStatusFailed
	job.Error = &errMsg
	now := time.Now()
	job.CompletedAt = &now

	return s.saveJob(ctx, job)
}

// Helper methods

func (s *TranscodeService) saveJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, fmt.Sprintf("job:%s", job.ID), data, 24*time.Hour).Err()
}

func (s *TranscodeService) getJob(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, fmt.Sprintf("job:%s", jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}

	return &job, nil
}

func newTranscodeTask(jobID string, payload []byte) (*asynq.Task, error) {
	taskPayload := map[string]interface{}{
		"jobId":   jobID,
		"payload": payload,
	}
	data, err := json.Marshal(taskPayload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeTranscode, data), nil
}
