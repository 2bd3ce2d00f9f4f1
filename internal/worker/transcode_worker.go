package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/hibiken/asynq"

	"github.com/clipforge/transcoder/internal/client"
	"github.com/clipforge/transcoder/internal/config"
	"github.com/clipforge/transcoder/internal/model"
	"github.com/clipforge/transcoder/internal/notification"
	"github.com/clipforge/transcoder/internal/service"
	"github.com/clipforge/transcoder/internal/transcode"
	"github.com/clipforge/transcoder/internal/websocket"
)

const presignExpiry = 24 * time.Hour

// TranscodeWorker processes transcode jobs
type TranscodeWorker struct {
	transcodeService *service.TranscodeService
	s3Client         *s3.Client
	sqsClient        *sqs.Client
	encoder          client.Encoder
	hub              *websocket.Hub
	cfg              *config.TranscoderConfig
}

// NewTranscodeWorker creates a new transcode worker
func NewTranscodeWorker(transcodeService *service.TranscodeService, s3Client *s3.Client, sqsClient *sqs.Client, encoder client.Encoder, hub *websocket.Hub, cfg *config.TranscoderConfig) *TranscodeWorker {
	return &TranscodeWorker{
		transcodeService: transcodeService,
		s3Client:         s3Client,
		sqsClient:        sqsClient,
		encoder:          encoder,
		hub:              hub,
		cfg:              cfg,
	}
}

// ProcessTask handles transcode task processing
func (w *TranscodeWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var taskPayload struct {
		JobID   string          `json:"jobId"`
		Payload json.RawMessage `json:"payload"`
	}

	if err := json.Unmarshal(t.Payload(), &taskPayload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	jobID := taskPayload.JobID
	log.Printf("Starting transcode job: %s", jobID)

	var payload model.TranscodeJobPayload
	if err := json.Unmarshal(taskPayload.Payload, &payload); err != nil {
		w.failJob(ctx, jobID, "Invalid payload")
		return fmt.Errorf("failed to unmarshal transcode payload: %w", err)
	}

	// The uploaded source was staged locally by the handler; it is of no
	// use once the job finished, whatever the outcome.
	defer os.Remove(payload.InputPath)

	return w.process(ctx, jobID, &payload)
}

func (w *TranscodeWorker) process(ctx context.Context, jobID string, payload *model.TranscodeJobPayload) error {
	w.updateProgress(ctx, jobID, 5, "Preparing upload...")

	presetID := payload.PresetID
	if presetID == "" {
		presetID = w.cfg.PresetID
	}

	deps := transcode.Deps{
		Store: func(bucket string) client.ObjectStore {
			return client.NewS3Bucket(w.s3Client, bucket)
		},
		Encoder: w.encoder,
		NewListener: func(queueURL string) transcode.Listener {
			return notification.NewQueueListener(w.sqsClient, queueURL)
		},
	}

	orch, err := transcode.New(deps, transcode.Params{
		FilePath:     payload.InputPath,
		FileName:     payload.FileName,
		PipelineID:   w.cfg.PipelineID,
		PresetID:     presetID,
		InputBucket:  w.cfg.InputBucket,
		OutputBucket: w.cfg.OutputBucket,
		QueueURL:     w.cfg.QueueURL,
	},
		transcode.WithWaitTimeout(w.cfg.WaitTimeout),
		transcode.WithStepFunc(func(s transcode.Step) { w.reportStep(ctx, jobID, s) }),
	)
	if err != nil {
		w.failJob(ctx, jobID, err.Error())
		return err
	}

	keepOutput := payload.OutputMode == model.OutputModeKeep
	if keepOutput {
		orch.SetDeleteOutputOnCleanup(false)
	}

	if err := orch.Transcode(ctx); err != nil {
		w.failJob(ctx, jobID, err.Error())
		return err
	}

	if err := w.transcodeService.SetRemoteJobID(ctx, jobID, orch.JobID()); err != nil {
		log.Printf("Failed to record remote job id for %s: %v", jobID, err)
	}

	file := orch.TranscodedFile()
	result := &model.TranscodeResult{
		FileName:    file.Name,
		ContentType: file.ContentType,
		Size:        file.Size,
		RemoteJobID: orch.JobID(),
	}

	if keepOutput {
		// The object stays in the output bucket; hand back a temporary
		// link instead of the local copy.
		os.Remove(file.Path)
		store := client.NewS3Bucket(w.s3Client, w.cfg.OutputBucket)
		url, err := store.PresignGet(ctx, orch.OutputKey(), presignExpiry)
		if err != nil {
			w.failJob(ctx, jobID, fmt.Sprintf("Failed to presign output: %v", err))
			return err
		}
		result.OutputURL = url
	} else {
		dest := filepath.Join(w.cfg.WorkDir, jobID+filepath.Ext(file.Name))
		if err := os.Rename(file.Path, dest); err != nil {
			w.failJob(ctx, jobID, fmt.Sprintf("Failed to store result: %v", err))
			return err
		}
		result.FilePath = dest
	}

	if err := w.transcodeService.CompleteJob(ctx, jobID, result); err != nil {
		w.failJob(ctx, jobID, "Failed to save result")
		return err
	}

	w.hub.BroadcastComplete(jobID, result)
	log.Printf("Transcode job %s completed", jobID)
	return nil
}

// reportStep maps engine lifecycle steps onto coarse job progress. The
// reset back to init after cleanup is not a user-visible transition.
func (w *TranscodeWorker) reportStep(ctx context.Context, jobID string, s transcode.Step) {
	switch s {
	case transcode.StepInputSent:
		w.updateProgress(ctx, jobID, 30, "Input uploaded, transcoding...")
	case transcode.StepTranscodingDone:
		w.updateProgress(ctx, jobID, 70, "Transcoding finished, fetching output...")
	case transcode.StepOutputDownloaded:
		w.updateProgress(ctx, jobID, 90, "Finalizing...")
	}
}

func (w *TranscodeWorker) updateProgress(ctx context.Context, jobID string, progress int, step string) {
	if err := w.transcodeService.UpdateJobProgress(ctx, jobID, progress, step); err != nil {
		log.Printf("Failed to update progress: %v", err)
	}
	w.hub.BroadcastProgress(jobID, progress, model.JobStatusRunning, step)
}

func (w *TranscodeWorker) failJob(ctx context.Context, jobID, errMsg string) {
	if err := w.transcodeService.FailJob(ctx, jobID, errMsg); err != nil {
		log.Printf("Failed to mark job as failed: %v", err)
	}
	w.hub.BroadcastError(jobID, "TRANSCODE_FAILED", errMsg)
}
