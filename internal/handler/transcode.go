package handler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/clipforge/transcoder/internal/model"
	"github.com/clipforge/transcoder/internal/service"
	"github.com/clipforge/transcoder/pkg/response"
)

const maxUploadSize = 500 * 1024 * 1024 // 500MB

type TranscodeHandler struct {
	service   *service.TranscodeService
	validator *validator.Validate
	workDir   string
}

func NewTranscodeHandler(svc *service.TranscodeService, v *validator.Validate, workDir string) *TranscodeHandler {
	return &TranscodeHandler{
		service:   svc,
		validator: v,
		workDir:   workDir,
	}
}

// Start handles POST /api/transcode
// @Summary      Start transcode job
// @Description  Upload a media file and start an asynchronous transcoding job
// @Tags         Transcode
// @Accept       multipart/form-data
// @Produce      json
// @Param        presetId   formData string false "Preset ID (defaults to the configured preset)"
// @Param        outputMode formData string false "Output mode: download (default) or keep"
// @Param        file       formData file   true  "Media file (max 500MB)"
// @Success      202 {object} model.StartTranscodeResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/transcode [post]
func (h *TranscodeHandler) Start(c *fiber.Ctx) error {
	req := model.StartTranscodeRequest{
		PresetID:   c.FormValue("presetId"),
		OutputMode: c.FormValue("outputMode"),
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	if file.Size > maxUploadSize {
		return response.ValidationError(c, "File size exceeds 500MB limit", map[string]interface{}{
			"maxSize":  maxUploadSize,
			"fileSize": file.Size,
		})
	}

	// Stage the upload locally; the worker streams it to the input
	// bucket and removes the staged copy when the job finishes.
	stagedPath := filepath.Join(h.workDir, "staged-"+uuid.New().String()+filepath.Ext(file.Filename))
	if err := c.SaveFile(file, stagedPath); err != nil {
		return response.ServiceError(c, "Failed to store uploaded file")
	}

	outputMode := model.OutputMode(req.OutputMode)
	if outputMode == "" {
		outputMode = model.OutputModeDownload
	}

	payload := &model.TranscodeJobPayload{
		InputPath:  stagedPath,
		FileName:   filepath.Base(file.Filename),
		PresetID:   req.PresetID,
		OutputMode: outputMode,
	}

	result, err := h.service.StartTranscode(c.Context(), payload)
	if err != nil {
		os.Remove(stagedPath)
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/transcode/status/:jobId
// @Summary      Get transcode job status
// @Description  Get the current status and progress of a transcode job
// @Tags         Transcode
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.Job
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/transcode/status/{jobId} [get]
func (h *TranscodeHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.service.GetJob(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, job)
}

// Result handles GET /api/transcode/result/:jobId
// @Summary      Get transcode job result
// @Description  Get the result metadata of a completed transcode job
// @Tags         Transcode
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.TranscodeResult
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/transcode/result/{jobId} [get]
func (h *TranscodeHandler) Result(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.service.GetJob(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	switch job.Status {
	case model.JobStatusSucceeded:
	case model.JobStatusFailed:
		msg := "Transcoding failed"
		if job.Error != nil {
			msg = *job.Error
		}
		return response.JobFailed(c, msg)
	default:
		return response.JobFailed(c, fmt.Sprintf("Job is still %s", job.Status))
	}

	result, err := h.service.GetResult(c.Context(), jobID)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Download handles GET /api/transcode/download/:jobId
// @Summary      Download transcoded file
// @Description  Download the transcoded output of a completed job
// @Tags         Transcode
// @Produce      octet-stream
// @Param        jobId path string true "Job ID"
// @Success      200 {file} file
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/transcode/download/{jobId} [get]
func (h *TranscodeHandler) Download(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetResult(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.JobFailed(c, err.Error())
	}

	if result.FilePath == "" {
		// keep-output jobs have no local copy; point at the bucket link
		if result.OutputURL != "" {
			return c.Redirect(result.OutputURL, fiber.StatusTemporaryRedirect)
		}
		return response.NotFound(c, "No local file for this job")
	}

	if _, err := os.Stat(result.FilePath); err != nil {
		return response.NotFound(c, "Result file no longer available")
	}

	return c.Download(result.FilePath, result.FileName)
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
