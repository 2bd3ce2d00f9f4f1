package model

// StartTranscodeRequest carries the optional form fields accompanying an
// uploaded media file
type StartTranscodeRequest struct {
	PresetID   string `form:"presetId" json:"presetId" validate:"omitempty,max=64"`
	OutputMode string `form:"outputMode" json:"outputMode" validate:"omitempty,oneof=download keep"`
}

// StartTranscodeResponse acknowledges an accepted job
type StartTranscodeResponse struct {
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
}
