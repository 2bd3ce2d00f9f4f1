package model

// Job status
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Output modes
type OutputMode string

const (
	// OutputModeDownload pulls the result down and removes both remote
	// objects once the job is finished.
	OutputModeDownload OutputMode = "download"
	// OutputModeKeep leaves the result in the output bucket and hands
	// back a temporary link instead.
	OutputModeKeep OutputMode = "keep"
)

var ValidOutputModes = []OutputMode{OutputModeDownload, OutputModeKeep}
