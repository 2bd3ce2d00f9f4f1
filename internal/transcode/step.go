package transcode

// Step tracks how far a job got, so cleanup knows which remote objects
// can possibly exist.
type Step int

const (
	StepInit Step = iota
	StepInputSent
	StepTranscodingDone
	StepOutputDownloaded
)

func (s Step) String() string {
	switch s {
	case StepInit:
		return "init"
	case StepInputSent:
		return "input_sent"
	case StepTranscodingDone:
		return "transcoding_done"
	case StepOutputDownloaded:
		return "output_downloaded"
	default:
		return "unknown"
	}
}

// CanDeleteInput reports whether the input object may exist remotely.
// Before the upload succeeded there is nothing to delete.
func CanDeleteInput(s Step) bool {
	return s >= StepInputSent
}

// CanDeleteOutput reports whether the output object may exist remotely.
// The encoder only writes it once the job reached a terminal state.
func CanDeleteOutput(s Step) bool {
	return s >= StepTranscodingDone
}

// IsRunning reports whether a job is somewhere between its first remote
// side effect and its final download.
func IsRunning(s Step) bool {
	return s > StepInit && s < StepOutputDownloaded
}
