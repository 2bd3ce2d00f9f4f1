package notification

import (
	"encoding/json"
	"fmt"
	"strings"
)

// JobState is the lifecycle state carried by a status notification
type JobState string

const (
	StateSubmitted   JobState = "SUBMITTED"
	StateProgressing JobState = "PROGRESSING"
	StateCompleted   JobState = "COMPLETED"
	StateWarning     JobState = "WARNING"
	StateError       JobState = "ERROR"
)

// IsTerminal reports whether no further status changes will follow.
// Warnings are informational and always precede a terminal event.
func (s JobState) IsTerminal() bool {
	return s == StateCompleted || s == StateError
}

// Event is one decoded job-status notification
type Event struct {
	JobID          string   `json:"jobId"`
	State          JobState `json:"state"`
	Version        string   `json:"version,omitempty"`
	ErrorCode      int      `json:"errorCode,omitempty"`
	MessageDetails string   `json:"messageDetails,omitempty"`
}

// IsTerminal reports whether this event ends the job's lifecycle
func (e *Event) IsTerminal() bool {
	return e.State.IsTerminal()
}

func (e *Event) String() string {
	if e.MessageDetails != "" {
		return fmt.Sprintf("job %s: %s (%s)", e.JobID, e.State, e.MessageDetails)
	}
	return fmt.Sprintf("job %s: %s", e.JobID, e.State)
}

// snsEnvelope is the wrapper the notification service puts around the
// status payload when the pipeline publishes through a topic subscription
type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

// ParseEvent decodes a raw queue message body into an Event. Bodies may
// arrive wrapped in a topic envelope or as the bare status JSON.
func ParseEvent(body string) (*Event, error) {
	payload := body

	var env snsEnvelope
	if err := json.Unmarshal([]byte(body), &env); err == nil && env.Type == "Notification" && env.Message != "" {
		payload = env.Message
	}

	var evt Event
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		return nil, fmt.Errorf("failed to decode status notification: %w", err)
	}
	if evt.JobID == "" || evt.State == "" {
		return nil, fmt.Errorf("status notification missing jobId or state")
	}
	evt.State = JobState(strings.ToUpper(string(evt.State)))

	return &evt, nil
}
