package transcode

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/transcoder/internal/client"
	"github.com/clipforge/transcoder/internal/faults"
	"github.com/clipforge/transcoder/internal/notification"
)

// Listener is the queue-listener capability the orchestrator owns for
// the duration of one job.
type Listener interface {
	Start()
	AddHandler(match notification.Predicate, fn notification.Handler) int
	Stop()
}

// Deps are the external capabilities a job runs against. Store is called
// once per bucket; NewListener produces a fresh listener scoped to the
// job.
type Deps struct {
	Store       func(bucket string) client.ObjectStore
	Encoder     client.Encoder
	NewListener func(queueURL string) Listener
}

// Params identifies everything one transcoding job needs
type Params struct {
	FilePath     string
	FileName     string // display name; defaults to the base of FilePath
	PipelineID   string
	PresetID     string
	InputBucket  string
	OutputBucket string
	QueueURL     string
}

// Option tweaks orchestrator behavior at construction
type Option func(*Orchestrator)

// WithWaitTimeout bounds the wait for the terminal notification. Zero
// means block until the notification arrives.
func WithWaitTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.waitTimeout = d }
}

// WithStrictCleanup makes cleanup failures surface as errors when the
// job itself succeeded. They still never mask a primary failure.
func WithStrictCleanup() Option {
	return func(o *Orchestrator) { o.strictCleanup = true }
}

// WithStepFunc registers an observer invoked on every step transition
func WithStepFunc(fn func(Step)) Option {
	return func(o *Orchestrator) { o.stepFn = fn }
}

// Orchestrator drives a single transcoding job end to end: upload the
// input, submit the job, wait for its terminal notification, download
// the output, then clean up whatever the reached step allows.
type Orchestrator struct {
	deps   Deps
	params Params

	inputStore  client.ObjectStore
	outputStore client.ObjectStore

	prefix    string
	inputKey  string
	outputKey string
	jobID     string

	deleteInputOnCleanup  bool
	deleteOutputOnCleanup bool
	waitTimeout           time.Duration
	strictCleanup         bool
	stepFn                func(Step)

	mu     sync.Mutex
	step   Step
	result *client.RetrievedFile
}

// New validates the parameters and prepares unique object keys. The
// same orchestrator must not be reused for a second Transcode call.
func New(deps Deps, params Params, opts ...Option) (*Orchestrator, error) {
	if deps.Store == nil || deps.Encoder == nil || deps.NewListener == nil {
		return nil, faults.New(faults.KindValidation, "store, encoder and listener factory are all required")
	}

	blank := func(name, v string) error {
		if strings.TrimSpace(v) == "" {
			return faults.Newf(faults.KindValidation, "%s must not be blank", name)
		}
		return nil
	}
	for _, check := range []struct{ name, value string }{
		{"file path", params.FilePath},
		{"pipeline id", params.PipelineID},
		{"preset id", params.PresetID},
		{"input bucket", params.InputBucket},
		{"output bucket", params.OutputBucket},
		{"queue url", params.QueueURL},
	} {
		if err := blank(check.name, check.value); err != nil {
			return nil, err
		}
	}

	info, err := os.Stat(params.FilePath)
	if err != nil {
		return nil, faults.Wrap(faults.KindValidation, "input file is not readable", err)
	}
	if info.IsDir() {
		return nil, faults.Newf(faults.KindValidation, "input path %s is a directory", params.FilePath)
	}

	if params.FileName == "" {
		params.FileName = filepath.Base(params.FilePath)
	}

	o := &Orchestrator{
		deps:                  deps,
		params:                params,
		inputStore:            deps.Store(params.InputBucket),
		outputStore:           deps.Store(params.OutputBucket),
		deleteInputOnCleanup:  true,
		deleteOutputOnCleanup: true,
		step:                  StepInit,
	}

	// Unique per-job prefix so concurrent jobs over the same buckets
	// never collide on keys.
	o.prefix = strings.ReplaceAll(uuid.New().String(), "-", "") + "-"
	o.inputKey = o.prefix + params.FileName
	o.outputKey = o.prefix + params.FileName

	for _, opt := range opts {
		opt(o)
	}

	return o, nil
}

// SetDeleteInputOnCleanup controls whether cleanup removes the uploaded
// input object. Defaults to true.
func (o *Orchestrator) SetDeleteInputOnCleanup(v bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deleteInputOnCleanup = v
}

// SetDeleteOutputOnCleanup controls whether cleanup removes the
// transcoded output object. Defaults to true; set false to keep the
// result in the output bucket.
func (o *Orchestrator) SetDeleteOutputOnCleanup(v bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deleteOutputOnCleanup = v
}

// InputKey returns the unique key of the uploaded input object
func (o *Orchestrator) InputKey() string { return o.inputKey }

// OutputKey returns the unique key the encoder writes the result under
func (o *Orchestrator) OutputKey() string { return o.outputKey }

// JobID returns the id assigned by the encoding service, empty until
// submission succeeded.
func (o *Orchestrator) JobID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.jobID
}

// Step returns the current lifecycle step
func (o *Orchestrator) Step() Step {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.step
}

// Done reports whether the job is not in flight. True both before the
// first remote side effect and after cleanup.
func (o *Orchestrator) Done() bool {
	return !IsRunning(o.Step())
}

// TranscodedFile returns the downloaded result, nil until the job
// completed successfully.
func (o *Orchestrator) TranscodedFile() *client.RetrievedFile {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

func (o *Orchestrator) setStep(s Step) {
	o.mu.Lock()
	o.step = s
	fn := o.stepFn
	o.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// outputFileName is the caller-facing name of the result, the unique
// prefix stripped back off the output key.
func (o *Orchestrator) outputFileName() string {
	return strings.TrimPrefix(o.outputKey, o.prefix)
}

// Transcode runs the whole job. Cleanup always runs, whatever the
// outcome, and deletes only what the reached step says can exist.
func (o *Orchestrator) Transcode(ctx context.Context) (err error) {
	defer func() {
		cleanupErr := o.cleanup()
		if cleanupErr != nil && err == nil {
			err = cleanupErr
		}
	}()

	if err := o.inputStore.Put(ctx, o.inputKey, o.params.FilePath); err != nil {
		return err
	}
	o.setStep(StepInputSent)

	listener := o.deps.NewListener(o.params.QueueURL)
	listener.Start()
	defer listener.Stop()

	jobID, err := o.deps.Encoder.SubmitJob(ctx, o.params.PipelineID, o.inputKey, o.outputKey, o.params.PresetID)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.jobID = jobID
	o.mu.Unlock()

	evt, err := o.waitForTerminal(ctx, listener, jobID)
	if err != nil {
		return err
	}
	o.setStep(StepTranscodingDone)

	if evt.State == notification.StateError {
		return faults.Newf(faults.KindRemoteJob, "transcoding failed for %s: %s", o.inputKey, evt)
	}

	file, err := o.outputStore.Get(ctx, o.outputKey, o.outputFileName())
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.result = file
	o.mu.Unlock()
	o.setStep(StepOutputDownloaded)

	return nil
}

// waitForTerminal blocks until the first terminal event for jobID.
// Events for other jobs on the shared queue never unblock the wait.
func (o *Orchestrator) waitForTerminal(ctx context.Context, listener Listener, jobID string) (*notification.Event, error) {
	terminal := make(chan *notification.Event, 1)
	var once sync.Once

	listener.AddHandler(
		func(id string) bool { return id == jobID },
		func(evt *notification.Event) {
			if !evt.IsTerminal() {
				return
			}
			once.Do(func() { terminal <- evt })
		},
	)

	var timeout <-chan time.Time
	if o.waitTimeout > 0 {
		timer := time.NewTimer(o.waitTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case evt := <-terminal:
		return evt, nil
	case <-timeout:
		return nil, faults.Newf(faults.KindTimeout, "no terminal notification for job %s within %s", jobID, o.waitTimeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("canceled while waiting for job %s: %w", jobID, ctx.Err())
	}
}

// cleanup deletes the remote objects the reached step allows, then
// resets the step so a finished orchestrator never reads as running.
// Deletions are best effort and use a fresh context so a canceled
// caller still gets its objects removed.
func (o *Orchestrator) cleanup() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	step := o.Step()
	var firstErr error

	o.mu.Lock()
	deleteInput, deleteOutput := o.deleteInputOnCleanup, o.deleteOutputOnCleanup
	o.mu.Unlock()

	if deleteInput && CanDeleteInput(step) {
		if err := o.inputStore.Delete(ctx, o.inputKey); err != nil {
			log.Printf("[Transcode] cleanup of input %s failed: %v", o.inputKey, err)
			firstErr = err
		}
	}

	if deleteOutput && CanDeleteOutput(step) {
		if err := o.outputStore.Delete(ctx, o.outputKey); err != nil {
			log.Printf("[Transcode] cleanup of output %s failed: %v", o.outputKey, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	o.setStep(StepInit)

	if o.strictCleanup && firstErr != nil {
		return faults.Wrap(faults.KindCleanup, "cleanup failed", firstErr)
	}
	return nil
}
