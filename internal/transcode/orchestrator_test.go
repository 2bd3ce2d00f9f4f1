package transcode

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clipforge/transcoder/internal/client"
	"github.com/clipforge/transcoder/internal/faults"
	"github.com/clipforge/transcoder/internal/notification"
)

type fakeStore struct {
	mu        sync.Mutex
	objects   map[string]string
	gets      []string
	deletes   []string
	putErr    error
	getErr    error
	deleteErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string]string)}
}

func (s *fakeStore) Put(ctx context.Context, key, localPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.objects[key] = localPath
	return nil
}

func (s *fakeStore) Get(ctx context.Context, key, fileName string) (*client.RetrievedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets = append(s.gets, key)
	if s.getErr != nil {
		return nil, s.getErr
	}
	return &client.RetrievedFile{Path: "/tmp/fake-download", Name: fileName, ContentType: "video/mp4"}, nil
}

func (s *fakeStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, key)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.objects, key)
	return nil
}

func (s *fakeStore) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://signed.example/" + key, nil
}

func (s *fakeStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

func (s *fakeStore) getCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.gets)
}

func (s *fakeStore) deleteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deletes)
}

type fakeEncoder struct {
	mu     sync.Mutex
	jobID  string
	err    error
	inputs []string
}

func (e *fakeEncoder) SubmitJob(ctx context.Context, pipelineID, inputKey, outputKey, presetID string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inputs = append(e.inputs, inputKey)
	if e.err != nil {
		return "", e.err
	}
	return e.jobID, nil
}

func (e *fakeEncoder) submitCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inputs)
}

// fakeListener replays its scripted events to every handler the moment
// the handler registers, from a separate goroutine like the real one.
type fakeListener struct {
	mu       sync.Mutex
	events   []*notification.Event
	started  int
	stopped  int
	queueURL string
}

func (l *fakeListener) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started++
}

func (l *fakeListener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped++
}

func (l *fakeListener) AddHandler(match notification.Predicate, fn notification.Handler) int {
	l.mu.Lock()
	events := l.events
	l.mu.Unlock()
	go func() {
		for _, evt := range events {
			if match(evt.JobID) {
				fn(evt)
			}
		}
	}()
	return 1
}

func (l *fakeListener) stopCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

type fixture struct {
	input    *fakeStore
	output   *fakeStore
	encoder  *fakeEncoder
	listener *fakeListener
	params   Params
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "movie.mp4")
	if err := os.WriteFile(path, []byte("fake video bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	return &fixture{
		input:    newFakeStore(),
		output:   newFakeStore(),
		encoder:  &fakeEncoder{jobID: "J1"},
		listener: &fakeListener{},
		params: Params{
			FilePath:     path,
			PipelineID:   "PL1",
			PresetID:     "P1",
			InputBucket:  "in",
			OutputBucket: "out",
			QueueURL:     "https://queue/q1",
		},
	}
}

func (f *fixture) deps() Deps {
	return Deps{
		Store: func(bucket string) client.ObjectStore {
			if bucket == f.params.InputBucket {
				return f.input
			}
			return f.output
		},
		Encoder: f.encoder,
		NewListener: func(queueURL string) Listener {
			f.listener.queueURL = queueURL
			return f.listener
		},
	}
}

func jobEvent(jobID string, state notification.JobState) *notification.Event {
	return &notification.Event{JobID: jobID, State: state}
}

func TestTranscodeSuccess(t *testing.T) {
	f := newFixture(t)
	f.listener.events = []*notification.Event{
		jobEvent("J1", notification.StateProgressing),
		jobEvent("J1", notification.StateCompleted),
	}

	o, err := New(f.deps(), f.params)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !o.Done() {
		t.Error("a job that has not started should read as done")
	}

	if err := o.Transcode(context.Background()); err != nil {
		t.Fatalf("Transcode failed: %v", err)
	}

	result := o.TranscodedFile()
	if result == nil {
		t.Fatal("TranscodedFile is nil after success")
	}
	if result.Name != "movie.mp4" {
		t.Errorf("result name = %q, want the original filename with the prefix stripped", result.Name)
	}

	if f.input.has(o.InputKey()) {
		t.Error("input object still exists after cleanup")
	}
	if f.output.has(o.OutputKey()) {
		t.Error("output object still exists after cleanup")
	}
	if f.listener.stopCount() == 0 {
		t.Error("listener was never stopped")
	}
	if !o.Done() {
		t.Error("job should read as done after completion")
	}
	if o.Step() != StepInit {
		t.Errorf("step = %s after cleanup, want init", o.Step())
	}
	if o.JobID() != "J1" {
		t.Errorf("JobID = %q, want J1", o.JobID())
	}
}

func TestTranscodeRemoteJobError(t *testing.T) {
	f := newFixture(t)
	f.listener.events = []*notification.Event{
		{JobID: "J1", State: notification.StateError, ErrorCode: 4000, MessageDetails: "bad input"},
	}

	o, err := New(f.deps(), f.params)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = o.Transcode(context.Background())
	if !faults.Is(err, faults.KindRemoteJob) {
		t.Fatalf("err = %v, want a remote-job fault", err)
	}
	if !strings.Contains(err.Error(), o.InputKey()) {
		t.Errorf("error %q does not reference the input key", err)
	}

	if o.TranscodedFile() != nil {
		t.Error("no result should exist after a failed job")
	}
	if f.output.getCount() != 0 {
		t.Error("output download should never be attempted after a job error")
	}
	if f.input.has(o.InputKey()) {
		t.Error("input object should be deleted during cleanup")
	}
	if f.output.has(o.OutputKey()) {
		t.Error("output store state should be unchanged")
	}
}

func TestForeignJobEventsDoNotUnblock(t *testing.T) {
	f := newFixture(t)
	// Terminal events for another job sharing the queue must not wake
	// this caller; only the timeout does.
	f.listener.events = []*notification.Event{
		jobEvent("OTHER", notification.StateCompleted),
		jobEvent("OTHER", notification.StateError),
	}

	o, err := New(f.deps(), f.params, WithWaitTimeout(100*time.Millisecond))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	start := time.Now()
	err = o.Transcode(context.Background())
	if !faults.Is(err, faults.KindTimeout) {
		t.Fatalf("err = %v, want a timeout fault", err)
	}
	if time.Since(start) < 100*time.Millisecond {
		t.Error("returned before the wait timeout elapsed")
	}

	if f.input.has(o.InputKey()) {
		t.Error("input object should still be cleaned up after a timeout")
	}
	if f.output.getCount() != 0 {
		t.Error("output download should never be attempted after a timeout")
	}
}

func TestNonTerminalEventsDoNotUnblock(t *testing.T) {
	f := newFixture(t)
	f.listener.events = []*notification.Event{
		jobEvent("J1", notification.StateSubmitted),
		jobEvent("J1", notification.StateProgressing),
		jobEvent("J1", notification.StateWarning),
	}

	o, err := New(f.deps(), f.params, WithWaitTimeout(100*time.Millisecond))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := o.Transcode(context.Background()); !faults.Is(err, faults.KindTimeout) {
		t.Fatalf("err = %v, want a timeout fault", err)
	}
}

func TestTranscodeUploadFailure(t *testing.T) {
	f := newFixture(t)
	f.input.putErr = faults.New(faults.KindUpload, "bucket rejected the upload")

	o, err := New(f.deps(), f.params)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = o.Transcode(context.Background())
	if !faults.Is(err, faults.KindUpload) {
		t.Fatalf("err = %v, want an upload fault", err)
	}

	if f.encoder.submitCount() != 0 {
		t.Error("no job should be submitted when the upload failed")
	}
	if f.input.deleteCount() != 0 {
		t.Error("no input delete should be attempted when nothing was uploaded")
	}
	if f.output.deleteCount() != 0 {
		t.Error("no output delete should be attempted when nothing was uploaded")
	}
	if !o.Done() {
		t.Error("failed job should read as done")
	}
}

func TestTranscodeSubmitFailure(t *testing.T) {
	f := newFixture(t)
	f.encoder.err = faults.New(faults.KindSubmission, "pipeline not found")

	o, err := New(f.deps(), f.params)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = o.Transcode(context.Background())
	if !faults.Is(err, faults.KindSubmission) {
		t.Fatalf("err = %v, want a submission fault", err)
	}

	if f.input.has(o.InputKey()) {
		t.Error("uploaded input should be deleted during cleanup")
	}
	if f.output.deleteCount() != 0 {
		t.Error("output delete should not be attempted before transcoding finished")
	}
	if f.listener.stopCount() == 0 {
		t.Error("listener should be stopped even when submission fails")
	}
}

func TestCleanupFlags(t *testing.T) {
	f := newFixture(t)
	f.listener.events = []*notification.Event{jobEvent("J1", notification.StateCompleted)}

	o, err := New(f.deps(), f.params)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	o.SetDeleteInputOnCleanup(false)
	o.SetDeleteOutputOnCleanup(false)

	if err := o.Transcode(context.Background()); err != nil {
		t.Fatalf("Transcode failed: %v", err)
	}

	if !f.input.has(o.InputKey()) {
		t.Error("input object should be kept when input cleanup is disabled")
	}
	if !f.output.has(o.OutputKey()) {
		t.Error("output object should be kept when output cleanup is disabled")
	}
}

func TestCleanupFailureDoesNotChangeOutcome(t *testing.T) {
	f := newFixture(t)
	f.listener.events = []*notification.Event{jobEvent("J1", notification.StateCompleted)}
	f.input.deleteErr = errors.New("store unavailable")
	f.output.deleteErr = errors.New("store unavailable")

	o, err := New(f.deps(), f.params)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := o.Transcode(context.Background()); err != nil {
		t.Fatalf("delete failures must not fail a successful job, got %v", err)
	}
	if o.TranscodedFile() == nil {
		t.Error("result should survive cleanup failures")
	}
}

func TestStrictCleanupSurfacesDeleteFailure(t *testing.T) {
	f := newFixture(t)
	f.listener.events = []*notification.Event{jobEvent("J1", notification.StateCompleted)}
	f.input.deleteErr = errors.New("store unavailable")

	o, err := New(f.deps(), f.params, WithStrictCleanup())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = o.Transcode(context.Background())
	if !faults.Is(err, faults.KindCleanup) {
		t.Fatalf("err = %v, want a cleanup fault in strict mode", err)
	}
	if o.TranscodedFile() == nil {
		t.Error("result should still be available, the job itself succeeded")
	}
}

func TestStrictCleanupNeverMasksPrimaryFailure(t *testing.T) {
	f := newFixture(t)
	f.encoder.err = faults.New(faults.KindSubmission, "pipeline not found")
	f.input.deleteErr = errors.New("store unavailable")

	o, err := New(f.deps(), f.params, WithStrictCleanup())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := o.Transcode(context.Background()); !faults.Is(err, faults.KindSubmission) {
		t.Fatalf("err = %v, want the primary submission fault", err)
	}
}

func TestKeyUniquenessAndShape(t *testing.T) {
	f := newFixture(t)

	o1, err := New(f.deps(), f.params)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	o2, err := New(f.deps(), f.params)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if o1.InputKey() == o2.InputKey() {
		t.Error("two jobs over the same file must get distinct input keys")
	}
	for _, key := range []string{o1.InputKey(), o1.OutputKey()} {
		if !strings.HasSuffix(key, "-movie.mp4") {
			t.Errorf("key %q should end with the original filename", key)
		}
		if strings.Contains(strings.TrimSuffix(key, "-movie.mp4"), "-") {
			t.Errorf("key prefix in %q should contain no dashes", key)
		}
	}
}

func TestStepObserverSeesProgress(t *testing.T) {
	f := newFixture(t)
	f.listener.events = []*notification.Event{jobEvent("J1", notification.StateCompleted)}

	var mu sync.Mutex
	var seen []Step
	o, err := New(f.deps(), f.params, WithStepFunc(func(s Step) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := o.Transcode(context.Background()); err != nil {
		t.Fatalf("Transcode failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []Step{StepInputSent, StepTranscodingDone, StepOutputDownloaded, StepInit}
	if len(seen) != len(want) {
		t.Fatalf("observed steps %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("observed steps %v, want %v", seen, want)
		}
	}
}

func TestNewValidatesParams(t *testing.T) {
	f := newFixture(t)

	broken := []func(*Params){
		func(p *Params) { p.FilePath = "" },
		func(p *Params) { p.FilePath = filepath.Join(t.TempDir(), "missing.mp4") },
		func(p *Params) { p.PipelineID = "  " },
		func(p *Params) { p.PresetID = "" },
		func(p *Params) { p.InputBucket = "" },
		func(p *Params) { p.OutputBucket = "" },
		func(p *Params) { p.QueueURL = "" },
	}

	for i, mutate := range broken {
		params := f.params
		mutate(&params)
		if _, err := New(f.deps(), params); !faults.Is(err, faults.KindValidation) {
			t.Errorf("case %d: err = %v, want a validation fault", i, err)
		}
	}

	if _, err := New(Deps{}, f.params); !faults.Is(err, faults.KindValidation) {
		t.Errorf("empty deps: err = %v, want a validation fault", err)
	}
}

func TestContextCancelUnblocksWait(t *testing.T) {
	f := newFixture(t)

	o, err := New(f.deps(), f.params)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err = o.Transcode(ctx)
	if err == nil || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if f.input.has(o.InputKey()) {
		t.Error("input object should still be cleaned up after cancellation")
	}
}
