package faults

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestFaultError(t *testing.T) {
	f := New(KindUpload, "sending file to input bucket")
	if !strings.Contains(f.Error(), "UPLOAD") {
		t.Errorf("expected kind in error string, got %q", f.Error())
	}

	cause := errors.New("connection reset")
	wrapped := Wrap(KindDownload, "fetching output object", cause)
	if !strings.Contains(wrapped.Error(), "connection reset") {
		t.Errorf("expected cause in error string, got %q", wrapped.Error())
	}
	if !errors.Is(wrapped, cause) {
		t.Error("expected wrapped fault to match its cause via errors.Is")
	}
}

func TestKindOf(t *testing.T) {
	f := Newf(KindRemoteJob, "transcoding failed for %s", "abc-video.mp4")
	if KindOf(f) != KindRemoteJob {
		t.Errorf("expected KindRemoteJob, got %q", KindOf(f))
	}

	// Kind survives additional wrapping
	outer := fmt.Errorf("task failed: %w", f)
	if KindOf(outer) != KindRemoteJob {
		t.Errorf("expected KindRemoteJob through wrapping, got %q", KindOf(outer))
	}

	if KindOf(errors.New("plain")) != "" {
		t.Error("expected empty kind for non-fault error")
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		kind Kind
		want bool
	}{
		{KindUpload, true},
		{KindDownload, true},
		{KindSubmission, true},
		{KindTimeout, true},
		{KindRemoteJob, false},
		{KindValidation, false},
		{KindDelete, false},
		{KindCleanup, false},
	}

	for _, tc := range cases {
		if got := IsRetryable(New(tc.kind, "x")); got != tc.want {
			t.Errorf("IsRetryable(%s) = %v, want %v", tc.kind, got, tc.want)
		}
	}

	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors should not be retryable")
	}
}
