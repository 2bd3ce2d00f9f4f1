package client

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/smithy-go"
)

func TestFormatAWSErrorAPIError(t *testing.T) {
	err := &smithy.GenericAPIError{
		Code:    "NoSuchBucket",
		Message: "The specified bucket does not exist",
	}

	got := formatAWSError(err)
	want := "NoSuchBucket: The specified bucket does not exist"
	if got != want {
		t.Errorf("formatAWSError = %q, want %q", got, want)
	}
}

func TestFormatAWSErrorWrappedAPIError(t *testing.T) {
	inner := &smithy.GenericAPIError{Code: "AccessDenied", Message: "Access Denied"}
	err := fmt.Errorf("operation error S3: PutObject: %w", inner)

	got := formatAWSError(err)
	if got != "AccessDenied: Access Denied" {
		t.Errorf("formatAWSError = %q, want unwrapped code and message", got)
	}
}

func TestFormatAWSErrorPlain(t *testing.T) {
	err := errors.New("dial tcp: connection refused")
	if got := formatAWSError(err); got != "dial tcp: connection refused" {
		t.Errorf("formatAWSError = %q, want the plain error string", got)
	}
}

func TestContentTypeFor(t *testing.T) {
	if ct := contentTypeFor("clip.mp4"); ct != "video/mp4" {
		t.Errorf("contentTypeFor(clip.mp4) = %q", ct)
	}
	if ct := contentTypeFor("noext"); ct != "application/octet-stream" {
		t.Errorf("contentTypeFor(noext) = %q, want fallback", ct)
	}
}
