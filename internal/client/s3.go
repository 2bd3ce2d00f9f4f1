package client

import (
	"context"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/clipforge/transcoder/internal/faults"
)

// ObjectStore defines the per-bucket storage operations the transcoding
// engine depends on. No retries at this layer; failure classification and
// retry policy belong to the caller.
type ObjectStore interface {
	Put(ctx context.Context, key, localPath string) error
	Get(ctx context.Context, key, fileName string) (*RetrievedFile, error)
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// RetrievedFile is an object materialized into a local temporary file.
// Name is the caller-facing display name, decoupled from the remote key.
type RetrievedFile struct {
	Path        string
	Name        string
	ContentType string
	Size        int64
}

// S3Bucket implements ObjectStore for a single S3 bucket
type S3Bucket struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
}

// NewS3Bucket creates a gateway bound to one bucket. The underlying S3
// client is shared; the gateway itself is stateless per call.
func NewS3Bucket(client *s3.Client, bucket string) *S3Bucket {
	return &S3Bucket{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    bucket,
	}
}

// Bucket returns the bucket name
func (b *S3Bucket) Bucket() string {
	return b.bucket
}

// Put uploads a local file under the given key
func (b *S3Bucket) Put(ctx context.Context, key, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return faults.Wrap(faults.KindUpload, "failed to open local file", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return faults.Wrap(faults.KindUpload, "failed to stat local file", err)
	}

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentTypeFor(key)),
	})
	if err != nil {
		return faults.Newf(faults.KindUpload, "failed to upload %s to bucket %s: %s", key, b.bucket, formatAWSError(err))
	}

	return nil
}

// Get downloads the object into a temporary file and renames the logical
// filename to the supplied display name. The stored content type is
// propagated when the service reports one.
func (b *S3Bucket) Get(ctx context.Context, key, fileName string) (*RetrievedFile, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, faults.Newf(faults.KindDownload, "failed to get %s from bucket %s: %s", key, b.bucket, formatAWSError(err))
	}
	defer out.Body.Close()

	tmp, err := os.CreateTemp("", "clipforge-*"+filepath.Ext(fileName))
	if err != nil {
		return nil, faults.Wrap(faults.KindDownload, "failed to create temp file", err)
	}

	size, err := io.Copy(tmp, out.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return nil, faults.Wrap(faults.KindDownload, "failed to write temp file", err)
	}

	contentType := contentTypeFor(fileName)
	if out.ContentType != nil && *out.ContentType != "" {
		contentType = *out.ContentType
	}

	return &RetrievedFile{
		Path:        tmp.Name(),
		Name:        fileName,
		ContentType: contentType,
		Size:        size,
	}, nil
}

// Delete removes the object under the given key
func (b *S3Bucket) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return faults.Newf(faults.KindDelete, "failed to delete %s from bucket %s: %s", key, b.bucket, formatAWSError(err))
	}
	return nil
}

// PresignGet generates a presigned URL for temporary access
func (b *S3Bucket) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	req, err := b.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", faults.Newf(faults.KindDownload, "failed to presign %s in bucket %s: %s", key, b.bucket, formatAWSError(err))
	}
	return req.URL, nil
}

// contentTypeFor guesses a content type from the file extension
func contentTypeFor(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
