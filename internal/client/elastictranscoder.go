package client

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elastictranscoder"
	"github.com/aws/aws-sdk-go-v2/service/elastictranscoder/types"
	"github.com/clipforge/transcoder/internal/faults"
)

// Encoder defines the encoding-service capability. Submission is
// fire-and-forget: completion is learned via the notification queue,
// never by polling the service.
type Encoder interface {
	SubmitJob(ctx context.Context, pipelineID, inputKey, outputKey, presetID string) (string, error)
}

// TranscoderClient implements Encoder against AWS Elastic Transcoder
type TranscoderClient struct {
	client *elastictranscoder.Client
}

// NewTranscoderClient creates a new Elastic Transcoder client
func NewTranscoderClient(awsCfg aws.Config) *TranscoderClient {
	return &TranscoderClient{
		client: elastictranscoder.NewFromConfig(awsCfg),
	}
}

// SubmitJob creates a transcoding job on the given pipeline and returns
// the job id assigned by the service
func (c *TranscoderClient) SubmitJob(ctx context.Context, pipelineID, inputKey, outputKey, presetID string) (string, error) {
	out, err := c.client.CreateJob(ctx, &elastictranscoder.CreateJobInput{
		PipelineId: aws.String(pipelineID),
		Input: &types.JobInput{
			Key: aws.String(inputKey),
		},
		Outputs: []types.CreateJobOutput{
			{
				Key:      aws.String(outputKey),
				PresetId: aws.String(presetID),
			},
		},
	})
	if err != nil {
		return "", faults.Newf(faults.KindSubmission, "failed to create job for %s: %s", inputKey, formatAWSError(err))
	}

	if out.Job == nil || out.Job.Id == nil {
		return "", faults.Newf(faults.KindSubmission, "job created for %s but no job id returned", inputKey)
	}

	return *out.Job.Id, nil
}
