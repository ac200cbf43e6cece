// Package state reads the remote state descriptor of the deployed
// infrastructure. Reads only: no lock is taken and nothing is written back.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"driftwatch/internal/apperrors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectGetter is the subset of the S3 API the reader needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Descriptor is the part of the state document driftwatch relies on.
type Descriptor struct {
	Version          int    `json:"version"`
	TerraformVersion string `json:"terraform_version"`
	Serial           int    `json:"serial"`
	Lineage          string `json:"lineage"`
}

// Reader fetches the descriptor stored at Bucket/Key.
type Reader struct {
	client ObjectGetter
	bucket string
	key    string
}

func NewReader(client ObjectGetter, bucket, key string) *Reader {
	return &Reader{client: client, bucket: bucket, key: key}
}

// ClientConfig configures the S3 client built by NewS3Client.
type ClientConfig struct {
	Region string
	// Endpoint overrides the service endpoint (MinIO, LocalStack).
	Endpoint string
}

// NewS3Client loads the default AWS credential chain and returns an S3 client.
func NewS3Client(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Read downloads and decodes the descriptor.
func (r *Reader) Read(ctx context.Context) (Descriptor, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key),
	})
	if err != nil {
		return Descriptor{}, apperrors.Wrap(apperrors.CodeDownload, fmt.Sprintf("s3 get s3://%s/%s", r.bucket, r.key), err)
	}
	defer func() { _ = out.Body.Close() }()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return Descriptor{}, apperrors.Wrap(apperrors.CodeDownload, "read state descriptor", err)
	}
	return Parse(body)
}

// ToolVersion returns the version of the tool that last wrote the state.
func (r *Reader) ToolVersion(ctx context.Context) (string, error) {
	d, err := r.Read(ctx)
	if err != nil {
		return "", err
	}
	return d.TerraformVersion, nil
}

// Parse decodes a descriptor and requires a non-empty tool version.
func Parse(body []byte) (Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(body, &d); err != nil {
		return Descriptor{}, apperrors.Wrap(apperrors.CodeStateFormat, "state descriptor is not valid JSON", err)
	}
	d.TerraformVersion = strings.TrimSpace(d.TerraformVersion)
	if d.TerraformVersion == "" {
		return Descriptor{}, apperrors.New(apperrors.CodeStateFormat, "state descriptor has no terraform_version")
	}
	return d, nil
}
