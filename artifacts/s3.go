package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/izavyalov-dev/octane-bridge/protocol"
)

// S3Config configures the S3 uploader.
type S3Config struct {
	Bucket string
	Prefix string
	Region string
}

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader stores exported snapshot documents in AWS S3.
type S3Uploader struct {
	client putObjectAPI
	bucket string
	prefix string
}

// NewS3Uploader loads AWS config and prepares an uploader.
func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	loadOpts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	return newS3Uploader(s3.NewFromConfig(awsCfg), cfg), nil
}

func newS3Uploader(client putObjectAPI, cfg S3Config) *S3Uploader {
	return &S3Uploader{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}
}

// UploadSnapshot writes the snapshot as JSON under snapshots/<job>/<epoch millis>.json and returns its s3:// URI.
func (u *S3Uploader) UploadSnapshot(ctx context.Context, node protocol.SnapshotNode, at time.Time) (string, error) {
	if node.JobID == "" {
		return "", fmt.Errorf("snapshot job id is required")
	}
	body, err := json.MarshalIndent(node, "", "  ")
	if err != nil {
		return "", err
	}

	key := u.objectKey("snapshots", node.JobID, strconv.FormatInt(at.UnixMilli(), 10)+".json")
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &u.bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: ptr("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("upload snapshot of %s: %w", node.JobID, err)
	}

	return fmt.Sprintf("s3://%s/%s", u.bucket, key), nil
}

func (u *S3Uploader) objectKey(parts ...string) string {
	if u.prefix == "" {
		return path.Join(parts...)
	}
	return path.Join(append([]string{u.prefix}, parts...)...)
}

func ptr[T any](v T) *T {
	return &v
}
