package archive

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Bucket    string
	Prefix    string
	Profile   string
	Region    string
	Endpoint  string
	PathStyle bool
}

func (c Config) Enabled() bool {
	return c.Bucket != ""
}

type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Archiver copies finished files to a bucket.
type S3Archiver struct {
	uploader Uploader
	bucket   string
	prefix   string
}

func NewS3Archiver(ctx context.Context, cfg Config) (*S3Archiver, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRetryMode(aws.RetryModeAdaptive),
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return NewWithUploader(manager.NewUploader(client), cfg.Bucket, cfg.Prefix), nil
}

func NewWithUploader(u Uploader, bucket, prefix string) *S3Archiver {
	return &S3Archiver{uploader: u, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (a *S3Archiver) Archive(ctx context.Context, jobID, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("error opening %s: %w", file, err)
	}
	defer f.Close()
	key := ObjectKey(a.prefix, file)
	out, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(ContentType(file)),
		Metadata:    map[string]string{"job-id": jobID},
	})
	if err != nil {
		return fmt.Errorf("error uploading to s3://%s/%s: %w", a.bucket, key, err)
	}
	log.Info().Str("op", "archive/s3").Str("job", jobID).Str("location", out.Location).Msg("archived")
	return nil
}

func ObjectKey(prefix, file string) string {
	return path.Join(prefix, filepath.Base(file))
}

func ContentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}
