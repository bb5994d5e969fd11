// Package storage archives completed jobs to an S3-compatible object store:
// the source audio plus the rendered transcript.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe-engine/internal/config"
	"github.com/snarg/scribe-engine/internal/database"
	"github.com/snarg/scribe-engine/internal/transcribe"
)

// Archiver uploads completed jobs to object storage. It runs from the
// pipeline's completion hook; failures are logged and never affect the job.
type Archiver struct {
	client   *s3.Client
	bucket   string
	prefix   string
	audioDir string
	log      zerolog.Logger
}

// NewArchiver creates an archiver from config.
func NewArchiver(cfg config.S3Config, audioDir string, log zerolog.Logger) (*Archiver, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &Archiver{
		client:   s3.NewFromConfig(awsCfg, s3Opts...),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		audioDir: audioDir,
		log:      log.With().Str("component", "archiver").Logger(),
	}, nil
}

// HeadBucket checks that the bucket exists and credentials are valid.
func (a *Archiver) HeadBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: &a.bucket,
	})
	return err
}

// ArchiveJob uploads the job's audio and its transcript text. Intended as a
// transcribe.CompletionFunc.
func (a *Archiver) ArchiveJob(ctx context.Context, job *database.Job, segments []database.Segment) {
	audioKey := a.objectKey(job.ID, job.AudioPath)
	if err := a.putFile(ctx, audioKey, filepath.Join(a.audioDir, job.AudioPath)); err != nil {
		a.log.Warn().Err(err).Int64("job_id", job.ID).Msg("audio archive failed")
	}

	transcriptKey := a.objectKey(job.ID, "transcript.txt")
	body := []byte(transcribe.Text(segments))
	if err := a.put(ctx, transcriptKey, body, "text/plain; charset=utf-8"); err != nil {
		a.log.Warn().Err(err).Int64("job_id", job.ID).Msg("transcript archive failed")
		return
	}

	a.log.Info().Int64("job_id", job.ID).Str("key", transcriptKey).Msg("job archived")
}

func (a *Archiver) putFile(ctx context.Context, key, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return a.put(ctx, key, data, contentTypeFor(path))
}

func (a *Archiver) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &a.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	return err
}

func (a *Archiver) objectKey(jobID int64, name string) string {
	if a.prefix == "" {
		return fmt.Sprintf("%d/%s", jobID, name)
	}
	return fmt.Sprintf("%s/%d/%s", a.prefix, jobID, name)
}

func contentTypeFor(path string) string {
	switch filepath.Ext(path) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".ogg":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
