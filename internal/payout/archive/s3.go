// Package archive uploads finished payout export files (the CSV ledger and
// its SEPA XML batches) to S3-compatible storage, for operators who don't
// keep the export host's local disk around after a run completes.
// Adapted from internal/storage/s3_archiver.go's partition-archival shape:
// checksum, upload, verify, log.
package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5"
)

// Config mirrors the core's S3Archive config block.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// Archiver uploads a completed payout run's output files and records the
// upload in payout_archive_log for audit purposes.
type Archiver struct {
	client *s3.Client
	bucket string
}

// FileMetadata describes one uploaded payout file.
type FileMetadata struct {
	LocalPath     string
	S3Key         string
	FileSizeBytes int64
	Checksum      string
}

func New(cfg Config) (*Archiver, error) {
	var awsCfg aws.Config
	var err error

	if cfg.Endpoint != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO(),
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, "",
			)),
			awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{URL: cfg.Endpoint, SigningRegion: cfg.Region, HostnameImmutable: true}, nil
				},
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO(),
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, "",
			)),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("loading aws config for payout archiver: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	return &Archiver{client: client, bucket: cfg.Bucket}, nil
}

// UploadRunFiles archives every file produced for a payout run (the CSV
// plus each SEPA XML batch) and records each upload against runID.
func (a *Archiver) UploadRunFiles(ctx context.Context, tx pgx.Tx, runID int64, paths []string) ([]FileMetadata, error) {
	var uploaded []FileMetadata
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return uploaded, fmt.Errorf("reading payout file %s: %w", path, err)
		}

		checksum := calculateChecksum(data)
		key := fmt.Sprintf("payouts/%d/%s", runID, filepath.Base(path))

		contentType := "text/csv"
		if filepath.Ext(path) == ".xml" {
			contentType = "application/xml"
		}

		_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType),
			Metadata: map[string]string{
				"archived-by": "payout-service",
				"archived-at": time.Now().UTC().Format(time.RFC3339),
			},
		})
		if err != nil {
			return uploaded, fmt.Errorf("uploading %s to s3: %w", path, err)
		}

		meta := FileMetadata{LocalPath: path, S3Key: key, FileSizeBytes: int64(len(data)), Checksum: checksum}
		if err := logArchive(ctx, tx, runID, meta); err != nil {
			return uploaded, err
		}
		uploaded = append(uploaded, meta)
		log.Printf("[payout archive] uploaded %s -> s3://%s/%s (%d bytes)", path, a.bucket, key, meta.FileSizeBytes)
	}
	return uploaded, nil
}

// Verify downloads the archived object and confirms its checksum still
// matches what was recorded at upload time.
func (a *Archiver) Verify(ctx context.Context, meta FileMetadata) error {
	result, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(meta.S3Key),
	})
	if err != nil {
		return fmt.Errorf("downloading %s from s3: %w", meta.S3Key, err)
	}
	defer result.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(result.Body); err != nil {
		return fmt.Errorf("reading downloaded object %s: %w", meta.S3Key, err)
	}
	if got := calculateChecksum(buf.Bytes()); got != meta.Checksum {
		return fmt.Errorf("checksum mismatch for %s: expected %s, got %s", meta.S3Key, meta.Checksum, got)
	}
	return nil
}

func logArchive(ctx context.Context, tx pgx.Tx, runID int64, meta FileMetadata) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO payout_archive_log (payout_run_id, s3_key, file_size_bytes, checksum, archived_at)
		VALUES ($1, $2, $3, $4, now())`,
		runID, meta.S3Key, meta.FileSizeBytes, meta.Checksum)
	if err != nil {
		return fmt.Errorf("logging archive of %s for run %d: %w", meta.S3Key, runID, err)
	}
	return nil
}

func calculateChecksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
