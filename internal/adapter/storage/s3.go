package storage

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	s3manager "github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	appconfig "github.com/semmidev/pgsentry/internal/config"
	"github.com/semmidev/pgsentry/internal/domain"
)

// maxSinglePartSize is the largest object S3 accepts in one PutObject. Larger
// uploads would be multipart, whose stored checksum is a checksum of part
// checksums and cannot be compared with a whole-file digest.
const maxSinglePartSize = 5 << 30

type s3API interface {
	s3manager.UploadAPIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type S3Storage struct {
	client        s3API
	uploader      *s3manager.Uploader
	bucket        string
	uploadTimeout time.Duration
	verifyTimeout time.Duration
}

// NewS3 creates an S3Storage using AWS SDK v2. Static credentials are used
// when both keys are configured, otherwise the default credential chain.
func NewS3(ctx context.Context, cfg *appconfig.StorageConfig) (*S3Storage, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return newS3(client, cfg.Bucket, cfg.UploadTimeout, cfg.VerifyTimeout), nil
}

func newS3(client s3API, bucket string, uploadTimeout, verifyTimeout time.Duration) *S3Storage {
	return &S3Storage{
		client:        client,
		uploader:      s3manager.NewUploader(client),
		bucket:        bucket,
		uploadTimeout: uploadTimeout,
		verifyTimeout: verifyTimeout,
	}
}

// Upload stores the artifact under record.Key, asking S3 to keep a SHA-256
// checksum, then reads that checksum back and compares it with
// record.Checksum. A mismatching object is left in the bucket.
func (s *S3Storage) Upload(ctx context.Context, localPath string, record domain.BackupRecord) error {
	file, err := os.Open(localPath)
	if err != nil {
		return &domain.UploadError{Key: record.Key, Op: "open", Err: err}
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return &domain.UploadError{Key: record.Key, Op: "stat", Err: err}
	}
	if info.Size() > maxSinglePartSize {
		return &domain.UploadError{
			Key: record.Key,
			Op:  "upload",
			Err: fmt.Errorf("artifact is %d bytes, above the %d byte single-part limit", info.Size(), int64(maxSinglePartSize)),
		}
	}

	if err := s.put(ctx, file, info.Size(), record); err != nil {
		return &domain.UploadError{Key: record.Key, Op: "upload", Err: err}
	}

	stored, err := s.storedChecksum(ctx, record)
	if err != nil {
		return err
	}

	if !strings.EqualFold(stored, record.Checksum) {
		return &domain.IntegrityError{Key: record.Key, Expected: record.Checksum, Actual: stored}
	}
	return nil
}

func (s *S3Storage) put(ctx context.Context, file *os.File, size int64, record domain.BackupRecord) error {
	ctx, cancel := withTimeout(ctx, s.uploadTimeout)
	defer cancel()

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:            aws.String(s.bucket),
		Key:               aws.String(record.Key),
		Body:              file,
		Metadata:          objectMetadata(record),
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
	}, func(u *s3manager.Uploader) {
		u.PartSize = max(s3manager.MinUploadPartSize, size)
	})
	return err
}

func (s *S3Storage) storedChecksum(ctx context.Context, record domain.BackupRecord) (string, error) {
	ctx, cancel := withTimeout(ctx, s.verifyTimeout)
	defer cancel()

	key := record.Key
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		ChecksumMode: types.ChecksumModeEnabled,
	})
	if err != nil {
		return "", &domain.UploadError{Key: key, Op: "verify", Err: err}
	}

	raw := aws.ToString(head.ChecksumSHA256)
	digest, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || len(digest) != 32 {
		return "", &domain.IntegrityError{Key: key, Expected: record.Checksum, Actual: raw}
	}
	return hex.EncodeToString(digest), nil
}

func objectMetadata(record domain.BackupRecord) map[string]string {
	metadata := map[string]string{"database": record.Database}
	if record.Signature != "" {
		metadata["signature"] = record.Signature
	}
	return metadata
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
