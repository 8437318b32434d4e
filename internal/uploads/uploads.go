// Package uploads stores user supplied images in an S3 compatible bucket.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/mohammad-safakhou/lumina/config"
)

var (
	// ErrUnsupportedType is returned for files that are not jpg, jpeg, png or webp.
	ErrUnsupportedType = errors.New("only images are allowed")
	// ErrNotConfigured is returned when no bucket is configured.
	ErrNotConfigured = errors.New("upload storage is not configured")
)

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// ObjectPutter is the subset of the S3 client used for uploads.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Store struct {
	client  ObjectPutter
	bucket  string
	prefix  string
	baseURL string
	logger  *log.Logger
}

// New builds a Store backed by client. baseURL is the public prefix objects are served under.
func New(client ObjectPutter, bucket, prefix, baseURL string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(log.Writer(), "[UPLOAD] ", log.LstdFlags)
	}
	return &Store{
		client:  client,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// NewFromConfig builds an S3 client from cfg. Static keys are used when set,
// otherwise the default AWS credential chain applies.
func NewFromConfig(ctx context.Context, cfg config.S3Config) (*Store, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		if cfg.Endpoint != "" {
			baseURL = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
		} else {
			baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, region)
		}
	}
	return New(client, cfg.Bucket, cfg.Prefix, baseURL, nil), nil
}

// ContentType returns the MIME type for an allowed image filename.
func ContentType(filename string) (string, error) {
	ext := strings.ToLower(path.Ext(filename))
	ct, ok := contentTypes[ext]
	if !ok {
		return "", ErrUnsupportedType
	}
	return ct, nil
}

// Put uploads body under a random key keeping the original extension and
// returns the public URL.
func (s *Store) Put(ctx context.Context, filename string, body io.Reader, size int64) (string, error) {
	if s == nil || s.client == nil {
		return "", ErrNotConfigured
	}
	ct, err := ContentType(filename)
	if err != nil {
		return "", err
	}
	key := uuid.NewString() + strings.ToLower(path.Ext(filename))
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(ct),
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	s.logger.Printf("stored %s (%d bytes)", key, size)
	return s.baseURL + "/" + key, nil
}
