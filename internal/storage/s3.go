package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store writes objects to an S3 compatible bucket such as MinIO.
type S3Store struct {
	client  s3API
	bucket  string
	baseURL string
}

// NewS3Store builds a client from static credentials when given, otherwise from the
// default AWS credential chain.
func NewS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("storage: s3 bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return newS3Store(client, cfg), nil
}

func newS3Store(client s3API, cfg Config) *S3Store {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		switch {
		case cfg.Endpoint != "":
			baseURL = joinURL(cfg.Endpoint, cfg.Bucket)
		default:
			region := cfg.Region
			if region == "" {
				region = "us-east-1"
			}
			baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, region)
		}
	}
	return &S3Store{client: client, bucket: cfg.Bucket, baseURL: baseURL}
}

// Put uploads body with a long lived public cache policy; keys are never reused.
func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		CacheControl:  aws.String("public, max-age=31536000, immutable"),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("storage: put %s: %w", key, err)
	}
	return joinURL(s.baseURL, key), nil
}

// Delete removes keys one by one; S3 treats missing keys as success.
func (s *S3Store) Delete(ctx context.Context, keys ...string) error {
	var errs []error
	for _, key := range keys {
		cleaned, err := cleanKey(key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(cleaned),
		}); err != nil {
			errs = append(errs, fmt.Errorf("storage: delete %s: %w", cleaned, err))
		}
	}
	return errors.Join(errs...)
}
