// Package storage wraps an S3 compatible object store such as MinIO.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Config holds connection settings for the object store.
type Config struct {
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	PublicBucket  string
	PrivateBucket string
}

// Object is a downloaded object body with its metadata.
type Object struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// S3 implements object operations against S3 or MinIO.
type S3 struct {
	client    *s3.Client
	presigner *s3.PresignClient
	cfg       Config
}

// NewS3 builds a client using static credentials when provided and path-style
// addressing whenever a custom endpoint is configured.
func NewS3(ctx context.Context, cfg Config) (*S3, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("platform/storage: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3{client: client, presigner: s3.NewPresignClient(client), cfg: cfg}, nil
}

// BucketFor resolves the bucket name by object visibility.
func (s *S3) BucketFor(public bool) string {
	if public {
		return s.cfg.PublicBucket
	}
	return s.cfg.PrivateBucket
}

// EnsureBuckets creates the public and private buckets when missing.
func (s *S3) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.cfg.PublicBucket, s.cfg.PrivateBucket} {
		if bucket == "" {
			continue
		}
		if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err == nil {
			continue
		}
		input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
		if s.cfg.Region != "" && s.cfg.Region != "us-east-1" {
			input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
				LocationConstraint: types.BucketLocationConstraint(s.cfg.Region),
			}
		}
		if _, err := s.client.CreateBucket(ctx, input); err != nil {
			var owned *types.BucketAlreadyOwnedByYou
			if errors.As(err, &owned) {
				continue
			}
			return fmt.Errorf("platform/storage: create bucket %s: %w", bucket, err)
		}
	}
	return nil
}

// PutObject uploads data under bucket/key.
func (s *S3) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("platform/storage: put %s/%s: %w", bucket, key, err)
	}
	return nil
}

// GetObject streams bucket/key. Callers close the body.
func (s *S3) GetObject(ctx context.Context, bucket, key string) (*Object, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("platform/storage: get %s/%s: %w", bucket, key, err)
	}
	return &Object{
		Body:          out.Body,
		ContentType:   aws.ToString(out.ContentType),
		ContentLength: aws.ToInt64(out.ContentLength),
	}, nil
}

// PresignedURL returns a time-limited GET URL for bucket/key.
func (s *S3) PresignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("platform/storage: presign %s/%s: %w", bucket, key, err)
	}
	return req.URL, nil
}

// PublicURL returns the direct URL of an object in a publicly readable bucket.
func (s *S3) PublicURL(bucket, key string) string {
	return PublicURL(s.cfg.Endpoint, bucket, key)
}

// PublicURL joins endpoint, bucket and key into a path-style URL.
func PublicURL(endpoint, bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.TrimRight(endpoint, "/") + "/" + url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}
