package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/casewire/caselist"
)

// S3Client is the subset of the S3 API the store uses. *s3.Client satisfies
// it; tests substitute a fake.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// s3Envelope wraps a stored page with its insertion time, since TTL is
// enforced client-side on read.
type s3Envelope struct {
	InsertedAt time.Time            `json:"insertedAt"`
	Page       *caselist.ResultPage `json:"page"`
}

// S3 stores result pages as JSON objects under a bucket prefix, giving
// multiple portal instances a shared warm tier. Stale objects are deleted
// best-effort by the read that observes them.
type S3 struct {
	client S3Client
	bucket string
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewS3 creates an S3 page store over an existing client.
func NewS3(client S3Client, bucket, prefix string, ttl time.Duration) *S3 {
	return &S3{
		client: client,
		bucket: bucket,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
	}
}

// NewS3FromConfig creates an S3 page store using the default AWS credential
// chain.
func NewS3FromConfig(ctx context.Context, bucket, prefix string, ttl time.Duration) (*S3, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewS3(s3.NewFromConfig(cfg), bucket, prefix, ttl), nil
}

// Get implements caselist.PageStore.
func (s *S3) Get(ctx context.Context, key string) (*caselist.ResultPage, bool, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get stored page from S3: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read stored page body: %w", err)
	}

	var envelope s3Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal stored page: %w", err)
	}

	if envelope.Page == nil || s.now().Sub(envelope.InsertedAt) > s.ttl {
		// Stale. Deletion is best-effort; a failure just leaves the
		// object for the next reader or a bucket lifecycle rule.
		s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.objectKey(key)),
		})
		return nil, false, nil
	}

	return envelope.Page, true, nil
}

// Put implements caselist.PageStore.
func (s *S3) Put(ctx context.Context, key string, page *caselist.ResultPage) error {
	data, err := json.Marshal(s3Envelope{InsertedAt: s.now(), Page: page})
	if err != nil {
		return fmt.Errorf("failed to marshal page envelope: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put page to S3: %w", err)
	}
	return nil
}

// Clear implements caselist.PageStore. It deletes every object under the
// store's prefix.
func (s *S3) Clear(ctx context.Context) error {
	var continuationToken *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(s.prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return fmt.Errorf("failed to list stored pages: %w", err)
		}

		for _, obj := range out.Contents {
			_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				return fmt.Errorf("failed to delete stored page %q: %w", aws.ToString(obj.Key), err)
			}
		}

		if out.NextContinuationToken == nil {
			return nil
		}
		continuationToken = out.NextContinuationToken
	}
}

// objectKey maps a query key to an object key under the prefix. Keys are
// hashed so arbitrary query strings stay within S3 key-name rules.
func (s *S3) objectKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return path.Join(s.prefix, pageFormatVersion+hex.EncodeToString(sum[:])+".json")
}
