// Package objectstore reads JSON documents from Amazon S3 or any S3 compatible storage.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ubuntu/decorate"
)

// ErrNotExist is returned when the requested object does not exist.
var ErrNotExist = errors.New("object does not exist")

// Config holds the configuration of the S3 client.
type Config struct {
	Endpoint     string // Optional: for S3 compatible APIs
	UsePathStyle bool   // Optional: set true for S3 compatible APIs
	MaxKeys      int32  // Optional: page size of listings, service default when 0
}

type s3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3 reads objects and lists keys from S3 buckets.
type S3 struct {
	client  s3Client
	maxKeys int32
}

type options struct {
	newClient func(cfg aws.Config, optFns ...func(*s3.Options)) s3Client
}

// Options represents an optional function to override S3 default values.
type Options func(*options)

// New creates an S3 reader from an AWS configuration.
func New(cfg aws.Config, c Config, args ...Options) *S3 {
	opts := options{
		newClient: func(cfg aws.Config, optFns ...func(*s3.Options)) s3Client {
			return s3.NewFromConfig(cfg, optFns...)
		},
	}
	for _, opt := range args {
		opt(&opts)
	}

	client := opts.newClient(cfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
		o.UsePathStyle = c.UsePathStyle
	})

	return &S3{
		client:  client,
		maxKeys: c.MaxKeys,
	}
}

// Get returns the content of the object stored at key in bucket.
func (s *S3) Get(ctx context.Context, bucket, key string) (data []byte, err error) {
	defer decorate.OnError(&err, "could not get object %q from bucket %q", key, bucket)

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotExist
		}
		return nil, err
	}
	defer out.Body.Close()

	data, err = io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	return data, nil
}

// Page is one page of a key listing.
type Page struct {
	Keys []string
	// NextToken resumes the listing. It is empty on the last page.
	NextToken string
}

// ListPage lists one page of the keys under prefix in bucket, in lexicographic order.
// An empty token starts from the beginning.
func (s *S3) ListPage(ctx context.Context, bucket, prefix, token string) (page Page, err error) {
	defer decorate.OnError(&err, "could not list objects under %q in bucket %q", prefix, bucket)

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}
	if token != "" {
		input.ContinuationToken = aws.String(token)
	}
	if s.maxKeys > 0 {
		input.MaxKeys = aws.Int32(s.maxKeys)
	}

	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return Page{}, err
	}

	page.Keys = make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		if obj.Key == nil {
			continue
		}
		page.Keys = append(page.Keys, aws.ToString(obj.Key))
	}
	if aws.ToBool(out.IsTruncated) {
		page.NextToken = aws.ToString(out.NextContinuationToken)
		if page.NextToken == "" {
			return Page{}, errors.New("truncated listing without continuation token")
		}
	}

	slog.Debug("Listed objects", "bucket", bucket, "prefix", prefix, "count", len(page.Keys), "more", page.NextToken != "")
	return page, nil
}
