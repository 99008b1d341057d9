package objectstore

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Client = s3Client

// WithClient replaces the S3 client. The client options built by New are applied to opts.
func WithClient(c S3Client, opts *s3.Options) Options {
	return func(o *options) {
		o.newClient = func(_ aws.Config, optFns ...func(*s3.Options)) s3Client {
			if opts != nil {
				for _, fn := range optFns {
					fn(opts)
				}
			}
			return c
		}
	}
}
