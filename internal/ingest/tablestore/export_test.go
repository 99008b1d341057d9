package tablestore

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

type DynamoClient = dynamoClient
type DBPool = dbPool

// WithDynamoClient replaces the DynamoDB client. The client options built by NewDynamoDB are applied to opts.
func WithDynamoClient(c DynamoClient, opts *dynamodb.Options) DynamoDBOptions {
	return func(o *dynamoOptions) {
		o.newClient = func(_ aws.Config, optFns ...func(*dynamodb.Options)) dynamoClient {
			if opts != nil {
				for _, fn := range optFns {
					fn(opts)
				}
			}
			return c
		}
	}
}

func WithNewPool(newPool func(ctx context.Context, dsn string) (DBPool, error)) PostgresOptions {
	return func(o *pgOptions) {
		o.newPool = newPool
	}
}
