package tablestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/myselamat/selamat-importer/internal/ingest/schema"
	"github.com/ubuntu/decorate"
)

type dynamoClient interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoDBConfig holds the configuration of the DynamoDB client.
type DynamoDBConfig struct {
	Endpoint string // Optional: DynamoDB local or compatible API
}

// DynamoDB writes records as DynamoDB items.
type DynamoDB struct {
	client dynamoClient
}

type dynamoOptions struct {
	newClient func(cfg aws.Config, optFns ...func(*dynamodb.Options)) dynamoClient
}

// DynamoDBOptions represents an optional function to override DynamoDB default values.
type DynamoDBOptions func(*dynamoOptions)

// NewDynamoDB creates a DynamoDB table store from an AWS configuration.
func NewDynamoDB(cfg aws.Config, c DynamoDBConfig, args ...DynamoDBOptions) *DynamoDB {
	opts := dynamoOptions{
		newClient: func(cfg aws.Config, optFns ...func(*dynamodb.Options)) dynamoClient {
			return dynamodb.NewFromConfig(cfg, optFns...)
		},
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &DynamoDB{
		client: opts.newClient(cfg, func(o *dynamodb.Options) {
			if c.Endpoint != "" {
				o.BaseEndpoint = aws.String(c.Endpoint)
			}
		}),
	}
}

// Describe checks that the table exists and accepts writes.
// It returns ErrTableNotFound if the table does not exist.
func (d DynamoDB) Describe(ctx context.Context, table string) (err error) {
	defer decorate.OnError(&err, "could not describe table %q", table)

	out, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
	if err != nil {
		var rnf *types.ResourceNotFoundException
		if errors.As(err, &rnf) {
			return ErrTableNotFound
		}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ResourceNotFoundException" {
			return ErrTableNotFound
		}
		return err
	}

	if out.Table == nil {
		return ErrTableNotFound
	}
	switch out.Table.TableStatus {
	case types.TableStatusActive, types.TableStatusUpdating, "":
	default:
		return fmt.Errorf("table is %s", out.Table.TableStatus)
	}

	slog.Debug("Described table", "table", table, "status", out.Table.TableStatus)
	return nil
}

// Put inserts the record as a new item of the table.
func (d DynamoDB) Put(ctx context.Context, table string, r schema.Record) (err error) {
	defer decorate.OnError(&err, "could not put record %q in table %q", r.ID(), table)

	item := make(map[string]types.AttributeValue, len(r))
	for k, v := range r {
		av, err := toAttributeValue(v)
		if err != nil {
			return fmt.Errorf("attribute %q: %w", k, err)
		}
		item[k] = av
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      item,
	})
	return err
}

// toAttributeValue converts a decoded JSON value to its DynamoDB attribute.
func toAttributeValue(v any) (types.AttributeValue, error) {
	switch val := v.(type) {
	case nil:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case string:
		return &types.AttributeValueMemberS{Value: val}, nil
	case json.Number:
		return &types.AttributeValueMemberN{Value: val.String()}, nil
	case bool:
		return &types.AttributeValueMemberBOOL{Value: val}, nil
	case map[string]any:
		m := make(map[string]types.AttributeValue, len(val))
		for k, e := range val {
			av, err := toAttributeValue(e)
			if err != nil {
				return nil, err
			}
			m[k] = av
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	case []any:
		l := make([]types.AttributeValue, 0, len(val))
		for _, e := range val {
			av, err := toAttributeValue(e)
			if err != nil {
				return nil, err
			}
			l = append(l, av)
		}
		return &types.AttributeValueMemberL{Value: l}, nil
	default:
		return attributevalue.Marshal(val)
	}
}
