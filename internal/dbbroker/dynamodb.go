package dbbroker

import (
	"context"
	"encoding/json"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/oriys/raikiri/internal/errkind"
)

// dynamoConn adapts aws-sdk-go-v2's dynamodb client to Connection. The
// teacher's go.mod already listed aws-sdk-go-v2 as a dependency with no
// importing code anywhere in the tree (verified by grep); this wires it
// to an actual component for the first time.
type dynamoConn struct {
	client *dynamodb.Client
}

// DialDynamoDB is the Dialer for domain.ConnectionDynamoDB. dsn is the
// colon-joined "access_key_id:secret_access_key:region:endpoint_url"
// string the CapabilityBridge composes. An empty access key leaves
// credentials to the standard SDK chain (environment, shared config,
// instance role); an empty endpoint uses the SDK's default endpoint.
func DialDynamoDB(ctx context.Context, dsn string) (Connection, error) {
	parts := strings.SplitN(dsn, ":", 4)
	if len(parts) != 4 {
		return nil, errkind.Wrapf(errkind.Parse, "dbbroker: dynamodb dsn needs four colon-separated fields")
	}
	accessKey, secretKey, region, endpoint := parts[0], parts[1], parts[2], parts[3]
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errkind.Wrap(errkind.Storage, err)
	}
	return &dynamoConn{client: dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = &endpoint
		}
	})}, nil
}

type dynamoEnvelope struct {
	Table string          `json:"table"`
	Op    string          `json:"op"`
	Item  json.RawMessage `json:"item"`
	Key   json.RawMessage `json:"key"`
}

func decodeDynamoEnvelope(raw string) (dynamoEnvelope, error) {
	var env dynamoEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return env, errkind.Wrap(errkind.Parse, err)
	}
	if env.Table == "" {
		return env, errkind.Wrapf(errkind.Parse, "dbbroker: dynamodb envelope requires table")
	}
	return env, nil
}

func attributeMapFromJSON(raw json.RawMessage) (map[string]types.AttributeValue, error) {
	if len(raw) == 0 {
		return map[string]types.AttributeValue{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errkind.Wrap(errkind.Parse, err)
	}
	av, err := attributevalue.MarshalMap(m)
	if err != nil {
		return nil, errkind.Wrap(errkind.Parse, err)
	}
	return av, nil
}

func (c *dynamoConn) ExecuteCommand(ctx context.Context, command string, _ []any) (int64, error) {
	env, err := decodeDynamoEnvelope(command)
	if err != nil {
		return 0, err
	}

	switch env.Op {
	case "put_item":
		item, err := attributeMapFromJSON(env.Item)
		if err != nil {
			return 0, err
		}
		if _, err := c.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: &env.Table,
			Item:      item,
		}); err != nil {
			return 0, errkind.Wrap(errkind.Storage, err)
		}
		return 1, nil
	case "delete_item":
		key, err := attributeMapFromJSON(env.Key)
		if err != nil {
			return 0, err
		}
		if _, err := c.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: &env.Table,
			Key:       key,
		}); err != nil {
			return 0, errkind.Wrap(errkind.Storage, err)
		}
		return 1, nil
	default:
		return 0, errkind.Wrapf(errkind.Capability, "dbbroker: unsupported dynamodb op %q", env.Op)
	}
}

func (c *dynamoConn) FetchRows(ctx context.Context, query string, _ []any) ([]Row, error) {
	env, err := decodeDynamoEnvelope(query)
	if err != nil {
		return nil, err
	}
	key, err := attributeMapFromJSON(env.Key)
	if err != nil {
		return nil, err
	}

	if len(key) > 0 {
		out, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: &env.Table,
			Key:       key,
		})
		if err != nil {
			return nil, errkind.Wrap(errkind.Storage, err)
		}
		if out.Item == nil {
			return nil, nil
		}
		var row Row
		if err := attributevalue.UnmarshalMap(out.Item, &row); err != nil {
			return nil, errkind.Wrap(errkind.Storage, err)
		}
		return []Row{row}, nil
	}

	out, err := c.client.Scan(ctx, &dynamodb.ScanInput{TableName: &env.Table})
	if err != nil {
		return nil, errkind.Wrap(errkind.Storage, err)
	}
	rows := make([]Row, 0, len(out.Items))
	for _, item := range out.Items {
		var row Row
		if err := attributevalue.UnmarshalMap(item, &row); err != nil {
			return nil, errkind.Wrap(errkind.Storage, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (c *dynamoConn) Close() error {
	return nil
}
