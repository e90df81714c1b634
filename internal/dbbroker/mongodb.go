package dbbroker

import (
	"context"
	"encoding/json"

	"github.com/oriys/raikiri/internal/errkind"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoConn adapts the official mongo-driver (grounded in
// LerianStudio-midaz, the pack's other repo with a document-store
// backend) to Connection. Mongo has no single "statement" string, so
// both ExecuteCommand and FetchRows take a JSON envelope instead:
//
//	{"database": "...", "collection": "...", "filter": {...}}
//
// ExecuteCommand additionally reads "op" ("insert_one" | "update_many" |
// "delete_many") and "document"/"update" as appropriate.
type mongoConn struct {
	client *mongo.Client
}

// DialMongoDB is the Dialer for domain.ConnectionMongoDB.
func DialMongoDB(ctx context.Context, dsn string) (Connection, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(dsn))
	if err != nil {
		return nil, errkind.Wrap(errkind.Storage, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, errkind.Wrap(errkind.Storage, err)
	}
	return &mongoConn{client: client}, nil
}

type mongoEnvelope struct {
	Database   string          `json:"database"`
	Collection string          `json:"collection"`
	Op         string          `json:"op"`
	Filter     json.RawMessage `json:"filter"`
	Document   json.RawMessage `json:"document"`
	Update     json.RawMessage `json:"update"`
}

func decodeEnvelope(raw string) (mongoEnvelope, error) {
	var env mongoEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return env, errkind.Wrap(errkind.Parse, err)
	}
	if env.Database == "" || env.Collection == "" {
		return env, errkind.Wrapf(errkind.Parse, "dbbroker: mongo envelope requires database and collection")
	}
	return env, nil
}

func bsonFromJSON(raw json.RawMessage) (bson.M, error) {
	if len(raw) == 0 {
		return bson.M{}, nil
	}
	var m bson.M
	if err := bson.UnmarshalExtJSON(raw, false, &m); err != nil {
		return nil, errkind.Wrap(errkind.Parse, err)
	}
	return m, nil
}

func (c *mongoConn) ExecuteCommand(ctx context.Context, command string, _ []any) (int64, error) {
	env, err := decodeEnvelope(command)
	if err != nil {
		return 0, err
	}
	coll := c.client.Database(env.Database).Collection(env.Collection)

	switch env.Op {
	case "insert_one":
		doc, err := bsonFromJSON(env.Document)
		if err != nil {
			return 0, err
		}
		if _, err := coll.InsertOne(ctx, doc); err != nil {
			return 0, errkind.Wrap(errkind.Storage, err)
		}
		return 1, nil
	case "update_many":
		filter, err := bsonFromJSON(env.Filter)
		if err != nil {
			return 0, err
		}
		update, err := bsonFromJSON(env.Update)
		if err != nil {
			return 0, err
		}
		res, err := coll.UpdateMany(ctx, filter, update)
		if err != nil {
			return 0, errkind.Wrap(errkind.Storage, err)
		}
		return res.ModifiedCount, nil
	case "delete_many":
		filter, err := bsonFromJSON(env.Filter)
		if err != nil {
			return 0, err
		}
		res, err := coll.DeleteMany(ctx, filter)
		if err != nil {
			return 0, errkind.Wrap(errkind.Storage, err)
		}
		return res.DeletedCount, nil
	default:
		return 0, errkind.Wrapf(errkind.Capability, "dbbroker: unsupported mongo op %q", env.Op)
	}
}

func (c *mongoConn) FetchRows(ctx context.Context, query string, _ []any) ([]Row, error) {
	env, err := decodeEnvelope(query)
	if err != nil {
		return nil, err
	}
	filter, err := bsonFromJSON(env.Filter)
	if err != nil {
		return nil, err
	}

	cursor, err := c.client.Database(env.Database).Collection(env.Collection).Find(ctx, filter)
	if err != nil {
		return nil, errkind.Wrap(errkind.Storage, err)
	}
	defer cursor.Close(ctx)

	var out []Row
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, errkind.Wrap(errkind.Storage, err)
		}
		row := make(Row, len(doc))
		for k, v := range doc {
			row[k] = v
		}
		out = append(out, row)
	}
	if err := cursor.Err(); err != nil {
		return nil, errkind.Wrap(errkind.Storage, err)
	}
	return out, nil
}

func (c *mongoConn) Close() error {
	return c.client.Disconnect(context.Background())
}
