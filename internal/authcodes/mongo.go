package authcodes

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoRepository implements Repository using a Mongo collection keyed by
// the code value.
type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Create(ctx context.Context, c *Code) error {
	_, err := r.col.InsertOne(ctx, c)
	return err
}

// Consume uses FindOneAndDelete: the delete and the read are one atomic
// step on the server, so a concurrent redemption of the same code gets
// ErrNoDocuments and maps to nil.
func (r *MongoRepository) Consume(ctx context.Context, code string) (*Code, error) {
	var c Code
	err := r.col.FindOneAndDelete(ctx, bson.M{"_id": code}).Decode(&c)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *MongoRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lt": now}})
	if err != nil {
		return 0, err
	}
	if res == nil {
		return 0, nil
	}
	return res.DeletedCount, nil
}
