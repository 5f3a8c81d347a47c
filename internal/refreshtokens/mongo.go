package refreshtokens

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoRepository implements Repository using a Mongo collection keyed by
// the token value.
type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Create(ctx context.Context, t *Token) error {
	_, err := r.col.InsertOne(ctx, t)
	return err
}

// Consume deletes and returns the token in one atomic server-side step.
func (r *MongoRepository) Consume(ctx context.Context, token string) (*Token, error) {
	var t Token
	err := r.col.FindOneAndDelete(ctx, bson.M{"_id": token}).Decode(&t)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *MongoRepository) Delete(ctx context.Context, token string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"_id": token})
	return err
}

func (r *MongoRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.M{"userId": userID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
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
