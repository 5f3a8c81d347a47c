package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectMongo opens a connection and returns the client. Caller should call client.Disconnect(ctx).
func ConnectMongo(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	clientOpts := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// UnitOfWork runs a callback as one atomic unit. It underpins the
// single-use guarantees for authorization codes and refresh tokens: the
// delete that consumes a record must commit atomically so concurrent
// redemption attempts observe "not found" and fail closed.
//
// Note the callback's commit is unconditional once fn returns nil; callers
// that need a value burned even when later validation fails must do the
// validation outside the callback.
type UnitOfWork interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// MongoUnitOfWork runs callbacks inside a mongo session transaction.
type MongoUnitOfWork struct {
	client *mongo.Client
}

func NewMongoUnitOfWork(client *mongo.Client) *MongoUnitOfWork {
	return &MongoUnitOfWork{client: client}
}

func (u *MongoUnitOfWork) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	sess, err := u.client.StartSession()
	if err != nil {
		return fmt.Errorf("mongo start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// MemoryUnitOfWork serializes callbacks under a mutex. The memory stores
// share this lock, which gives the same at-most-once semantics as a
// serializable transaction for single-process deployments and tests.
type MemoryUnitOfWork struct {
	mu sync.Mutex
}

func NewMemoryUnitOfWork() *MemoryUnitOfWork { return &MemoryUnitOfWork{} }

func (u *MemoryUnitOfWork) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return fn(ctx)
}
