package dbpool

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoConfig addresses a single MongoDB deployment; Database selects the
// namespace the DLR driver stores its collection in.
type MongoConfig struct {
	URI      string
	Database string

	ConnectTimeout time.Duration
}

// mongoDriver does not implement SQLDriver: per the pool contract, the
// MongoDB back-end talks to its raw *mongo.Client handle directly rather
// than through Select/Update.
type mongoDriver struct {
	cfg MongoConfig
}

// NewMongoDriver returns a Driver that opens *mongo.Client handles.
func NewMongoDriver(cfg MongoConfig) Driver {
	return &mongoDriver{cfg: cfg}
}

func (d *mongoDriver) Open(ctx context.Context) (Handle, error) {
	timeout := d.cfg.ConnectTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(d.cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

func (d *mongoDriver) Close(h Handle) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.(*mongo.Client).Disconnect(ctx)
}

func (d *mongoDriver) Check(h Handle) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return h.(*mongo.Client).Ping(ctx, readpref.Primary()) == nil
}

// DatabaseOf returns the configured database handle for a client obtained
// from Consume, the entry point the Mongo DLR store builds its
// collection handle from.
func (c MongoConfig) DatabaseOf(h Handle) *mongo.Database {
	return h.(*mongo.Client).Database(c.Database)
}
