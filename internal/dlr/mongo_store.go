package dlr

import (
	"context"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/kannel-go/smsbox/internal/dbpool"
)

type mongoStore struct {
	pool       *dbpool.Pool
	cfg        dbpool.MongoConfig
	collection string
	log        *zap.Logger
	events     *EventPublisher
}

// NewMongoStore builds a Store over a MongoDB pool, ensuring the
// compound index on (smsc, ts) the reference implementation also
// maintains. collection is the namespace's collection name.
func NewMongoStore(ctx context.Context, pool *dbpool.Pool, cfg dbpool.MongoConfig, collection string, log *zap.Logger, events *EventPublisher) (Store, error) {
	s := &mongoStore{pool: pool, cfg: cfg, collection: collection, log: log, events: events}
	h, err := pool.Consume(ctx)
	if err != nil {
		return nil, err
	}
	defer pool.Produce(h)
	coll := cfg.DatabaseOf(h).Collection(collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "smsc", Value: 1}, {Key: "ts", Value: 1}},
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *mongoStore) collectionOf(h dbpool.Handle) *mongo.Collection {
	return s.cfg.DatabaseOf(h).Collection(s.collection)
}

func (s *mongoStore) withHandle(ctx context.Context, op string, fn func(coll *mongo.Collection) error) {
	h, err := s.pool.Consume(ctx)
	if err != nil {
		s.log.Warn("dlr: pool exhausted", zap.String("op", op), zap.Error(err))
		return
	}
	defer s.pool.Produce(h)
	if err := fn(s.collectionOf(h)); err != nil {
		s.log.Warn("dlr: back-end error", zap.String("op", op), zap.Error(err))
	}
}

// cond builds the exact (smsc, ts) plus suffix-on-destination filter the
// whole store relies on. The original MongoDB back-end matches dst
// exactly; the spec's uniform matching rule requires a suffix match
// across every back-end, so this anchors a regex at the end of the
// string instead (the only way Mongo expresses "ends with").
func cond(smsc, ts, dst string) bson.M {
	filter := bson.M{"smsc": smsc, "ts": ts}
	if dst != "" {
		filter["destination"] = bson.M{"$regex": regexp.QuoteMeta(dst) + "$"}
	}
	return filter
}

func (s *mongoStore) Add(ctx context.Context, e *Entry) error {
	if e.SMSC == "" || e.Timestamp == "" {
		return errMissingKey
	}
	doc := bson.M{
		"smsc": e.SMSC, "ts": e.Timestamp, "source": e.Source,
		"destination": e.Destination, "service": e.Service, "url": e.URL,
		"mask": e.Mask, "boxc_id": e.BoxCID, "status": 0,
	}
	s.withHandle(ctx, "add", func(coll *mongo.Collection) error {
		_, err := coll.InsertOne(ctx, doc)
		return err
	})
	return nil
}

func (s *mongoStore) Get(ctx context.Context, smsc, ts, dst string) (*Entry, bool) {
	var found *Entry
	s.withHandle(ctx, "get", func(coll *mongo.Collection) error {
		var doc bson.M
		err := coll.FindOne(ctx, cond(smsc, ts, dst)).Decode(&doc)
		if err == mongo.ErrNoDocuments {
			return nil
		}
		if err != nil {
			return err
		}
		found = &Entry{
			SMSC:        stringOf(doc["smsc"]),
			Timestamp:   stringOf(doc["ts"]),
			Source:      stringOf(doc["source"]),
			Destination: stringOf(doc["destination"]),
			Service:     stringOf(doc["service"]),
			URL:         stringOf(doc["url"]),
			Mask:        intOf(doc["mask"]),
			Status:      intOf(doc["status"]),
		}
		return nil
	})
	return found, found != nil
}

func (s *mongoStore) Update(ctx context.Context, smsc, ts, dst string, status int) {
	s.withHandle(ctx, "update", func(coll *mongo.Collection) error {
		_, err := coll.UpdateOne(ctx, cond(smsc, ts, dst), bson.M{"$set": bson.M{"status": status}},
			options.Update())
		if err == nil && s.events != nil {
			s.events.PublishStatusChange(ctx, smsc, ts, dst, status)
		}
		return err
	})
}

func (s *mongoStore) Remove(ctx context.Context, smsc, ts, dst string) {
	s.withHandle(ctx, "remove", func(coll *mongo.Collection) error {
		_, err := coll.DeleteOne(ctx, cond(smsc, ts, dst))
		return err
	})
}

func (s *mongoStore) Messages(ctx context.Context) int64 {
	var n int64 = -1
	s.withHandle(ctx, "messages", func(coll *mongo.Collection) error {
		count, err := coll.CountDocuments(ctx, bson.M{})
		if err != nil {
			return err
		}
		n = count
		return nil
	})
	return n
}

func (s *mongoStore) Flush(ctx context.Context) error {
	var outerErr error
	s.withHandle(ctx, "flush", func(coll *mongo.Collection) error {
		_, err := coll.DeleteMany(ctx, bson.M{})
		outerErr = err
		return err
	})
	return outerErr
}

func stringOf(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
