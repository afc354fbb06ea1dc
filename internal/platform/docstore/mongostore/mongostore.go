// Package mongostore implements docstore.Store on MongoDB. Each logical
// collection maps to a Mongo collection and the document id is stored as _id.
// Subscriptions use change streams, which require a replica set.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/example/artist-portfolio/internal/platform/docstore"
)

const maxToggleAttempts = 8

var errContention = errors.New("mongostore: toggle contention")

type Store struct {
	client *mongo.Client
	db     *mongo.Database
	log    *zap.Logger
}

var (
	_ docstore.Store   = (*Store)(nil)
	_ docstore.Indexer = (*Store)(nil)
)

// New takes ownership of client; Close disconnects it.
func New(client *mongo.Client, database string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{client: client, db: client.Database(database), log: log}
}

func (s *Store) Create(ctx context.Context, collection string, doc docstore.Document) (string, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	raw := bson.M{"_id": doc.ID}
	for k, v := range doc.Fields {
		raw[k] = v
	}
	if _, err := s.db.Collection(collection).InsertOne(ctx, raw); err != nil {
		return "", classify(err)
	}
	return doc.ID, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	var raw bson.M
	if err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw); err != nil {
		return docstore.Document{}, classify(err)
	}
	return fromBSON(raw), nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if len(fields) == 0 {
		_, err := s.Get(ctx, collection, id)
		return err
	}
	res, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return classify(err)
	}
	if res.MatchedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return classify(err)
	}
	if res.DeletedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteMany(ctx context.Context, collection string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.db.Collection(collection).DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, classify(err)
	}
	return int(res.DeletedCount), nil
}

func (s *Store) Query(ctx context.Context, collection string, filter docstore.Filter) ([]docstore.Document, error) {
	cursor, err := s.db.Collection(collection).Find(ctx, toBSON(filter))
	if err != nil {
		return nil, classify(err)
	}
	defer cursor.Close(ctx)

	out := make([]docstore.Document, 0)
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("mongostore: decode: %w", err)
		}
		out = append(out, fromBSON(raw))
	}
	if err := cursor.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// ToggleMember flips membership with two guarded single-document updates:
// add when the member is absent, pull when present. If neither guard
// matches, another writer moved the document in between and we try again.
func (s *Store) ToggleMember(ctx context.Context, collection, id string, t docstore.Toggle) (docstore.Document, bool, error) {
	coll := s.db.Collection(collection)
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	add := bson.M{
		"$addToSet": bson.M{t.SetField: t.Member},
		"$inc":      bson.M{t.CountField: 1},
	}
	remove := bson.M{
		"$pull": bson.M{t.SetField: t.Member},
		"$inc":  bson.M{t.CountField: -1},
	}
	if len(t.Set) > 0 {
		add["$set"] = t.Set
		remove["$set"] = t.Set
	}

	for attempt := 0; attempt < maxToggleAttempts; attempt++ {
		doc, err := findOneAndUpdate(ctx, coll, bson.M{"_id": id, t.SetField: bson.M{"$ne": t.Member}}, add, opts)
		if err == nil {
			return doc, true, nil
		}
		if !errors.Is(err, docstore.ErrNotFound) {
			return docstore.Document{}, false, err
		}

		doc, err = findOneAndUpdate(ctx, coll, bson.M{"_id": id, t.SetField: t.Member}, remove, opts)
		if err == nil {
			return doc, false, nil
		}
		if !errors.Is(err, docstore.ErrNotFound) {
			return docstore.Document{}, false, err
		}

		n, err := coll.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
		if err != nil {
			return docstore.Document{}, false, classify(err)
		}
		if n == 0 {
			return docstore.Document{}, false, docstore.ErrNotFound
		}
	}
	return docstore.Document{}, false, docstore.Unavailable(errContention)
}

func findOneAndUpdate(ctx context.Context, coll *mongo.Collection, filter, update bson.M, opts *options.FindOneAndUpdateOptions) (docstore.Document, error) {
	var raw bson.M
	if err := coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&raw); err != nil {
		return docstore.Document{}, classify(err)
	}
	return fromBSON(raw), nil
}

// Subscribe opens the change stream before the first load so no write that
// lands between the two is missed.
func (s *Store) Subscribe(ctx context.Context, collection string, filter docstore.Filter) (*docstore.Subscription, error) {
	watchCtx, cancel := context.WithCancel(ctx)
	stream, err := s.db.Collection(collection).Watch(watchCtx, mongo.Pipeline{})
	if err != nil {
		cancel()
		return nil, classify(err)
	}

	changes := make(chan struct{}, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stream.Close(context.Background())
		for stream.Next(watchCtx) {
			docstore.Signal(changes)
		}
		if watchCtx.Err() == nil {
			s.log.Warn("change stream ended",
				zap.String("collection", collection),
				zap.Error(stream.Err()),
			)
			close(changes)
		}
	}()

	return docstore.NewSubscription(ctx, docstore.Feed{
		Load: func(ctx context.Context) ([]docstore.Document, error) {
			return s.Query(ctx, collection, filter)
		},
		Changes: changes,
		Release: func() {
			cancel()
			wg.Wait()
		},
	}), nil
}

func (s *Store) EnsureIndex(ctx context.Context, collection string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	models := make([]mongo.IndexModel, 0, len(fields))
	for _, f := range fields {
		models = append(models, mongo.IndexModel{Keys: bson.D{{Key: f, Value: 1}}})
	}
	if _, err := s.db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func toBSON(filter docstore.Filter) bson.M {
	if len(filter) == 0 {
		return bson.M{}
	}
	clauses := make([]bson.M, 0, len(filter))
	for _, c := range filter {
		field := c.Field
		if field == docstore.IDField {
			field = "_id"
		}
		switch c.Op {
		case docstore.OpEq:
			clauses = append(clauses, bson.M{field: c.Values[0]})
		case docstore.OpIn:
			values := c.Values
			if values == nil {
				values = []string{}
			}
			clauses = append(clauses, bson.M{field: bson.M{"$in": values}})
		case docstore.OpMissing:
			clauses = append(clauses, bson.M{field: nil})
		}
	}
	if len(clauses) == 1 {
		return clauses[0]
	}
	return bson.M{"$and": clauses}
}

func fromBSON(raw bson.M) docstore.Document {
	id, _ := raw["_id"].(string)
	delete(raw, "_id")
	return docstore.Document{ID: id, Fields: raw}
}

func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return docstore.ErrNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case mongo.IsDuplicateKeyError(err):
		return docstore.ErrConflict
	case mongo.IsNetworkError(err), mongo.IsTimeout(err), errors.Is(err, mongo.ErrClientDisconnected):
		return docstore.Unavailable(err)
	default:
		return fmt.Errorf("mongostore: %w", err)
	}
}
