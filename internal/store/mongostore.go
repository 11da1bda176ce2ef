package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo document layout: top-level collections map 1:1 onto Mongo
// collections keyed by id. Subcollection documents live in a collection
// named <collection>_<sub> with a composite "<parentID>:<childID>" id plus
// _parent/_key fields for collection reads. Atomic batches run inside a
// session transaction; subscriptions ride change streams.
type MongoStore struct {
	client    *mongo.Client
	db        *mongo.Database
	chunkSize int
	log       zerolog.Logger
}

func NewMongoStore(client *mongo.Client, database string, chunkSize int, logger zerolog.Logger) *MongoStore {
	if chunkSize <= 0 {
		chunkSize = 10
	}
	return &MongoStore{
		client:    client,
		db:        client.Database(database),
		chunkSize: chunkSize,
		log:       logger,
	}
}

func (s *MongoStore) ChunkSize() int { return s.chunkSize }

// docRef maps a document path onto (mongo collection, document id).
func (s *MongoStore) docRef(path string) (*mongo.Collection, string, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, "", err
	}
	switch len(segs) {
	case 2:
		return s.db.Collection(segs[0]), segs[1], nil
	case 4:
		return s.db.Collection(segs[0] + "_" + segs[2]), segs[1] + ":" + segs[3], nil
	}
	return nil, "", fmt.Errorf("store: %q is not a document path", path)
}

// collRef maps a collection path onto (mongo collection, filter).
func (s *MongoStore) collRef(path string) (*mongo.Collection, bson.M, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, nil, err
	}
	switch len(segs) {
	case 1:
		return s.db.Collection(segs[0]), bson.M{}, nil
	case 3:
		return s.db.Collection(segs[0] + "_" + segs[2]), bson.M{"_parent": path}, nil
	}
	return nil, nil, fmt.Errorf("store: %q is not a collection path", path)
}

func (s *MongoStore) Get(ctx context.Context, path string) (Doc, error) {
	coll, id, err := s.docRef(path)
	if err != nil {
		return Doc{}, err
	}
	var m bson.M
	if err := coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if err == mongo.ErrNoDocuments {
			return Doc{}, ErrNotFound
		}
		return Doc{}, err
	}
	return mongoDoc(path, m), nil
}

func (s *MongoStore) List(ctx context.Context, path string) ([]Doc, error) {
	coll, filter, err := s.collRef(path)
	if err != nil {
		return nil, err
	}
	findOptions := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := coll.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []Doc
	for cursor.Next(ctx) {
		var m bson.M
		if err := cursor.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, mongoDoc(path+"/"+childID(m), m))
	}
	return out, cursor.Err()
}

func (s *MongoStore) ListPage(ctx context.Context, collection, afterID string, limit int) ([]Doc, error) {
	coll := s.db.Collection(collection)
	filter := bson.M{}
	if afterID != "" {
		filter["_id"] = bson.M{"$gt": afterID}
	}
	findOptions := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetLimit(int64(limit))
	cursor, err := coll.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []Doc
	for cursor.Next(ctx) {
		var m bson.M
		if err := cursor.Decode(&m); err != nil {
			return nil, err
		}
		id, _ := m["_id"].(string)
		out = append(out, mongoDoc(DocPath(collection, id), m))
	}
	return out, cursor.Err()
}

func (s *MongoStore) FindByIDs(ctx context.Context, collection string, ids []string) ([]Doc, error) {
	if len(ids) > s.chunkSize {
		return nil, ErrChunkTooLarge
	}
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := s.db.Collection(collection).Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []Doc
	for cursor.Next(ctx) {
		var m bson.M
		if err := cursor.Decode(&m); err != nil {
			return nil, err
		}
		id, _ := m["_id"].(string)
		out = append(out, mongoDoc(DocPath(collection, id), m))
	}
	return out, cursor.Err()
}

func (s *MongoStore) Apply(ctx context.Context, b *Batch) error {
	session, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		for _, pc := range b.preconds {
			coll, id, err := s.docRef(pc.path)
			if err != nil {
				return nil, err
			}
			n, err := coll.CountDocuments(sc, bson.M{"_id": id})
			if err != nil {
				return nil, err
			}
			if pc.kind == expectExists && n == 0 {
				return nil, ErrPreconditionFailed
			}
			if pc.kind == expectAbsent && n > 0 {
				return nil, ErrPreconditionFailed
			}
		}

		for _, op := range b.ops {
			coll, id, err := s.docRef(op.path)
			if err != nil {
				return nil, err
			}
			switch op.kind {
			case opSet:
				doc := bson.M{"_id": id}
				for k, v := range op.data {
					doc[k] = v
				}
				if segs, _ := splitPath(op.path); len(segs) == 4 {
					doc["_parent"] = SubCollection(segs[0], segs[1], segs[2])
					doc["_key"] = segs[3]
				}
				if _, err := coll.ReplaceOne(sc, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true)); err != nil {
					return nil, err
				}
			case opUpdate:
				fields := bson.M{}
				for k, v := range op.data {
					fields[k] = v
				}
				if _, err := coll.UpdateOne(sc, bson.M{"_id": id}, bson.M{"$set": fields}); err != nil {
					return nil, err
				}
			case opDelete:
				if _, err := coll.DeleteOne(sc, bson.M{"_id": id}); err != nil {
					return nil, err
				}
			case opIncrement:
				if _, err := coll.UpdateOne(sc, bson.M{"_id": id}, bson.M{"$inc": bson.M{op.field: op.delta}}); err != nil {
					return nil, err
				}
			}
		}
		return nil, nil
	})
	return err
}

type changeEvent struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument bson.M `bson:"fullDocument"`
}

func (s *MongoStore) Subscribe(ctx context.Context, path string, fn func(Event)) (CancelFunc, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	var coll *mongo.Collection
	var match bson.M
	switch len(segs) {
	case 1:
		coll = s.db.Collection(segs[0])
		match = bson.M{}
	case 2:
		coll = s.db.Collection(segs[0])
		match = bson.M{"documentKey._id": segs[1]}
	case 3:
		coll = s.db.Collection(segs[0] + "_" + segs[2])
		match = bson.M{"documentKey._id": primitive.Regex{Pattern: "^" + regexp.QuoteMeta(segs[1]) + ":"}}
	case 4:
		coll = s.db.Collection(segs[0] + "_" + segs[2])
		match = bson.M{"documentKey._id": segs[1] + ":" + segs[3]}
	default:
		return nil, fmt.Errorf("store: malformed path %q", path)
	}

	pipeline := mongo.Pipeline{bson.D{{Key: "$match", Value: match}}}
	streamOptions := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	streamCtx, cancelCtx := context.WithCancel(context.Background())
	stream, err := coll.Watch(streamCtx, pipeline, streamOptions)
	if err != nil {
		cancelCtx()
		return nil, err
	}

	go func() {
		defer stream.Close(context.Background())
		for stream.Next(streamCtx) {
			var ce changeEvent
			if err := stream.Decode(&ce); err != nil {
				s.log.Error().Err(err).Str("path", path).Msg("failed to decode change stream event")
				continue
			}
			ev, ok := s.eventFor(path, len(segs), ce)
			if !ok {
				continue
			}
			fn(ev)
		}
		if err := stream.Err(); err != nil && streamCtx.Err() == nil {
			s.log.Error().Err(err).Str("path", path).Msg("change stream terminated")
		}
	}()

	var once sync.Once
	cancel := func() { once.Do(cancelCtx) }
	return cancel, nil
}

func (s *MongoStore) eventFor(path string, pathLen int, ce changeEvent) (Event, bool) {
	var typ EventType
	switch ce.OperationType {
	case "insert":
		typ = EventAdded
	case "update", "replace":
		typ = EventModified
	case "delete":
		typ = EventRemoved
	default:
		return Event{}, false
	}

	storedID := ce.DocumentKey.ID
	childKey := storedID
	if i := strings.Index(storedID, ":"); i >= 0 {
		childKey = storedID[i+1:]
	}

	docPath := path
	if pathLen == 1 || pathLen == 3 {
		docPath = path + "/" + childKey
	}

	doc := Doc{ID: childKey, Path: docPath}
	if ce.FullDocument != nil {
		doc = mongoDoc(docPath, ce.FullDocument)
	}
	return Event{Type: typ, Doc: doc}, true
}

func childID(m bson.M) string {
	if k, ok := m["_key"].(string); ok {
		return k
	}
	id, _ := m["_id"].(string)
	return id
}

func mongoDoc(path string, m bson.M) Doc {
	data := make(map[string]any, len(m))
	for k, v := range m {
		if k == "_id" || k == "_parent" || k == "_key" {
			continue
		}
		data[k] = v
	}
	return Doc{
		ID:   path[strings.LastIndex(path, "/")+1:],
		Path: path,
		Data: data,
	}
}
