package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zhidu-qidian/Spiders/internal/spider"
)

type recordDoc struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	spider.Record `bson:",inline"`
}

// RecordStore implements spider.RecordStore on one collection with a unique
// index on "unique".
type RecordStore struct {
	coll *mongo.Collection
}

var _ spider.RecordStore = (*RecordStore)(nil)

// NewRecordStore wraps coll.
func NewRecordStore(coll *mongo.Collection) *RecordStore {
	return &RecordStore{coll: coll}
}

// Insert stores r and returns the hex ObjectID. Unique collisions map to
// spider.ErrDuplicate.
func (s *RecordStore) Insert(ctx context.Context, r *spider.Record) (string, error) {
	res, err := s.coll.InsertOne(ctx, recordDoc{Record: *r})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", spider.ErrDuplicate
		}
		return "", fmt.Errorf("insert record: %w", err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted id %T", res.InsertedID)
	}
	return oid.Hex(), nil
}

// Get loads a record by hex id.
func (s *RecordStore) Get(ctx context.Context, id string) (*spider.Record, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var doc recordDoc
	if err := s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("record %s: %w", id, spider.ErrNotFound)
		}
		return nil, fmt.Errorf("find record %s: %w", id, err)
	}
	rec := doc.Record
	rec.ID = doc.ID.Hex()
	return &rec, nil
}

// Update applies patch with $set. Procedure moves are checked against the
// stored value and guarded by a compare-and-set filter.
func (s *RecordStore) Update(ctx context.Context, id string, patch spider.Patch) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	filter := bson.M{"_id": oid}
	if patch.Procedure != nil {
		var current struct {
			Procedure spider.Procedure `bson:"procedure"`
		}
		opts := options.FindOne().SetProjection(bson.M{"procedure": 1})
		if err := s.coll.FindOne(ctx, filter, opts).Decode(&current); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return fmt.Errorf("record %s: %w", id, spider.ErrNotFound)
			}
			return fmt.Errorf("find record %s: %w", id, err)
		}
		if !spider.CanAdvance(current.Procedure, *patch.Procedure) {
			return fmt.Errorf("record %s %s -> %s: %w", id, current.Procedure, *patch.Procedure, spider.ErrProcedureRegression)
		}
		filter["procedure"] = current.Procedure
	}
	set := patchSet(patch)
	if len(set) == 0 {
		return nil
	}
	res, err := s.coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update record %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("record %s changed concurrently: %w", id, spider.ErrProcedureRegression)
	}
	return nil
}

func patchSet(p spider.Patch) bson.M {
	set := bson.M{}
	if p.Procedure != nil {
		set["procedure"] = *p.Procedure
	}
	if p.Error != nil {
		set["error"] = *p.Error
	}
	if p.Pages != nil {
		set["pages"] = p.Pages
	}
	if p.ListFields != nil {
		set["list_fields"] = *p.ListFields
	}
	if p.Fields != nil {
		set["fields"] = *p.Fields
	}
	if p.StoreID != nil {
		set["store_id"] = *p.StoreID
	}
	return set
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("invalid id %q: %w", id, spider.ErrNotFound)
	}
	return oid, nil
}
